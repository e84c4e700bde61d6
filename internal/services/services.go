package services

import (
	"context"
	"net/http"

	"github.com/desertthunder/shelf/internal/models"
)

// Library is every backend operation the front ends use.
//
// [Client] implements it; tests substitute doubles.
type Library interface {
	// Authenticate posts credentials without attaching any session. A rejected login is an [APIError].
	Authenticate(ctx context.Context, req models.LoginRequest) (*LoginResult, error)
	// SignUp registers a new account without attaching any session.
	SignUp(ctx context.Context, reg models.Registration) (*models.User, error)
	// Register creates an account on behalf of the logged-in admin.
	Register(ctx context.Context, reg models.Registration) (*models.User, error)

	Books(ctx context.Context, page, size int) (*models.Page[models.Book], error)
	BooksByGenre(ctx context.Context, genre string, page, size int) (*models.Page[models.Book], error)
	Genres(ctx context.Context) ([]string, error)
	Book(ctx context.Context, id int64) (*models.Book, error)
	AddBook(ctx context.Context, in models.BookInput) (*models.Book, error)
	UpdateBook(ctx context.Context, id int64, in models.BookInput) (*models.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	UpdateBookCopies(ctx context.Context, id int64, copies int) (*models.Book, error)

	Users(ctx context.Context) ([]models.User, error)
	UsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
	User(ctx context.Context, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, in models.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	WalletBalance(ctx context.Context, userID int64) (models.Money, error)
	FinesPaid(ctx context.Context, userID int64) (models.Money, error)
	AddToWallet(ctx context.Context, userID int64, amount models.Money) error

	Borrow(ctx context.Context, userID, bookID int64) (*models.BorrowRecord, error)
	Return(ctx context.Context, userID, bookID int64) (*models.BorrowRecord, error)
	PayFine(ctx context.Context, userID, recordID int64) error
	History(ctx context.Context, userID int64) ([]models.BorrowRecord, error)
	ActiveBorrows(ctx context.Context, userID int64) ([]models.BorrowRecord, error)
	UnpaidFines(ctx context.Context, userID int64) ([]models.BorrowRecord, error)
	AllActiveBorrows(ctx context.Context) ([]models.BorrowRecord, error)
	AllUnpaidFines(ctx context.Context) ([]models.BorrowRecord, error)
	TotalFinesCollected(ctx context.Context) (models.Money, error)

	AdminTotalFines(ctx context.Context) (models.Money, error)
	AdminActiveBorrows(ctx context.Context) ([]models.BorrowRecord, error)
	AdminUnpaidFines(ctx context.Context) ([]models.BorrowRecord, error)
	AdminSubscribers(ctx context.Context) ([]models.User, error)
	AdminAdmins(ctx context.Context) ([]models.User, error)
	AdminUsers(ctx context.Context) ([]models.User, error)
}

// LoginResult is a successful login: the user plus whatever credential the backend issued.
//
// Token is set when the body carried one; Cookies holds any Set-Cookie headers.
type LoginResult struct {
	User    *models.User
	Token   string
	Cookies []*http.Cookie
}

var _ Library = (*Client)(nil)
