package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/shared"
)

// fetch performs a request and decodes a JSON body into T.
func fetch[T any](ctx context.Context, c *Client, path string, opts RequestOpts) (T, error) {
	var out T
	resp, err := c.Request(ctx, path, opts)
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// list is fetch for collections; a missing or null body becomes an empty slice.
func list[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	items, err := fetch[[]T](ctx, c, path, RequestOpts{})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// object decodes an optional JSON object body. Plain-text acknowledgements yield nil.
func object[T any](ctx context.Context, c *Client, path string, opts RequestOpts) (*T, error) {
	resp, err := c.Request(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	if !resp.IsJSON {
		return nil, nil
	}
	if _, ok := resp.JSONData.(map[string]any); !ok {
		return nil, nil
	}

	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// page fetches a paginated listing. A bare array is accepted as a single page.
func page[T any](ctx context.Context, c *Client, path string, query url.Values, number, size int) (*models.Page[T], error) {
	resp, err := c.Request(ctx, path, RequestOpts{Query: query})
	if err != nil {
		return nil, err
	}

	out := &models.Page[T]{}
	if body := bytes.TrimSpace(resp.Body); len(body) > 0 && body[0] == '[' {
		if err := resp.Decode(&out.Content); err != nil {
			return nil, err
		}
		out.TotalElements = len(out.Content)
	} else if resp.IsJSON {
		if err := resp.Decode(out); err != nil {
			return nil, err
		}
	}
	return out.Normalize(number, size), nil
}

func (c *Client) money(ctx context.Context, path string) (models.Money, error) {
	resp, err := c.Request(ctx, path, RequestOpts{})
	if err != nil {
		return 0, err
	}
	n, err := resp.Number()
	if err != nil {
		return 0, err
	}
	return models.Money(n), nil
}

func pageQuery(number, size int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(number))
	q.Set("size", strconv.Itoa(size))
	return q
}

func id(n int64) string { return strconv.FormatInt(n, 10) }

// Authenticate implements [Library].
//
// The backend answers either {token, user} or the bare user; session cookies, if any, are kept.
func (c *Client) Authenticate(ctx context.Context, req models.LoginRequest) (*LoginResult, error) {
	resp, err := c.Request(ctx, "/api/users/login", RequestOpts{Method: http.MethodPost, Body: req, Anonymous: true})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Token string          `json:"token"`
		User  json.RawMessage `json:"user"`
	}
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}

	result := &LoginResult{Token: envelope.Token, Cookies: (&http.Response{Header: resp.Headers}).Cookies()}
	userJSON := resp.Body
	if len(envelope.User) > 0 && string(envelope.User) != "null" {
		userJSON = envelope.User
	}

	var user models.User
	if err := json.Unmarshal(userJSON, &user); err != nil {
		return nil, fmt.Errorf("%w: unexpected login response: %v", shared.ErrAPIRequest, err)
	}
	if user.Username == "" && user.ID == 0 {
		return nil, fmt.Errorf("%w: login response has no user", shared.ErrAPIRequest)
	}
	result.User = &user
	return result, nil
}

// SignUp implements [Library].
func (c *Client) SignUp(ctx context.Context, reg models.Registration) (*models.User, error) {
	return object[models.User](ctx, c, "/api/users/register", RequestOpts{Method: http.MethodPost, Body: reg, Anonymous: true})
}

// Register implements [Library].
func (c *Client) Register(ctx context.Context, reg models.Registration) (*models.User, error) {
	return object[models.User](ctx, c, "/api/users/register", RequestOpts{Method: http.MethodPost, Body: reg})
}

// Books implements [Library].
func (c *Client) Books(ctx context.Context, number, size int) (*models.Page[models.Book], error) {
	return page[models.Book](ctx, c, "/api/books", pageQuery(number, size), number, size)
}

// BooksByGenre implements [Library].
func (c *Client) BooksByGenre(ctx context.Context, genre string, number, size int) (*models.Page[models.Book], error) {
	q := pageQuery(number, size)
	q.Set("genre", genre)
	return page[models.Book](ctx, c, "/api/books/genre", q, number, size)
}

// Genres implements [Library].
func (c *Client) Genres(ctx context.Context) ([]string, error) {
	return list[string](ctx, c, "/api/books/genres")
}

// Book implements [Library].
func (c *Client) Book(ctx context.Context, bookID int64) (*models.Book, error) {
	book, err := object[models.Book](ctx, c, "/api/books/"+id(bookID), RequestOpts{})
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("%w: %d", shared.ErrBookNotFound, bookID)
	}
	return book, nil
}

// AddBook implements [Library].
func (c *Client) AddBook(ctx context.Context, in models.BookInput) (*models.Book, error) {
	return object[models.Book](ctx, c, "/api/books", RequestOpts{Method: http.MethodPost, Body: in})
}

// UpdateBook implements [Library].
func (c *Client) UpdateBook(ctx context.Context, bookID int64, in models.BookInput) (*models.Book, error) {
	return object[models.Book](ctx, c, "/api/books/"+id(bookID), RequestOpts{Method: http.MethodPut, Body: in})
}

// DeleteBook implements [Library].
func (c *Client) DeleteBook(ctx context.Context, bookID int64) error {
	_, err := c.Request(ctx, "/api/books/"+id(bookID), RequestOpts{Method: http.MethodDelete})
	return err
}

// UpdateBookCopies implements [Library].
func (c *Client) UpdateBookCopies(ctx context.Context, bookID int64, copies int) (*models.Book, error) {
	body := models.CopiesUpdate{Copies: copies}
	return object[models.Book](ctx, c, "/api/books/"+id(bookID)+"/copies", RequestOpts{Method: http.MethodPut, Body: body})
}

// Users implements [Library].
func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	return list[models.User](ctx, c, "/api/users")
}

// UsersByRole implements [Library].
func (c *Client) UsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	return list[models.User](ctx, c, "/api/users/role/"+url.PathEscape(string(role)))
}

// User implements [Library].
func (c *Client) User(ctx context.Context, userID int64) (*models.User, error) {
	user, err := object[models.User](ctx, c, "/api/users/"+id(userID), RequestOpts{})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d returned no data", shared.ErrAPIRequest, userID)
	}
	return user, nil
}

// UpdateUser implements [Library].
func (c *Client) UpdateUser(ctx context.Context, userID int64, in models.UserUpdate) (*models.User, error) {
	return object[models.User](ctx, c, "/api/users/"+id(userID), RequestOpts{Method: http.MethodPut, Body: in})
}

// DeleteUser implements [Library].
func (c *Client) DeleteUser(ctx context.Context, userID int64) error {
	_, err := c.Request(ctx, "/api/users/"+id(userID), RequestOpts{Method: http.MethodDelete})
	return err
}

// WalletBalance implements [Library]. The backend may answer with a bare number in plain text.
func (c *Client) WalletBalance(ctx context.Context, userID int64) (models.Money, error) {
	return c.money(ctx, "/api/users/"+id(userID)+"/wallet")
}

// FinesPaid implements [Library].
func (c *Client) FinesPaid(ctx context.Context, userID int64) (models.Money, error) {
	return c.money(ctx, "/api/users/"+id(userID)+"/fines")
}

// AddToWallet implements [Library].
func (c *Client) AddToWallet(ctx context.Context, userID int64, amount models.Money) error {
	body := models.WalletTopUp{Amount: amount}
	_, err := c.Request(ctx, "/api/users/"+id(userID)+"/wallet/add", RequestOpts{Method: http.MethodPost, Body: body})
	return err
}

// Borrow implements [Library]. The record is nil when the backend only acknowledges.
func (c *Client) Borrow(ctx context.Context, userID, bookID int64) (*models.BorrowRecord, error) {
	return object[models.BorrowRecord](ctx, c, "/api/borrows/"+id(userID)+"/books/"+id(bookID)+"/borrow", RequestOpts{Method: http.MethodPost})
}

// Return implements [Library].
func (c *Client) Return(ctx context.Context, userID, bookID int64) (*models.BorrowRecord, error) {
	return object[models.BorrowRecord](ctx, c, "/api/borrows/"+id(userID)+"/books/"+id(bookID)+"/return", RequestOpts{Method: http.MethodPost})
}

// PayFine implements [Library].
func (c *Client) PayFine(ctx context.Context, userID, recordID int64) error {
	_, err := c.Request(ctx, "/api/borrows/"+id(userID)+"/fines/"+id(recordID)+"/pay", RequestOpts{Method: http.MethodPost})
	return err
}

// History implements [Library].
func (c *Client) History(ctx context.Context, userID int64) ([]models.BorrowRecord, error) {
	return list[models.BorrowRecord](ctx, c, "/api/borrows/"+id(userID)+"/history")
}

// ActiveBorrows implements [Library].
func (c *Client) ActiveBorrows(ctx context.Context, userID int64) ([]models.BorrowRecord, error) {
	return list[models.BorrowRecord](ctx, c, "/api/borrows/"+id(userID)+"/active")
}

// UnpaidFines implements [Library].
func (c *Client) UnpaidFines(ctx context.Context, userID int64) ([]models.BorrowRecord, error) {
	return list[models.BorrowRecord](ctx, c, "/api/borrows/"+id(userID)+"/unpaid-fines")
}

// AllActiveBorrows implements [Library].
func (c *Client) AllActiveBorrows(ctx context.Context) ([]models.BorrowRecord, error) {
	return list[models.BorrowRecord](ctx, c, "/api/borrows/active")
}

// AllUnpaidFines implements [Library].
func (c *Client) AllUnpaidFines(ctx context.Context) ([]models.BorrowRecord, error) {
	return list[models.BorrowRecord](ctx, c, "/api/borrows/unpaid-fines")
}

// TotalFinesCollected implements [Library].
func (c *Client) TotalFinesCollected(ctx context.Context) (models.Money, error) {
	return c.money(ctx, "/api/borrows/total-fines")
}

// AdminTotalFines implements [Library].
func (c *Client) AdminTotalFines(ctx context.Context) (models.Money, error) {
	return c.money(ctx, "/api/admin/total-fines")
}

// AdminActiveBorrows implements [Library].
func (c *Client) AdminActiveBorrows(ctx context.Context) ([]models.BorrowRecord, error) {
	return list[models.BorrowRecord](ctx, c, "/api/admin/active-borrows")
}

// AdminUnpaidFines implements [Library].
func (c *Client) AdminUnpaidFines(ctx context.Context) ([]models.BorrowRecord, error) {
	return list[models.BorrowRecord](ctx, c, "/api/admin/unpaid-fines")
}

// AdminSubscribers implements [Library].
func (c *Client) AdminSubscribers(ctx context.Context) ([]models.User, error) {
	return list[models.User](ctx, c, "/api/admin/subscribers")
}

// AdminAdmins implements [Library].
func (c *Client) AdminAdmins(ctx context.Context) ([]models.User, error) {
	return list[models.User](ctx, c, "/api/admin/admins")
}

// AdminUsers implements [Library].
func (c *Client) AdminUsers(ctx context.Context) ([]models.User, error) {
	return list[models.User](ctx, c, "/api/admin/users")
}
