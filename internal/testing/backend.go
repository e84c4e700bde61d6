package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/shelf/internal/models"
)

// LoginMode selects which credential [Backend] issues on login.
type LoginMode int

const (
	// LoginToken answers {token, user}.
	LoginToken LoginMode = iota
	// LoginCookie answers the bare user and sets a session cookie.
	LoginCookie
	// LoginBare answers the bare user with no credential at all and stops checking auth.
	LoginBare
)

// BackendCookie is the cookie name used in [LoginCookie] mode.
const BackendCookie = "JSESSIONID"

type failure struct {
	status  int
	message string
}

// Backend is an in-memory library backend served by httptest.
//
// It implements enough of the REST surface to drive the client end to end: logins, the
// catalog, wallets, borrowing with fines, and the admin reports.
type Backend struct {
	Server *httptest.Server
	URL    string

	mu        sync.Mutex
	mode      LoginMode
	now       time.Time
	nextID    int64
	users     map[int64]*models.User
	passwords map[string]string
	tokens    map[string]int64
	books     []*models.Book
	records   []*models.BorrowRecord
	paid      map[int64]bool
	failures  map[string]failure
	requests  []string
}

// NewBackend starts a [Backend] that is closed when the test finishes.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		now:       time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local),
		nextID:    100,
		users:     make(map[int64]*models.User),
		passwords: make(map[string]string),
		tokens:    make(map[string]int64),
		paid:      make(map[int64]bool),
		failures:  make(map[string]failure),
	}
	b.Server = httptest.NewServer(b.routes())
	b.URL = b.Server.URL
	t.Cleanup(b.Server.Close)
	return b
}

// Now is the backend's clock. Loans are dated from it.
func (b *Backend) Now() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// SetNow moves the backend's clock.
func (b *Backend) SetNow(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = t
}

// SetLoginMode changes how future logins are answered.
func (b *Backend) SetLoginMode(m LoginMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = m
}

// AddUser registers u with password and returns the stored copy.
func (b *Backend) AddUser(u models.User, password string) models.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.addUser(u, password)
}

func (b *Backend) addUser(u models.User, password string) *models.User {
	if u.ID == 0 {
		u.ID = b.id()
	}
	stored := u
	b.users[u.ID] = &stored
	b.passwords[u.Username] = password
	return &stored
}

// AddBook stores book. AvailableCopies defaults to Copies.
func (b *Backend) AddBook(book models.Book) models.Book {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.addBook(book)
}

func (b *Backend) addBook(book models.Book) *models.Book {
	if book.ID == 0 {
		book.ID = b.id()
	}
	if book.AvailableCopies == nil && book.CopiesAvailable == nil {
		n := book.Copies
		book.AvailableCopies = &n
	}
	stored := book
	b.books = append(b.books, &stored)
	return &stored
}

// AddRecord stores a borrow record as-is.
func (b *Backend) AddRecord(r models.BorrowRecord) models.BorrowRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.ID == 0 {
		r.ID = b.id()
	}
	stored := r
	b.records = append(b.records, &stored)
	return stored
}

// User returns a copy of the stored user.
func (b *Backend) User(id int64) (models.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		return models.User{}, false
	}
	return *u, true
}

// Book returns a copy of the stored book.
func (b *Backend) Book(id int64) (models.Book, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	book := b.book(id)
	if book == nil {
		return models.Book{}, false
	}
	return *book, true
}

// Fail makes every method request to path answer status with message. An empty message
// sends an empty JSON object.
func (b *Backend) Fail(method, path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = failure{status: status, message: message}
}

// Requests lists "METHOD /path" for every request served so far.
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.requests)
}

// Revoke forgets every issued credential, so the next request answers 401.
func (b *Backend) Revoke() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.tokens)
}

func (b *Backend) id() int64 {
	b.nextID++
	return b.nextID
}

func (b *Backend) book(id int64) *models.Book {
	for _, book := range b.books {
		if book.ID == id {
			return book
		}
	}
	return nil
}

func (b *Backend) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users/login", b.login)
	mux.HandleFunc("POST /api/users/register", b.register)

	mux.HandleFunc("GET /api/books", b.authed(b.listBooks))
	mux.HandleFunc("GET /api/books/genre", b.authed(b.listBooks))
	mux.HandleFunc("GET /api/books/genres", b.authed(b.genres))
	mux.HandleFunc("GET /api/books/{id}", b.authed(b.getBook))
	mux.HandleFunc("POST /api/books", b.admin(b.saveBook))
	mux.HandleFunc("PUT /api/books/{id}", b.admin(b.saveBook))
	mux.HandleFunc("DELETE /api/books/{id}", b.admin(b.deleteBook))
	mux.HandleFunc("PUT /api/books/{id}/copies", b.admin(b.updateCopies))

	mux.HandleFunc("GET /api/users", b.admin(b.listUsers))
	mux.HandleFunc("GET /api/users/{id}", b.authed(b.getUser))
	mux.HandleFunc("PUT /api/users/{id}", b.authed(b.updateUser))
	mux.HandleFunc("DELETE /api/users/{id}", b.admin(b.deleteUser))
	// /role/{role} and /{id}/wallet overlap as patterns, so one route serves both.
	mux.HandleFunc("GET /api/users/{id}/{leaf}", b.userLeaf)
	mux.HandleFunc("POST /api/users/{id}/wallet/add", b.authed(b.topUp))

	mux.HandleFunc("POST /api/borrows/{uid}/books/{bid}/borrow", b.authed(b.borrow))
	mux.HandleFunc("POST /api/borrows/{uid}/books/{bid}/return", b.authed(b.giveBack))
	mux.HandleFunc("POST /api/borrows/{uid}/fines/{rid}/pay", b.authed(b.payFine))
	mux.HandleFunc("GET /api/borrows/{uid}/history", b.authed(b.userRecords(func(*models.BorrowRecord) bool { return true })))
	mux.HandleFunc("GET /api/borrows/{uid}/active", b.authed(b.userRecords(isActive)))
	mux.HandleFunc("GET /api/borrows/{uid}/unpaid-fines", b.authed(b.userRecords(b.isUnpaid)))
	mux.HandleFunc("GET /api/borrows/active", b.authed(b.allRecords(isActive)))
	mux.HandleFunc("GET /api/borrows/unpaid-fines", b.authed(b.allRecords(b.isUnpaid)))
	mux.HandleFunc("GET /api/borrows/total-fines", b.authed(b.totalFines))

	mux.HandleFunc("GET /api/admin/total-fines", b.admin(b.totalFines))
	mux.HandleFunc("GET /api/admin/active-borrows", b.admin(b.allRecords(isActive)))
	mux.HandleFunc("GET /api/admin/unpaid-fines", b.admin(b.allRecords(b.isUnpaid)))
	mux.HandleFunc("GET /api/admin/subscribers", b.admin(b.usersWithRole(models.RoleSubscriber)))
	mux.HandleFunc("GET /api/admin/admins", b.admin(b.usersWithRole(models.RoleAdmin)))
	mux.HandleFunc("GET /api/admin/users", b.admin(b.listUsers))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		f, failing := b.failures[r.Method+" "+r.URL.Path]
		b.mu.Unlock()

		if failing {
			body := map[string]string{}
			if f.message != "" {
				body["message"] = f.message
			}
			writeJSON(w, f.status, body)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain;charset=UTF-8")
	w.WriteHeader(status)
	fmt.Fprint(w, s)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func pathID(r *http.Request, name string) int64 {
	n, _ := strconv.ParseInt(r.PathValue(name), 10, 64)
	return n
}

// caller resolves the credential on r. It must be called with mu held.
func (b *Backend) caller(r *http.Request) (*models.User, bool) {
	if b.mode == LoginBare {
		return nil, true
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if c, err := r.Cookie(BackendCookie); err == nil {
		token = c.Value
	}
	id, ok := b.tokens[token]
	if !ok {
		return nil, false
	}
	return b.users[id], true
}

type handler func(w http.ResponseWriter, r *http.Request, caller *models.User)

func (b *Backend) authed(next handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		u, ok := b.caller(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Full authentication is required")
			return
		}
		next(w, r, u)
	}
}

func (b *Backend) admin(next handler) http.HandlerFunc {
	return b.authed(func(w http.ResponseWriter, r *http.Request, u *models.User) {
		if u != nil && !u.IsAdmin() {
			writeMessage(w, http.StatusForbidden, "Access denied")
			return
		}
		next(w, r, u)
	})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pw, ok := b.passwords[req.Username]
	if !ok || pw != req.Password {
		writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	var user *models.User
	for _, u := range b.users {
		if u.Username == req.Username {
			user = u
		}
	}

	token := fmt.Sprintf("token-%d-%d", user.ID, len(b.tokens)+1)
	switch b.mode {
	case LoginToken:
		b.tokens[token] = user.ID
		writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
	case LoginCookie:
		b.tokens[token] = user.ID
		http.SetCookie(w, &http.Cookie{Name: BackendCookie, Value: token, Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, user)
	default:
		writeJSON(w, http.StatusOK, user)
	}
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var reg models.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, taken := b.passwords[reg.Username]; taken {
		writeMessage(w, http.StatusBadRequest, "Username already exists")
		return
	}
	if reg.Role == "" {
		reg.Role = models.RoleSubscriber
	}

	u := b.addUser(models.User{
		Username:      reg.Username,
		Name:          reg.Name,
		Email:         reg.Email,
		Role:          reg.Role,
		WalletBalance: models.InitialWalletBalance,
	}, reg.Password)
	writeJSON(w, http.StatusCreated, u)
}

func (b *Backend) listBooks(w http.ResponseWriter, r *http.Request, _ *models.User) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 {
		size = 10
	}

	var matched []*models.Book
	for _, book := range b.books {
		if g := q.Get("genre"); g == "" || strings.EqualFold(book.Genre, g) {
			matched = append(matched, book)
		}
	}

	start := min(page*size, len(matched))
	end := min(start+size, len(matched))
	writeJSON(w, http.StatusOK, map[string]any{
		"content":       matched[start:end],
		"totalElements": len(matched),
		"totalPages":    (len(matched) + size - 1) / size,
	})
}

func (b *Backend) genres(w http.ResponseWriter, _ *http.Request, _ *models.User) {
	var out []string
	for _, book := range b.books {
		if !slices.Contains(out, book.Genre) {
			out = append(out, book.Genre)
		}
	}
	slices.Sort(out)
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getBook(w http.ResponseWriter, r *http.Request, _ *models.User) {
	book := b.book(pathID(r, "id"))
	if book == nil {
		writeMessage(w, http.StatusNotFound, "Book not found")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (b *Backend) saveBook(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var in models.BookInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}

	if r.Method == http.MethodPost {
		book := b.addBook(models.Book{Title: in.Title, Author: in.Author, PublishedYear: in.PublishedYear, Genre: in.Genre, Copies: in.Copies})
		writeJSON(w, http.StatusCreated, book)
		return
	}

	book := b.book(pathID(r, "id"))
	if book == nil {
		writeMessage(w, http.StatusNotFound, "Book not found")
		return
	}
	lent := book.Copies - book.Available()
	book.Title, book.Author, book.PublishedYear, book.Genre, book.Copies = in.Title, in.Author, in.PublishedYear, in.Genre, in.Copies
	available := max(in.Copies-lent, 0)
	book.AvailableCopies = &available
	writeJSON(w, http.StatusOK, book)
}

func (b *Backend) updateCopies(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var in models.CopiesUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}
	book := b.book(pathID(r, "id"))
	if book == nil {
		writeMessage(w, http.StatusNotFound, "Book not found")
		return
	}
	lent := book.Copies - book.Available()
	book.Copies = in.Copies
	available := max(in.Copies-lent, 0)
	book.AvailableCopies = &available
	writeJSON(w, http.StatusOK, book)
}

func (b *Backend) deleteBook(w http.ResponseWriter, r *http.Request, _ *models.User) {
	id := pathID(r, "id")
	for _, rec := range b.records {
		if rec.BookID() == id && (isActive(rec) || b.isUnpaid(rec)) {
			writeMessage(w, http.StatusConflict, "Book has active borrows or unpaid fines")
			return
		}
	}

	n := len(b.books)
	b.books = slices.DeleteFunc(b.books, func(book *models.Book) bool { return book.ID == id })
	if len(b.books) == n {
		writeMessage(w, http.StatusNotFound, "Book not found")
		return
	}
	writeText(w, http.StatusOK, "Book deleted successfully")
}

func (b *Backend) listUsers(w http.ResponseWriter, r *http.Request, _ *models.User) {
	role := models.Role(strings.ToUpper(r.PathValue("role")))
	out := []*models.User{}
	for _, u := range b.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, c *models.User) int { return int(a.ID - c.ID) })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) usersWithRole(role models.Role) handler {
	return func(w http.ResponseWriter, r *http.Request, caller *models.User) {
		r.SetPathValue("role", string(role))
		b.listUsers(w, r, caller)
	}
}

func (b *Backend) userLeaf(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.PathValue("id") == "role":
		r.SetPathValue("role", r.PathValue("leaf"))
		b.admin(b.listUsers)(w, r)
	case r.PathValue("leaf") == "wallet":
		b.authed(b.wallet)(w, r)
	case r.PathValue("leaf") == "fines":
		b.authed(b.finesPaid)(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (b *Backend) getUser(w http.ResponseWriter, r *http.Request, _ *models.User) {
	u, ok := b.users[pathID(r, "id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) updateUser(w http.ResponseWriter, r *http.Request, _ *models.User) {
	u, ok := b.users[pathID(r, "id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	var in models.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}
	if in.Name != "" {
		u.Name = in.Name
	}
	if in.Email != "" {
		u.Email = in.Email
	}
	if in.Password != "" {
		b.passwords[u.Username] = in.Password
	}
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) deleteUser(w http.ResponseWriter, r *http.Request, _ *models.User) {
	id := pathID(r, "id")
	u, ok := b.users[id]
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	delete(b.users, id)
	delete(b.passwords, u.Username)
	writeText(w, http.StatusOK, "User deleted successfully")
}

func (b *Backend) wallet(w http.ResponseWriter, r *http.Request, _ *models.User) {
	u, ok := b.users[pathID(r, "id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeText(w, http.StatusOK, strconv.FormatFloat(float64(u.WalletBalance), 'f', -1, 64))
}

func (b *Backend) finesPaid(w http.ResponseWriter, r *http.Request, _ *models.User) {
	u, ok := b.users[pathID(r, "id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, float64(u.TotalFinesPaid))
}

func (b *Backend) topUp(w http.ResponseWriter, r *http.Request, _ *models.User) {
	u, ok := b.users[pathID(r, "id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	var in models.WalletTopUp
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Amount <= 0 {
		writeMessage(w, http.StatusBadRequest, "Amount must be positive")
		return
	}
	u.WalletBalance += in.Amount
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) borrow(w http.ResponseWriter, r *http.Request, _ *models.User) {
	u, ok := b.users[pathID(r, "uid")]
	book := b.book(pathID(r, "bid"))
	if !ok || book == nil {
		writeMessage(w, http.StatusNotFound, "User or book not found")
		return
	}
	if !book.CanBorrow() {
		writeMessage(w, http.StatusBadRequest, "No copies available")
		return
	}

	available := book.Available() - 1
	book.AvailableCopies = &available

	rec := &models.BorrowRecord{
		ID:         b.id(),
		User:       u,
		Book:       book,
		BorrowDate: models.Date{Time: b.now},
		DueDate:    models.Date{Time: b.now.AddDate(0, 0, models.LoanPeriodDays)},
	}
	b.records = append(b.records, rec)
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) giveBack(w http.ResponseWriter, r *http.Request, _ *models.User) {
	uid, bid := pathID(r, "uid"), pathID(r, "bid")
	for _, rec := range b.records {
		if rec.User == nil || rec.User.ID != uid || rec.BookID() != bid || rec.Returned {
			continue
		}

		if fine := rec.PotentialFine(b.now); fine > 0 {
			rec.FineAmount = &fine
		}
		rec.Returned = true
		returned := models.Date{Time: b.now}
		rec.ReturnDate = &returned
		if book := b.book(bid); book != nil {
			available := book.Available() + 1
			book.AvailableCopies = &available
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	writeMessage(w, http.StatusBadRequest, "No active borrow found for this book")
}

func (b *Backend) payFine(w http.ResponseWriter, r *http.Request, _ *models.User) {
	u, ok := b.users[pathID(r, "uid")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}

	rid := pathID(r, "rid")
	for _, rec := range b.records {
		if rec.ID != rid || !b.isUnpaid(rec) {
			continue
		}
		fine := rec.Fine()
		if u.WalletBalance < fine {
			writeMessage(w, http.StatusBadRequest, "Insufficient wallet balance")
			return
		}
		u.WalletBalance -= fine
		u.TotalFinesPaid += fine
		b.paid[rec.ID] = true
		writeText(w, http.StatusOK, "Fine paid successfully")
		return
	}
	writeMessage(w, http.StatusNotFound, "No unpaid fine found")
}

func isActive(r *models.BorrowRecord) bool { return !r.Returned }

func (b *Backend) isUnpaid(r *models.BorrowRecord) bool {
	return r.Returned && r.Fine() > 0 && !b.paid[r.ID]
}

func (b *Backend) userRecords(keep func(*models.BorrowRecord) bool) handler {
	return func(w http.ResponseWriter, r *http.Request, _ *models.User) {
		uid := pathID(r, "uid")
		out := []*models.BorrowRecord{}
		for _, rec := range b.records {
			if rec.User != nil && rec.User.ID == uid && keep(rec) {
				out = append(out, rec)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (b *Backend) allRecords(keep func(*models.BorrowRecord) bool) handler {
	return func(w http.ResponseWriter, _ *http.Request, _ *models.User) {
		out := []*models.BorrowRecord{}
		for _, rec := range b.records {
			if keep(rec) {
				out = append(out, rec)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (b *Backend) totalFines(w http.ResponseWriter, _ *http.Request, _ *models.User) {
	var total models.Money
	for _, u := range b.users {
		total += u.TotalFinesPaid
	}
	writeJSON(w, http.StatusOK, float64(total))
}
