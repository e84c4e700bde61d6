package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/shared"
	tu "github.com/desertthunder/shelf/internal/testing"
)

// loggedIn returns a client authenticated against backend as username.
func loggedIn(t *testing.T, backend *tu.Backend, username, password string) *Client {
	t.Helper()
	ctx := context.Background()

	m := newManager(t, nil)
	c := NewClient(ClientOpts{BaseURL: backend.URL, Credentials: m, Logger: shared.NewLogger(quietLogger())})

	res, err := c.Authenticate(ctx, models.LoginRequest{Username: username, Password: password})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := m.Establish(ctx, &models.Credential{Kind: models.CredentialBearer, Value: res.Token}, res.User); err != nil {
		t.Fatalf("failed to store session: %v", err)
	}
	return c
}

func TestLibrary(t *testing.T) {
	ctx := context.Background()

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("Token Envelope", func(t *testing.T) {
			backend := tu.NewBackend(t)
			backend.AddUser(models.User{Username: "asha", Role: models.RoleSubscriber}, "secret")

			res, err := NewClient(ClientOpts{BaseURL: backend.URL}).Authenticate(ctx, models.LoginRequest{Username: "asha", Password: "secret"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if res.Token == "" {
				t.Error("expected token")
			}
			if res.User.Username != "asha" {
				t.Errorf("expected user asha, got %q", res.User.Username)
			}
		})

		t.Run("Bare User With Cookie", func(t *testing.T) {
			backend := tu.NewBackend(t)
			backend.AddUser(models.User{Username: "asha", Role: models.RoleSubscriber}, "secret")
			backend.SetLoginMode(tu.LoginCookie)

			res, err := NewClient(ClientOpts{BaseURL: backend.URL}).Authenticate(ctx, models.LoginRequest{Username: "asha", Password: "secret"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if res.Token != "" {
				t.Errorf("expected no token, got %q", res.Token)
			}
			if len(res.Cookies) != 1 || res.Cookies[0].Name != tu.BackendCookie {
				t.Errorf("expected backend cookie, got %+v", res.Cookies)
			}
			if res.User.Role != models.RoleSubscriber {
				t.Errorf("expected subscriber, got %q", res.User.Role)
			}
		})

		t.Run("Rejected", func(t *testing.T) {
			backend := tu.NewBackend(t)
			backend.AddUser(models.User{Username: "asha"}, "secret")

			_, err := NewClient(ClientOpts{BaseURL: backend.URL}).Authenticate(ctx, models.LoginRequest{Username: "asha", Password: "wrong"})

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Message != "Invalid username or password" {
				t.Errorf("unexpected message %q", apiErr.Message)
			}
		})

		t.Run("Response Without User", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"token":"abc"}`))
			}))
			defer server.Close()

			_, err := NewClient(ClientOpts{BaseURL: server.URL}).Authenticate(ctx, models.LoginRequest{Username: "a", Password: "b"})
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		})
	})

	t.Run("SignUp", func(t *testing.T) {
		backend := tu.NewBackend(t)
		c := NewClient(ClientOpts{BaseURL: backend.URL})

		reg := models.Registration{Name: "Ravi", Username: "ravi", Email: "ravi@example.com", Password: "secret1", Role: models.RoleSubscriber}
		u, err := c.SignUp(ctx, reg)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if u == nil || u.WalletBalance != models.InitialWalletBalance {
			t.Errorf("expected new user with starting balance, got %+v", u)
		}

		if _, err := c.SignUp(ctx, reg); ErrorMessage(err) != "Username already exists" {
			t.Errorf("expected duplicate error, got %v", err)
		}
	})

	t.Run("Books", func(t *testing.T) {
		backend := tu.NewBackend(t)
		backend.AddUser(models.User{Username: "root", Role: models.RoleAdmin}, "pw")
		for i, g := range []string{"Fiction", "Poetry", "Fiction", "History", "Fiction"} {
			backend.AddBook(models.Book{Title: "Book " + string(rune('A'+i)), Genre: g, Copies: 2})
		}
		c := loggedIn(t, backend, "root", "pw")

		t.Run("Paged", func(t *testing.T) {
			page, err := c.Books(ctx, 1, 2)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if page.TotalElements != 5 || page.TotalPages != 3 {
				t.Errorf("expected 5 items over 3 pages, got %d over %d", page.TotalElements, page.TotalPages)
			}
			if page.Number != 1 || len(page.Content) != 2 {
				t.Errorf("expected page 1 with 2 items, got %d with %d", page.Number, len(page.Content))
			}
			if page.Summary() != "Page 2 of 3 • 3-4 of 5 items" {
				t.Errorf("unexpected summary %q", page.Summary())
			}
		})

		t.Run("By Genre", func(t *testing.T) {
			page, err := c.BooksByGenre(ctx, "Fiction", 0, 9)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if page.TotalElements != 3 {
				t.Errorf("expected 3 fiction books, got %d", page.TotalElements)
			}
		})

		t.Run("Genres", func(t *testing.T) {
			genres, err := c.Genres(ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !slices.Equal(genres, []string{"Fiction", "History", "Poetry"}) {
				t.Errorf("unexpected genres %v", genres)
			}
		})

		t.Run("CRUD", func(t *testing.T) {
			added, err := c.AddBook(ctx, models.BookInput{Title: "Gitanjali", Author: "Tagore", PublishedYear: 1910, Genre: "Poetry", Copies: 3})
			if err != nil {
				t.Fatalf("failed to add: %v", err)
			}
			if added.ID == 0 || added.Available() != 3 {
				t.Errorf("unexpected book %+v", added)
			}

			got, err := c.Book(ctx, added.ID)
			if err != nil || got.Title != "Gitanjali" {
				t.Fatalf("failed to fetch: %v, %+v", err, got)
			}

			in := got.Input()
			in.Copies = 5
			updated, err := c.UpdateBook(ctx, added.ID, in)
			if err != nil || updated.Copies != 5 {
				t.Fatalf("failed to update: %v, %+v", err, updated)
			}

			copies, err := c.UpdateBookCopies(ctx, added.ID, 1)
			if err != nil || copies.Copies != 1 {
				t.Fatalf("failed to update copies: %v, %+v", err, copies)
			}

			if err := c.DeleteBook(ctx, added.ID); err != nil {
				t.Fatalf("failed to delete: %v", err)
			}
			if _, err := c.Book(ctx, added.ID); ErrorMessage(err) != "Book not found" {
				t.Errorf("expected not found, got %v", err)
			}
		})
	})

	t.Run("Page Shapes", func(t *testing.T) {
		tests := []struct {
			name     string
			body     string
			total    int
			pages    int
			contents int
		}{
			{"Bare Array", `[{"id":1},{"id":2}]`, 2, 1, 2},
			{"Null Content", `{"content":null,"totalElements":0}`, 0, 0, 0},
			{"Stale TotalPages", `{"content":[{"id":1}],"totalElements":19,"totalPages":1}`, 19, 3, 1},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				page, err := NewClient(ClientOpts{BaseURL: server.URL}).Books(ctx, 0, 9)
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if page.TotalElements != tt.total || page.TotalPages != tt.pages || len(page.Content) != tt.contents {
					t.Errorf("expected %d/%d/%d, got %d/%d/%d", tt.total, tt.pages, tt.contents, page.TotalElements, page.TotalPages, len(page.Content))
				}
				if page.Content == nil {
					t.Error("expected non-nil content")
				}
			})
		}
	})

	t.Run("Borrowing And Fines", func(t *testing.T) {
		backend := tu.NewBackend(t)
		user := backend.AddUser(models.User{Username: "asha", Role: models.RoleSubscriber, WalletBalance: 200}, "pw")
		book := backend.AddBook(models.Book{Title: "Godan", Genre: "Fiction", Copies: 1})
		c := loggedIn(t, backend, "asha", "pw")

		rec, err := c.Borrow(ctx, user.ID, book.ID)
		if err != nil {
			t.Fatalf("failed to borrow: %v", err)
		}
		if rec == nil || rec.BookTitle() != "Godan" {
			t.Fatalf("expected borrow record, got %+v", rec)
		}

		if _, err := c.Borrow(ctx, user.ID, book.ID); ErrorMessage(err) != "No copies available" {
			t.Errorf("expected no copies error, got %v", err)
		}

		active, err := c.ActiveBorrows(ctx, user.ID)
		if err != nil || len(active) != 1 {
			t.Fatalf("expected one active borrow, got %v, %d", err, len(active))
		}

		backend.SetNow(backend.Now().AddDate(0, 0, 17))
		returned, err := c.Return(ctx, user.ID, book.ID)
		if err != nil {
			t.Fatalf("failed to return: %v", err)
		}
		if returned.Fine() != 15 {
			t.Errorf("expected fine of 15, got %v", returned.Fine())
		}

		unpaid, err := c.UnpaidFines(ctx, user.ID)
		if err != nil || len(unpaid) != 1 {
			t.Fatalf("expected one unpaid fine, got %v, %d", err, len(unpaid))
		}

		if err := c.PayFine(ctx, user.ID, unpaid[0].ID); err != nil {
			t.Fatalf("failed to pay fine: %v", err)
		}

		balance, err := c.WalletBalance(ctx, user.ID)
		if err != nil || balance != 185 {
			t.Errorf("expected balance 185, got %v, %v", balance, err)
		}
		paid, err := c.FinesPaid(ctx, user.ID)
		if err != nil || paid != 15 {
			t.Errorf("expected 15 paid, got %v, %v", paid, err)
		}
		total, err := c.TotalFinesCollected(ctx)
		if err != nil || total != 15 {
			t.Errorf("expected 15 collected, got %v, %v", total, err)
		}

		history, err := c.History(ctx, user.ID)
		if err != nil || len(history) != 1 {
			t.Fatalf("expected one history entry, got %v, %d", err, len(history))
		}
		if history[0].Status(time.Now()) != models.StatusReturned {
			t.Errorf("expected returned status, got %s", history[0].Status(time.Now()))
		}

		if err := c.AddToWallet(ctx, user.ID, 100); err != nil {
			t.Fatalf("failed to top up: %v", err)
		}
		if balance, _ := c.WalletBalance(ctx, user.ID); balance != 285 {
			t.Errorf("expected 285 after top up, got %v", balance)
		}
	})

	t.Run("Admin", func(t *testing.T) {
		backend := tu.NewBackend(t)
		backend.AddUser(models.User{Username: "root", Role: models.RoleAdmin}, "pw")
		sub := backend.AddUser(models.User{Username: "asha", Name: "Asha", Role: models.RoleSubscriber}, "pw")
		c := loggedIn(t, backend, "root", "pw")

		subs, err := c.AdminSubscribers(ctx)
		if err != nil || len(subs) != 1 || subs[0].ID != sub.ID {
			t.Fatalf("expected one subscriber, got %v, %+v", err, subs)
		}
		admins, _ := c.AdminAdmins(ctx)
		if len(admins) != 1 {
			t.Errorf("expected one admin, got %d", len(admins))
		}
		all, _ := c.AdminUsers(ctx)
		if len(all) != 2 {
			t.Errorf("expected two users, got %d", len(all))
		}
		byRole, _ := c.UsersByRole(ctx, models.RoleSubscriber)
		if len(byRole) != 1 {
			t.Errorf("expected one subscriber by role, got %d", len(byRole))
		}
		users, _ := c.Users(ctx)
		if len(users) != 2 {
			t.Errorf("expected two users, got %d", len(users))
		}

		created, err := c.Register(ctx, models.Registration{Name: "Ravi", Username: "ravi", Email: "r@example.com", Password: "secret1", Role: models.RoleSubscriber})
		if err != nil || created == nil {
			t.Fatalf("failed to register: %v", err)
		}

		updated, err := c.UpdateUser(ctx, created.ID, models.UserUpdate{Name: "Ravi K"})
		if err != nil || updated.Name != "Ravi K" {
			t.Errorf("failed to update user: %v, %+v", err, updated)
		}

		if err := c.DeleteUser(ctx, created.ID); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}
		if _, err := c.User(ctx, created.ID); ErrorMessage(err) != "User not found" {
			t.Errorf("expected not found, got %v", err)
		}

		for name, load := range map[string]func(context.Context) ([]models.BorrowRecord, error){
			"AdminActiveBorrows": c.AdminActiveBorrows,
			"AdminUnpaidFines":   c.AdminUnpaidFines,
			"AllActiveBorrows":   c.AllActiveBorrows,
			"AllUnpaidFines":     c.AllUnpaidFines,
		} {
			records, err := load(ctx)
			if err != nil {
				t.Errorf("%s: unexpected error %v", name, err)
			}
			if records == nil {
				t.Errorf("%s: expected empty slice, got nil", name)
			}
		}

		total, err := c.AdminTotalFines(ctx)
		if err != nil || total != 0 {
			t.Errorf("expected zero total, got %v, %v", total, err)
		}
	})

	t.Run("Subscriber Forbidden From Admin", func(t *testing.T) {
		backend := tu.NewBackend(t)
		backend.AddUser(models.User{Username: "asha", Role: models.RoleSubscriber}, "pw")
		c := loggedIn(t, backend, "asha", "pw")

		_, err := c.AdminUsers(ctx)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %v", err)
		}
	})

	t.Run("Null List Becomes Empty", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("null"))
		}))
		defer server.Close()

		genres, err := NewClient(ClientOpts{BaseURL: server.URL}).Genres(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if genres == nil || len(genres) != 0 {
			t.Errorf("expected empty slice, got %#v", genres)
		}
	})

	t.Run("Plain Text Acknowledgement", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("Book borrowed successfully"))
		}))
		defer server.Close()

		rec, err := NewClient(ClientOpts{BaseURL: server.URL}).Borrow(ctx, 1, 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec != nil {
			t.Errorf("expected nil record for text acknowledgement, got %+v", rec)
		}
	})
}
