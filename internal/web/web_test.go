package web

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/server"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/session"
	"github.com/desertthunder/shelf/internal/shared"
	tu "github.com/desertthunder/shelf/internal/testing"
)

type harness struct {
	backend *tu.Backend
	store   *session.MemoryStore
	server  *httptest.Server
	client  *http.Client
}

func setup(t *testing.T) *harness {
	t.Helper()
	backend := tu.NewBackend(t)
	logger := shared.NewLogger(io.Discard)
	store := session.NewMemoryStore()

	app, err := New(Options{
		Client: services.NewClient(services.ClientOpts{BaseURL: backend.URL, Logger: logger}),
		Store:  store,
		Logger: logger,
		Now:    backend.Now,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{backend: backend, store: store, server: srv, client: &http.Client{Jar: jar}}
}

// browser returns a second client with its own cookies.
func (h *harness) browser(t *testing.T) *harness {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{backend: h.backend, store: h.store, server: h.server, client: &http.Client{Jar: jar}}
}

func (h *harness) finish(t *testing.T, resp *http.Response, err error) (string, string) {
	t.Helper()
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp.Request.URL.Path, string(body)
}

// get follows redirects and returns the final path and body.
func (h *harness) get(t *testing.T, path string) (string, string) {
	t.Helper()
	resp, err := h.client.Get(h.server.URL + path)
	return h.finish(t, resp, err)
}

func (h *harness) post(t *testing.T, path string, form url.Values) (string, string) {
	t.Helper()
	resp, err := h.client.PostForm(h.server.URL+path, form)
	return h.finish(t, resp, err)
}

func (h *harness) login(t *testing.T, username, password string) {
	t.Helper()
	path, body := h.post(t, "/login", url.Values{"username": {username}, "password": {password}})
	if path != "/" {
		t.Fatalf("expected login to land on /, got %s:\n%s", path, body)
	}
}

// sessionKey is the session cookie the browser currently holds.
func (h *harness) sessionKey(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(h.server.URL)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range h.client.Jar.Cookies(u) {
		if c.Name == server.DefaultCookieName {
			return c.Value
		}
	}
	return ""
}

func id(n int64) string { return strconv.FormatInt(n, 10) }

func expectContains(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Errorf("expected %q in page:\n%s", w, body)
		}
	}
}

func TestNew(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without client and store")
	}
}

func TestAuthPages(t *testing.T) {
	t.Run("Anonymous Is Sent To Login", func(t *testing.T) {
		h := setup(t)
		path, body := h.get(t, "/")
		if path != "/login" {
			t.Errorf("expected /login, got %s", path)
		}
		expectContains(t, body, "<title>Login · Shelf</title>")
	})

	t.Run("Unknown Path Anonymous", func(t *testing.T) {
		h := setup(t)
		if path, _ := h.get(t, "/nowhere"); path != "/login" {
			t.Errorf("expected /login, got %s", path)
		}
	})

	t.Run("Bad Password", func(t *testing.T) {
		h := setup(t)
		h.backend.AddUser(models.User{Username: "asha", Role: models.RoleSubscriber}, "secret")

		path, body := h.post(t, "/login", url.Values{"username": {"asha"}, "password": {"nope"}})
		if path != "/login" {
			t.Errorf("expected to stay on /login, got %s", path)
		}
		expectContains(t, body, "Invalid username or password", `value="asha"`)
	})

	t.Run("Login Then Logout", func(t *testing.T) {
		h := setup(t)
		h.backend.AddUser(models.User{Username: "asha", Name: "Asha", Role: models.RoleSubscriber}, "secret")
		h.login(t, "asha", "secret")

		if path, _ := h.get(t, "/login"); path != "/" {
			t.Errorf("expected logged-in viewer to skip login, got %s", path)
		}
		if path, _ := h.get(t, "/nowhere"); path != "/" {
			t.Errorf("expected unknown path to go home, got %s", path)
		}

		other := h.browser(t)
		if path, _ := other.get(t, "/"); path != "/login" {
			t.Errorf("expected a separate browser to be anonymous, got %s", path)
		}

		if path, _ := h.post(t, "/logout", nil); path != "/login" {
			t.Errorf("expected /login after logout, got %s", path)
		}
		if path, _ := h.get(t, "/"); path != "/login" {
			t.Errorf("expected session to be gone, got %s", path)
		}
	})

	t.Run("Login Issues A New Session Key", func(t *testing.T) {
		h := setup(t)
		h.backend.AddUser(models.User{Username: "asha", Name: "Asha", Role: models.RoleSubscriber}, "secret")
		ctx := context.Background()

		h.get(t, "/login")
		before := h.sessionKey(t)
		if before == "" {
			t.Fatal("expected a session cookie before login")
		}

		h.post(t, "/login", url.Values{"username": {"asha"}, "password": {"nope"}})
		if key := h.sessionKey(t); key != before {
			t.Errorf("expected a failed login to keep %s, got %s", before, key)
		}

		h.login(t, "asha", "secret")
		after := h.sessionKey(t)
		if after == "" || after == before {
			t.Fatalf("expected a new session key after login, got %q (was %q)", after, before)
		}

		if s, err := h.store.Load(ctx, before); err != nil || s != nil {
			t.Errorf("expected the previous session to be gone, got %+v, %v", s, err)
		}
		if s, err := h.store.Load(ctx, after); err != nil || s == nil || s.Credential.IsZero() {
			t.Errorf("expected a stored credential under the new key, got %+v, %v", s, err)
		}

		planted := h.browser(t)
		u, _ := url.Parse(h.server.URL)
		planted.client.Jar.SetCookies(u, []*http.Cookie{{Name: server.DefaultCookieName, Value: before, Path: "/"}})
		if path, _ := planted.get(t, "/"); path != "/login" {
			t.Errorf("expected the pre-login key to stay anonymous, got %s", path)
		}
	})

	t.Run("Signup", func(t *testing.T) {
		h := setup(t)
		form := url.Values{
			"name":            {"Ravi"},
			"username":        {"ravi"},
			"email":           {"ravi@example.com"},
			"password":        {"secret1"},
			"confirmPassword": {"secret1"},
		}

		path, body := h.post(t, "/signup", form)
		if path != "/login" {
			t.Errorf("expected /login, got %s", path)
		}
		expectContains(t, body, "Registration successful! Please log in.")

		form.Set("confirmPassword", "different")
		form.Set("username", "ravi2")
		path, body = h.post(t, "/signup", form)
		if path != "/signup" {
			t.Errorf("expected to stay on /signup, got %s", path)
		}
		expectContains(t, body, "confirmPassword must match password")
	})

	t.Run("Expired Session", func(t *testing.T) {
		h := setup(t)
		h.backend.AddUser(models.User{Username: "asha", Role: models.RoleSubscriber}, "secret")
		h.login(t, "asha", "secret")
		h.backend.Revoke()

		path, body := h.get(t, "/wallet")
		if path != "/login" {
			t.Errorf("expected /login, got %s", path)
		}
		expectContains(t, body, "Your session has expired. Please log in again.")

		if path, _ := h.get(t, "/"); path != "/login" {
			t.Errorf("expected session to be cleared, got %s", path)
		}
	})

	t.Run("Static", func(t *testing.T) {
		h := setup(t)
		_, body := h.get(t, "/static/site.css")
		expectContains(t, body, ":root")
	})
}

func TestSubscriberPages(t *testing.T) {
	type fixture struct {
		*harness
		sub   models.User
		godan models.Book
		gora  models.Book
	}

	build := func(t *testing.T, wallet models.Money) fixture {
		h := setup(t)
		sub := h.backend.AddUser(models.User{Username: "asha", Name: "Asha", Role: models.RoleSubscriber, WalletBalance: wallet}, "secret")
		godan := h.backend.AddBook(models.Book{Title: "Godan", Author: "Premchand", Genre: "Fiction", Copies: 2})
		gora := h.backend.AddBook(models.Book{Title: "Gora", Author: "Tagore", Genre: "Fiction", Copies: 0})
		h.backend.AddBook(models.Book{Title: "Gitanjali", Author: "Tagore", Genre: "Poetry", Copies: 1})
		h.login(t, "asha", "secret")
		return fixture{harness: h, sub: sub, godan: godan, gora: gora}
	}

	t.Run("Catalog", func(t *testing.T) {
		f := build(t, 0)
		_, body := f.get(t, "/")
		expectContains(t, body, "Godan", "Gitanjali", "Page 1 of 1", `<option value="Poetry">`, `value="borrow" disabled`)

		_, body = f.get(t, "/?genre=Poetry")
		expectContains(t, body, "Gitanjali", `<option value="Poetry" selected>`)
		if strings.Contains(body, "Godan") {
			t.Error("expected genre filter to hide Godan")
		}
	})

	t.Run("Borrow And Return", func(t *testing.T) {
		f := build(t, 0)

		path, body := f.post(t, "/", url.Values{"action": {"borrow"}, "book_id": {id(f.godan.ID)}})
		if path != "/" {
			t.Errorf("expected /, got %s", path)
		}
		expectContains(t, body, "Book borrowed successfully!", `value="return"`)
		if b, _ := f.backend.Book(f.godan.ID); b.Available() != 1 {
			t.Errorf("expected 1 copy left, got %d", b.Available())
		}

		_, body = f.post(t, "/", url.Values{"action": {"borrow"}, "book_id": {id(f.gora.ID)}})
		expectContains(t, body, "No copies available")

		_, body = f.post(t, "/", url.Values{"action": {"return"}, "book_id": {id(f.godan.ID)}})
		expectContains(t, body, "Book returned successfully!")
		if b, _ := f.backend.Book(f.godan.ID); b.Available() != 2 {
			t.Errorf("expected 2 copies, got %d", b.Available())
		}
	})

	t.Run("Admin Pages Redirect Home", func(t *testing.T) {
		f := build(t, 0)
		for _, p := range []string{"/admin/books", "/admin/fines", "/admin/subscribers"} {
			if path, _ := f.get(t, p); path != "/" {
				t.Errorf("%s: expected /, got %s", p, path)
			}
		}
	})

	t.Run("Wallet", func(t *testing.T) {
		f := build(t, 50)
		_, body := f.get(t, "/wallet")
		expectContains(t, body, "₹50")

		path, body := f.post(t, "/wallet", url.Values{"amount": {"100"}})
		if path != "/wallet" {
			t.Errorf("expected /wallet, got %s", path)
		}
		expectContains(t, body, "Money added successfully!", "₹150")

		_, body = f.post(t, "/wallet", url.Values{"amount": {"-5"}})
		expectContains(t, body, "Please enter a valid amount")
	})

	t.Run("Borrow History", func(t *testing.T) {
		f := build(t, 50)
		now := f.backend.Now()
		rec := f.backend.AddRecord(models.BorrowRecord{
			User: &f.sub, Book: &f.godan,
			BorrowDate: models.Date{Time: now.AddDate(0, 0, -30)},
			DueDate:    models.Date{Time: now.AddDate(0, 0, -16)},
			Returned:   true,
			FineAmount: func() *models.Money { m := models.Money(20); return &m }(),
		})

		_, body := f.get(t, "/borrow-history")
		expectContains(t, body, "Godan", "₹20", "Pay Fine")

		_, body = f.post(t, "/borrow-history", url.Values{"record_id": {id(rec.ID)}})
		expectContains(t, body, "Fine paid successfully!", "No unpaid fines.")
		if u, _ := f.backend.User(f.sub.ID); u.WalletBalance != 30 || u.TotalFinesPaid != 20 {
			t.Errorf("expected wallet 30 and fines 20, got %v and %v", u.WalletBalance, u.TotalFinesPaid)
		}
	})

	t.Run("Insufficient Balance", func(t *testing.T) {
		f := build(t, 5)
		rec := f.backend.AddRecord(models.BorrowRecord{
			User: &f.sub, Book: &f.godan, Returned: true,
			FineAmount: func() *models.Money { m := models.Money(20); return &m }(),
		})

		_, body := f.post(t, "/borrow-history", url.Values{"record_id": {id(rec.ID)}})
		expectContains(t, body, "Failed to pay fine: Insufficient wallet balance")
	})
}

func TestAdminPages(t *testing.T) {
	build := func(t *testing.T) (*harness, models.Book, models.Book, models.User) {
		h := setup(t)
		h.backend.AddUser(models.User{Username: "root", Name: "Root", Role: models.RoleAdmin}, "adminpw")
		sub := h.backend.AddUser(models.User{Username: "asha", Name: "Asha", Email: "asha@example.com", Role: models.RoleSubscriber}, "secret")
		lent := h.backend.AddBook(models.Book{Title: "Godan", Author: "Premchand", Genre: "Fiction", Copies: 2})
		free := h.backend.AddBook(models.Book{Title: "Gitanjali", Author: "Tagore", Genre: "Poetry", Copies: 1})

		now := h.backend.Now()
		h.backend.AddRecord(models.BorrowRecord{User: &sub, Book: &lent, DueDate: models.Date{Time: now.AddDate(0, 0, -2)}})
		h.login(t, "root", "adminpw")
		return h, lent, free, sub
	}

	t.Run("Books", func(t *testing.T) {
		h, lent, free, _ := build(t)

		_, body := h.get(t, "/admin/books")
		expectContains(t, body, "Godan", "Gitanjali", `title="Book has active borrows or unpaid fines"`)

		_, body = h.post(t, "/admin/books", url.Values{"action": {"delete"}, "id": {id(lent.ID)}})
		expectContains(t, body, "book has active borrows or unpaid fines")
		if _, ok := h.backend.Book(lent.ID); !ok {
			t.Error("expected locked book to survive")
		}

		_, body = h.post(t, "/admin/books", url.Values{"action": {"delete"}, "id": {id(free.ID)}})
		expectContains(t, body, "Book deleted successfully!")
		if _, ok := h.backend.Book(free.ID); ok {
			t.Error("expected free book to be deleted")
		}
	})

	t.Run("Add Edit Copies", func(t *testing.T) {
		h, lent, _, _ := build(t)

		_, body := h.post(t, "/admin/books", url.Values{
			"action": {"add"}, "title": {"Nirmala"}, "author": {"Premchand"}, "publishedYear": {"1927"}, "genre": {"Fiction"}, "copies": {"3"},
		})
		expectContains(t, body, "Book added successfully!", "Nirmala")

		_, body = h.post(t, "/admin/books", url.Values{"action": {"add"}, "title": {""}, "author": {"x"}, "genre": {"y"}, "copies": {"1"}})
		expectContains(t, body, "title is required")

		_, body = h.get(t, "/admin/books?edit="+id(lent.ID))
		expectContains(t, body, "Edit book", `value="Premchand"`)

		_, body = h.post(t, "/admin/books", url.Values{
			"action": {"update"}, "id": {id(lent.ID)}, "title": {"Godaan"}, "author": {"Premchand"}, "genre": {"Fiction"}, "copies": {"2"},
		})
		expectContains(t, body, "Book updated successfully!")
		if b, _ := h.backend.Book(lent.ID); b.Title != "Godaan" {
			t.Errorf("expected updated title, got %s", b.Title)
		}

		_, body = h.post(t, "/admin/books", url.Values{"action": {"copies"}, "id": {id(lent.ID)}, "copies": {"7"}})
		expectContains(t, body, "Copies updated successfully!")
		if b, _ := h.backend.Book(lent.ID); b.Copies != 7 {
			t.Errorf("expected 7 copies, got %d", b.Copies)
		}
	})

	t.Run("Subscribers", func(t *testing.T) {
		h, _, _, sub := build(t)

		_, body := h.get(t, "/admin/subscribers")
		expectContains(t, body, "asha@example.com")

		_, body = h.post(t, "/admin/subscribers", url.Values{
			"name": {"Ravi"}, "username": {"ravi"}, "email": {"ravi@example.com"}, "password": {"secret1"},
		})
		expectContains(t, body, "Subscriber added successfully!", "ravi@example.com")

		path, body := h.post(t, "/admin/remove-subscribers", url.Values{"id": {id(sub.ID)}})
		if path != "/admin/remove-subscribers" {
			t.Errorf("expected /admin/remove-subscribers, got %s", path)
		}
		expectContains(t, body, "Subscriber deleted successfully!")
		if _, ok := h.backend.User(sub.ID); ok {
			t.Error("expected subscriber to be deleted")
		}
	})

	t.Run("Fines", func(t *testing.T) {
		h, _, _, _ := build(t)
		_, body := h.get(t, "/admin/fines")
		expectContains(t, body, "Total collected", "No unpaid fines.", "Godan", "₹10")
	})

	t.Run("Subscriber Pages Redirect Home", func(t *testing.T) {
		h, _, _, _ := build(t)
		for _, p := range []string{"/wallet", "/borrow-history"} {
			if path, _ := h.get(t, p); path != "/" {
				t.Errorf("%s: expected /, got %s", p, path)
			}
		}
	})
}
