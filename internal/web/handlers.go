package web

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/server"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/desertthunder/shelf/internal/tasks"
)

type loginView struct {
	Username string
}

func (a *App) loginPage(w http.ResponseWriter, r *http.Request) {
	if stateFrom(r).auth.IsAuthenticated() {
		http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
		return
	}
	a.render(w, r, "login", "Login", loginView{}, "")
}

// login authenticates under a new session key. The browser's previous key is only swapped
// for the new one once the backend accepts the credentials.
func (a *App) login(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	key := shared.GenerateID()

	st, err := a.newState(r.Context(), key)
	if err != nil {
		a.logger.Error("failed to prepare session", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	res, err := st.auth.Login(r.Context(), username, r.FormValue("password"))
	if err != nil {
		a.logger.Error("login request failed", "error", err)
		a.render(w, r, "login", "Login", loginView{Username: username}, services.ErrorMessage(err))
		return
	}
	if !res.Success {
		a.render(w, r, "login", "Login", loginView{Username: username}, res.Error)
		return
	}

	if err := a.store.Delete(r.Context(), server.SessionKey(r.Context())); err != nil {
		a.logger.Warn("failed to drop previous session", "error", err)
	}
	server.SetSessionCookie(w, a.cookie, key)
	http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
}

func (a *App) signupPage(w http.ResponseWriter, r *http.Request) {
	if stateFrom(r).auth.IsAuthenticated() {
		http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
		return
	}
	a.render(w, r, "signup", "Sign Up", auth.SignupRequest{}, "")
}

func (a *App) signup(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	req := auth.SignupRequest{
		Name:            r.FormValue("name"),
		Username:        r.FormValue("username"),
		Email:           r.FormValue("email"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirmPassword"),
	}

	res, err := st.auth.Signup(r.Context(), req)
	if err == nil && res.Success {
		redirect(w, r, auth.LoginPath, "success", "Registration successful! Please log in.")
		return
	}

	msg := res.Error
	if err != nil {
		a.logger.Error("signup request failed", "error", err)
		msg = services.ErrorMessage(err)
	}
	req.Password, req.ConfirmPassword = "", ""
	a.render(w, r, "signup", "Sign Up", req, msg)
}

func (a *App) logout(w http.ResponseWriter, r *http.Request) {
	if err := stateFrom(r).auth.Logout(r.Context()); err != nil {
		a.logger.Error("failed to clear session", "error", err)
	}
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}

type catalogView struct {
	Query     tasks.CatalogQuery
	Screen    *tasks.CatalogScreen
	CanBorrow bool
}

func catalogURL(genre string, page int) string {
	q := url.Values{}
	if genre != "" && genre != tasks.AllGenres {
		q.Set("genre", genre)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if len(q) == 0 {
		return auth.HomePath
	}
	return auth.HomePath + "?" + q.Encode()
}

func (a *App) catalog(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	q := tasks.CatalogQuery{Genre: r.FormValue("genre"), Page: formInt(r, "page"), Size: a.pageSize}
	if q.Genre == "" {
		q.Genre = tasks.AllGenres
	}

	var userID int64
	if u := st.auth.User(); u.IsSubscriber() {
		userID = u.ID
	}

	screen, err := tasks.LoadCatalogScreen(r.Context(), st.lib, q, userID)
	if expired(w, r, err) {
		return
	}
	a.render(w, r, "catalog", "Catalog", catalogView{Query: q, Screen: screen, CanBorrow: userID != 0}, services.ErrorMessage(err))
}

func (a *App) catalogAction(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	back := catalogURL(r.FormValue("genre"), formInt(r, "page"))

	u, err := st.auth.Require(models.RoleSubscriber)
	if expired(w, r, err) {
		return
	}
	if err != nil {
		redirect(w, r, back, "error", "Only subscribers can borrow books")
		return
	}

	bookID, err := formID(r, "book_id")
	if err != nil {
		redirect(w, r, back, "error", err.Error())
		return
	}

	var msg string
	switch r.FormValue("action") {
	case "borrow":
		_, err = st.lib.Borrow(r.Context(), u.ID, bookID)
		msg = "Book borrowed successfully!"
	case "return":
		_, err = st.lib.Return(r.Context(), u.ID, bookID)
		msg = "Book returned successfully!"
	default:
		err = fmt.Errorf("%w: action", shared.ErrInvalidArgument)
	}

	if expired(w, r, err) {
		return
	}
	if err != nil {
		redirect(w, r, back, "error", services.ErrorMessage(err))
		return
	}
	redirect(w, r, back, "success", msg)
}

type adminBooksView struct {
	Books     *tasks.AdminBooks
	EditingID int64
	Form      models.BookInput
}

func (a *App) adminBooks(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)

	books, err := tasks.LoadAdminBooks(r.Context(), st.lib, formInt(r, "page"), a.adminPageSize)
	if expired(w, r, err) {
		return
	}

	v := adminBooksView{Books: books}
	if id, perr := formID(r, "edit"); perr == nil && books != nil {
		for i := range books.Page.Content {
			if b := &books.Page.Content[i]; b.ID == id {
				v.EditingID, v.Form = b.ID, b.Input()
			}
		}
	}
	a.render(w, r, "admin_books", "Manage Books", v, services.ErrorMessage(err))
}

func bookInput(r *http.Request) (models.BookInput, error) {
	year, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("publishedYear")))
	copies, err := strconv.Atoi(strings.TrimSpace(r.FormValue("copies")))
	if err != nil {
		return models.BookInput{}, fmt.Errorf("%w: copies must be a number", shared.ErrInvalidInput)
	}

	in := models.BookInput{
		Title:         strings.TrimSpace(r.FormValue("title")),
		Author:        strings.TrimSpace(r.FormValue("author")),
		PublishedYear: year,
		Genre:         strings.TrimSpace(r.FormValue("genre")),
		Copies:        copies,
	}
	return in, shared.Validate(in)
}

func (a *App) adminBooksAction(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	ctx := r.Context()
	back := "/admin/books"
	if page := formInt(r, "page"); page > 0 {
		back += "?page=" + strconv.Itoa(page)
	}

	var (
		msg string
		err error
	)
	switch r.FormValue("action") {
	case "add":
		var in models.BookInput
		if in, err = bookInput(r); err == nil {
			_, err = st.lib.AddBook(ctx, in)
		}
		msg = "Book added successfully!"
	case "update":
		var (
			id int64
			in models.BookInput
		)
		if id, err = formID(r, "id"); err == nil {
			if in, err = bookInput(r); err == nil {
				_, err = st.lib.UpdateBook(ctx, id, in)
			}
		}
		msg = "Book updated successfully!"
	case "delete":
		var (
			id    int64
			locks tasks.DeletionLocks
		)
		if id, err = formID(r, "id"); err == nil {
			if locks, err = tasks.LoadDeletionLocks(ctx, st.lib); err == nil {
				if err = locks.Check(id); err == nil {
					err = st.lib.DeleteBook(ctx, id)
				}
			}
		}
		msg = "Book deleted successfully!"
	case "copies":
		var id int64
		if id, err = formID(r, "id"); err == nil {
			upd := models.CopiesUpdate{Copies: formInt(r, "copies")}
			if err = shared.Validate(upd); err == nil {
				_, err = st.lib.UpdateBookCopies(ctx, id, upd.Copies)
			}
		}
		msg = "Copies updated successfully!"
	default:
		err = fmt.Errorf("%w: action", shared.ErrInvalidArgument)
	}

	if expired(w, r, err) {
		return
	}
	if err != nil {
		redirect(w, r, back, "error", services.ErrorMessage(err))
		return
	}
	redirect(w, r, back, "success", msg)
}

type subscribersView struct {
	Users []models.User
	Form  auth.SignupRequest
}

func (a *App) subscribers(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	users, err := st.lib.AdminSubscribers(r.Context())
	if expired(w, r, err) {
		return
	}
	a.render(w, r, "subscribers", "Subscribers", subscribersView{Users: users}, services.ErrorMessage(err))
}

func (a *App) addSubscriber(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	req := auth.SignupRequest{
		Name:     r.FormValue("name"),
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}

	err := shared.Validate(req)
	if err == nil {
		_, err = st.lib.Register(r.Context(), req.Registration())
	}
	if expired(w, r, err) {
		return
	}
	if err != nil {
		redirect(w, r, "/admin/subscribers", "error", "Error adding subscriber: "+services.ErrorMessage(err))
		return
	}
	redirect(w, r, "/admin/subscribers", "success", "Subscriber added successfully!")
}

func (a *App) removeSubscribers(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	users, err := st.lib.AdminSubscribers(r.Context())
	if expired(w, r, err) {
		return
	}
	a.render(w, r, "remove_subscribers", "Remove Subscribers", users, services.ErrorMessage(err))
}

func (a *App) removeSubscriber(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	id, err := formID(r, "id")
	if err == nil {
		err = st.lib.DeleteUser(r.Context(), id)
	}
	if expired(w, r, err) {
		return
	}
	if err != nil {
		redirect(w, r, "/admin/remove-subscribers", "error", "Error deleting subscriber: "+services.ErrorMessage(err))
		return
	}
	redirect(w, r, "/admin/remove-subscribers", "success", "Subscriber deleted successfully!")
}

func (a *App) fines(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	report, err := tasks.LoadFineReport(r.Context(), st.lib, a.now())
	if expired(w, r, err) {
		return
	}
	a.render(w, r, "fines", "Fine Collections", report, services.ErrorMessage(err))
}

func (a *App) wallet(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	u, err := st.auth.Require(models.RoleSubscriber)
	var summary *models.WalletSummary
	if err == nil {
		summary, err = tasks.LoadWallet(r.Context(), st.lib, u.ID)
	}
	if expired(w, r, err) {
		return
	}
	a.render(w, r, "wallet", "Wallet", summary, services.ErrorMessage(err))
}

func (a *App) addMoney(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	u, err := st.auth.Require(models.RoleSubscriber)
	if expired(w, r, err) {
		return
	}
	if err != nil {
		redirect(w, r, auth.HomePath, "error", services.ErrorMessage(err))
		return
	}

	amount, perr := models.ParseMoney(r.FormValue("amount"))
	if perr != nil || shared.Validate(models.WalletTopUp{Amount: amount}) != nil {
		redirect(w, r, "/wallet", "error", "Please enter a valid amount")
		return
	}

	err = st.lib.AddToWallet(r.Context(), u.ID, amount)
	if expired(w, r, err) {
		return
	}
	if err != nil {
		redirect(w, r, "/wallet", "error", "Failed to add money: "+services.ErrorMessage(err))
		return
	}
	redirect(w, r, "/wallet", "success", "Money added successfully!")
}

func (a *App) history(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	u, err := st.auth.Require(models.RoleSubscriber)
	var summary *models.BorrowSummary
	if err == nil {
		summary, err = tasks.LoadBorrowSummary(r.Context(), st.lib, u.ID)
	}
	if expired(w, r, err) {
		return
	}
	a.render(w, r, "history", "Borrow History", summary, services.ErrorMessage(err))
}

func (a *App) payFine(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	u, err := st.auth.Require(models.RoleSubscriber)
	if expired(w, r, err) {
		return
	}
	if err != nil {
		redirect(w, r, auth.HomePath, "error", services.ErrorMessage(err))
		return
	}

	id, err := formID(r, "record_id")
	if err == nil {
		err = st.lib.PayFine(r.Context(), u.ID, id)
	}
	if expired(w, r, err) {
		return
	}
	if err != nil {
		redirect(w, r, "/borrow-history", "error", "Failed to pay fine: "+services.ErrorMessage(err))
		return
	}
	redirect(w, r, "/borrow-history", "success", "Fine paid successfully!")
}
