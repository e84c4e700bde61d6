package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/server"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/session"
	"github.com/desertthunder/shelf/internal/shared"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const flashCookie = "shelf_flash"

// Options configures an [App].
type Options struct {
	Client        *services.Client
	Store         session.Store
	SessionTTL    time.Duration
	PageSize      int // catalog page size (default: 9)
	AdminPageSize int // admin book page size (default: 100)
	Cookie        server.SessionOpts
	Logger        *log.Logger
	Now           func() time.Time
}

// App is the browser front end.
type App struct {
	client        *services.Client
	store         session.Store
	ttl           time.Duration
	pageSize      int
	adminPageSize int
	cookie        server.SessionOpts
	logger        *log.Logger
	now           func() time.Time
	pages         map[string]*template.Template
}

// New parses the templates and creates an [App].
func New(opts Options) (*App, error) {
	if opts.Client == nil || opts.Store == nil {
		return nil, fmt.Errorf("%w: web app needs a client and a session store", shared.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 9
	}
	if opts.AdminPageSize <= 0 {
		opts.AdminPageSize = 100
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = session.DefaultTTL
	}
	if opts.Cookie.MaxAge <= 0 {
		opts.Cookie.MaxAge = opts.SessionTTL
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	return &App{
		client:        opts.Client,
		store:         opts.Store,
		ttl:           opts.SessionTTL,
		pageSize:      opts.PageSize,
		adminPageSize: opts.AdminPageSize,
		cookie:        opts.Cookie,
		logger:        shared.WithLogger(opts.Logger, "component", "web"),
		now:           opts.Now,
		pages:         pages,
	}, nil
}

var funcs = template.FuncMap{
	"money": func(m models.Money) string { return m.String() },
	"add":   func(a, b int) int { return a + b },
}

func parsePages() (map[string]*template.Template, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template)
	for _, name := range names {
		base := strings.TrimSuffix(strings.TrimPrefix(name, "templates/"), ".html")
		if base == "layout" {
			continue
		}
		t, err := template.New(base).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", base, err)
		}
		pages[base] = t
	}
	return pages, nil
}

// Handler builds the router: request logging, session keys, per-request login state, route
// guards, then the pages.
func (a *App) Handler() http.Handler {
	r := server.NewBasicRouter()
	r.Use(server.Logging(a.logger), server.Recover(a.logger))
	r.Handler(assets{})

	r.Use(server.Sessions(a.cookie), a.bind, server.Guard(viewer, "/logout"))

	r.HandleFunc(http.MethodGet, auth.LoginPath, a.loginPage)
	r.HandleFunc(http.MethodPost, auth.LoginPath, a.login)
	r.HandleFunc(http.MethodGet, auth.SignupPath, a.signupPage)
	r.HandleFunc(http.MethodPost, auth.SignupPath, a.signup)
	r.HandleFunc(http.MethodPost, "/logout", a.logout)

	r.HandleFunc(http.MethodGet, "/{$}", a.catalog)
	r.HandleFunc(http.MethodPost, "/{$}", a.catalogAction)

	r.HandleFunc(http.MethodGet, "/admin/books", a.adminBooks)
	r.HandleFunc(http.MethodPost, "/admin/books", a.adminBooksAction)
	r.HandleFunc(http.MethodGet, "/admin/subscribers", a.subscribers)
	r.HandleFunc(http.MethodPost, "/admin/subscribers", a.addSubscriber)
	r.HandleFunc(http.MethodGet, "/admin/remove-subscribers", a.removeSubscribers)
	r.HandleFunc(http.MethodPost, "/admin/remove-subscribers", a.removeSubscriber)
	r.HandleFunc(http.MethodGet, "/admin/fines", a.fines)

	r.HandleFunc(http.MethodGet, "/wallet", a.wallet)
	r.HandleFunc(http.MethodPost, "/wallet", a.addMoney)
	r.HandleFunc(http.MethodGet, "/borrow-history", a.history)
	r.HandleFunc(http.MethodPost, "/borrow-history", a.payFine)

	r.NotFound(http.RedirectHandler(auth.HomePath, http.StatusSeeOther))
	return r
}

// assets serves the embedded stylesheet.
type assets struct{}

func (assets) Routes() []string { return []string{"GET /static/"} }

func (assets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	http.FileServerFS(staticFS).ServeHTTP(w, r)
}

type stateKey struct{}

// state is one request's view of the backend: the browser's login and a client bound to it.
type state struct {
	auth *auth.Context
	lib  services.Library
}

// bind loads the login state for the request's session key.
func (a *App) bind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := server.SessionKey(r.Context())
		if key == "" {
			http.Error(w, "missing session", http.StatusInternalServerError)
			return
		}

		st, err := a.newState(r.Context(), key)
		if err != nil {
			a.logger.Error("failed to load session", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), stateKey{}, st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newState binds an auth context and a client to the session stored under key.
func (a *App) newState(ctx context.Context, key string) (*state, error) {
	m := session.NewManager(a.store, key, session.ManagerOpts{TTL: a.ttl, Clock: a.now, Logger: a.logger})

	var ac *auth.Context
	lib := a.client.WithCredentials(m, func(ctx context.Context) { ac.Expire(ctx) })

	ac, err := auth.NewContext(ctx, lib, m, a.logger)
	if err != nil {
		return nil, err
	}
	return &state{auth: ac, lib: lib}, nil
}

func stateFrom(r *http.Request) *state {
	st, _ := r.Context().Value(stateKey{}).(*state)
	return st
}

func viewer(r *http.Request) auth.Viewer {
	if st := stateFrom(r); st != nil {
		return st.auth
	}
	return nil
}

type flash struct {
	Kind    string // "success" or "error"
	Message string
}

func setFlash(w http.ResponseWriter, kind, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + ":" + msg),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func takeFlash(w http.ResponseWriter, r *http.Request) *flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})

	raw, err := url.QueryUnescape(c.Value)
	if err != nil {
		return nil
	}
	kind, msg, ok := strings.Cut(raw, ":")
	if !ok || msg == "" {
		return nil
	}
	return &flash{Kind: kind, Message: msg}
}

// view is the data every template receives.
type view struct {
	Title string
	Path  string
	User  *models.User
	Nav   []auth.Route
	Flash *flash
	Error string
	Now   time.Time
	Data  any
}

func (a *App) render(w http.ResponseWriter, r *http.Request, name, title string, data any, errMsg string) {
	st := stateFrom(r)
	v := view{
		Title: title,
		Path:  r.URL.Path,
		User:  st.auth.User(),
		Nav:   auth.Navigation(st.auth),
		Flash: takeFlash(w, r),
		Error: errMsg,
		Now:   a.now(),
		Data:  data,
	}

	t, ok := a.pages[name]
	if !ok {
		http.Error(w, "unknown page "+name, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout", v); err != nil {
		a.logger.Error("failed to render page", "page", name, "error", err)
	}
}

// redirect finishes an action with a flash message.
func redirect(w http.ResponseWriter, r *http.Request, to, kind, msg string) {
	if msg != "" {
		setFlash(w, kind, msg)
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// expired reports whether err came from a rejected credential. The client has already cleared
// the session, so the browser is sent to the login screen.
func expired(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, shared.ErrUnauthorized) && !errors.Is(err, shared.ErrNotAuthenticated) {
		return false
	}
	redirect(w, r, auth.LoginPath, "error", "Your session has expired. Please log in again.")
	return true
}

func formInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.FormValue(name))
	return max(n, 0)
}

func formID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.FormValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", shared.ErrInvalidArgument, name)
	}
	return id, nil
}
