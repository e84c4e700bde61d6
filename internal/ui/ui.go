package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/desertthunder/shelf/internal/tasks"
)

// Screen is one page of the TUI. Each has a route in [auth.Routes].
type Screen int

const (
	LoginScreen Screen = iota
	SignupScreen
	CatalogScreen
	AdminBooksScreen
	SubscribersScreen
	RemoveSubscribersScreen
	FinesScreen
	WalletScreen
	HistoryScreen
)

var screens = map[string]Screen{
	auth.LoginPath:              LoginScreen,
	auth.SignupPath:             SignupScreen,
	auth.HomePath:               CatalogScreen,
	"/admin/books":              AdminBooksScreen,
	"/admin/subscribers":        SubscribersScreen,
	"/admin/remove-subscribers": RemoveSubscribersScreen,
	"/admin/fines":              FinesScreen,
	"/wallet":                   WalletScreen,
	"/borrow-history":           HistoryScreen,
}

const logoutPath = "/logout"

// Options configures a [Model].
type Options struct {
	Auth          *auth.Context
	Library       services.Library
	PageSize      int // catalog page size (default: 9)
	AdminPageSize int // admin book page size (default: 100)
	Now           func() time.Time
	Logger        *log.Logger
}

// confirmation is a pending yes/no question.
type confirmation struct {
	prompt string
	onYes  func() tea.Cmd
}

// Model represents the TUI application state.
type Model struct {
	ctx           context.Context
	auth          *auth.Context
	lib           services.Library
	logger        *log.Logger
	now           func() time.Time
	pageSize      int
	adminPageSize int

	screen  Screen
	route   auth.Route
	visit   int
	res     *tasks.Resource[tea.Msg]
	loading bool

	width    int
	height   int
	list     list.Model
	menu     list.Model
	menuOpen bool
	form     *form
	confirm  *confirmation
	status   string
	failed   bool

	spinner spinner.Model
	help    help.Model
	keys    keyMap

	query      tasks.CatalogQuery
	catalog    *tasks.CatalogScreen
	adminPage  int
	adminBooks *tasks.AdminBooks
	users      []models.User
	fines      *models.FineReport
	wallet     *models.WalletSummary
	history    *models.BorrowSummary
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.PageSize <= 0 {
		opts.PageSize = 9
	}
	if opts.AdminPageSize <= 0 {
		opts.AdminPageSize = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	items := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	items.SetShowHelp(false)
	items.DisableQuitKeybindings()

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	menu := list.New(nil, delegate, 0, 0)
	menu.Title = "Go to"
	menu.SetShowHelp(false)
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)
	menu.DisableQuitKeybindings()

	m := &Model{
		ctx:           ctx,
		auth:          opts.Auth,
		lib:           opts.Library,
		logger:        shared.WithLogger(opts.Logger, "component", "tui"),
		now:           opts.Now,
		pageSize:      opts.PageSize,
		adminPageSize: opts.AdminPageSize,
		list:          items,
		menu:          menu,
		spinner:       spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:          help.New(),
		keys:          newKeyMap(),
	}
	m.resize(80, 24)
	return m
}

// Init opens the catalog, or the login screen when there is no session.
func (m *Model) Init() tea.Cmd {
	return m.navigate(auth.HomePath)
}

// Screen is the screen currently shown.
func (m *Model) Screen() Screen { return m.screen }

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	m.list.SetSize(max(w-4, 20), max(h-10, 5))
	m.menu.SetSize(max(w-4, 20), max(h-10, 5))
}

// resolve runs path through the route guards and returns the route to show.
func (m *Model) resolve(path string) auth.Route {
	for range 3 {
		d := auth.Authorize(m.auth, path)
		if d.Allowed {
			break
		}
		path = d.Redirect
	}
	route, _ := auth.Lookup(path)
	if route.Access == auth.Public && m.auth.IsAuthenticated() {
		route, _ = auth.Lookup(auth.HomePath)
	}
	return route
}

// leave closes the current screen's resource, cancelling its in-flight load.
func (m *Model) leave() {
	if m.res != nil {
		m.res.Close()
		m.res = nil
	}
	m.loading = false
}

// navigate leaves the current screen and opens the one path resolves to.
func (m *Model) navigate(path string) tea.Cmd {
	if path == logoutPath {
		return m.logout()
	}

	route := m.resolve(path)
	m.leave()
	m.visit++
	m.route = route
	m.screen = screens[route.Path]
	m.menuOpen, m.form, m.confirm = false, nil, nil
	m.setStatus("", false)
	m.list.Title = route.Title
	m.list.ResetFilter()
	m.list.SetItems(nil)

	m.query = tasks.CatalogQuery{Genre: tasks.AllGenres, Size: m.pageSize}
	m.adminPage = 0
	m.catalog, m.adminBooks, m.users, m.fines, m.wallet, m.history = nil, nil, nil, nil, nil, nil

	switch m.screen {
	case LoginScreen:
		m.form = m.loginForm()
		return textinput.Blink
	case SignupScreen:
		m.form = m.signupForm()
		return textinput.Blink
	}

	m.res = tasks.NewResource[tea.Msg](nil)
	return m.load()
}

func (m *Model) logout() tea.Cmd {
	if err := m.auth.Logout(m.ctx); err != nil {
		m.logger.Error("failed to clear session", "error", err)
	}
	cmd := m.navigate(auth.LoginPath)
	m.setStatus("Logged out", false)
	return cmd
}

// load fetches the current screen's data through its resource. A newer load supersedes it.
func (m *Model) load() tea.Cmd {
	if m.res == nil {
		return nil
	}
	res, fn, visit, ctx := m.res, m.loader(), m.visit, m.ctx
	m.loading = true

	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		msg, err := res.LoadWith(ctx, fn)
		if errors.Is(err, shared.ErrSuperseded) {
			return nil
		}
		if err != nil {
			return loadFailedMsg(visit, err)
		}
		return msg
	})
}

// loader builds the current screen's load function from a snapshot of its query.
func (m *Model) loader() tasks.LoadFunc[tea.Msg] {
	lib, visit := m.lib, m.visit

	switch m.screen {
	case CatalogScreen:
		q := m.query
		var userID int64
		if u := m.auth.User(); u.IsSubscriber() {
			userID = u.ID
		}
		return deliver(MsgCatalogLoaded, visit, func(ctx context.Context) (*tasks.CatalogScreen, error) {
			return tasks.LoadCatalogScreen(ctx, lib, q, userID)
		})
	case AdminBooksScreen:
		page, size := m.adminPage, m.adminPageSize
		return deliver(MsgAdminBooksLoaded, visit, func(ctx context.Context) (*tasks.AdminBooks, error) {
			return tasks.LoadAdminBooks(ctx, lib, page, size)
		})
	case SubscribersScreen, RemoveSubscribersScreen:
		return deliver(MsgUsersLoaded, visit, lib.AdminSubscribers)
	case FinesScreen:
		now := m.now()
		return deliver(MsgFinesLoaded, visit, func(ctx context.Context) (*models.FineReport, error) {
			return tasks.LoadFineReport(ctx, lib, now)
		})
	case WalletScreen:
		u, err := m.auth.Require(models.RoleSubscriber)
		return deliver(MsgWalletLoaded, visit, func(ctx context.Context) (*models.WalletSummary, error) {
			if err != nil {
				return nil, err
			}
			return tasks.LoadWallet(ctx, lib, u.ID)
		})
	case HistoryScreen:
		u, err := m.auth.Require(models.RoleSubscriber)
		return deliver(MsgHistoryLoaded, visit, func(ctx context.Context) (*models.BorrowSummary, error) {
			if err != nil {
				return nil, err
			}
			return tasks.LoadBorrowSummary(ctx, lib, u.ID)
		})
	default:
		return func(context.Context) (tea.Msg, error) { return nil, nil }
	}
}

func (m *Model) setStatus(msg string, failed bool) {
	m.status, m.failed = msg, failed
}

// fail reports err. A rejected credential has already cleared the session, so the login
// screen is shown.
func (m *Model) fail(prefix string, err error) tea.Cmd {
	m.loading = false
	if errors.Is(err, shared.ErrUnauthorized) || errors.Is(err, shared.ErrNotAuthenticated) {
		cmd := m.navigate(auth.LoginPath)
		m.setStatus("Your session has expired. Please log in again.", true)
		return cmd
	}
	m.logger.Error("request failed", "screen", m.route.Title, "error", err)
	m.setStatus(prefix+services.ErrorMessage(err), true)
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m, m.handleKeys(msg)

	case Msg:
		return m, m.receive(msg)
	}

	var cmd tea.Cmd
	switch {
	case m.form != nil:
		cmd = m.form.update(msg)
	case m.menuOpen:
		m.menu, cmd = m.menu.Update(msg)
	default:
		m.list, cmd = m.list.Update(msg)
	}
	return m, cmd
}

func (m *Model) receive(msg Msg) tea.Cmd {
	switch msg.kind {
	case MsgActionDone:
		r := msg.data.(actionResult)
		if r.err != nil {
			return m.fail(r.prefix, r.err)
		}
		m.setStatus(r.ok, false)
		if msg.visit != m.visit {
			return nil
		}
		return m.load()
	case MsgLoginDone, MsgSignupDone:
		if msg.visit != m.visit {
			return nil
		}
		return m.finishAuth(msg.kind, msg.data.(authResult))
	}

	if msg.visit != m.visit {
		return nil
	}
	m.loading = false

	switch msg.kind {
	case MsgLoadFailed:
		return m.fail("", msg.data.(error))
	case MsgCatalogLoaded:
		m.catalog = msg.data.(*tasks.CatalogScreen)
		m.query.Page = m.catalog.Page.Number
		m.showBooks()
	case MsgAdminBooksLoaded:
		m.adminBooks = msg.data.(*tasks.AdminBooks)
		m.adminPage = m.adminBooks.Page.Number
		m.showBooks()
	case MsgUsersLoaded:
		m.users = msg.data.([]models.User)
		items := make([]list.Item, len(m.users))
		for i, u := range m.users {
			items[i] = userItem{user: u}
		}
		m.list.SetItems(items)
	case MsgFinesLoaded:
		m.fines = msg.data.(*models.FineReport)
		items := make([]list.Item, 0, len(m.fines.Unpaid)+len(m.fines.Active))
		for _, r := range m.fines.Unpaid {
			items = append(items, loanItem{record: r, unpaid: true, now: m.fines.GeneratedAt})
		}
		for _, r := range m.fines.Active {
			items = append(items, loanItem{record: r, now: m.fines.GeneratedAt})
		}
		m.list.SetItems(items)
	case MsgWalletLoaded:
		m.wallet = msg.data.(*models.WalletSummary)
	case MsgHistoryLoaded:
		m.history = msg.data.(*models.BorrowSummary)
		unpaid := make(map[int64]bool, len(m.history.Unpaid))
		for _, r := range m.history.Unpaid {
			unpaid[r.ID] = true
		}
		now := m.now()
		items := make([]list.Item, len(m.history.History))
		for i, r := range m.history.History {
			items[i] = recordItem{record: r, unpaid: unpaid[r.ID], now: now}
		}
		m.list.SetItems(items)
	}
	return nil
}

// showBooks fills the list from the loaded catalog or admin page.
func (m *Model) showBooks() {
	var items []list.Item
	switch {
	case m.screen == CatalogScreen && m.catalog != nil:
		for _, b := range m.catalog.Page.Content {
			items = append(items, bookItem{book: b, borrowed: m.catalog.Borrowed[b.ID]})
		}
	case m.screen == AdminBooksScreen && m.adminBooks != nil:
		for _, b := range m.adminBooks.Page.Content {
			items = append(items, bookItem{book: b, locked: m.adminBooks.Locks.Locked(b.ID)})
		}
	}
	m.list.SetItems(items)
}

func (m *Model) finishAuth(kind MsgKind, r authResult) tea.Cmd {
	if r.err != nil {
		m.logger.Error("auth request failed", "error", r.err)
		m.setStatus(services.ErrorMessage(r.err), true)
		return nil
	}
	if !r.res.Success {
		if m.form != nil {
			m.form.clear()
		}
		m.setStatus(r.res.Error, true)
		return nil
	}

	if kind == MsgSignupDone {
		cmd := m.navigate(auth.LoginPath)
		m.setStatus("Registration successful! Please log in.", false)
		return cmd
	}
	cmd := m.navigate(auth.HomePath)
	m.setStatus("Welcome, "+r.res.User.DisplayName(), false)
	return cmd
}

func (m *Model) handleKeys(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.kill) {
		return tea.Quit
	}
	switch {
	case m.form != nil:
		return m.handleFormKeys(msg)
	case m.confirm != nil:
		return m.handleConfirmKeys(msg)
	case m.menuOpen:
		return m.handleMenuKeys(msg)
	}

	var cmd tea.Cmd
	if m.list.SettingFilter() {
		m.list, cmd = m.list.Update(msg)
		return cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return tea.Quit
	case key.Matches(msg, m.keys.nav):
		m.openMenu()
		return nil
	case key.Matches(msg, m.keys.refresh):
		return m.load()
	}

	if cmd, ok := m.handleScreenKeys(msg); ok {
		return cmd
	}
	m.list, cmd = m.list.Update(msg)
	return cmd
}

func (m *Model) handleFormKeys(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.back):
		switch m.screen {
		case SignupScreen:
			return m.navigate(auth.LoginPath)
		case LoginScreen:
			return nil
		}
		m.form = nil
		return nil
	case key.Matches(msg, m.keys.signup) && m.screen == LoginScreen:
		return m.navigate(auth.SignupPath)
	}
	return m.form.update(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.yes):
		c := m.confirm
		m.confirm = nil
		return c.onYes()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.confirm = nil
	}
	return nil
}

func (m *Model) openMenu() {
	nav := auth.Navigation(m.auth)
	items := make([]list.Item, 0, len(nav)+1)
	for _, r := range nav {
		items = append(items, routeItem{route: r})
	}
	items = append(items, routeItem{route: auth.Route{Path: logoutPath, Title: "Logout"}})
	m.menu.SetItems(items)
	m.menu.ResetSelected()
	m.menuOpen = true
}

func (m *Model) handleMenuKeys(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.nav):
		m.menuOpen = false
		return nil
	case key.Matches(msg, m.keys.quit):
		return tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.menu.SelectedItem().(routeItem); ok {
			return m.navigate(item.route.Path)
		}
		return nil
	}

	var cmd tea.Cmd
	m.menu, cmd = m.menu.Update(msg)
	return cmd
}

// View renders the UI based on the current screen.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	switch {
	case m.menuOpen:
		b.WriteString(m.menu.View())
	case m.form != nil:
		b.WriteString(m.form.view())
	case m.confirm != nil:
		b.WriteString(styles.warn.Render(m.confirm.prompt))
		b.WriteString("\n\n")
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no}))
	default:
		b.WriteString(m.renderScreen())
	}

	if m.status != "" {
		b.WriteString("\n\n")
		if m.failed {
			b.WriteString(styles.err.Render(m.status))
		} else {
			b.WriteString(styles.ok.Render(m.status))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(m.keys.screenKeys(m.screen, m.auth.IsSubscriber())))
	return b.String()
}

func (m *Model) renderHeader() string {
	title := styles.title.Render("shelf • " + m.route.Title)
	if u := m.auth.User(); u != nil && m.auth.IsAuthenticated() {
		return fmt.Sprintf("%s  %s", title, styles.help.Render(fmt.Sprintf("%s (%s)", u.DisplayName(), u.Role)))
	}
	return title
}

func (m *Model) renderScreen() string {
	if m.loading && !m.loaded() {
		return fmt.Sprintf("%s Loading...", m.spinner.View())
	}

	var summary string
	switch m.screen {
	case CatalogScreen:
		summary = m.renderCatalogSummary()
	case AdminBooksScreen:
		if m.adminBooks != nil {
			summary = m.adminBooks.Page.Summary()
		}
	case FinesScreen:
		summary = m.renderFineSummary()
	case WalletScreen:
		return m.renderWallet()
	case HistoryScreen:
		summary = m.renderHistorySummary()
	}

	if summary == "" {
		return m.list.View()
	}
	return fmt.Sprintf("%s\n\n%s", summary, m.list.View())
}

// loaded reports whether the current screen has data to show.
func (m *Model) loaded() bool {
	switch m.screen {
	case CatalogScreen:
		return m.catalog != nil
	case AdminBooksScreen:
		return m.adminBooks != nil
	case SubscribersScreen, RemoveSubscribersScreen:
		return m.users != nil
	case FinesScreen:
		return m.fines != nil
	case WalletScreen:
		return m.wallet != nil
	case HistoryScreen:
		return m.history != nil
	}
	return true
}

func (m *Model) renderCatalogSummary() string {
	if m.catalog == nil {
		return ""
	}
	s := fmt.Sprintf("Genre: %s • %s", m.query.Genre, m.catalog.Page.Summary())
	if item, ok := m.list.SelectedItem().(bookItem); ok {
		tier := item.book.Availability()
		s += "\n" + styles.Availability(tier).Render(fmt.Sprintf("%s: %d available (%s)", item.book.Title, item.book.Available(), tier))
	}
	return s
}

func (m *Model) renderFineSummary() string {
	if m.fines == nil {
		return ""
	}
	return fmt.Sprintf(
		"Total collected: %s\nUnpaid fines:    %d (%s)\nActive borrows:  %d (%d overdue, potential %s)",
		m.fines.TotalCollected, len(m.fines.Unpaid), m.fines.UnpaidTotal(),
		len(m.fines.Active), m.fines.Overdue(), m.fines.PotentialTotal(),
	)
}

func (m *Model) renderWallet() string {
	if m.wallet == nil {
		return ""
	}
	return fmt.Sprintf("Balance:          %s\nTotal fines paid: %s",
		styles.ok.Render(m.wallet.Balance.String()), m.wallet.FinesPaid)
}

func (m *Model) renderHistorySummary() string {
	if m.history == nil {
		return ""
	}
	s := fmt.Sprintf("Total borrowed: %d • Active: %d • Unpaid fines: %d",
		len(m.history.History), len(m.history.Active), len(m.history.Unpaid))
	if total := m.history.UnpaidTotal(); total > 0 {
		s += " " + styles.warn.Render(fmt.Sprintf("(%s due)", total))
	}
	return s
}
