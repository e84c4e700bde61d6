package ui

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/desertthunder/shelf/internal/tasks"
)

// act runs a mutation in the background. Success refetches the screen it was started from.
func (m *Model) act(ok, prefix string, do func(ctx context.Context) error) tea.Cmd {
	ctx, visit := m.ctx, m.visit
	return func() tea.Msg {
		return actionDoneMsg(visit, ok, prefix, do(ctx))
	}
}

// handleScreenKeys runs the current screen's own bindings. It reports false when msg is not
// one of them.
func (m *Model) handleScreenKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch m.screen {
	case CatalogScreen:
		return m.handleCatalogKeys(msg)
	case AdminBooksScreen:
		return m.handleAdminBookKeys(msg)
	case SubscribersScreen:
		if key.Matches(msg, m.keys.add) {
			m.form = m.subscriberForm()
			return m.form.setFocus(0), true
		}
	case RemoveSubscribersScreen:
		if key.Matches(msg, m.keys.remove) {
			return m.confirmRemoveSubscriber(), true
		}
	case WalletScreen:
		if key.Matches(msg, m.keys.add) {
			m.form = m.amountForm()
			return m.form.setFocus(0), true
		}
	case HistoryScreen:
		if key.Matches(msg, m.keys.pay) {
			return m.payFine(), true
		}
	}
	return nil, false
}

func (m *Model) handleCatalogKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.prev):
		if m.catalog != nil && m.catalog.Page.HasPrev() {
			m.query.Page = m.catalog.Page.Prev()
			return m.load(), true
		}
		return nil, true
	case key.Matches(msg, m.keys.next):
		if m.catalog != nil && m.catalog.Page.HasNext() {
			m.query.Page = m.catalog.Page.Next()
			return m.load(), true
		}
		return nil, true
	case key.Matches(msg, m.keys.genre):
		if m.catalog == nil {
			return nil, true
		}
		genres := append([]string{tasks.AllGenres}, m.catalog.Genres...)
		i := slices.Index(genres, m.query.Genre)
		m.query.Genre = genres[(i+1)%len(genres)]
		m.query.Page = 0
		return m.load(), true
	case key.Matches(msg, m.keys.borrow):
		return m.borrowSelected(true), true
	case key.Matches(msg, m.keys.giveBack):
		return m.borrowSelected(false), true
	}
	return nil, false
}

// borrowSelected borrows or returns the highlighted book.
func (m *Model) borrowSelected(borrow bool) tea.Cmd {
	u, err := m.auth.Require(models.RoleSubscriber)
	if err != nil {
		m.setStatus("Only subscribers can borrow books", true)
		return nil
	}
	item, ok := m.list.SelectedItem().(bookItem)
	if !ok {
		return nil
	}

	lib, bookID := m.lib, item.book.ID
	if borrow {
		if !item.book.CanBorrow() {
			m.setStatus("No copies available", true)
			return nil
		}
		return m.act("Book borrowed successfully!", "", func(ctx context.Context) error {
			_, err := lib.Borrow(ctx, u.ID, bookID)
			return err
		})
	}

	if !item.borrowed {
		m.setStatus("You have not borrowed this book", true)
		return nil
	}
	return m.act("Book returned successfully!", "", func(ctx context.Context) error {
		_, err := lib.Return(ctx, u.ID, bookID)
		return err
	})
}

func (m *Model) handleAdminBookKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	item, selected := m.list.SelectedItem().(bookItem)

	switch {
	case key.Matches(msg, m.keys.prev):
		if m.adminBooks != nil && m.adminBooks.Page.HasPrev() {
			m.adminPage = m.adminBooks.Page.Prev()
			return m.load(), true
		}
		return nil, true
	case key.Matches(msg, m.keys.next):
		if m.adminBooks != nil && m.adminBooks.Page.HasNext() {
			m.adminPage = m.adminBooks.Page.Next()
			return m.load(), true
		}
		return nil, true
	case key.Matches(msg, m.keys.add):
		m.form = m.bookForm(nil)
		return m.form.setFocus(0), true
	case key.Matches(msg, m.keys.edit) && selected:
		m.form = m.bookForm(&item.book)
		return m.form.setFocus(0), true
	case key.Matches(msg, m.keys.copies) && selected:
		m.form = m.copiesForm(item.book)
		return m.form.setFocus(0), true
	case key.Matches(msg, m.keys.remove) && selected:
		return m.confirmDeleteBook(item), true
	}
	return nil, false
}

func (m *Model) confirmDeleteBook(item bookItem) tea.Cmd {
	if item.locked {
		m.setStatus(services.ErrorMessage(fmt.Errorf("%w: %s", shared.ErrDeletionLocked, item.book.Title)), true)
		return nil
	}

	lib, id := m.lib, item.book.ID
	m.confirm = &confirmation{
		prompt: fmt.Sprintf("Are you sure you want to delete this book? (%s)", item.book.Title),
		onYes: func() tea.Cmd {
			return m.act("Book deleted successfully!", "", func(ctx context.Context) error {
				locks, err := tasks.LoadDeletionLocks(ctx, lib)
				if err != nil {
					return err
				}
				if err := locks.Check(id); err != nil {
					return err
				}
				return lib.DeleteBook(ctx, id)
			})
		},
	}
	return nil
}

func (m *Model) confirmRemoveSubscriber() tea.Cmd {
	item, ok := m.list.SelectedItem().(userItem)
	if !ok {
		return nil
	}

	lib, id := m.lib, item.user.ID
	m.confirm = &confirmation{
		prompt: fmt.Sprintf("Are you sure you want to delete this subscriber? (%s)", item.user.DisplayName()),
		onYes: func() tea.Cmd {
			return m.act("Subscriber deleted successfully!", "Error deleting subscriber: ", func(ctx context.Context) error {
				return lib.DeleteUser(ctx, id)
			})
		},
	}
	return nil
}

func (m *Model) payFine() tea.Cmd {
	u, err := m.auth.Require(models.RoleSubscriber)
	if err != nil {
		return m.fail("", err)
	}
	item, ok := m.list.SelectedItem().(recordItem)
	if !ok {
		return nil
	}
	if !item.unpaid {
		m.setStatus("No unpaid fine on this record", true)
		return nil
	}

	lib, recordID := m.lib, item.record.ID
	return m.act("Fine paid successfully!", "Failed to pay fine: ", func(ctx context.Context) error {
		return lib.PayFine(ctx, u.ID, recordID)
	})
}

func (m *Model) loginForm() *form {
	return newForm("Login", func(v []string) tea.Cmd {
		ctx, visit, ac := m.ctx, m.visit, m.auth
		username, password := v[0], v[1]
		m.setStatus("Logging in...", false)
		return func() tea.Msg {
			res, err := ac.Login(ctx, username, password)
			return loginDoneMsg(visit, res, err)
		}
	}, fieldSpec{label: "Username"}, fieldSpec{label: "Password", secret: true})
}

func (m *Model) signupForm() *form {
	return newForm("Sign Up", func(v []string) tea.Cmd {
		ctx, visit, ac := m.ctx, m.visit, m.auth
		req := auth.SignupRequest{Name: v[0], Username: v[1], Email: v[2], Password: v[3], ConfirmPassword: v[4]}
		return func() tea.Msg {
			res, err := ac.Signup(ctx, req)
			return signupDoneMsg(visit, res, err)
		}
	},
		fieldSpec{label: "Name"},
		fieldSpec{label: "Username"},
		fieldSpec{label: "Email"},
		fieldSpec{label: "Password", secret: true},
		fieldSpec{label: "Confirm Password", secret: true},
	)
}

func (m *Model) subscriberForm() *form {
	return newForm("Add Subscriber", func(v []string) tea.Cmd {
		req := auth.SignupRequest{Name: v[0], Username: v[1], Email: v[2], Password: v[3]}
		if err := shared.Validate(req); err != nil {
			m.setStatus("Error adding subscriber: "+services.ErrorMessage(err), true)
			return nil
		}
		m.form = nil
		lib := m.lib
		return m.act("Subscriber added successfully!", "Error adding subscriber: ", func(ctx context.Context) error {
			_, err := lib.Register(ctx, req.Registration())
			return err
		})
	},
		fieldSpec{label: "Name"},
		fieldSpec{label: "Username"},
		fieldSpec{label: "Email"},
		fieldSpec{label: "Password", secret: true},
	)
}

func (m *Model) amountForm() *form {
	return newForm("Add Money", func(v []string) tea.Cmd {
		u, err := m.auth.Require(models.RoleSubscriber)
		if err != nil {
			m.form = nil
			return m.fail("", err)
		}
		amount, perr := models.ParseMoney(v[0])
		if perr != nil || shared.Validate(models.WalletTopUp{Amount: amount}) != nil {
			m.setStatus("Please enter a valid amount", true)
			return nil
		}
		m.form = nil
		lib := m.lib
		return m.act("Money added successfully!", "Failed to add money: ", func(ctx context.Context) error {
			return lib.AddToWallet(ctx, u.ID, amount)
		})
	}, fieldSpec{label: "Amount (₹)"})
}

// parseBookInput reads the book form's title, author, year, genre and copies.
func parseBookInput(v []string) (models.BookInput, error) {
	year, _ := strconv.Atoi(strings.TrimSpace(v[2]))
	copies, err := strconv.Atoi(strings.TrimSpace(v[4]))
	if err != nil {
		return models.BookInput{}, fmt.Errorf("%w: copies must be a number", shared.ErrInvalidInput)
	}
	in := models.BookInput{
		Title:         strings.TrimSpace(v[0]),
		Author:        strings.TrimSpace(v[1]),
		PublishedYear: year,
		Genre:         strings.TrimSpace(v[3]),
		Copies:        copies,
	}
	return in, shared.Validate(in)
}

// bookForm adds a book, or edits book when it is set.
func (m *Model) bookForm(book *models.Book) *form {
	title, ok := "Add Book", "Book added successfully!"
	var in models.BookInput
	if book != nil {
		title, ok = "Edit Book", "Book updated successfully!"
		in = book.Input()
	}
	year, copies := "", ""
	if book != nil {
		year, copies = strconv.Itoa(in.PublishedYear), strconv.Itoa(in.Copies)
	}

	return newForm(title, func(v []string) tea.Cmd {
		parsed, err := parseBookInput(v)
		if err != nil {
			m.setStatus(services.ErrorMessage(err), true)
			return nil
		}
		m.form = nil
		lib := m.lib
		return m.act(ok, "", func(ctx context.Context) error {
			if book == nil {
				_, err := lib.AddBook(ctx, parsed)
				return err
			}
			_, err := lib.UpdateBook(ctx, book.ID, parsed)
			return err
		})
	},
		fieldSpec{label: "Title", value: in.Title},
		fieldSpec{label: "Author", value: in.Author},
		fieldSpec{label: "Published Year", value: year},
		fieldSpec{label: "Genre", value: in.Genre},
		fieldSpec{label: "Copies", value: copies},
	)
}

func (m *Model) copiesForm(book models.Book) *form {
	return newForm("Copies of "+book.Title, func(v []string) tea.Cmd {
		n, err := strconv.Atoi(strings.TrimSpace(v[0]))
		upd := models.CopiesUpdate{Copies: n}
		if err != nil || shared.Validate(upd) != nil {
			m.setStatus("Copies must be a whole number of at least 0", true)
			return nil
		}
		m.form = nil
		lib, id := m.lib, book.ID
		return m.act("Copies updated successfully!", "", func(ctx context.Context) error {
			_, err := lib.UpdateBookCopies(ctx, id, upd.Copies)
			return err
		})
	}, fieldSpec{label: "Copies", value: strconv.Itoa(book.Copies)})
}
