package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/models"
)

var (
	_ list.Item = bookItem{}
	_ list.Item = recordItem{}
	_ list.Item = loanItem{}
	_ list.Item = userItem{}
	_ list.Item = routeItem{}
)

// bookItem wraps [models.Book] to implement [list.Item].
type bookItem struct {
	book     models.Book
	borrowed bool // the viewer has it out
	locked   bool // admin view: deletion is blocked
}

func (i bookItem) FilterValue() string { return i.book.Title + " " + i.book.Author }
func (i bookItem) Title() string       { return i.book.Title }
func (i bookItem) Description() string {
	desc := fmt.Sprintf("%s • %d • %s • %d of %d available",
		i.book.Author, i.book.PublishedYear, i.book.Genre, i.book.Available(), i.book.Copies)
	if i.borrowed {
		desc += " • borrowed"
	}
	if i.locked {
		desc += " • locked"
	}
	return desc
}

// recordItem is one of the viewer's own loans.
type recordItem struct {
	record models.BorrowRecord
	unpaid bool
	now    time.Time
}

func (i recordItem) FilterValue() string { return i.record.BookTitle() }
func (i recordItem) Title() string       { return i.record.BookTitle() }
func (i recordItem) Description() string {
	desc := fmt.Sprintf("Borrowed %s • Due %s • Returned %s • %s",
		i.record.BorrowDate.Display(), i.record.DueDate.Display(), i.record.ReturnDisplay(), i.record.Status(i.now))
	if fine := i.record.Fine(); fine > 0 {
		desc += fmt.Sprintf(" • Fine %s", fine)
		if i.unpaid {
			desc += " (unpaid)"
		}
	}
	return desc
}

// loanItem is a loan on the admin fine report, either an unpaid fine or an active borrow.
type loanItem struct {
	record models.BorrowRecord
	unpaid bool
	now    time.Time
}

func (i loanItem) FilterValue() string { return i.record.Borrower() + " " + i.record.BookTitle() }
func (i loanItem) Title() string {
	return fmt.Sprintf("%s • %s", i.record.Borrower(), i.record.BookTitle())
}
func (i loanItem) Description() string {
	if i.unpaid {
		return fmt.Sprintf("Unpaid fine %s • Due %s • Returned %s", i.record.Fine(), i.record.DueDate.Display(), i.record.ReturnDisplay())
	}
	days := i.record.DaysOverdue(i.now)
	if days == 0 {
		return fmt.Sprintf("Active • Due %s", i.record.DueDate.Display())
	}
	return fmt.Sprintf("Overdue %d days • Due %s • Potential fine %s", days, i.record.DueDate.Display(), i.record.PotentialFine(i.now))
}

// userItem wraps [models.User] to implement [list.Item].
type userItem struct {
	user models.User
}

func (i userItem) FilterValue() string { return i.user.Username + " " + i.user.Name }
func (i userItem) Title() string       { return i.user.DisplayName() }
func (i userItem) Description() string {
	return fmt.Sprintf("@%s • %s • wallet %s", i.user.Username, i.user.Email, i.user.WalletBalance)
}

// routeItem is an entry in the navigation menu.
type routeItem struct {
	route auth.Route
}

func (i routeItem) FilterValue() string { return i.route.Title }
func (i routeItem) Title() string       { return i.route.Title }
func (i routeItem) Description() string { return i.route.Path }
