package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Lending terms. The backend is authoritative; these drive display only.
const (
	FineRatePerDay       Money = 5
	LoanPeriodDays             = 14
	InitialWalletBalance Money = 200
)

// dateLayouts are tried in order. Layouts without a zone are read in local time.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DisplayLayout renders dates day-first, e.g. 5/3/2024 for 5 March 2024.
const DisplayLayout = "2/1/2006"

// Date is a backend timestamp that may be a bare date, a zone-less datetime or RFC 3339.
type Date struct {
	time.Time
}

// ParseDate reads s using the accepted layouts.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return Date{t}, nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized date %q", s)
}

func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}

	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	h, m, s := d.Clock()
	if h == 0 && m == 0 && s == 0 && d.Nanosecond() == 0 {
		return json.Marshal(d.Format("2006-01-02"))
	}
	return json.Marshal(d.Format(time.RFC3339))
}

// Display formats the date for tables; zero dates render as "-".
func (d Date) Display() string {
	if d.IsZero() {
		return "-"
	}
	return d.Format(DisplayLayout)
}

// RecordStatus is the derived state of a [BorrowRecord].
type RecordStatus string

const (
	StatusActive   RecordStatus = "Active"
	StatusOverdue  RecordStatus = "Overdue"
	StatusReturned RecordStatus = "Returned"
)

// BorrowRecord is one loan of one book to one user.
type BorrowRecord struct {
	ID         int64  `json:"id"`
	User       *User  `json:"user"`
	Book       *Book  `json:"book"`
	BorrowDate Date   `json:"borrowDate"`
	DueDate    Date   `json:"dueDate"`
	ReturnDate *Date  `json:"returnDate"`
	FineAmount *Money `json:"fineAmount"`
	Returned   bool   `json:"returned"`
}

// Fine is the recorded fine, zero when missing and never negative.
func (r *BorrowRecord) Fine() Money {
	if r == nil || r.FineAmount == nil {
		return 0
	}
	return r.FineAmount.NonNegative()
}

// Status derives Returned, Overdue or Active at now.
func (r *BorrowRecord) Status(now time.Time) RecordStatus {
	switch {
	case r.Returned:
		return StatusReturned
	case !r.DueDate.IsZero() && now.After(r.DueDate.Time):
		return StatusOverdue
	default:
		return StatusActive
	}
}

// DaysOverdue counts started days past the due date for an unreturned loan.
func (r *BorrowRecord) DaysOverdue(now time.Time) int {
	if r.Returned || r.DueDate.IsZero() || !now.After(r.DueDate.Time) {
		return 0
	}
	return int(math.Ceil(now.Sub(r.DueDate.Time).Hours() / 24))
}

// PotentialFine estimates what an unreturned loan would owe if returned at now.
func (r *BorrowRecord) PotentialFine(now time.Time) Money {
	return Money(r.DaysOverdue(now)) * FineRatePerDay
}

// BookTitle is safe on records with a missing book.
func (r *BorrowRecord) BookTitle() string {
	if r.Book == nil {
		return ""
	}
	return r.Book.Title
}

// BookID returns 0 when the book is missing.
func (r *BorrowRecord) BookID() int64 {
	if r.Book == nil {
		return 0
	}
	return r.Book.ID
}

// Borrower is the borrowing user's display name.
func (r *BorrowRecord) Borrower() string {
	return r.User.DisplayName()
}

// ReturnDisplay renders the return date or "-".
func (r *BorrowRecord) ReturnDisplay() string {
	if r.ReturnDate == nil {
		return "-"
	}
	return r.ReturnDate.Display()
}

// SumFines totals the recorded fines of records.
func SumFines(records []BorrowRecord) Money {
	var total Money
	for i := range records {
		total += records[i].Fine()
	}
	return total
}
