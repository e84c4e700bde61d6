package models

// Book is a catalog entry.
//
// Different backend versions report availability under availableCopies or
// copiesAvailable; both are optional.
type Book struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublishedYear   int    `json:"publishedYear"`
	Genre           string `json:"genre"`
	Copies          int    `json:"copies"`
	AvailableCopies *int   `json:"availableCopies,omitempty"`
	CopiesAvailable *int   `json:"copiesAvailable,omitempty"`
}

// Available returns the count of copies that can be borrowed right now.
func (b *Book) Available() int {
	switch {
	case b == nil:
		return 0
	case b.AvailableCopies != nil:
		return *b.AvailableCopies
	case b.CopiesAvailable != nil:
		return *b.CopiesAvailable
	default:
		return b.Copies
	}
}

// CanBorrow is false when no copies are available.
func (b *Book) CanBorrow() bool { return b.Available() > 0 }

// Availability buckets a book's available copies for display.
type Availability string

const (
	AvailabilityHigh   Availability = "high"
	AvailabilityMedium Availability = "medium"
	AvailabilityLow    Availability = "low"
	AvailabilityNone   Availability = "none"
)

// Availability returns the display tier: more than 10 is high, more than 5 medium, any is low.
func (b *Book) Availability() Availability {
	switch n := b.Available(); {
	case n > 10:
		return AvailabilityHigh
	case n > 5:
		return AvailabilityMedium
	case n > 0:
		return AvailabilityLow
	default:
		return AvailabilityNone
	}
}

// BookInput is the admin form for creating or editing a book.
type BookInput struct {
	Title         string `json:"title" validate:"required,max=255"`
	Author        string `json:"author" validate:"required,max=255"`
	PublishedYear int    `json:"publishedYear" validate:"gte=0,lte=9999"`
	Genre         string `json:"genre" validate:"required,max=100"`
	Copies        int    `json:"copies" validate:"gte=0"`
}

// Input copies the editable fields of b.
func (b *Book) Input() BookInput {
	return BookInput{
		Title:         b.Title,
		Author:        b.Author,
		PublishedYear: b.PublishedYear,
		Genre:         b.Genre,
		Copies:        b.Copies,
	}
}
