package models

import "fmt"

// Page is one slice of a paginated listing: {content, totalPages, totalElements}.
type Page[T any] struct {
	Content       []T `json:"content"`
	TotalPages    int `json:"totalPages"`
	TotalElements int `json:"totalElements"`
	Number        int `json:"number"`
	Size          int `json:"size"`
}

// Normalize records the requested page and size, replaces missing content with
// an empty slice, and recomputes TotalPages as ceil(TotalElements / Size).
func (p *Page[T]) Normalize(number, size int) *Page[T] {
	if p.Content == nil {
		p.Content = []T{}
	}
	if p.TotalElements < 0 {
		p.TotalElements = 0
	}

	p.Number = max(number, 0)
	if size > 0 {
		p.Size = size
	}
	if p.Size <= 0 {
		p.Size = len(p.Content)
	}

	if p.Size > 0 {
		p.TotalPages = (p.TotalElements + p.Size - 1) / p.Size
	} else {
		p.TotalPages = 0
	}
	return p
}

func (p *Page[T]) HasPrev() bool { return p.Number > 0 }
func (p *Page[T]) HasNext() bool { return p.TotalPages > 0 && p.Number < p.TotalPages-1 }

// Prev and Next return the neighbouring page index, clamped to the valid range.
func (p *Page[T]) Prev() int { return ClampPage(p.Number-1, p.TotalPages) }
func (p *Page[T]) Next() int { return ClampPage(p.Number+1, p.TotalPages) }

// Range returns the 1-based positions of the first and last items on this page.
func (p *Page[T]) Range() (int, int) {
	if p.TotalElements == 0 {
		return 0, 0
	}
	first := min(p.Number*p.Size+1, p.TotalElements)
	last := min((p.Number+1)*p.Size, p.TotalElements)
	return first, last
}

// Summary renders "Page x of y • a-b of N items".
func (p *Page[T]) Summary() string {
	current := 0
	if p.TotalPages > 0 {
		current = p.Number + 1
	}
	s := fmt.Sprintf("Page %d of %d", current, p.TotalPages)
	if p.TotalElements > 0 {
		first, last := p.Range()
		s += fmt.Sprintf(" • %d-%d of %d items", first, last, p.TotalElements)
	}
	return s
}

// ClampPage keeps n within [0, totalPages-1], or 0 when there are no pages.
func ClampPage(n, totalPages int) int {
	return max(0, min(n, totalPages-1))
}
