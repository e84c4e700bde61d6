package models

import "time"

// BorrowSummary is a subscriber's loans, as shown on the borrow history screen.
type BorrowSummary struct {
	History []BorrowRecord `json:"history"`
	Active  []BorrowRecord `json:"active"`
	Unpaid  []BorrowRecord `json:"unpaidFines"`
}

// UnpaidTotal sums the outstanding fines.
func (s *BorrowSummary) UnpaidTotal() Money { return SumFines(s.Unpaid) }

// FineReport is the admin view of fines: collected so far, outstanding, and what
// unreturned loans would owe today.
type FineReport struct {
	GeneratedAt    time.Time      `json:"generatedAt"`
	TotalCollected Money          `json:"totalCollected"`
	Unpaid         []BorrowRecord `json:"unpaidFines"`
	Active         []BorrowRecord `json:"activeBorrows"`
}

// UnpaidTotal sums the recorded fines on unpaid records.
func (r *FineReport) UnpaidTotal() Money { return SumFines(r.Unpaid) }

// PotentialTotal sums the potential fines of active loans at GeneratedAt.
func (r *FineReport) PotentialTotal() Money {
	var total Money
	for i := range r.Active {
		total += r.Active[i].PotentialFine(r.GeneratedAt)
	}
	return total
}

// Overdue counts active loans past their due date at GeneratedAt.
func (r *FineReport) Overdue() int {
	n := 0
	for i := range r.Active {
		if r.Active[i].Status(r.GeneratedAt) == StatusOverdue {
			n++
		}
	}
	return n
}

// WalletSummary is a subscriber's balance and lifetime fines.
type WalletSummary struct {
	Balance   Money `json:"walletBalance"`
	FinesPaid Money `json:"totalFinesPaid"`
}

// CatalogExport is a snapshot of the catalog written by the export command.
type CatalogExport struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Genre       string    `json:"genre,omitempty"`
	Books       []Book    `json:"books"`
}
