package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/shared"
	"golang.org/x/sync/errgroup"
)

// LoadFunc fetches one screen's data.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Resource runs a [LoadFunc] for a screen, keeping at most one load in flight.
//
// Starting a load cancels the previous one, and a load that finishes after a newer one has
// started reports [shared.ErrSuperseded] instead of its value. Close cancels everything and
// makes later loads fail the same way.
type Resource[T any] struct {
	load LoadFunc[T]

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	closed bool
}

// NewResource wraps load.
func NewResource[T any](load LoadFunc[T]) *Resource[T] {
	return &Resource[T]{load: load}
}

// Load runs the load function under a context derived from ctx.
func (r *Resource[T]) Load(ctx context.Context) (T, error) {
	return r.LoadWith(ctx, r.load)
}

// LoadWith runs load in place of the resource's own function. Screens whose query changes
// between loads use it so every load still supersedes the last.
func (r *Resource[T]) LoadWith(ctx context.Context, load LoadFunc[T]) (T, error) {
	var zero T
	if load == nil {
		return zero, fmt.Errorf("%w: no load function", shared.ErrInvalidArgument)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return zero, shared.ErrSuperseded
	}
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.seq++
	seq := r.seq
	r.cancel = cancel
	r.mu.Unlock()

	v, err := load(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || seq != r.seq {
		return zero, shared.ErrSuperseded
	}
	cancel()
	r.cancel = nil
	return v, err
}

// Close cancels the in-flight load, if any.
func (r *Resource[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// CatalogQuery selects one page of the catalog. An empty genre or "all" lists every book.
type CatalogQuery struct {
	Genre string
	Page  int
	Size  int
}

// AllGenres is the filter value that disables genre filtering.
const AllGenres = "all"

// Filtered reports whether q narrows the catalog to one genre.
func (q CatalogQuery) Filtered() bool { return q.Genre != "" && q.Genre != AllGenres }

// LoadCatalog fetches one page of books.
func LoadCatalog(ctx context.Context, lib services.Library, q CatalogQuery) (*models.Page[models.Book], error) {
	if q.Filtered() {
		return lib.BooksByGenre(ctx, q.Genre, q.Page, q.Size)
	}
	return lib.Books(ctx, q.Page, q.Size)
}

// CatalogScreen is everything the catalog shows: one page, the genre filter options and the
// books the viewer currently has out.
type CatalogScreen struct {
	Page     *models.Page[models.Book]
	Genres   []string
	Borrowed map[int64]bool
}

// LoadCatalogScreen fetches the catalog page and genres together. A non-zero userID also loads
// that subscriber's active loans so the screen can offer returns.
func LoadCatalogScreen(ctx context.Context, lib services.Library, q CatalogQuery, userID int64) (*CatalogScreen, error) {
	out := &CatalogScreen{Borrowed: map[int64]bool{}}
	var active []models.BorrowRecord
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.Page, err = LoadCatalog(gctx, lib, q)
		return err
	})
	g.Go(func() (err error) {
		out.Genres, err = lib.Genres(gctx)
		return err
	})
	if userID != 0 {
		g.Go(func() (err error) {
			active, err = lib.ActiveBorrows(gctx, userID)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range active {
		if id := active[i].BookID(); id != 0 {
			out.Borrowed[id] = true
		}
	}
	return out, nil
}

// LoadBorrowSummary fetches a subscriber's history, active loans and unpaid fines together.
// Any failure fails the whole summary.
func LoadBorrowSummary(ctx context.Context, lib services.Library, userID int64) (*models.BorrowSummary, error) {
	out := &models.BorrowSummary{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.History, err = lib.History(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Active, err = lib.ActiveBorrows(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Unpaid, err = lib.UnpaidFines(ctx, userID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadFineReport fetches the admin fine totals, unpaid fines and active loans together. The
// collected total is never negative.
func LoadFineReport(ctx context.Context, lib services.Library, now time.Time) (*models.FineReport, error) {
	out := &models.FineReport{GeneratedAt: now}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.TotalCollected, err = lib.AdminTotalFines(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.Unpaid, err = lib.AdminUnpaidFines(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.Active, err = lib.AdminActiveBorrows(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.TotalCollected = out.TotalCollected.NonNegative()
	return out, nil
}

// LoadWallet fetches a subscriber's balance and fines paid together. Fines paid is never
// negative.
func LoadWallet(ctx context.Context, lib services.Library, userID int64) (*models.WalletSummary, error) {
	out := &models.WalletSummary{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.Balance, err = lib.WalletBalance(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.FinesPaid, err = lib.FinesPaid(ctx, userID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.FinesPaid = out.FinesPaid.NonNegative()
	return out, nil
}

// DeletionLocks is the set of book ids that have an active loan or an unpaid fine.
//
// It is a snapshot: the backend still rejects deletes it was not told about.
type DeletionLocks map[int64]struct{}

// Locked reports whether bookID may not be deleted.
func (l DeletionLocks) Locked(bookID int64) bool {
	_, ok := l[bookID]
	return ok
}

// Check returns [shared.ErrDeletionLocked] when bookID is locked.
func (l DeletionLocks) Check(bookID int64) error {
	if l.Locked(bookID) {
		return fmt.Errorf("%w: book %d", shared.ErrDeletionLocked, bookID)
	}
	return nil
}

// LoadDeletionLocks fetches the admin active-borrow and unpaid-fine lists together and
// collects their book ids.
func LoadDeletionLocks(ctx context.Context, lib services.Library) (DeletionLocks, error) {
	var active, unpaid []models.BorrowRecord
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		active, err = lib.AdminActiveBorrows(gctx)
		return err
	})
	g.Go(func() (err error) {
		unpaid, err = lib.AdminUnpaidFines(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	locks := make(DeletionLocks, len(active)+len(unpaid))
	for _, records := range [][]models.BorrowRecord{active, unpaid} {
		for i := range records {
			if id := records[i].BookID(); id != 0 {
				locks[id] = struct{}{}
			}
		}
	}
	return locks, nil
}

// AdminBooks is the admin book screen: one page of books plus the deletion locks.
type AdminBooks struct {
	Page  *models.Page[models.Book]
	Locks DeletionLocks
}

// LoadAdminBooks fetches the admin book page and its deletion locks together.
func LoadAdminBooks(ctx context.Context, lib services.Library, page, size int) (*AdminBooks, error) {
	out := &AdminBooks{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.Page, err = lib.Books(gctx, page, size)
		return err
	})
	g.Go(func() (err error) {
		out.Locks, err = LoadDeletionLocks(gctx, lib)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
