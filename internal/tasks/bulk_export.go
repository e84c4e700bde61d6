package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/desertthunder/shelf/internal/formatter"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/gosimple/slug"
	"golang.org/x/time/rate"
)

// ExportOpts configures [ExportCatalog] and [ExportFines].
type ExportOpts struct {
	Format     formatter.Format // json, csv, markdown, txt
	OutputDir  string           // default: shelf_export_{epoch}
	Genre      string           // catalog only; empty or "all" exports everything
	PageSize   int              // catalog page size (default: 50)
	NumWorkers int              // concurrent page fetchers (default: 4, max: 10)
	RateLimit  float64          // page requests per second (default: 5)
	Now        func() time.Time
}

func (o *ExportOpts) defaults() {
	if o.Format == "" {
		o.Format = formatter.FormatJSON
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.OutputDir == "" {
		o.OutputDir = fmt.Sprintf("shelf_export_%d", o.Now().Unix())
	}
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.NumWorkers <= 0 {
		o.NumWorkers = 4
	}
	if o.NumWorkers > 10 {
		o.NumWorkers = 10
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 5
	}
}

// ExportResult describes a finished export.
type ExportResult struct {
	Files        []string
	ManifestPath string
	Books        int
	Pages        int
	FailedPages  []int
	Errors       []error
}

type pageResult struct {
	number int
	books  []models.Book
	err    error
}

// ExportCatalog fetches every catalog page with a rate-limited worker pool and writes them as
// one file plus a manifest.
//
// Pages that fail are recorded in the result and skipped; the export fails only when the first
// page cannot be read or the files cannot be written.
func ExportCatalog(ctx context.Context, prog chan<- ProgressUpdate, lib services.Library, opts ExportOpts) (*ExportResult, error) {
	if lib == nil {
		return nil, fmt.Errorf("%w: library client not initialized", shared.ErrServiceUnavailable)
	}
	opts.defaults()

	q := CatalogQuery{Genre: opts.Genre, Size: opts.PageSize}
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	sendProgress(prog, fetchCatalogUpdate(opts.Genre))
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}
	first, err := LoadCatalog(ctx, lib, q)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}

	total := max(first.TotalPages, 1)
	pages := make([][]models.Book, total)
	pages[0] = first.Content
	result := &ExportResult{Pages: total}
	sendProgress(prog, pageFetchedUpdate(1, total, 0, len(first.Content)))

	jobs := make(chan int, total)
	results := make(chan pageResult, total)

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go pageWorker(ctx, &wg, lib, limiter, q, jobs, results)
	}

	for n := 1; n < total; n++ {
		jobs <- n
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 1
	for res := range results {
		completed++
		if res.err != nil {
			result.FailedPages = append(result.FailedPages, res.number)
			result.Errors = append(result.Errors, res.err)
			sendProgress(prog, pageFailedUpdate(completed, total, res.number, res.err))
			continue
		}
		pages[res.number] = res.books
		sendProgress(prog, pageFetchedUpdate(completed, total, res.number, len(res.books)))
	}
	slices.Sort(result.FailedPages)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	export := &models.CatalogExport{GeneratedAt: opts.Now()}
	if q.Filtered() {
		export.Genre = q.Genre
	}
	for _, books := range pages {
		export.Books = append(export.Books, books...)
	}
	if export.Books == nil {
		export.Books = []models.Book{}
	}
	result.Books = len(export.Books)

	data, err := formatter.RenderCatalog(export, opts.Format)
	if err != nil {
		return result, err
	}

	name := "catalog"
	if export.Genre != "" {
		name += "_" + slug.Make(export.Genre)
	}
	if err := writeExport(prog, opts, result, name, data); err != nil {
		return result, err
	}

	manifest := &formatter.Manifest{
		GeneratedAt: export.GeneratedAt,
		Format:      opts.Format,
		Files:       result.Files,
		Books:       result.Books,
		Pages:       result.Pages,
		FailedPages: result.FailedPages,
	}
	return result, writeManifest(opts, result, manifest)
}

func pageWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	lib services.Library,
	limiter *rate.Limiter,
	q CatalogQuery,
	jobs <-chan int,
	results chan<- pageResult,
) {
	defer wg.Done()

	for n := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			results <- pageResult{number: n, err: err}
			continue
		}

		pq := q
		pq.Page = n
		page, err := LoadCatalog(ctx, lib, pq)
		if err != nil {
			results <- pageResult{number: n, err: fmt.Errorf("page %d: %w", n+1, err)}
			continue
		}
		results <- pageResult{number: n, books: page.Content}
	}
}

// ExportFines loads the admin fine report and writes it with a manifest.
func ExportFines(ctx context.Context, prog chan<- ProgressUpdate, lib services.Library, opts ExportOpts) (*ExportResult, error) {
	if lib == nil {
		return nil, fmt.Errorf("%w: library client not initialized", shared.ErrServiceUnavailable)
	}
	opts.defaults()

	sendProgress(prog, fetchFinesUpdate())
	report, err := LoadFineReport(ctx, lib, opts.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fine collections: %w", err)
	}

	data, err := formatter.RenderFines(report, opts.Format)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{}
	if err := writeExport(prog, opts, result, "fines", data); err != nil {
		return result, err
	}

	manifest := &formatter.Manifest{GeneratedAt: report.GeneratedAt, Format: opts.Format, Files: result.Files}
	return result, writeManifest(opts, result, manifest)
}

func writeExport(prog chan<- ProgressUpdate, opts ExportOpts, result *ExportResult, name string, data []byte) error {
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(opts.OutputDir, name+opts.Format.Extension())
	sendProgress(prog, writeExportUpdate(1, 2, path))
	if err := formatter.WriteFile(path, data); err != nil {
		return err
	}
	result.Files = append(result.Files, path)
	return nil
}

func writeManifest(opts ExportOpts, result *ExportResult, m *formatter.Manifest) error {
	path := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(m, path); err != nil {
		return fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = path
	return nil
}
