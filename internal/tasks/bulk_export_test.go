package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/shelf/internal/formatter"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/shared"
	tu "github.com/desertthunder/shelf/internal/testing"
)

// flakyLibrary fails one catalog page and delegates everything else.
type flakyLibrary struct {
	services.Library
	failPage int
}

func (f *flakyLibrary) Books(ctx context.Context, page, size int) (*models.Page[models.Book], error) {
	if page == f.failPage {
		return nil, fmt.Errorf("%w: page unavailable", shared.ErrAPIRequest)
	}
	return f.Library.Books(ctx, page, size)
}

func exportBackend(t *testing.T) *tu.Backend {
	t.Helper()
	backend := tu.NewBackend(t)
	backend.AddUser(models.User{Username: "root", Role: models.RoleAdmin}, "pw")
	for i, title := range []string{"Godan", "Gora", "Nirmala", "Gaban", "Gitanjali"} {
		genre := "Fiction"
		if i == 4 {
			genre = "Poetry"
		}
		backend.AddBook(models.Book{Title: title, Author: "Various", Genre: genre, Copies: 1})
	}
	return backend
}

func fixedNow() time.Time { return time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC) }

func readManifest(t *testing.T, path string) formatter.Manifest {
	t.Helper()
	var m formatter.Manifest
	if err := json.Unmarshal([]byte(tu.MustReadFile(t, path)), &m); err != nil {
		t.Fatalf("invalid manifest: %v", err)
	}
	return m
}

func TestExportCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("All Pages", func(t *testing.T) {
		backend := exportBackend(t)
		c := client(t, backend, "root", "pw")
		dir := t.TempDir()
		prog := make(chan ProgressUpdate, 64)

		res, err := ExportCatalog(ctx, prog, c, ExportOpts{
			Format: formatter.FormatCSV, OutputDir: dir, PageSize: 2, RateLimit: 1000, Now: fixedNow,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Books != 5 || res.Pages != 3 || len(res.FailedPages) != 0 {
			t.Errorf("expected 5 books over 3 pages, got %+v", res)
		}

		path := filepath.Join(dir, "catalog.csv")
		tu.AssertFileExists(t, path)
		lines := strings.Split(strings.TrimSpace(tu.MustReadFile(t, path)), "\n")
		if len(lines) != 6 {
			t.Fatalf("expected header plus 5 rows, got %d", len(lines))
		}
		if !strings.Contains(lines[1], "Godan") || !strings.Contains(lines[5], "Gitanjali") {
			t.Errorf("expected page order to be kept, got %v", lines)
		}

		m := readManifest(t, res.ManifestPath)
		if m.Books != 5 || m.Format != formatter.FormatCSV || len(m.Files) != 1 {
			t.Errorf("unexpected manifest %+v", m)
		}
		if !m.GeneratedAt.Equal(fixedNow()) {
			t.Errorf("expected manifest time %v, got %v", fixedNow(), m.GeneratedAt)
		}

		close(prog)
		var wrote bool
		for u := range prog {
			if u.Phase == WriteExport {
				wrote = true
			}
		}
		if !wrote {
			t.Error("expected a write_export progress update")
		}
	})

	t.Run("Genre", func(t *testing.T) {
		backend := exportBackend(t)
		c := client(t, backend, "root", "pw")
		dir := t.TempDir()

		res, err := ExportCatalog(ctx, nil, c, ExportOpts{
			Format: formatter.FormatMarkdown, OutputDir: dir, Genre: "Poetry", RateLimit: 1000, Now: fixedNow,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Books != 1 {
			t.Errorf("expected 1 book, got %d", res.Books)
		}
		out := tu.MustReadFile(t, filepath.Join(dir, "catalog_poetry.md"))
		if !strings.Contains(out, "**Genre**: Poetry") {
			t.Errorf("expected genre header, got:\n%s", out)
		}
	})

	t.Run("Failed Page Is Skipped", func(t *testing.T) {
		backend := exportBackend(t)
		lib := &flakyLibrary{Library: client(t, backend, "root", "pw"), failPage: 1}
		dir := t.TempDir()

		res, err := ExportCatalog(ctx, nil, lib, ExportOpts{
			Format: formatter.FormatJSON, OutputDir: dir, PageSize: 2, NumWorkers: 2, RateLimit: 1000, Now: fixedNow,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.FailedPages) != 1 || res.FailedPages[0] != 1 || len(res.Errors) != 1 {
			t.Errorf("expected page 1 to fail, got %+v", res)
		}
		if res.Books != 3 {
			t.Errorf("expected 3 books from surviving pages, got %d", res.Books)
		}
		if m := readManifest(t, res.ManifestPath); len(m.FailedPages) != 1 {
			t.Errorf("expected failed page in manifest, got %+v", m)
		}
	})

	t.Run("First Page Failure", func(t *testing.T) {
		backend := exportBackend(t)
		lib := &flakyLibrary{Library: client(t, backend, "root", "pw"), failPage: 0}

		if _, err := ExportCatalog(ctx, nil, lib, ExportOpts{OutputDir: t.TempDir(), RateLimit: 1000}); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Nil Library", func(t *testing.T) {
		if _, err := ExportCatalog(ctx, nil, nil, ExportOpts{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		backend := exportBackend(t)
		c := client(t, backend, "root", "pw")
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := ExportCatalog(cctx, nil, c, ExportOpts{OutputDir: t.TempDir()}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestExportFines(t *testing.T) {
	ctx := context.Background()

	t.Run("Writes Report", func(t *testing.T) {
		backend := exportBackend(t)
		sub := backend.AddUser(models.User{Username: "asha", Role: models.RoleSubscriber, TotalFinesPaid: 40}, "pw")
		book, _ := backend.Book(102)
		now := backend.Now()
		backend.AddRecord(models.BorrowRecord{User: &sub, Book: &book, DueDate: models.Date{Time: now.AddDate(0, 0, 2)}})

		c := client(t, backend, "root", "pw")
		dir := t.TempDir()

		res, err := ExportFines(ctx, nil, c, ExportOpts{Format: formatter.FormatText, OutputDir: dir, Now: backend.Now})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.Files) != 1 || filepath.Base(res.Files[0]) != "fines.txt" {
			t.Errorf("unexpected files %v", res.Files)
		}
		out := tu.MustReadFile(t, res.Files[0])
		if !strings.Contains(out, "Total collected: ₹40") || !strings.Contains(out, "Active borrows:  1 (0 overdue)") {
			t.Errorf("unexpected report:\n%s", out)
		}
		tu.AssertFileExists(t, res.ManifestPath)
	})

	t.Run("Subscriber Forbidden", func(t *testing.T) {
		backend := exportBackend(t)
		backend.AddUser(models.User{Username: "asha", Role: models.RoleSubscriber}, "pw")
		c := client(t, backend, "asha", "pw")

		if _, err := ExportFines(ctx, nil, c, ExportOpts{OutputDir: t.TempDir()}); err == nil {
			t.Error("expected forbidden error")
		}
	})
}
