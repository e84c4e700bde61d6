package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/shared"
	tu "github.com/desertthunder/shelf/internal/testing"
)

func intPtr(n int) *int { return &n }

func money(m models.Money) *models.Money { return &m }

func sampleBooks() []models.Book {
	return []models.Book{
		{ID: 1, Title: "Godan", Author: "Premchand", PublishedYear: 1936, Genre: "Fiction", Copies: 4, AvailableCopies: intPtr(2)},
		{ID: 2, Title: "Gitanjali", Author: "Tagore", PublishedYear: 1910, Genre: "Poetry", Copies: 3},
	}
}

func sampleReport() *models.FineReport {
	now := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	asha := &models.User{ID: 1, Username: "asha", Name: "Asha"}
	ravi := &models.User{ID: 2, Username: "ravi"}

	return &models.FineReport{
		GeneratedAt:    now,
		TotalCollected: 45,
		Unpaid: []models.BorrowRecord{
			{ID: 10, User: asha, Book: &models.Book{Title: "Godan"}, DueDate: models.Date{Time: now.AddDate(0, 0, -10)}, Returned: true, FineAmount: money(20)},
			{ID: 11, User: ravi, Book: &models.Book{Title: "A | B"}, DueDate: models.Date{Time: now.AddDate(0, 0, -5)}, Returned: true, FineAmount: money(12.5)},
		},
		Active: []models.BorrowRecord{
			{ID: 12, User: ravi, Book: &models.Book{Title: "Gitanjali"}, DueDate: models.Date{Time: now.Add(-50 * time.Hour)}},
			{ID: 13, User: asha, Book: &models.Book{Title: "Gora"}, DueDate: models.Date{Time: now.AddDate(0, 0, 3)}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in       string
		expected Format
	}{
		{"", FormatJSON},
		{"JSON", FormatJSON},
		{"csv", FormatCSV},
		{"md", FormatMarkdown},
		{"markdown", FormatMarkdown},
		{"text", FormatText},
		{"txt", FormatText},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.expected {
			t.Errorf("ParseFormat(%q): expected %s, got %s (%v)", tt.in, tt.expected, got, err)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidFlag) {
		t.Errorf("expected ErrInvalidFlag, got %v", err)
	}
	if FormatMarkdown.Extension() != ".md" || FormatCSV.Extension() != ".csv" {
		t.Error("unexpected extensions")
	}
}

func TestCatalog(t *testing.T) {
	export := &models.CatalogExport{GeneratedAt: time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), Genre: "Fiction", Books: sampleBooks()}

	t.Run("CSV", func(t *testing.T) {
		data, err := BooksToCSV(export.Books)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header plus 2 rows, got %d", len(lines))
		}
		if lines[0] != "ID,Title,Author,Year,Genre,Copies,Available" {
			t.Errorf("unexpected header %q", lines[0])
		}
		if lines[1] != "1,Godan,Premchand,1936,Fiction,4,2" {
			t.Errorf("unexpected row %q", lines[1])
		}
		if lines[2] != "2,Gitanjali,Tagore,1910,Poetry,3,3" {
			t.Errorf("availability should fall back to copies, got %q", lines[2])
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		out := string(CatalogToMarkdown(export))
		for _, want := range []string{"# Catalog", "**Genre**: Fiction", "**Books**: 2", "| 1 | Godan | Premchand | 1936 | Fiction | 2/4 |"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("Text", func(t *testing.T) {
		out := string(CatalogToText(export))
		if !strings.Contains(out, "2. Tagore - Gitanjali (1910) [3 available]") {
			t.Errorf("unexpected text output:\n%s", out)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := RenderCatalog(export, FormatJSON)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var decoded models.CatalogExport
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded.Books) != 2 || decoded.Genre != "Fiction" {
			t.Errorf("unexpected decoded export %+v", decoded)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := RenderCatalog(export, Format("xml")); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestFines(t *testing.T) {
	report := sampleReport()

	t.Run("Totals", func(t *testing.T) {
		if report.UnpaidTotal() != 32.5 {
			t.Errorf("expected unpaid total 32.5, got %v", report.UnpaidTotal())
		}
		if report.Overdue() != 1 {
			t.Errorf("expected 1 overdue, got %d", report.Overdue())
		}
		if report.PotentialTotal() != 15 {
			t.Errorf("expected potential total 15, got %v", report.PotentialTotal())
		}
	})

	t.Run("CSV", func(t *testing.T) {
		data, err := FinesToCSV(report)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := string(data)
		if !strings.Contains(out, "unpaid,10,Asha,Godan") {
			t.Errorf("expected unpaid row, got:\n%s", out)
		}
		if !strings.Contains(out, "active,12,ravi,Gitanjali") || !strings.Contains(out, ",3,₹15") {
			t.Errorf("expected active row with 3 days and ₹15, got:\n%s", out)
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		out := string(FinesToMarkdown(report))
		for _, want := range []string{"**Total collected**: ₹45", "₹32.50 across 2 records", `A \| B`, "| ravi | Gitanjali |"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("Markdown Empty", func(t *testing.T) {
		out := string(FinesToMarkdown(&models.FineReport{}))
		if !strings.Contains(out, "No unpaid fines.") || !strings.Contains(out, "No active borrows.") {
			t.Errorf("expected empty-state text, got:\n%s", out)
		}
	})

	t.Run("Text", func(t *testing.T) {
		out := string(FinesToText(report))
		if !strings.Contains(out, "Total collected: ₹45") || !strings.Contains(out, "Active borrows:  2 (1 overdue)") {
			t.Errorf("unexpected text output:\n%s", out)
		}
	})

	t.Run("Negative Collected Clamped", func(t *testing.T) {
		out := string(FinesToText(&models.FineReport{TotalCollected: -5}))
		if !strings.Contains(out, "Total collected: ₹0") {
			t.Errorf("expected clamped total, got:\n%s", out)
		}
	})
}

func TestTables(t *testing.T) {
	t.Run("Books", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteBookTable(&buf, sampleBooks()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.HasPrefix(buf.String(), "ID") || !strings.Contains(buf.String(), "2/4") {
			t.Errorf("unexpected table:\n%s", buf.String())
		}
	})

	t.Run("Records", func(t *testing.T) {
		var buf bytes.Buffer
		report := sampleReport()
		records := append(report.Unpaid, report.Active...)
		if err := WriteRecordTable(&buf, records, report.GeneratedAt); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := buf.String()
		for _, want := range []string{"Returned", "Overdue", "Active"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected status %s in:\n%s", want, out)
			}
		}
	})

	t.Run("Users", func(t *testing.T) {
		var buf bytes.Buffer
		WriteUserTable(&buf, []models.User{{ID: 1, Username: "asha", Role: models.RoleSubscriber, WalletBalance: 200}})
		if !strings.Contains(buf.String(), "SUBSCRIBER") || !strings.Contains(buf.String(), "₹200") {
			t.Errorf("unexpected table:\n%s", buf.String())
		}
	})

	t.Run("Failing Writer", func(t *testing.T) {
		if err := WriteBookTable(&tu.FWriter{}, sampleBooks()); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestWriters(t *testing.T) {
	t.Run("WriteFile Creates Directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "catalog.csv")
		if err := WriteFile(path, []byte("x")); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
	})

	t.Run("WriteManifest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "manifest.json")
		m := &Manifest{Format: FormatCSV, Files: []string{"a.csv"}, Books: 12, Pages: 2, FailedPages: []int{1}}

		if err := WriteManifest(m, path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var decoded Manifest
		if err := json.Unmarshal([]byte(tu.MustReadFile(t, path)), &decoded); err != nil {
			t.Fatalf("invalid manifest: %v", err)
		}
		if decoded.Books != 12 || decoded.Format != FormatCSV || len(decoded.FailedPages) != 1 {
			t.Errorf("unexpected manifest %+v", decoded)
		}
	})

	t.Run("WriteFile Fails On Directory", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.Mkdir(filepath.Join(dir, "taken"), 0755); err != nil {
			t.Fatal(err)
		}
		if err := WriteFile(filepath.Join(dir, "taken"), []byte("x")); err == nil {
			t.Error("expected error writing over a directory")
		}
	})
}
