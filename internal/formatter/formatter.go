// package formatter renders catalog and fine data as CSV, Markdown, plain text and JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/shared"
)

// Format is an export file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// Formats lists the accepted export formats.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// ParseFormat accepts a format name or a common alias (md, text).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q (use json, csv, markdown or txt)", shared.ErrInvalidFlag, s)
	}
}

// Extension is the file extension for f.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return ".md"
	}
	return "." + string(f)
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func id(n int64) string { return strconv.FormatInt(n, 10) }

// BooksToCSV converts books to CSV with columns: ID, Title, Author, Year, Genre, Copies, Available
func BooksToCSV(books []models.Book) ([]byte, error) {
	rows := [][]string{{"ID", "Title", "Author", "Year", "Genre", "Copies", "Available"}}
	for i := range books {
		b := &books[i]
		rows = append(rows, []string{
			id(b.ID),
			b.Title,
			b.Author,
			strconv.Itoa(b.PublishedYear),
			b.Genre,
			strconv.Itoa(b.Copies),
			strconv.Itoa(b.Available()),
		})
	}
	return writeCSV(rows)
}

// CatalogToMarkdown renders an export as a Markdown table.
func CatalogToMarkdown(export *models.CatalogExport) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Catalog\n\n")
	if export.Genre != "" {
		fmt.Fprintf(&buf, "**Genre**: %s\n", export.Genre)
	}
	fmt.Fprintf(&buf, "**Books**: %d\n", len(export.Books))
	fmt.Fprintf(&buf, "**Generated**: %s\n\n", export.GeneratedAt.Format(time.RFC3339))

	buf.WriteString("| # | Title | Author | Year | Genre | Available |\n")
	buf.WriteString("| --- | --- | --- | --- | --- | --- |\n")
	for i := range export.Books {
		b := &export.Books[i]
		fmt.Fprintf(&buf, "| %d | %s | %s | %d | %s | %d/%d |\n",
			i+1, escapeCell(b.Title), escapeCell(b.Author), b.PublishedYear, escapeCell(b.Genre), b.Available(), b.Copies)
	}
	return buf.Bytes()
}

// CatalogToText renders an export as a numbered list.
func CatalogToText(export *models.CatalogExport) []byte {
	var buf bytes.Buffer

	buf.WriteString("Catalog\n")
	if export.Genre != "" {
		fmt.Fprintf(&buf, "Genre: %s\n", export.Genre)
	}
	fmt.Fprintf(&buf, "Books: %d\n\n", len(export.Books))

	for i := range export.Books {
		b := &export.Books[i]
		fmt.Fprintf(&buf, "%d. %s - %s (%d) [%d available]\n", i+1, b.Author, b.Title, b.PublishedYear, b.Available())
	}
	return buf.Bytes()
}

// FinesToCSV converts unpaid fines and active loans to one CSV, distinguished by the Kind column.
func FinesToCSV(report *models.FineReport) ([]byte, error) {
	rows := [][]string{{"Kind", "Record", "Borrower", "Book", "Due", "Returned", "Days Overdue", "Amount"}}
	for i := range report.Unpaid {
		r := &report.Unpaid[i]
		rows = append(rows, []string{
			"unpaid", id(r.ID), r.Borrower(), r.BookTitle(), r.DueDate.Display(), r.ReturnDisplay(), "", r.Fine().String(),
		})
	}
	for i := range report.Active {
		r := &report.Active[i]
		rows = append(rows, []string{
			"active", id(r.ID), r.Borrower(), r.BookTitle(), r.DueDate.Display(), "-",
			strconv.Itoa(r.DaysOverdue(report.GeneratedAt)), r.PotentialFine(report.GeneratedAt).String(),
		})
	}
	return writeCSV(rows)
}

// FinesToMarkdown renders the fine report with its totals and both tables.
func FinesToMarkdown(report *models.FineReport) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Fine Collections\n\n")
	fmt.Fprintf(&buf, "- **Total collected**: %s\n", report.TotalCollected.NonNegative())
	fmt.Fprintf(&buf, "- **Unpaid fines**: %s across %d records\n", report.UnpaidTotal(), len(report.Unpaid))
	fmt.Fprintf(&buf, "- **Active borrows**: %d (%d overdue)\n\n", len(report.Active), report.Overdue())

	buf.WriteString("## Unpaid Fines\n\n")
	if len(report.Unpaid) == 0 {
		buf.WriteString("No unpaid fines.\n\n")
	} else {
		buf.WriteString("| Borrower | Book | Due | Returned | Fine |\n| --- | --- | --- | --- | --- |\n")
		for i := range report.Unpaid {
			r := &report.Unpaid[i]
			fmt.Fprintf(&buf, "| %s | %s | %s | %s | %s |\n",
				escapeCell(r.Borrower()), escapeCell(r.BookTitle()), r.DueDate.Display(), r.ReturnDisplay(), r.Fine())
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Active Borrows\n\n")
	if len(report.Active) == 0 {
		buf.WriteString("No active borrows.\n")
	} else {
		buf.WriteString("| Borrower | Book | Due | Days Overdue | Potential Fine |\n| --- | --- | --- | --- | --- |\n")
		for i := range report.Active {
			r := &report.Active[i]
			fmt.Fprintf(&buf, "| %s | %s | %s | %d | %s |\n",
				escapeCell(r.Borrower()), escapeCell(r.BookTitle()), r.DueDate.Display(),
				r.DaysOverdue(report.GeneratedAt), r.PotentialFine(report.GeneratedAt))
		}
	}
	return buf.Bytes()
}

// FinesToText renders the fine report for a terminal.
func FinesToText(report *models.FineReport) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Total collected: %s\n", report.TotalCollected.NonNegative())
	fmt.Fprintf(&buf, "Unpaid fines:    %s (%d)\n", report.UnpaidTotal(), len(report.Unpaid))
	fmt.Fprintf(&buf, "Active borrows:  %d (%d overdue)\n\n", len(report.Active), report.Overdue())

	if len(report.Unpaid) > 0 {
		buf.WriteString("Unpaid fines\n")
		WriteFineTable(&buf, report.Unpaid)
		buf.WriteString("\n")
	}
	if len(report.Active) > 0 {
		buf.WriteString("Active borrows\n")
		WriteActiveTable(&buf, report.Active, report.GeneratedAt)
	}
	return buf.Bytes()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// WriteBookTable writes an aligned catalog table.
func WriteBookTable(w io.Writer, books []models.Book) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tYEAR\tGENRE\tAVAILABLE")
	for i := range books {
		b := &books[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d/%d\n", b.ID, b.Title, b.Author, b.PublishedYear, b.Genre, b.Available(), b.Copies)
	}
	return tw.Flush()
}

// WriteRecordTable writes borrow records with their status at now.
func WriteRecordTable(w io.Writer, records []models.BorrowRecord, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBOOK\tBORROWED\tDUE\tRETURNED\tFINE\tSTATUS")
	for i := range records {
		r := &records[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.BookTitle(), r.BorrowDate.Display(), r.DueDate.Display(), r.ReturnDisplay(), r.Fine(), r.Status(now))
	}
	return tw.Flush()
}

// WriteFineTable writes unpaid fine records.
func WriteFineTable(w io.Writer, records []models.BorrowRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tBORROWER\tBOOK\tDUE\tRETURNED\tFINE")
	for i := range records {
		r := &records[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Borrower(), r.BookTitle(), r.DueDate.Display(), r.ReturnDisplay(), r.Fine())
	}
	return tw.Flush()
}

// WriteActiveTable writes unreturned loans with days overdue and the potential fine at now.
func WriteActiveTable(w io.Writer, records []models.BorrowRecord, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tBORROWER\tBOOK\tBORROWED\tDUE\tOVERDUE\tPOTENTIAL")
	for i := range records {
		r := &records[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Borrower(), r.BookTitle(), r.BorrowDate.Display(), r.DueDate.Display(), r.DaysOverdue(now), r.PotentialFine(now))
	}
	return tw.Flush()
}

// WriteUserTable writes accounts.
func WriteUserTable(w io.Writer, users []models.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tEMAIL\tROLE\tWALLET")
	for i := range users {
		u := &users[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Name, u.Email, u.Role, u.WalletBalance)
	}
	return tw.Flush()
}

// RenderCatalog encodes export in format.
func RenderCatalog(export *models.CatalogExport, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return BooksToCSV(export.Books)
	case FormatMarkdown:
		return CatalogToMarkdown(export), nil
	case FormatText:
		return CatalogToText(export), nil
	case FormatJSON:
		return shared.MarshalJSON(export, true)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", shared.ErrInvalidFlag, format)
	}
}

// RenderFines encodes report in format.
func RenderFines(report *models.FineReport, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return FinesToCSV(report)
	case FormatMarkdown:
		return FinesToMarkdown(report), nil
	case FormatText:
		return FinesToText(report), nil
	case FormatJSON:
		return shared.MarshalJSON(report, true)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", shared.ErrInvalidFlag, format)
	}
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Manifest summarizes an export run.
type Manifest struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Format      Format    `json:"format"`
	Files       []string  `json:"files"`
	Books       int       `json:"books"`
	Pages       int       `json:"pages"`
	FailedPages []int     `json:"failedPages,omitempty"`
}

// WriteManifest writes m as indented JSON to path.
func WriteManifest(m *Manifest, path string) error {
	data, err := shared.MarshalJSON(m, true)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return WriteFile(path, data)
}
