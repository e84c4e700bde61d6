package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchCatalog Phase = iota
	FetchPage
	FetchFines
	WriteExport
)

func (p Phase) String() string {
	switch p {
	case FetchCatalog:
		return "fetch_catalog"
	case FetchPage:
		return "fetch_page"
	case FetchFines:
		return "fetch_fines"
	case WriteExport:
		return "write_export"
	default:
		return ""
	}
}

// sendProgress sends without blocking; updates are dropped when nobody is keeping up.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchCatalogUpdate(genre string) ProgressUpdate {
	msg := "Fetching catalog..."
	if genre != "" {
		msg = fmt.Sprintf("Fetching %s books...", genre)
	}
	return ProgressUpdate{Phase: FetchCatalog, Step: 1, Total: 1, Message: msg}
}

func pageFetchedUpdate(step, total, page, books int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPage,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetched page %d (%d books)", page+1, books),
		Data:    page,
	}
}

func pageFailedUpdate(step, total, page int, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPage,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Failed to fetch page %d: %v", page+1, err),
		Data:    err,
	}
}

func fetchFinesUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: FetchFines, Step: 1, Total: 1, Message: "Fetching fine collections..."}
}

func writeExportUpdate(step, total int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteExport,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Writing %s", path),
		Data:    path,
	}
}
