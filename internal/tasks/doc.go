// Package tasks loads screen data from the library backend and runs long exports with
// real-time progress reporting.
//
// # Screen Loads
//
// Each screen's data comes from a [LoadFunc] wrapped in a [Resource]. A Resource keeps at
// most one load in flight: starting a load cancels the previous one, and a stale result is
// reported as [shared.ErrSuperseded] so a slow response can never overwrite a newer one.
//
// Screens that need several lists fetch them together with an errgroup and fail as a unit:
//
//   - [LoadBorrowSummary] : history, active loans and unpaid fines for one subscriber
//   - [LoadWallet] : balance and fines paid
//   - [LoadFineReport] : the admin fine collection screen
//   - [LoadAdminBooks] : one page of books plus its [DeletionLocks]
//
// # Exports
//
// [ExportCatalog] fetches every catalog page through a rate-limited worker pool and writes a
// single file plus export_manifest.json. Pages that fail are skipped and listed in the
// [ExportResult]. [ExportFines] writes the admin fine report the same way.
//
// # Progress Reporting
//
// Exports send [ProgressUpdate] values on an optional channel. Sends never block; updates
// are dropped when the receiver falls behind.
package tasks
