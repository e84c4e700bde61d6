package main

import (
	"context"
	"sync"

	"github.com/desertthunder/shelf/internal/formatter"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/tasks"
	"github.com/urfave/cli/v3"
)

// progress prints export updates until the returned stop function is called.
func (r *Runner) progress() (chan<- tasks.ProgressUpdate, func()) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchCatalog, tasks.FetchFines:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.FetchPage:
				r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, update.Message)
			case tasks.WriteExport:
				r.writePlain("📝 %s\n", update.Message)
			}
		}
	}()
	return progressCh, func() {
		close(progressCh)
		wg.Wait()
	}
}

func (r *Runner) exportSummary(result *tasks.ExportResult) {
	r.writePlain("\n═══════════════════════════════════════\n")
	r.writePlain("Export Complete!\n")
	r.writePlain("═══════════════════════════════════════\n")
	for _, f := range result.Files {
		r.writePlain("File: %s\n", f)
	}
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	if result.Pages > 0 {
		r.writePlain("Books: %d from %d pages\n", result.Books, result.Pages)
	}
	if len(result.FailedPages) > 0 {
		r.writePlain("\nFailed to fetch %d pages:\n", len(result.FailedPages))
		for i, page := range result.FailedPages {
			r.writePlain("  - page %d: %v\n", page+1, result.Errors[i])
		}
	}
}

// ExportCatalog writes the whole catalog, or one genre, to disk.
func (r *Runner) ExportCatalog(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(""); err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	opts := tasks.ExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		Genre:      cmd.String("genre"),
		PageSize:   int(cmd.Int("page-size")),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
		Now:        r.now,
	}
	r.logger.Info("starting catalog export", "format", format, "genre", opts.Genre)

	progressCh, stop := r.progress()
	result, err := tasks.ExportCatalog(ctx, progressCh, r.client, opts)
	stop()
	if err != nil {
		return err
	}

	r.exportSummary(result)
	return nil
}

// ExportFines writes the fine collections report to disk.
func (r *Runner) ExportFines(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	opts := tasks.ExportOpts{Format: format, OutputDir: cmd.String("output"), Now: r.now}
	r.logger.Info("starting fine export", "format", format)

	progressCh, stop := r.progress()
	result, err := tasks.ExportFines(ctx, progressCh, r.client, opts)
	stop()
	if err != nil {
		return err
	}

	r.exportSummary(result)
	return nil
}
