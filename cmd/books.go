package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/shelf/internal/formatter"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/desertthunder/shelf/internal/tasks"
	"github.com/urfave/cli/v3"
)

// parseID reads a positive numeric positional argument.
func parseID(cmd *cli.Command, name string) (int64, error) {
	raw := strings.TrimSpace(cmd.StringArg(name))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number, got %q", shared.ErrInvalidArgument, name, raw)
	}
	return id, nil
}

// pageFlag converts the 1-based --page flag to a 0-based page index.
func pageFlag(cmd *cli.Command) (int, error) {
	page := int(cmd.Int("page"))
	if page < 1 {
		return 0, fmt.Errorf("%w: --page must be at least 1", shared.ErrInvalidFlag)
	}
	return page - 1, nil
}

// BooksList prints one page of the catalog. Subscribers also see which listed books they hold.
func (r *Runner) BooksList(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole("")
	if err != nil {
		return err
	}
	page, err := pageFlag(cmd)
	if err != nil {
		return err
	}
	size := int(cmd.Int("size"))
	if size <= 0 {
		size = r.config.Catalog.PageSize
	}

	var userID int64
	if u.IsSubscriber() {
		userID = u.ID
	}

	query := tasks.CatalogQuery{Genre: cmd.String("genre"), Page: page, Size: size}
	r.logger.Debug("loading catalog", "genre", query.Genre, "page", query.Page, "size", query.Size)

	screen, err := tasks.LoadCatalogScreen(ctx, r.client, query, userID)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(screen.Page, true)
	}

	r.writePlain("Genre: %s • %s\n\n", query.Genre, screen.Page.Summary())
	if len(screen.Page.Content) == 0 {
		return r.writePlain("No books found\n")
	}
	if err := formatter.WriteBookTable(r.output, screen.Page.Content); err != nil {
		return err
	}

	var held []string
	for _, b := range screen.Page.Content {
		if screen.Borrowed[b.ID] {
			held = append(held, fmt.Sprintf("%s (#%d)", b.Title, b.ID))
		}
	}
	if len(held) > 0 {
		r.writePlainln("You have borrowed: %s", strings.Join(held, ", "))
	}
	return nil
}

// BooksShow prints one book with its availability.
func (r *Runner) BooksShow(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(""); err != nil {
		return err
	}
	id, err := parseID(cmd, "id")
	if err != nil {
		return err
	}

	book, err := r.client.Book(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(book, true)
	}

	r.writePlainHeader(book.Title)
	r.writePlain("Author:    %s\n", book.Author)
	r.writePlain("Published: %d\n", book.PublishedYear)
	r.writePlain("Genre:     %s\n", book.Genre)
	return r.writePlain("Available: %d of %d (%s)\n", book.Available(), book.Copies, book.Availability())
}

// BooksGenres lists the catalog's genres.
func (r *Runner) BooksGenres(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(""); err != nil {
		return err
	}
	genres, err := r.client.Genres(ctx)
	if err != nil {
		return err
	}
	for _, g := range genres {
		r.writePlain("%s\n", g)
	}
	return nil
}

// Borrow borrows a book for the logged-in subscriber.
func (r *Runner) Borrow(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole(models.RoleSubscriber)
	if err != nil {
		return err
	}
	bookID, err := parseID(cmd, "book-id")
	if err != nil {
		return err
	}

	book, err := r.client.Book(ctx, bookID)
	if err != nil {
		return err
	}
	if !book.CanBorrow() {
		return fmt.Errorf("%w: No copies available", shared.ErrInvalidArgument)
	}

	record, err := r.client.Borrow(ctx, u.ID, bookID)
	if err != nil {
		return err
	}

	r.logger.Info("borrowed book", "book", bookID)
	r.writePlain("✓ Book borrowed successfully!\n")
	if record == nil {
		return nil
	}
	return r.writePlain("%s is due %s\n", book.Title, record.DueDate.Display())
}

// Return returns a book the logged-in subscriber holds and reports any fine it incurred.
func (r *Runner) Return(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole(models.RoleSubscriber)
	if err != nil {
		return err
	}
	bookID, err := parseID(cmd, "book-id")
	if err != nil {
		return err
	}

	record, err := r.client.Return(ctx, u.ID, bookID)
	if err != nil {
		return err
	}

	r.logger.Info("returned book", "book", bookID)
	r.writePlain("✓ Book returned successfully!\n")
	if fine := record.Fine(); fine > 0 {
		r.writePlain("Fine: %s (pay with 'shelf fines pay %d')\n", fine, record.ID)
	}
	return nil
}
