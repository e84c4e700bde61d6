package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/formatter"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/desertthunder/shelf/internal/tasks"
	"github.com/urfave/cli/v3"
)

var bookFields = []struct{ flag, label string }{
	{"title", "Title"},
	{"author", "Author"},
	{"year", "Published Year"},
	{"genre", "Genre"},
	{"copies", "Copies"},
}

// confirm asks a yes/no question unless --yes was passed.
func (r *Runner) confirm(cmd *cli.Command, question string) (bool, error) {
	if cmd.Bool("yes") {
		return true, nil
	}
	answer, err := r.prompt(question + " [y/N]")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// bookInput builds a book form from flags. Without current every field is required and missing
// ones are prompted for; with current, omitted flags keep the book's values.
func (r *Runner) bookInput(cmd *cli.Command, current *models.Book) (models.BookInput, error) {
	values := make([]string, len(bookFields))
	if current != nil {
		in := current.Input()
		values = []string{in.Title, in.Author, strconv.Itoa(in.PublishedYear), in.Genre, strconv.Itoa(in.Copies)}
	}

	for i, f := range bookFields {
		if v := cmd.String(f.flag); v != "" {
			values[i] = v
			continue
		}
		if current == nil {
			v, err := r.prompt(f.label)
			if err != nil {
				return models.BookInput{}, err
			}
			values[i] = v
		}
	}
	return parseBookInput(values)
}

func parseBookInput(v []string) (models.BookInput, error) {
	in := models.BookInput{
		Title:  strings.TrimSpace(v[0]),
		Author: strings.TrimSpace(v[1]),
		Genre:  strings.TrimSpace(v[3]),
	}
	if year := strings.TrimSpace(v[2]); year != "" {
		n, err := strconv.Atoi(year)
		if err != nil {
			return in, fmt.Errorf("%w: year must be a number", shared.ErrInvalidInput)
		}
		in.PublishedYear = n
	}
	copies, err := strconv.Atoi(strings.TrimSpace(v[4]))
	if err != nil {
		return in, fmt.Errorf("%w: copies must be a number", shared.ErrInvalidInput)
	}
	in.Copies = copies
	return in, shared.Validate(in)
}

// AdminBooksList prints a page of books and marks the ones that cannot be deleted.
func (r *Runner) AdminBooksList(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}
	page, err := pageFlag(cmd)
	if err != nil {
		return err
	}

	books, err := tasks.LoadAdminBooks(ctx, r.client, page, r.config.Catalog.AdminPageSize)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(books.Page, true)
	}

	r.writePlain("%s\n\n", books.Page.Summary())
	if len(books.Page.Content) == 0 {
		return r.writePlain("No books found\n")
	}
	if err := formatter.WriteBookTable(r.output, books.Page.Content); err != nil {
		return err
	}

	var locked []string
	for _, b := range books.Page.Content {
		if books.Locks.Locked(b.ID) {
			locked = append(locked, fmt.Sprintf("#%d", b.ID))
		}
	}
	if len(locked) > 0 {
		r.writePlainln("Active borrows or unpaid fines (cannot delete): %s", strings.Join(locked, ", "))
	}
	return nil
}

// AdminBooksAdd adds a book to the catalog.
func (r *Runner) AdminBooksAdd(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}
	in, err := r.bookInput(cmd, nil)
	if err != nil {
		return err
	}

	book, err := r.client.AddBook(ctx, in)
	if err != nil {
		return err
	}
	r.logger.Info("added book", "id", book.ID, "title", book.Title)
	return r.writePlain("✓ Book added successfully! (#%d %s)\n", book.ID, book.Title)
}

// AdminBooksUpdate edits a book.
func (r *Runner) AdminBooksUpdate(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}
	id, err := parseID(cmd, "id")
	if err != nil {
		return err
	}

	current, err := r.client.Book(ctx, id)
	if err != nil {
		return err
	}
	in, err := r.bookInput(cmd, current)
	if err != nil {
		return err
	}

	book, err := r.client.UpdateBook(ctx, id, in)
	if err != nil {
		return err
	}
	r.logger.Info("updated book", "id", book.ID)
	return r.writePlain("✓ Book updated successfully! (#%d %s)\n", book.ID, book.Title)
}

// AdminBooksDelete deletes a book after checking its deletion lock.
func (r *Runner) AdminBooksDelete(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
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
	locks, err := tasks.LoadDeletionLocks(ctx, r.client)
	if err != nil {
		return err
	}
	if err := locks.Check(id); err != nil {
		return fmt.Errorf("%w (%s)", err, book.Title)
	}

	ok, err := r.confirm(cmd, fmt.Sprintf("Are you sure you want to delete this book? (%s)", book.Title))
	if err != nil {
		return err
	}
	if !ok {
		return r.writePlain("Cancelled\n")
	}

	if err := r.client.DeleteBook(ctx, id); err != nil {
		return err
	}
	r.logger.Info("deleted book", "id", id)
	return r.writePlain("✓ Book deleted successfully!\n")
}

// AdminBooksCopies sets a book's total copies.
func (r *Runner) AdminBooksCopies(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}
	id, err := parseID(cmd, "id")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(cmd.StringArg("copies")))
	update := models.CopiesUpdate{Copies: n}
	if err != nil || shared.Validate(update) != nil {
		return fmt.Errorf("%w: copies must be a whole number of at least 0", shared.ErrInvalidArgument)
	}

	book, err := r.client.UpdateBookCopies(ctx, id, update.Copies)
	if err != nil {
		return err
	}
	r.writePlain("✓ Copies updated successfully!\n")
	return r.writePlain("%s: %d of %d available\n", book.Title, book.Available(), book.Copies)
}

// AdminSubscribersList prints every subscriber.
func (r *Runner) AdminSubscribersList(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}
	users, err := r.client.AdminSubscribers(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(users, true)
	}
	if len(users) == 0 {
		return r.writePlain("No subscribers\n")
	}
	return formatter.WriteUserTable(r.output, users)
}

// AdminSubscribersAdd registers a subscriber on the admin's behalf.
func (r *Runner) AdminSubscribersAdd(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}

	var req auth.SignupRequest
	var err error
	if req.Name, err = r.valueOr(cmd, "name", "Name"); err != nil {
		return err
	}
	if req.Username, err = r.valueOr(cmd, "username", "Username"); err != nil {
		return err
	}
	if req.Email, err = r.valueOr(cmd, "email", "Email"); err != nil {
		return err
	}
	if req.Password, err = r.promptPassword("Password"); err != nil {
		return err
	}
	if err := shared.Validate(req); err != nil {
		return err
	}

	u, err := r.client.Register(ctx, req.Registration())
	if err != nil {
		return fmt.Errorf("error adding subscriber: %w", err)
	}
	r.logger.Info("registered subscriber", "id", u.ID, "username", u.Username)
	return r.writePlain("✓ Subscriber added successfully! (#%d %s)\n", u.ID, u.Username)
}

// AdminSubscribersRemove deletes a subscriber account.
func (r *Runner) AdminSubscribersRemove(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}
	id, err := parseID(cmd, "id")
	if err != nil {
		return err
	}

	u, err := r.client.User(ctx, id)
	if err != nil {
		return err
	}
	if !u.IsSubscriber() {
		return fmt.Errorf("%w: #%d is not a subscriber", shared.ErrInvalidArgument, id)
	}

	ok, err := r.confirm(cmd, fmt.Sprintf("Are you sure you want to delete this subscriber? (%s)", u.DisplayName()))
	if err != nil {
		return err
	}
	if !ok {
		return r.writePlain("Cancelled\n")
	}

	if err := r.client.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("error deleting subscriber: %w", err)
	}
	r.logger.Info("deleted subscriber", "id", id)
	return r.writePlain("✓ Subscriber deleted successfully!\n")
}

// AdminFines prints the fine collections report.
func (r *Runner) AdminFines(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}

	report, err := tasks.LoadFineReport(ctx, r.client, r.now())
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader("Fine Collections")
	r.writePlain("Total collected: %s\n", report.TotalCollected)
	r.writePlain("Unpaid fines:    %d (%s)\n", len(report.Unpaid), report.UnpaidTotal())
	r.writePlain("Active borrows:  %d (%d overdue, potential %s)\n",
		len(report.Active), report.Overdue(), report.PotentialTotal())

	if len(report.Unpaid) > 0 {
		r.writePlainln("Unpaid fines")
		if err := formatter.WriteFineTable(r.output, report.Unpaid); err != nil {
			return err
		}
	}
	if len(report.Active) > 0 {
		r.writePlainln("Active borrows")
		return formatter.WriteActiveTable(r.output, report.Active, report.GeneratedAt)
	}
	return nil
}

// AdminUsers prints every account, optionally only one role.
func (r *Runner) AdminUsers(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireRole(models.RoleAdmin); err != nil {
		return err
	}

	var users []models.User
	var err error
	switch role := models.Role(strings.ToUpper(cmd.String("role"))); role {
	case "":
		users, err = r.client.Users(ctx)
	case models.RoleAdmin, models.RoleSubscriber:
		users, err = r.client.UsersByRole(ctx, role)
	default:
		return fmt.Errorf("%w: --role must be ADMIN or SUBSCRIBER", shared.ErrInvalidFlag)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(users, true)
	}
	return formatter.WriteUserTable(r.output, users)
}
