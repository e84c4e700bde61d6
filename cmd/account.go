package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/shelf/internal/formatter"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/desertthunder/shelf/internal/tasks"
	"github.com/urfave/cli/v3"
)

// History prints the subscriber's counts, active loans, unpaid fines and full history.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole(models.RoleSubscriber)
	if err != nil {
		return err
	}

	summary, err := tasks.LoadBorrowSummary(ctx, r.client, u.ID)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(summary, true)
	}

	now := r.now()
	r.writePlainHeader("Borrow History")
	r.writePlain("Total borrowed: %d • Active: %d • Unpaid fines: %d (%s)\n",
		len(summary.History), len(summary.Active), len(summary.Unpaid), summary.UnpaidTotal())

	if len(summary.Active) > 0 {
		r.writePlainln("Active loans")
		if err := formatter.WriteRecordTable(r.output, summary.Active, now); err != nil {
			return err
		}
	}
	if len(summary.Unpaid) > 0 {
		r.writePlainln("Unpaid fines (pay with 'shelf fines pay <record>')")
		if err := formatter.WriteFineTable(r.output, summary.Unpaid); err != nil {
			return err
		}
	}
	if len(summary.History) == 0 {
		return r.writePlainln("No borrowing history")
	}
	r.writePlainln("History")
	return formatter.WriteRecordTable(r.output, summary.History, now)
}

// Wallet prints the subscriber's balance and total fines paid.
func (r *Runner) Wallet(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole(models.RoleSubscriber)
	if err != nil {
		return err
	}

	wallet, err := tasks.LoadWallet(ctx, r.client, u.ID)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(wallet, true)
	}

	r.writePlain("Balance:          %s\n", wallet.Balance)
	return r.writePlain("Total fines paid: %s\n", wallet.FinesPaid)
}

// WalletAdd tops up the subscriber's wallet.
func (r *Runner) WalletAdd(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole(models.RoleSubscriber)
	if err != nil {
		return err
	}

	amount, err := models.ParseMoney(cmd.StringArg("amount"))
	if err != nil || shared.Validate(models.WalletTopUp{Amount: amount}) != nil {
		return fmt.Errorf("%w: Please enter a valid amount", shared.ErrInvalidArgument)
	}

	if err := r.client.AddToWallet(ctx, u.ID, amount); err != nil {
		return fmt.Errorf("failed to add money: %w", err)
	}

	balance, err := r.client.WalletBalance(ctx, u.ID)
	if err != nil {
		return err
	}
	fresh := *u
	fresh.WalletBalance = balance
	if err := r.auth.Refresh(ctx, &fresh); err != nil {
		r.logger.Warn("failed to refresh cached profile", "error", err)
	}

	r.writePlain("✓ Money added successfully!\n")
	return r.writePlain("Balance: %s\n", balance)
}

// FinesList prints the subscriber's unpaid fines.
func (r *Runner) FinesList(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole(models.RoleSubscriber)
	if err != nil {
		return err
	}

	unpaid, err := r.client.UnpaidFines(ctx, u.ID)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(unpaid, true)
	}
	if len(unpaid) == 0 {
		return r.writePlain("No unpaid fines\n")
	}

	if err := formatter.WriteFineTable(r.output, unpaid); err != nil {
		return err
	}
	return r.writePlainln("Total due: %s", models.SumFines(unpaid))
}

// FinesPay pays one fine from the subscriber's wallet.
func (r *Runner) FinesPay(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole(models.RoleSubscriber)
	if err != nil {
		return err
	}
	recordID, err := parseID(cmd, "record-id")
	if err != nil {
		return err
	}

	if err := r.client.PayFine(ctx, u.ID, recordID); err != nil {
		return fmt.Errorf("failed to pay fine: %w", err)
	}

	r.logger.Info("paid fine", "record", recordID)
	return r.writePlain("✓ Fine paid successfully!\n")
}

// AccountUpdate changes the logged-in user's name, email or password.
func (r *Runner) AccountUpdate(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole("")
	if err != nil {
		return err
	}

	update := models.UserUpdate{Name: cmd.String("name"), Email: cmd.String("email")}
	if cmd.Bool("password") {
		if update.Password, err = r.promptPassword("New Password"); err != nil {
			return err
		}
		confirm, err := r.promptPassword("Confirm Password")
		if err != nil {
			return err
		}
		if confirm != update.Password {
			return fmt.Errorf("%w: passwords do not match", shared.ErrInvalidInput)
		}
	}
	if update == (models.UserUpdate{}) {
		return fmt.Errorf("%w: pass --name, --email or --password", shared.ErrMissingArgument)
	}
	if err := shared.Validate(update); err != nil {
		return err
	}

	updated, err := r.client.UpdateUser(ctx, u.ID, update)
	if err != nil {
		return err
	}
	if err := r.auth.Refresh(ctx, updated); err != nil {
		r.logger.Warn("failed to refresh cached profile", "error", err)
	}
	return r.writePlain("✓ Account updated\n")
}
