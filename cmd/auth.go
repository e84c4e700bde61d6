package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin logs in and stores the session under the configured profile.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if r.auth == nil {
		return fmt.Errorf("%w: auth context not initialized", shared.ErrServiceUnavailable)
	}

	username, err := r.valueOr(cmd, "username", "Username")
	if err != nil {
		return err
	}
	password := cmd.String("password")
	if password == "" {
		if password, err = r.promptPassword("Password"); err != nil {
			return err
		}
	}

	r.logger.Info("logging in", "username", username)

	res, err := r.auth.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", shared.ErrLoginFailed, res.Error)
	}

	return r.writePlain("✓ Logged in as %s (%s)\n", res.User.DisplayName(), res.User.Role)
}

// AuthSignup registers a subscriber account. It does not log in.
func (r *Runner) AuthSignup(ctx context.Context, cmd *cli.Command) error {
	if r.auth == nil {
		return fmt.Errorf("%w: auth context not initialized", shared.ErrServiceUnavailable)
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
	if req.ConfirmPassword, err = r.promptPassword("Confirm Password"); err != nil {
		return err
	}

	res, err := r.auth.Signup(ctx, req)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, res.Error)
	}

	r.writePlain("✓ Registration successful! Please log in.\n")
	return r.writePlain("Run 'shelf auth login -u %s' to start a session\n", req.Username)
}

// AuthLogout forgets the stored session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if r.auth == nil {
		return fmt.Errorf("%w: auth context not initialized", shared.ErrServiceUnavailable)
	}
	if err := r.auth.Logout(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return r.writePlain("✓ Logged out\n")
}

// AuthWhoami prints the cached profile of the logged-in user.
func (r *Runner) AuthWhoami(ctx context.Context, cmd *cli.Command) error {
	u, err := r.requireRole("")
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(u, true)
	}

	r.writePlainHeader(u.DisplayName())
	r.writePlain("Username: %s\n", u.Username)
	r.writePlain("Email:    %s\n", u.Email)
	r.writePlain("Role:     %s\n", u.Role)
	if u.IsSubscriber() {
		r.writePlain("Wallet:   %s\n", u.WalletBalance)
	}
	return nil
}

// AuthSessions lists the sessions stored in the database.
func (r *Runner) AuthSessions(ctx context.Context, cmd *cli.Command) error {
	if r.sessions == nil {
		return fmt.Errorf("%w: session database not configured", shared.ErrMissingConfig)
	}

	if cmd.Bool("purge") {
		n, err := r.sessions.PurgeExpired(ctx, r.now())
		if err != nil {
			return err
		}
		r.writePlain("Purged %d expired sessions\n", n)
	}

	sessions, err := r.sessions.List(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return r.writePlain("No stored sessions\n")
	}

	now := r.now()
	r.writePlain("%-38s  %-16s  %-10s  %s\n", "KEY", "USER", "ROLE", "EXPIRES")
	for _, s := range sessions {
		user, role := "-", "-"
		if s.User != nil {
			user, role = s.User.Username, string(s.User.Role)
		}
		expires := s.ExpiresAt.Format("2006-01-02 15:04")
		if s.Expired(now) {
			expires += " (expired)"
		}
		r.writePlain("%-38s  %-16s  %-10s  %s\n", s.Key, user, role, expires)
	}
	return nil
}
