package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/repositories"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/session"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	ctx := context.Background()

	configPath := "config.toml"
	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("ignoring config file", "path", configPath, "error", err)
		}
	}
	if err := config.ApplyEnv(".env"); err != nil {
		logger.Warn("ignoring environment overrides", "error", err)
	}
	if err := shared.ApplyLogLevel(logger, config.Log.Level); err != nil {
		logger.Warn("ignoring log level", "error", err)
	}

	var store session.Store
	var sessions *repositories.SessionRepository
	if db, err := shared.OpenDatabase(config.Database); err == nil {
		defer db.Close()
		sessions = repositories.NewSessionRepository(db)
		store = sessions
	} else {
		logger.Warn("session database unavailable, logins will not persist", "error", err)
		store = session.NewMemoryStore()
	}

	manager := session.NewManager(store, config.Session.Profile, session.ManagerOpts{
		TTL:    config.SessionTTL(),
		Logger: logger,
	})

	var authCtx *auth.Context
	client := services.NewClient(services.ClientOpts{
		BaseURL:     config.API.BaseURL,
		HTTPClient:  &http.Client{Timeout: config.Timeout()},
		Credentials: manager,
		RateLimit:   config.API.RateLimit,
		Logger:      logger,
		OnUnauthorized: func(ctx context.Context) {
			if authCtx != nil {
				authCtx.Expire(ctx)
			}
		},
	})

	authCtx, err := auth.NewContext(ctx, client, manager, logger)
	if err != nil {
		logger.Fatalf("failed to load session: %v", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Client:     client,
		Auth:       authCtx,
		Sessions:   sessions,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "shelf",
		Usage:    "Browse, borrow and administer a library catalog",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrNotAuthenticated):
			fmt.Fprintln(os.Stderr, "Your session has expired or you are not logged in. Run 'shelf auth login'.")
			os.Exit(1)
		case errors.Is(err, shared.ErrForbidden):
			logger.Error("this command is not available to your role")
			os.Exit(1)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
