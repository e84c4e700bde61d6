package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/desertthunder/shelf/internal/server"
	"github.com/desertthunder/shelf/internal/session"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/desertthunder/shelf/internal/web"
	"github.com/urfave/cli/v3"
)

// Serve runs the browser front end until interrupted. Each browser gets its own session,
// stored in the sessions database when one is configured.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if r.client == nil {
		return fmt.Errorf("%w: backend client not initialized", shared.ErrServiceUnavailable)
	}

	host, port := r.config.Server.Host, r.config.Server.Port
	if h := cmd.String("host"); h != "" {
		host = h
	}
	if p := int(cmd.Int("port")); p != 0 {
		port = p
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var store session.Store = session.NewMemoryStore()
	var purger server.Purger
	if r.sessions != nil {
		store, purger = r.sessions, r.sessions
	} else {
		r.logger.Warn("no session database; browser sessions are kept in memory")
	}

	app, err := web.New(web.Options{
		Client:        r.client,
		Store:         store,
		SessionTTL:    r.config.SessionTTL(),
		PageSize:      r.config.Catalog.PageSize,
		AdminPageSize: r.config.Catalog.AdminPageSize,
		Cookie: server.SessionOpts{
			CookieName: r.config.Server.CookieName,
			Secure:     r.config.Server.SecureCookies,
			MaxAge:     r.config.SessionTTL(),
		},
		Logger: r.logger,
		Now:    r.now,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.ServerOpts{
		Addr:    addr,
		Handler: app.Handler(),
		Purger:  purger,
		Logger:  r.logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := "http://" + addr
	r.writePlain("Serving shelf at %s (Ctrl+C to stop)\n", url)
	if cmd.Bool("open") {
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	return srv.Run(ctx)
}
