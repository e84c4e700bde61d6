// package server contains the router, middleware and lifecycle for the browser front end
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelf/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the "METHOD /path" patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Purger deletes expired sessions. *repositories.SessionRepository implements it.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Server runs the browser front end until its context is cancelled.
type Server struct {
	http   *http.Server
	purger Purger
	every  time.Duration
	logger *log.Logger
}

// ServerOpts configures a [Server].
type ServerOpts struct {
	Addr         string
	Handler      http.Handler
	Purger       Purger        // optional; expired sessions are swept when set
	PurgeEvery   time.Duration // default: 10 minutes
	Logger       *log.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a [Server].
func New(opts ServerOpts) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.PurgeEvery <= 0 {
		opts.PurgeEvery = 10 * time.Minute
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}

	return &Server{
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      opts.Handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		purger: opts.Purger,
		every:  opts.PurgeEvery,
		logger: opts.Logger,
	}
}

// Addr is the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		errs <- s.http.ListenAndServe()
	}()

	if s.purger != nil {
		go PurgeLoop(ctx, s.purger, s.every, s.logger)
	}

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down")
	if err := s.http.Shutdown(shutdown); err != nil {
		return err
	}
	return nil
}

// PurgeLoop sweeps expired sessions every interval until ctx is done.
func PurgeLoop(ctx context.Context, p Purger, every time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.PurgeExpired(ctx, now)
			if err != nil {
				logger.Error("failed to purge sessions", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired sessions", "count", n)
			}
		}
	}
}
