package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/shared"
	"github.com/google/uuid"
)

type contextKey int

const sessionKeyCtx contextKey = iota

// DefaultCookieName carries the browser's session key when none is configured.
const DefaultCookieName = "shelf_session"

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging writes one line per request.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start).Round(time.Microsecond),
			)
		})
	}
}

// Recover turns a panicking handler into a 500.
func Recover(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("handler panicked", "path", r.URL.Path, "panic", v)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionOpts configures [Sessions].
type SessionOpts struct {
	CookieName string
	Secure     bool
	MaxAge     time.Duration
}

// Sessions gives every browser a random session key, carried in a cookie, and puts it on
// the request context. A missing or malformed cookie is replaced with a fresh key.
func Sessions(opts SessionOpts) Middleware {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var key string
			if c, err := r.Cookie(opts.CookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					key = c.Value
				}
			}

			if key == "" {
				key = shared.GenerateID()
				SetSessionCookie(w, opts, key)
			}

			next.ServeHTTP(w, r.WithContext(WithSessionKey(r.Context(), key)))
		})
	}
}

// SetSessionCookie points the browser at key.
func SetSessionCookie(w http.ResponseWriter, opts SessionOpts, key string) {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}

	http.SetCookie(w, &http.Cookie{
		Name:     opts.CookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(opts.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// WithSessionKey stores key on ctx.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyCtx, key)
}

// SessionKey returns the key stored by [Sessions], or "".
func SessionKey(ctx context.Context) string {
	key, _ := ctx.Value(sessionKeyCtx).(string)
	return key
}

// ViewerFunc returns the login state for a request.
type ViewerFunc func(r *http.Request) auth.Viewer

// Guard runs [auth.Authorize] on every request and redirects when access is refused.
// Paths starting with one of exempt skip the check.
func Guard(viewer ViewerFunc, exempt ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range exempt {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			d := auth.Authorize(viewer(r), r.URL.Path)
			if !d.Allowed {
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
