package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/session"
	"github.com/desertthunder/shelf/internal/shared"
	tu "github.com/desertthunder/shelf/internal/testing"
)

func quietLogger() *bytes.Buffer { return &bytes.Buffer{} }

func newManager(t *testing.T, c *models.Credential) *session.Manager {
	t.Helper()
	m := session.NewManager(session.NewMemoryStore(), "test", session.ManagerOpts{Logger: shared.NewLogger(quietLogger())})
	if c != nil {
		if err := m.Establish(context.Background(), c, &models.User{ID: 1, Username: "asha", Role: models.RoleSubscriber}); err != nil {
			t.Fatalf("failed to establish session: %v", err)
		}
	}
	return m
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("NewClient", func(t *testing.T) {
		t.Run("Defaults", func(t *testing.T) {
			c := NewClient(ClientOpts{})

			if c.BaseURL() != DefaultBaseURL {
				t.Errorf("expected base URL %s, got %s", DefaultBaseURL, c.BaseURL())
			}
			if c.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
			if c.limiter != nil {
				t.Error("expected no rate limiter by default")
			}
		})

		t.Run("Trims Trailing Slash And Limits", func(t *testing.T) {
			custom := &http.Client{}
			c := NewClient(ClientOpts{BaseURL: "http://example.com/", HTTPClient: custom, RateLimit: 5})

			if c.BaseURL() != "http://example.com" {
				t.Errorf("expected trimmed base URL, got %s", c.BaseURL())
			}
			if c.httpClient != custom {
				t.Error("expected custom client to be used")
			}
			if c.limiter == nil {
				t.Error("expected rate limiter")
			}
		})

		t.Run("WithCredentials Shares Transport", func(t *testing.T) {
			c := NewClient(ClientOpts{BaseURL: "http://example.com", RateLimit: 1})
			m := newManager(t, nil)
			scoped := c.WithCredentials(m, nil)

			if scoped == c {
				t.Fatal("expected a copy")
			}
			if scoped.limiter != c.limiter || scoped.httpClient != c.httpClient {
				t.Error("expected limiter and transport to be shared")
			}
			if scoped.creds != m {
				t.Error("expected credentials to be bound")
			}
			if c.creds != nil {
				t.Error("original client should be unchanged")
			}
		})
	})

	t.Run("Request", func(t *testing.T) {
		t.Run("Attaches Bearer And Merges Headers", func(t *testing.T) {
			var got http.Header
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Clone()
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			m := newManager(t, &models.Credential{Kind: models.CredentialBearer, Value: "tok"})
			c := NewClient(ClientOpts{BaseURL: server.URL, Credentials: m, Logger: shared.NewLogger(quietLogger())})

			_, err := c.Request(ctx, "/api/books", RequestOpts{Headers: http.Header{"X-Extra": {"1"}}})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got.Get("Authorization") != "Bearer tok" {
				t.Errorf("expected bearer header, got %q", got.Get("Authorization"))
			}
			if got.Get("Content-Type") != "application/json" {
				t.Errorf("expected JSON content type, got %q", got.Get("Content-Type"))
			}
			if got.Get("X-Extra") != "1" {
				t.Errorf("expected caller header to be merged, got %q", got.Get("X-Extra"))
			}
			if got.Get("X-Request-ID") == "" {
				t.Error("expected request id")
			}
		})

		t.Run("Anonymous Skips Credentials", func(t *testing.T) {
			var auth string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			m := newManager(t, &models.Credential{Kind: models.CredentialBearer, Value: "tok"})
			c := NewClient(ClientOpts{BaseURL: server.URL, Credentials: m})

			if _, err := c.Request(ctx, "/api/users/login", RequestOpts{Method: http.MethodPost, Anonymous: true}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if auth != "" {
				t.Errorf("expected no Authorization header, got %q", auth)
			}
		})

		t.Run("Cookie Credential", func(t *testing.T) {
			var cookie string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				cookie = r.Header.Get("Cookie")
			}))
			defer server.Close()

			m := newManager(t, &models.Credential{Kind: models.CredentialCookie, Value: "JSESSIONID=abc"})
			c := NewClient(ClientOpts{BaseURL: server.URL, Credentials: m})

			if _, err := c.Request(ctx, "/", RequestOpts{}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cookie != "JSESSIONID=abc" {
				t.Errorf("expected cookie to be sent, got %q", cookie)
			}
		})

		t.Run("Encodes Body And Query", func(t *testing.T) {
			var body, query, method string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				data, _ := io.ReadAll(r.Body)
				body, query, method = string(data), r.URL.RawQuery, r.Method
			}))
			defer server.Close()

			c := NewClient(ClientOpts{BaseURL: server.URL})
			_, err := c.Request(ctx, "/api/books", RequestOpts{
				Method: http.MethodPut,
				Body:   models.CopiesUpdate{Copies: 4},
				Query:  map[string][]string{"page": {"2"}},
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if method != http.MethodPut {
				t.Errorf("expected PUT, got %s", method)
			}
			if strings.TrimSpace(body) != `{"copies":4}` {
				t.Errorf("unexpected body %q", body)
			}
			if query != "page=2" {
				t.Errorf("expected query page=2, got %q", query)
			}
		})

		t.Run("401 Clears Session And Calls Hook", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"token expired"}`))
			}))
			defer server.Close()

			m := newManager(t, &models.Credential{Kind: models.CredentialBearer, Value: "tok"})
			called := false
			c := NewClient(ClientOpts{
				BaseURL:        server.URL,
				Credentials:    m,
				Logger:         shared.NewLogger(quietLogger()),
				OnUnauthorized: func(context.Context) { called = true },
			})

			_, err := c.Request(ctx, "/api/books", RequestOpts{})
			if !errors.Is(err, shared.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			if err.Error() != "Unauthorized" {
				t.Errorf("expected message 'Unauthorized', got %q", err.Error())
			}
			if !called {
				t.Error("expected unauthorized hook to be called")
			}
			if m.IsAuthenticated(ctx) {
				t.Error("expected session to be cleared")
			}
		})

		t.Run("Anonymous 401 Keeps Session", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"Invalid username or password"}`))
			}))
			defer server.Close()

			m := newManager(t, &models.Credential{Kind: models.CredentialBearer, Value: "tok"})
			c := NewClient(ClientOpts{BaseURL: server.URL, Credentials: m})

			_, err := c.Request(ctx, "/api/users/login", RequestOpts{Method: http.MethodPost, Anonymous: true})
			if ErrorMessage(err) != "Invalid username or password" {
				t.Errorf("expected server message, got %q", ErrorMessage(err))
			}
			if !m.IsAuthenticated(ctx) {
				t.Error("anonymous failures must not clear the session")
			}
		})

		t.Run("Error Message Fallback", func(t *testing.T) {
			tests := []struct {
				name        string
				contentType string
				body        string
				expected    string
			}{
				{"JSON message", "application/json", `{"message":"No copies available"}`, "No copies available"},
				{"JSON without message", "application/json", `{"error":"x"}`, "HTTP error! status: 400"},
				{"Plain text", "text/plain", "bad", "HTTP error! status: 400"},
				{"Malformed JSON", "application/json", "{", "HTTP error! status: 400"},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
						w.Header().Set("Content-Type", tt.contentType)
						w.WriteHeader(http.StatusBadRequest)
						w.Write([]byte(tt.body))
					}))
					defer server.Close()

					_, err := NewClient(ClientOpts{BaseURL: server.URL}).Request(ctx, "/", RequestOpts{})

					var apiErr *APIError
					if !errors.As(err, &apiErr) {
						t.Fatalf("expected APIError, got %v", err)
					}
					if apiErr.StatusCode != http.StatusBadRequest {
						t.Errorf("expected status 400, got %d", apiErr.StatusCode)
					}
					if apiErr.Message != tt.expected {
						t.Errorf("expected %q, got %q", tt.expected, apiErr.Message)
					}
					if !errors.Is(err, shared.ErrAPIRequest) {
						t.Error("expected error to wrap ErrAPIRequest")
					}
				})
			}
		})

		t.Run("Text And JSON Bodies", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/text":
					w.Header().Set("Content-Type", "text/plain;charset=UTF-8")
					w.Write([]byte("250.5"))
				case "/json":
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.Write([]byte(`"75"`))
				case "/empty":
					w.Header().Set("Content-Type", "application/json")
				}
			}))
			defer server.Close()
			c := NewClient(ClientOpts{BaseURL: server.URL})

			resp, err := c.Request(ctx, "/text", RequestOpts{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.IsJSON {
				t.Error("expected text response")
			}
			if resp.Text() != "250.5" {
				t.Errorf("expected raw text, got %q", resp.Text())
			}
			if n, _ := resp.Number(); n != 250.5 {
				t.Errorf("expected 250.5, got %v", n)
			}

			resp, _ = c.Request(ctx, "/json", RequestOpts{})
			if !resp.IsJSON {
				t.Error("expected JSON response")
			}
			if n, _ := resp.Number(); n != 75 {
				t.Errorf("expected 75, got %v", n)
			}

			resp, _ = c.Request(ctx, "/empty", RequestOpts{})
			if n, err := resp.Number(); n != 0 || err != nil {
				t.Errorf("expected 0 for empty body, got %v, %v", n, err)
			}
		})

		t.Run("Malformed Success Body", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte("{not json"))
			}))
			defer server.Close()

			_, err := NewClient(ClientOpts{BaseURL: server.URL}).Request(ctx, "/", RequestOpts{})
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		})

		t.Run("Transport Failure", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
			c := NewClient(ClientOpts{BaseURL: "http://example.com", HTTPClient: client})

			_, err := c.Request(ctx, "/", RequestOpts{})
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})

		t.Run("Body Read Failure", func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusOK, Body: &tu.FCloser{}, Header: http.Header{}}
			client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}
			c := NewClient(ClientOpts{BaseURL: "http://example.com", HTTPClient: client})

			_, err := c.Request(ctx, "/", RequestOpts{})
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected read failure, got %v", err)
			}
		})

		t.Run("Invalid URL", func(t *testing.T) {
			c := NewClient(ClientOpts{BaseURL: "http://[::1"})

			_, err := c.Request(ctx, "/", RequestOpts{})
			if err == nil || !strings.Contains(err.Error(), "failed to create request") {
				t.Errorf("expected request creation failure, got %v", err)
			}
		})

		t.Run("Cancelled Context With Limiter", func(t *testing.T) {
			c := NewClient(ClientOpts{BaseURL: "http://example.com", RateLimit: 0.001})
			c.limiter.Allow()

			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := c.Request(cancelled, "/", RequestOpts{})
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})
	})

	t.Run("ErrorMessage", func(t *testing.T) {
		if ErrorMessage(nil) != "" {
			t.Error("expected empty message for nil")
		}
		if got := ErrorMessage(&APIError{StatusCode: 400, Message: "nope"}); got != "nope" {
			t.Errorf("expected 'nope', got %q", got)
		}
		if got := ErrorMessage(errors.New("boom")); got != "boom" {
			t.Errorf("expected 'boom', got %q", got)
		}
	})
}
