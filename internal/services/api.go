package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelf/internal/shared"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8080"

// Credentials supplies per-request headers and is cleared when the backend rejects them.
//
// *session.Manager implements it.
type Credentials interface {
	Headers(ctx context.Context) http.Header
	Clear(ctx context.Context) error
}

// UnauthorizedFunc is called after a 401 has cleared the session. Each surface uses it
// to send the user back to the login screen.
type UnauthorizedFunc func(ctx context.Context)

// Client makes requests against the library backend.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	creds          Credentials
	limiter        *rate.Limiter
	logger         *log.Logger
	onUnauthorized UnauthorizedFunc
}

// ClientOpts configures a [Client].
type ClientOpts struct {
	BaseURL        string
	HTTPClient     *http.Client
	Credentials    Credentials
	RateLimit      float64 // requests per second; 0 disables limiting
	Logger         *log.Logger
	OnUnauthorized UnauthorizedFunc
}

// NewClient creates a new backend [Client].
func NewClient(opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     opts.HTTPClient,
		creds:          opts.Credentials,
		limiter:        limiter,
		logger:         opts.Logger,
		onUnauthorized: opts.OnUnauthorized,
	}
}

// WithCredentials returns a copy of c bound to creds and onUnauthorized, sharing the
// transport and rate limiter. The web server uses it to scope a client to one browser.
func (c *Client) WithCredentials(creds Credentials, onUnauthorized UnauthorizedFunc) *Client {
	clone := *c
	clone.creds = creds
	clone.onUnauthorized = onUnauthorized
	return &clone
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// RequestOpts describes one backend call.
type RequestOpts struct {
	Method    string      // defaults to GET
	Body      any         // []byte is sent as-is; anything else is JSON encoded
	Headers   http.Header // merged over the defaults
	Query     url.Values
	Anonymous bool // skip credentials and 401 handling (login, register)
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// APIError is a non-2xx response. It unwraps to [shared.ErrUnauthorized] for 401 and
// [shared.ErrAPIRequest] otherwise.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return shared.ErrUnauthorized
	}
	return shared.ErrAPIRequest
}

// ErrorMessage extracts the message a user should see from err.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Request performs a request against path and returns the parsed response for any 2xx status.
//
// A 401 on a credentialed request clears the session, calls the unauthorized hook and fails with
// an [APIError] that unwraps to [shared.ErrUnauthorized]. Other non-2xx statuses fail with the
// server's "message" field, or "HTTP error! status: N" when there is none.
func (c *Client) Request(ctx context.Context, path string, opts RequestOpts) (*APIResponse, error) {
	req, err := c.newRequest(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", shared.ErrServiceUnavailable, err)
		}
	}

	logger := shared.WithLogger(c.logger, "method", req.Method, "path", path, "request_id", req.Header.Get("X-Request-ID"))
	logger.Debug("sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", shared.ErrServiceUnavailable, err)
	}

	apiResp, err := parseResponse(resp, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !opts.Anonymous {
		logger.Warn("session rejected by backend")
		c.expire(ctx)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: shared.ErrUnauthorized.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Debug("request failed", "status", resp.StatusCode)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiResp.errorMessage()}
	}

	return apiResp, nil
}

func (c *Client) newRequest(ctx context.Context, path string, opts RequestOpts) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + path
	if len(opts.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + opts.Query.Encode()
	}

	var body io.Reader
	switch b := opts.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if !opts.Anonymous && c.creds != nil {
		for k, vs := range c.creds.Headers(ctx) {
			req.Header[k] = vs
		}
	}
	for k, vs := range opts.Headers {
		req.Header[http.CanonicalHeaderKey(k)] = vs
	}
	req.Header.Set("X-Request-ID", shared.GenerateID())

	return req, nil
}

func (c *Client) expire(ctx context.Context) {
	if c.creds != nil {
		if err := c.creds.Clear(ctx); err != nil {
			c.logger.Error("failed to clear session", "error", err)
		}
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized(ctx)
	}
}

// parseResponse branches on Content-Type: JSON bodies are decoded, everything else stays raw text.
func parseResponse(resp *http.Response, body []byte) (*APIResponse, error) {
	apiResp := &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json") {
		return apiResp, nil
	}

	apiResp.IsJSON = true
	if len(bytes.TrimSpace(body)) == 0 {
		return apiResp, nil
	}

	if err := json.Unmarshal(body, &apiResp.JSONData); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, fmt.Errorf("%w: malformed JSON response: %v", shared.ErrAPIRequest, err)
		}
		apiResp.IsJSON = false
	}
	return apiResp, nil
}

func (r *APIResponse) errorMessage() string {
	if data, ok := r.JSONData.(map[string]any); ok {
		if msg, ok := data["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("HTTP error! status: %d", r.StatusCode)
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Text returns the raw body.
func (r *APIResponse) Text() string { return string(r.Body) }

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (r *APIResponse) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: unexpected response shape: %v", shared.ErrAPIRequest, err)
	}
	return nil
}

// Number reads a numeric body, whether JSON or plain text. Empty or null is 0.
func (r *APIResponse) Number() (float64, error) {
	if r.IsJSON {
		switch v := r.JSONData.(type) {
		case nil:
			return 0, nil
		case float64:
			return v, nil
		case string:
			return parseNumber(v)
		default:
			return 0, fmt.Errorf("%w: expected a number, got %T", shared.ErrAPIRequest, v)
		}
	}
	return parseNumber(string(r.Body))
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expected a number, got %q", shared.ErrAPIRequest, s)
	}
	return f, nil
}
