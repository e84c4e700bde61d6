package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/services"
	"github.com/desertthunder/shelf/internal/session"
	"github.com/desertthunder/shelf/internal/shared"
)

const (
	loginFailed        = "Login failed"
	registrationFailed = "Registration failed"
)

// Authenticator is the part of [services.Library] the auth context needs.
type Authenticator interface {
	Authenticate(ctx context.Context, req models.LoginRequest) (*services.LoginResult, error)
	SignUp(ctx context.Context, reg models.Registration) (*models.User, error)
}

// Result is the outcome of [Context.Login] or [Context.Signup].
//
// A rejected attempt is Success false with Error holding the message to show.
type Result struct {
	Success bool
	User    *models.User
	Error   string
}

// SignupRequest is the self-service registration form. The role is always SUBSCRIBER.
type SignupRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	Username        string `json:"username" validate:"required,min=3,max=50"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=Password"`
}

// Registration converts r to the backend's registration body.
func (r SignupRequest) Registration() models.Registration {
	return models.Registration{
		Name:     strings.TrimSpace(r.Name),
		Username: strings.TrimSpace(r.Username),
		Email:    strings.TrimSpace(r.Email),
		Password: r.Password,
		Role:     models.RoleSubscriber,
	}
}

// Context owns the login state of one session.
//
// Derived state (user, role, authenticated) is computed at construction, login, logout and
// expiry and is read without touching the store.
type Context struct {
	api      Authenticator
	sessions *session.Manager
	logger   *log.Logger

	mu            sync.RWMutex
	user          *models.User
	authenticated bool
}

// NewContext creates a [Context] and loads its initial state from sessions.
func NewContext(ctx context.Context, api Authenticator, sessions *session.Manager, logger *log.Logger) (*Context, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	c := &Context{api: api, sessions: sessions, logger: logger}
	if err := c.reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Context) reload(ctx context.Context) error {
	s, err := c.sessions.Session(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.user, c.authenticated = nil, false
	if s != nil && !s.Credential.IsZero() {
		c.user, c.authenticated = s.User, true
	}
	return nil
}

func (c *Context) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user, c.authenticated = nil, false
}

// Login authenticates against the backend and persists the session.
//
// Rejections are reported in the [Result] with a nil error; only transport and storage failures
// return an error.
func (c *Context) Login(ctx context.Context, username, password string) (Result, error) {
	req := models.LoginRequest{Username: strings.TrimSpace(username), Password: password}
	if err := shared.Validate(req); err != nil {
		return Result{Error: validationMessage(err)}, nil
	}

	res, err := c.api.Authenticate(ctx, req)
	if err != nil {
		var apiErr *services.APIError
		if errors.As(err, &apiErr) {
			c.logger.Info("login rejected", "username", req.Username, "status", apiErr.StatusCode)
			return Result{Error: messageOr(apiErr.Message, loginFailed)}, nil
		}
		if errors.Is(err, shared.ErrAPIRequest) {
			return Result{Error: loginFailed}, nil
		}
		return Result{Error: err.Error()}, err
	}

	if err := c.sessions.Establish(ctx, credentialFor(res), res.User); err != nil {
		return Result{Error: loginFailed}, err
	}

	c.mu.Lock()
	c.user, c.authenticated = res.User, true
	c.mu.Unlock()

	c.logger.Info("logged in", "username", res.User.Username, "role", res.User.Role)
	return Result{Success: true, User: res.User}, nil
}

// Signup registers a subscriber account. It does not log in.
func (c *Context) Signup(ctx context.Context, req SignupRequest) (Result, error) {
	if err := shared.Validate(req); err != nil {
		return Result{Error: validationMessage(err)}, nil
	}

	u, err := c.api.SignUp(ctx, req.Registration())
	if err != nil {
		var apiErr *services.APIError
		if errors.As(err, &apiErr) {
			return Result{Error: messageOr(apiErr.Message, registrationFailed)}, nil
		}
		if errors.Is(err, shared.ErrAPIRequest) {
			return Result{Error: registrationFailed}, nil
		}
		return Result{Error: err.Error()}, err
	}

	c.logger.Info("registered", "username", req.Username)
	return Result{Success: true, User: u}, nil
}

// Logout forgets the session locally. The backend is not contacted.
func (c *Context) Logout(ctx context.Context) error {
	c.reset()
	return c.sessions.Clear(ctx)
}

// Expire handles a 401 seen by the client: the session is gone and state returns to
// unauthenticated.
func (c *Context) Expire(ctx context.Context) {
	c.logger.Warn("session expired")
	c.reset()
	if err := c.sessions.Clear(ctx); err != nil {
		c.logger.Error("failed to clear expired session", "error", err)
	}
}

// Refresh replaces the cached profile of the logged-in user and keeps the credential. The role
// cannot change this way.
func (c *Context) Refresh(ctx context.Context, u *models.User) error {
	current, err := c.Require("")
	if err != nil {
		return err
	}
	if u == nil || u.ID != current.ID {
		return fmt.Errorf("%w: profile belongs to another user", shared.ErrInvalidArgument)
	}

	fresh := *u
	fresh.Role = current.Role
	if err := c.sessions.SetUser(ctx, &fresh); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &fresh
	return nil
}

// User is the logged-in user, or nil.
func (c *Context) User() *models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Context) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// Role is empty when logged out.
func (c *Context) Role() models.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.authenticated || c.user == nil {
		return ""
	}
	return c.user.Role
}

func (c *Context) IsAdmin() bool      { return c.Role() == models.RoleAdmin }
func (c *Context) IsSubscriber() bool { return c.Role() == models.RoleSubscriber }

// Require fails with [shared.ErrNotAuthenticated] when logged out and [shared.ErrForbidden] when
// role is set and does not match.
func (c *Context) Require(role models.Role) (*models.User, error) {
	if !c.IsAuthenticated() {
		return nil, shared.ErrNotAuthenticated
	}
	u := c.User()
	if u == nil {
		return nil, shared.ErrNotAuthenticated
	}
	if role != "" && u.Role != role {
		return nil, shared.ErrForbidden
	}
	return u, nil
}

// credentialFor picks what to present on later requests: the token if the backend sent one,
// otherwise its session cookies, otherwise a local marker.
func credentialFor(res *services.LoginResult) *models.Credential {
	if res.Token != "" {
		return &models.Credential{Kind: models.CredentialBearer, Value: res.Token}
	}

	if len(res.Cookies) > 0 {
		pairs := make([]string, 0, len(res.Cookies))
		for _, ck := range res.Cookies {
			pairs = append(pairs, (&http.Cookie{Name: ck.Name, Value: ck.Value}).String())
		}
		return &models.Credential{Kind: models.CredentialCookie, Value: strings.Join(pairs, "; ")}
	}

	return &models.Credential{Kind: models.CredentialLocal, Value: shared.GenerateID()}
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" || strings.HasPrefix(msg, "HTTP error!") {
		return fallback
	}
	return msg
}

func validationMessage(err error) string {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return strings.TrimPrefix(verr.Error(), shared.ErrInvalidInput.Error()+": ")
	}
	return err.Error()
}
