// package session persists the current login and derives request headers from it
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/shared"
	"golang.org/x/oauth2"
)

// DefaultTTL is the validity window stamped on every write.
const DefaultTTL = 24 * time.Hour

// Store persists sessions by key.
//
// Load returns (nil, nil) when no session exists for key.
type Store interface {
	Load(ctx context.Context, key string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, key string) error
}

// Manager reads and writes one session (one CLI profile, or one browser) in a [Store].
//
// All reads go to the store; expired sessions are deleted on read and reported as absent.
type Manager struct {
	store  Store
	key    string
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

// ManagerOpts configures a [Manager].
type ManagerOpts struct {
	TTL    time.Duration
	Clock  func() time.Time
	Logger *log.Logger
}

// NewManager binds a [Manager] to key in store.
func NewManager(store Store, key string, opts ManagerOpts) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Manager{
		store:  store,
		key:    key,
		ttl:    opts.TTL,
		now:    opts.Clock,
		logger: shared.WithLogger(opts.Logger, "session", key),
	}
}

// Key identifies the managed session.
func (m *Manager) Key() string { return m.key }

// Session loads the current session, or nil when there is none or it has expired.
func (m *Manager) Session(ctx context.Context) (*models.Session, error) {
	s, err := m.store.Load(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if s == nil {
		return nil, nil
	}

	if s.Expired(m.now()) {
		m.logger.Debug("session expired", "expires_at", s.ExpiresAt)
		if err := m.store.Delete(ctx, m.key); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}
	return s, nil
}

// Credential returns the stored credential, or nil.
func (m *Manager) Credential(ctx context.Context) (*models.Credential, error) {
	s, err := m.Session(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	return s.Credential, nil
}

// User returns the cached user, or nil.
func (m *Manager) User(ctx context.Context) (*models.User, error) {
	s, err := m.Session(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	return s.User, nil
}

// SetCredential stores c, keeping any cached user, and restarts the validity window.
func (m *Manager) SetCredential(ctx context.Context, c *models.Credential) error {
	return m.write(ctx, func(s *models.Session) { s.Credential = c })
}

// SetUser caches u, keeping the credential, and restarts the validity window.
func (m *Manager) SetUser(ctx context.Context, u *models.User) error {
	return m.write(ctx, func(s *models.Session) { s.User = u })
}

// Establish replaces the session with a fresh credential and user.
func (m *Manager) Establish(ctx context.Context, c *models.Credential, u *models.User) error {
	now := m.now()
	s := &models.Session{Key: m.key, Credential: c, User: u, CreatedAt: now, ExpiresAt: now.Add(m.ttl)}
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (m *Manager) write(ctx context.Context, mutate func(*models.Session)) error {
	s, err := m.Session(ctx)
	if err != nil {
		return err
	}

	now := m.now()
	if s == nil {
		s = &models.Session{Key: m.key, CreatedAt: now}
	}
	mutate(s)
	s.ExpiresAt = now.Add(m.ttl)

	if s.Credential == nil {
		s.Credential = &models.Credential{Kind: models.CredentialLocal}
	}
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear removes the session.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.key); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// IsAuthenticated is true when a non-expired session holds a credential.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	c, err := m.Credential(ctx)
	if err != nil {
		m.logger.Warn("session lookup failed", "error", err)
		return false
	}
	return !c.IsZero()
}

func (m *Manager) IsAdmin(ctx context.Context) bool {
	return m.hasRole(ctx, models.RoleAdmin)
}

func (m *Manager) IsSubscriber(ctx context.Context) bool {
	return m.hasRole(ctx, models.RoleSubscriber)
}

func (m *Manager) hasRole(ctx context.Context, role models.Role) bool {
	if !m.IsAuthenticated(ctx) {
		return false
	}
	u, err := m.User(ctx)
	return err == nil && u != nil && u.Role == role
}

// Token returns the stored bearer credential as an [oauth2.Token], or nil for any other kind.
func (m *Manager) Token(ctx context.Context) *oauth2.Token {
	s, err := m.Session(ctx)
	if err != nil || s == nil {
		return nil
	}
	return bearerToken(s)
}

// Headers builds the default request headers for the current session.
//
// Content-Type is always application/json. Authorization is present only when a bearer credential
// is stored; a cookie credential is sent as Cookie instead.
func (m *Manager) Headers(ctx context.Context) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")

	s, err := m.Session(ctx)
	if err != nil || s == nil || s.Credential.IsZero() {
		return h
	}

	switch s.Credential.Kind {
	case models.CredentialBearer:
		h.Set("Authorization", bearerToken(s).Type()+" "+s.Credential.Value)
	case models.CredentialCookie:
		h.Set("Cookie", s.Credential.Value)
	}
	return h
}

func bearerToken(s *models.Session) *oauth2.Token {
	if s.Credential.IsZero() || s.Credential.Kind != models.CredentialBearer {
		return nil
	}
	return &oauth2.Token{AccessToken: s.Credential.Value, TokenType: "Bearer", Expiry: s.ExpiresAt}
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.Session)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *models.Session) error {
	if sess == nil || sess.Key == "" {
		return fmt.Errorf("%w: session key is required", shared.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Key] = *sess
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
