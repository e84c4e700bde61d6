package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/shelf/internal/models"
	"github.com/desertthunder/shelf/internal/session"
	"github.com/desertthunder/shelf/internal/shared"
)

// SessionRepository implements [session.Store] on the sessions table.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

var _ session.Store = (*SessionRepository)(nil)

// Load returns the session stored under key, or (nil, nil) when there is none.
func (r *SessionRepository) Load(ctx context.Context, key string) (*models.Session, error) {
	query := `
		SELECT key, credential_kind, credential_value, user_json, created_at, expires_at
		FROM sessions
		WHERE key = ?
	`

	var (
		s        models.Session
		kind     string
		value    string
		userJSON sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, key).Scan(&s.Key, &kind, &value, &userJSON, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	s.Credential = &models.Credential{Kind: models.CredentialKind(kind), Value: value}
	if userJSON.Valid {
		var u models.User
		if err := decodeJSON(userJSON, &u); err != nil {
			return nil, fmt.Errorf("failed to decode cached user: %w", err)
		}
		s.User = &u
	}
	return &s, nil
}

// Save inserts or replaces the session with the same key.
func (r *SessionRepository) Save(ctx context.Context, s *models.Session) error {
	if s == nil || s.Key == "" {
		return fmt.Errorf("%w: session key is required", shared.ErrInvalidInput)
	}

	cred := s.Credential
	if cred == nil {
		cred = &models.Credential{Kind: models.CredentialLocal}
	}

	userJSON, err := encodeJSON(s.User)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	query := `
		INSERT INTO sessions (key, credential_kind, credential_value, user_json, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			credential_kind = excluded.credential_kind,
			credential_value = excluded.credential_value,
			user_json = excluded.user_json,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`

	_, err = r.db.ExecContext(ctx, query, s.Key, string(cred.Kind), cred.Value, userJSON, s.CreatedAt.UTC(), s.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the session stored under key. Deleting a missing key is not an error.
func (r *SessionRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpired deletes every session that expired at or before now and returns how many went.
func (r *SessionRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return rowsAffected(result)
}

// List returns all stored sessions ordered by key.
func (r *SessionRepository) List(ctx context.Context) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, credential_kind, user_json, created_at, expires_at
		FROM sessions
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var (
			s        models.Session
			kind     string
			userJSON sql.NullString
		)
		if err := rows.Scan(&s.Key, &kind, &userJSON, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		s.Credential = &models.Credential{Kind: models.CredentialKind(kind)}
		if userJSON.Valid {
			var u models.User
			if err := decodeJSON(userJSON, &u); err != nil {
				return nil, fmt.Errorf("failed to decode cached user: %w", err)
			}
			s.User = &u
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}
