// Package session creates and validates durable authenticated sessions.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

const tokenBytes = 32

// tokenInsertRetries bounds retries on the astronomically unlikely token
// collision.
const tokenInsertRetries = 3

// Manager creates, validates, and revokes sessions.
//
// Sessions use an absolute lifetime: the expiry set at creation never moves,
// so a stolen token cannot be kept alive by continued use.
type Manager struct {
	sessions storage.SessionStore
	users    storage.UserStore
	config   Config
	now      func() time.Time
	newToken func() (string, error)
}

// NewManager builds a session manager over the given stores.
func NewManager(sessions storage.SessionStore, users storage.UserStore, cfg Config) (*Manager, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 720 * time.Hour
	}
	return &Manager{
		sessions: sessions,
		users:    users,
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: newToken,
	}, nil
}

// Create opens a session for an approved user.
//
// Accounts that are not approved cannot hold sessions, whatever flow they
// arrived through.
func (m *Manager) Create(ctx context.Context, userID string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	if m == nil || m.sessions == nil {
		return storage.Session{}, fmt.Errorf("session manager is not configured")
	}

	account, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return storage.Session{}, err
	}
	if account.Status != user.StatusApproved {
		return storage.Session{}, apperrors.New(apperrors.CodeAccountNotApproved, "account is not approved")
	}

	now := m.now()
	for attempt := 0; attempt < tokenInsertRetries; attempt++ {
		token, err := m.newToken()
		if err != nil {
			return storage.Session{}, fmt.Errorf("generate session token: %w", err)
		}
		record := storage.Session{
			Token:     token,
			UserID:    account.ID,
			CreatedAt: now,
			ExpiresAt: now.Add(m.config.TTL),
		}
		err = m.sessions.PutSession(ctx, record)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, storage.ErrDuplicate) {
			return storage.Session{}, fmt.Errorf("store session: %w", err)
		}
	}
	return storage.Session{}, fmt.Errorf("session token space exhausted after %d attempts", tokenInsertRetries)
}

// Validate resolves a session token to its user.
//
// Expired sessions are deleted on sight so the store does not accumulate
// dead rows.
func (m *Manager) Validate(ctx context.Context, token string) (user.User, storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, storage.Session{}, err
	}
	if m == nil || m.sessions == nil {
		return user.User{}, storage.Session{}, fmt.Errorf("session manager is not configured")
	}

	record, err := m.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, storage.Session{}, apperrors.New(apperrors.CodeSessionNotFound, "session not found")
		}
		return user.User{}, storage.Session{}, fmt.Errorf("load session: %w", err)
	}

	if !record.ExpiresAt.After(m.now()) {
		_ = m.sessions.DeleteSession(ctx, token)
		return user.User{}, storage.Session{}, apperrors.New(apperrors.CodeSessionExpired, "session expired")
	}

	account, err := m.users.GetUser(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = m.sessions.DeleteSession(ctx, token)
			return user.User{}, storage.Session{}, apperrors.New(apperrors.CodeSessionNotFound, "session not found")
		}
		return user.User{}, storage.Session{}, fmt.Errorf("load session user: %w", err)
	}

	return account, record, nil
}

// Revoke deletes one session. Unknown tokens are a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil || m.sessions == nil {
		return fmt.Errorf("session manager is not configured")
	}
	return m.sessions.DeleteSession(ctx, token)
}

// RevokeAll deletes every session a user holds.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil || m.sessions == nil {
		return fmt.Errorf("session manager is not configured")
	}
	return m.sessions.DeleteSessionsByUser(ctx, userID)
}

// newToken draws an opaque URL-safe session token.
func newToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
