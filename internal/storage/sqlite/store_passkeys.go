package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snehasaisneha/staticauth/internal/storage"
)

// PutPasskeyCredential upserts a WebAuthn credential keyed by credential ID.
func (s *Store) PutPasskeyCredential(ctx context.Context, credential storage.PasskeyCredential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credential.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(credential.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(credential.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}

	lastUsed := sql.NullInt64{}
	if credential.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: toMillis(*credential.LastUsedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO passkey_credentials (
	credential_id,
	user_id,
	name,
	credential_json,
	sign_count,
	created_at,
	updated_at,
	last_used_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(credential_id) DO UPDATE SET
	name = excluded.name,
	credential_json = excluded.credential_json,
	sign_count = excluded.sign_count,
	updated_at = excluded.updated_at,
	last_used_at = excluded.last_used_at
`,
		credential.CredentialID,
		credential.UserID,
		credential.Name,
		credential.CredentialJSON,
		credential.SignCount,
		toMillis(credential.CreatedAt),
		toMillis(credential.UpdatedAt),
		lastUsed,
	)
	if err != nil {
		return fmt.Errorf("put passkey credential: %w", err)
	}
	return nil
}

// GetPasskeyCredential fetches a stored WebAuthn credential.
func (s *Store) GetPasskeyCredential(ctx context.Context, credentialID string) (storage.PasskeyCredential, error) {
	if err := ctx.Err(); err != nil {
		return storage.PasskeyCredential{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PasskeyCredential{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return storage.PasskeyCredential{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, passkeySelectColumns+` WHERE credential_id = ?`, credentialID)
	credential, err := scanPasskeyCredential(row.Scan)
	if err != nil {
		return storage.PasskeyCredential{}, err
	}
	return credential, nil
}

// ListPasskeyCredentials returns passkeys for a user, oldest first.
func (s *Store) ListPasskeyCredentials(ctx context.Context, userID string) ([]storage.PasskeyCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, passkeySelectColumns+` WHERE user_id = ? ORDER BY created_at, credential_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list passkey credentials: %w", err)
	}
	defer rows.Close()

	credentials := make([]storage.PasskeyCredential, 0)
	for rows.Next() {
		credential, err := scanPasskeyCredential(rows.Scan)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list passkey credentials: %w", err)
	}
	return credentials, nil
}

// DeletePasskeyCredential removes a credential owned by the user.
func (s *Store) DeletePasskeyCredential(ctx context.Context, credentialID string, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM passkey_credentials
WHERE credential_id = ? AND user_id = ?
`, credentialID, userID)
	if err != nil {
		return fmt.Errorf("delete passkey credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete passkey credential rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdatePasskeySignCount conditionally advances the stored counter.
//
// The WHERE clause only matches when the new counter strictly advances the
// stored value, or when both counters are zero for authenticators that do
// not maintain one. A non-advancing counter leaves the row untouched and
// reports ErrSignCountRegression.
func (s *Store) UpdatePasskeySignCount(ctx context.Context, credentialID string, credentialJSON string, signCount uint32, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(credentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE passkey_credentials
SET credential_json = ?,
	sign_count = ?,
	updated_at = ?,
	last_used_at = ?
WHERE credential_id = ?
  AND (sign_count < ? OR (sign_count = 0 AND ? = 0))
`,
		credentialJSON,
		signCount,
		toMillis(usedAt),
		toMillis(usedAt),
		credentialID,
		signCount,
		signCount,
	)
	if err != nil {
		return fmt.Errorf("update passkey sign count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update passkey sign count rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetPasskeyCredential(ctx, credentialID); err != nil {
			return err
		}
		return storage.ErrSignCountRegression
	}
	return nil
}

// PutPasskeyCeremony stores an in-flight WebAuthn challenge.
func (s *Store) PutPasskeyCeremony(ctx context.Context, ceremony storage.PasskeyCeremony) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(ceremony.ID) == "" {
		return fmt.Errorf("ceremony id is required")
	}
	if strings.TrimSpace(ceremony.Kind) == "" {
		return fmt.Errorf("ceremony kind is required")
	}
	if strings.TrimSpace(ceremony.SessionJSON) == "" {
		return fmt.Errorf("session json is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO passkey_ceremonies (id, kind, user_id, session_json, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kind = excluded.kind,
	user_id = excluded.user_id,
	session_json = excluded.session_json,
	expires_at = excluded.expires_at
`,
		ceremony.ID,
		ceremony.Kind,
		ceremony.UserID,
		ceremony.SessionJSON,
		toMillis(ceremony.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put passkey ceremony: %w", err)
	}
	return nil
}

// GetPasskeyCeremony fetches a stored WebAuthn challenge.
func (s *Store) GetPasskeyCeremony(ctx context.Context, ceremonyID string) (storage.PasskeyCeremony, error) {
	if err := ctx.Err(); err != nil {
		return storage.PasskeyCeremony{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PasskeyCeremony{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(ceremonyID) == "" {
		return storage.PasskeyCeremony{}, fmt.Errorf("ceremony id is required")
	}

	var ceremony storage.PasskeyCeremony
	var expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, kind, user_id, session_json, expires_at
FROM passkey_ceremonies
WHERE id = ?
`, ceremonyID).Scan(&ceremony.ID, &ceremony.Kind, &ceremony.UserID, &ceremony.SessionJSON, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeyCeremony{}, storage.ErrNotFound
		}
		return storage.PasskeyCeremony{}, fmt.Errorf("get passkey ceremony: %w", err)
	}
	ceremony.ExpiresAt = fromMillis(expiresAt)
	return ceremony, nil
}

// DeletePasskeyCeremony removes a WebAuthn challenge.
func (s *Store) DeletePasskeyCeremony(ctx context.Context, ceremonyID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(ceremonyID) == "" {
		return fmt.Errorf("ceremony id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM passkey_ceremonies WHERE id = ?", ceremonyID); err != nil {
		return fmt.Errorf("delete passkey ceremony: %w", err)
	}
	return nil
}

// DeleteExpiredPasskeyCeremonies removes challenges past their deadline.
func (s *Store) DeleteExpiredPasskeyCeremonies(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM passkey_ceremonies WHERE expires_at <= ?", toMillis(now)); err != nil {
		return fmt.Errorf("delete expired passkey ceremonies: %w", err)
	}
	return nil
}

const passkeySelectColumns = `SELECT
	credential_id,
	user_id,
	name,
	credential_json,
	sign_count,
	created_at,
	updated_at,
	last_used_at
FROM passkey_credentials`

func scanPasskeyCredential(scan func(dest ...any) error) (storage.PasskeyCredential, error) {
	var credential storage.PasskeyCredential
	var createdAt, updatedAt int64
	var lastUsedAt sql.NullInt64
	if err := scan(
		&credential.CredentialID,
		&credential.UserID,
		&credential.Name,
		&credential.CredentialJSON,
		&credential.SignCount,
		&createdAt,
		&updatedAt,
		&lastUsedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeyCredential{}, storage.ErrNotFound
		}
		return storage.PasskeyCredential{}, fmt.Errorf("scan passkey credential: %w", err)
	}
	credential.CreatedAt = fromMillis(createdAt)
	credential.UpdatedAt = fromMillis(updatedAt)
	if lastUsedAt.Valid {
		value := fromMillis(lastUsedAt.Int64)
		credential.LastUsedAt = &value
	}
	return credential, nil
}
