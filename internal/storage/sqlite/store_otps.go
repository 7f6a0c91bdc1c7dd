package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/snehasaisneha/staticauth/internal/storage"
)

// PutOneTimeCode inserts a one-time code row.
func (s *Store) PutOneTimeCode(ctx context.Context, code storage.OneTimeCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(code.ID) == "" {
		return fmt.Errorf("code id is required")
	}
	if strings.TrimSpace(code.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if strings.TrimSpace(code.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if strings.TrimSpace(code.Purpose) == "" {
		return fmt.Errorf("purpose is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO one_time_codes (id, email, code, purpose, expires_at, used, attempts, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		code.ID,
		code.Email,
		code.Code,
		code.Purpose,
		toMillis(code.ExpiresAt),
		boolToInt(code.Used),
		code.Attempts,
		toMillis(code.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put one-time code: %w", err)
	}
	return nil
}

// GetLatestOneTimeCode returns the newest unused code for the pair.
func (s *Store) GetLatestOneTimeCode(ctx context.Context, email string, purpose string) (storage.OneTimeCode, error) {
	if err := ctx.Err(); err != nil {
		return storage.OneTimeCode{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OneTimeCode{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(email) == "" {
		return storage.OneTimeCode{}, fmt.Errorf("email is required")
	}
	if strings.TrimSpace(purpose) == "" {
		return storage.OneTimeCode{}, fmt.Errorf("purpose is required")
	}

	var code storage.OneTimeCode
	var used int
	var expiresAt, createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, code, purpose, expires_at, used, attempts, created_at
FROM one_time_codes
WHERE email = ? AND purpose = ? AND used = 0
ORDER BY created_at DESC, id DESC
LIMIT 1
`, email, purpose).Scan(
		&code.ID,
		&code.Email,
		&code.Code,
		&code.Purpose,
		&expiresAt,
		&used,
		&code.Attempts,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OneTimeCode{}, storage.ErrNotFound
		}
		return storage.OneTimeCode{}, fmt.Errorf("get one-time code: %w", err)
	}
	code.Used = used != 0
	code.ExpiresAt = fromMillis(expiresAt)
	code.CreatedAt = fromMillis(createdAt)
	return code, nil
}

// IncrementOneTimeCodeAttempts bumps the attempt counter atomically and
// returns the new value. A single UPDATE..RETURNING keeps concurrent
// verifiers from observing the same count.
func (s *Store) IncrementOneTimeCodeAttempts(ctx context.Context, codeID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(codeID) == "" {
		return 0, fmt.Errorf("code id is required")
	}

	var attempts int
	err := s.sqlDB.QueryRowContext(ctx, `
UPDATE one_time_codes
SET attempts = attempts + 1
WHERE id = ?
RETURNING attempts
`, codeID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("increment one-time code attempts: %w", err)
	}
	return attempts, nil
}

// MarkOneTimeCodeUsed consumes a code.
func (s *Store) MarkOneTimeCodeUsed(ctx context.Context, codeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(codeID) == "" {
		return fmt.Errorf("code id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, "UPDATE one_time_codes SET used = 1 WHERE id = ?", codeID)
	if err != nil {
		return fmt.Errorf("mark one-time code used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark one-time code used rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// BurnOneTimeCodes marks every unused code for the pair as used.
func (s *Store) BurnOneTimeCodes(ctx context.Context, email string, purpose string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	if strings.TrimSpace(purpose) == "" {
		return fmt.Errorf("purpose is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE one_time_codes
SET used = 1
WHERE email = ? AND purpose = ? AND used = 0
`, email, purpose)
	if err != nil {
		return fmt.Errorf("burn one-time codes: %w", err)
	}
	return nil
}
