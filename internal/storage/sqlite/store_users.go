package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

// PutUser upserts a user record keyed by ID.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("user email is required")
	}
	if !u.Status.Valid() {
		return fmt.Errorf("user status %q is invalid", u.Status)
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (
	id,
	email,
	name,
	status,
	is_admin,
	is_seeded,
	notify_access_requests,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	email = excluded.email,
	name = excluded.name,
	status = excluded.status,
	is_admin = excluded.is_admin,
	is_seeded = excluded.is_seeded,
	notify_access_requests = excluded.notify_access_requests,
	updated_at = excluded.updated_at
`,
		u.ID,
		u.Email,
		u.Name,
		string(u.Status),
		boolToInt(u.IsAdmin),
		boolToInt(u.IsSeeded),
		boolToInt(u.NotifyAccessRequests),
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return user.User{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, userSelectColumns+` WHERE id = ?`, userID)
	return scanUser(row.Scan)
}

// GetUserByEmail fetches a user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(email) == "" {
		return user.User{}, fmt.Errorf("email is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, userSelectColumns+` WHERE email = ?`, email)
	return scanUser(row.Scan)
}

// ListUsers returns users matching the filter, newest first, plus the
// unpaged total for the same filter.
func (s *Store) ListUsers(ctx context.Context, filter storage.UserFilter) (storage.UserPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.UserPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.UserPage{}, fmt.Errorf("storage is not configured")
	}

	where := ""
	args := []any{}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return storage.UserPage{}, fmt.Errorf("user status %q is invalid", filter.Status)
		}
		where = " WHERE status = ?"
		args = append(args, string(filter.Status))
	}

	var total int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return storage.UserPage{}, fmt.Errorf("count users: %w", err)
	}

	query := userSelectColumns + where + " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.UserPage{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	page := storage.UserPage{Total: total}
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return storage.UserPage{}, err
		}
		page.Users = append(page.Users, u)
	}
	if err := rows.Err(); err != nil {
		return storage.UserPage{}, fmt.Errorf("list users: %w", err)
	}
	return page, nil
}

// ListAdmins returns admin users, optionally only those subscribed to
// access-request notifications.
func (s *Store) ListAdmins(ctx context.Context, notifyOnly bool) ([]user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := userSelectColumns + " WHERE is_admin = 1"
	if notifyOnly {
		query += " AND notify_access_requests = 1"
	}
	query += " ORDER BY email"

	rows, err := s.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var admins []user.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		admins = append(admins, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// DeleteUser removes the user and all dependent rows in one transaction.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM sessions WHERE user_id = ?",
		"DELETE FROM passkey_credentials WHERE user_id = ?",
		"DELETE FROM passkey_ceremonies WHERE user_id = ?",
		"DELETE FROM access_grants WHERE user_id = ?",
		"DELETE FROM access_requests WHERE user_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return fmt.Errorf("delete user dependents: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}

const userSelectColumns = `SELECT
	id,
	email,
	name,
	status,
	is_admin,
	is_seeded,
	notify_access_requests,
	created_at,
	updated_at
FROM users`

func scanUser(scan func(dest ...any) error) (user.User, error) {
	var u user.User
	var status string
	var isAdmin, isSeeded, notify int
	var createdAt, updatedAt int64
	if err := scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&status,
		&isAdmin,
		&isSeeded,
		&notify,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Status = user.Status(status)
	u.IsAdmin = isAdmin != 0
	u.IsSeeded = isSeeded != 0
	u.NotifyAccessRequests = notify != 0
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
