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

// UpsertAccessGrant inserts a grant or refreshes the role on an existing one.
func (s *Store) UpsertAccessGrant(ctx context.Context, grant storage.AccessGrant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(grant.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(grant.AppID) == "" {
		return fmt.Errorf("app id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO access_grants (user_id, app_id, role, granted_at, granted_by)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id, app_id) DO UPDATE SET
	role = excluded.role,
	granted_at = excluded.granted_at,
	granted_by = excluded.granted_by
`,
		grant.UserID,
		grant.AppID,
		grant.Role,
		toMillis(grant.GrantedAt),
		grant.GrantedBy,
	)
	if err != nil {
		return fmt.Errorf("upsert access grant: %w", err)
	}
	return nil
}

// GetAccessGrant fetches the grant for a (user, app) pair.
func (s *Store) GetAccessGrant(ctx context.Context, userID string, appID string) (storage.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return storage.AccessGrant{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AccessGrant{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return storage.AccessGrant{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(appID) == "" {
		return storage.AccessGrant{}, fmt.Errorf("app id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, grantSelectColumns+` WHERE user_id = ? AND app_id = ?`, userID, appID)
	return scanAccessGrant(row.Scan)
}

// DeleteAccessGrant removes a grant. Missing grants are a no-op.
func (s *Store) DeleteAccessGrant(ctx context.Context, userID string, appID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(appID) == "" {
		return fmt.Errorf("app id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM access_grants WHERE user_id = ? AND app_id = ?", userID, appID); err != nil {
		return fmt.Errorf("delete access grant: %w", err)
	}
	return nil
}

// ListAccessGrantsByUser returns a user's grants ordered by app.
func (s *Store) ListAccessGrantsByUser(ctx context.Context, userID string) ([]storage.AccessGrant, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.listAccessGrants(ctx, grantSelectColumns+" WHERE user_id = ? ORDER BY app_id", userID)
}

// ListAccessGrantsByApp returns an app's grants ordered by user.
func (s *Store) ListAccessGrantsByApp(ctx context.Context, appID string) ([]storage.AccessGrant, error) {
	if strings.TrimSpace(appID) == "" {
		return nil, fmt.Errorf("app id is required")
	}
	return s.listAccessGrants(ctx, grantSelectColumns+" WHERE app_id = ? ORDER BY user_id", appID)
}

func (s *Store) listAccessGrants(ctx context.Context, query string, args ...any) ([]storage.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	defer rows.Close()

	grants := make([]storage.AccessGrant, 0)
	for rows.Next() {
		grant, err := scanAccessGrant(rows.Scan)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	return grants, nil
}

// PutAccessRequest inserts an access request row.
func (s *Store) PutAccessRequest(ctx context.Context, request storage.AccessRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(request.ID) == "" {
		return fmt.Errorf("request id is required")
	}
	if strings.TrimSpace(request.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(request.AppID) == "" {
		return fmt.Errorf("app id is required")
	}
	status := request.Status
	if status == "" {
		status = storage.RequestStatusPending
	}

	var reviewedAt sql.NullInt64
	if request.ReviewedAt != nil {
		reviewedAt = sql.NullInt64{Int64: toMillis(*request.ReviewedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO access_requests (id, user_id, app_id, message, status, reviewed_by, reviewed_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		request.ID,
		request.UserID,
		request.AppID,
		request.Message,
		status,
		request.ReviewedBy,
		reviewedAt,
		toMillis(request.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("put access request: %w", err)
	}
	return nil
}

// GetAccessRequest fetches an access request by ID.
func (s *Store) GetAccessRequest(ctx context.Context, requestID string) (storage.AccessRequest, error) {
	if err := ctx.Err(); err != nil {
		return storage.AccessRequest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AccessRequest{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(requestID) == "" {
		return storage.AccessRequest{}, fmt.Errorf("request id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, requestSelectColumns+` WHERE id = ?`, requestID)
	return scanAccessRequest(row.Scan)
}

// GetPendingAccessRequest fetches the pending request for a (user, app) pair.
func (s *Store) GetPendingAccessRequest(ctx context.Context, userID string, appID string) (storage.AccessRequest, error) {
	if err := ctx.Err(); err != nil {
		return storage.AccessRequest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AccessRequest{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return storage.AccessRequest{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(appID) == "" {
		return storage.AccessRequest{}, fmt.Errorf("app id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, requestSelectColumns+`
WHERE user_id = ? AND app_id = ? AND status = ?
ORDER BY created_at DESC, id DESC
LIMIT 1
`, userID, appID, storage.RequestStatusPending)
	return scanAccessRequest(row.Scan)
}

// ResolveAccessRequest transitions a pending request to a terminal state.
//
// The UPDATE is guarded on status so two concurrent reviewers cannot both
// resolve the same request. The loser distinguishes a missing request from
// an already resolved one with a follow-up read.
func (s *Store) ResolveAccessRequest(ctx context.Context, requestID string, status string, reviewedBy string, reviewedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(requestID) == "" {
		return fmt.Errorf("request id is required")
	}
	if status != storage.RequestStatusApproved && status != storage.RequestStatusRejected {
		return fmt.Errorf("resolution status %q is invalid", status)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE access_requests
SET status = ?, reviewed_by = ?, reviewed_at = ?
WHERE id = ? AND status = ?
`,
		status,
		reviewedBy,
		toMillis(reviewedAt),
		requestID,
		storage.RequestStatusPending,
	)
	if err != nil {
		return fmt.Errorf("resolve access request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve access request rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetAccessRequest(ctx, requestID); err != nil {
			return err
		}
		return storage.ErrRequestResolved
	}
	return nil
}

// ListAccessRequests returns requests matching the filter, newest first.
func (s *Store) ListAccessRequests(ctx context.Context, filter storage.RequestFilter) ([]storage.AccessRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := requestSelectColumns
	var clauses []string
	var args []any
	if filter.AppID != "" {
		clauses = append(clauses, "app_id = ?")
		args = append(args, filter.AppID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	requests := make([]storage.AccessRequest, 0)
	for rows.Next() {
		request, err := scanAccessRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	return requests, nil
}

const grantSelectColumns = `SELECT
	user_id,
	app_id,
	role,
	granted_at,
	granted_by
FROM access_grants`

func scanAccessGrant(scan func(dest ...any) error) (storage.AccessGrant, error) {
	var grant storage.AccessGrant
	var grantedAt int64
	if err := scan(
		&grant.UserID,
		&grant.AppID,
		&grant.Role,
		&grantedAt,
		&grant.GrantedBy,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AccessGrant{}, storage.ErrNotFound
		}
		return storage.AccessGrant{}, fmt.Errorf("scan access grant: %w", err)
	}
	grant.GrantedAt = fromMillis(grantedAt)
	return grant, nil
}

const requestSelectColumns = `SELECT
	id,
	user_id,
	app_id,
	message,
	status,
	reviewed_by,
	reviewed_at,
	created_at
FROM access_requests`

func scanAccessRequest(scan func(dest ...any) error) (storage.AccessRequest, error) {
	var request storage.AccessRequest
	var reviewedAt sql.NullInt64
	var createdAt int64
	if err := scan(
		&request.ID,
		&request.UserID,
		&request.AppID,
		&request.Message,
		&request.Status,
		&request.ReviewedBy,
		&reviewedAt,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AccessRequest{}, storage.ErrNotFound
		}
		return storage.AccessRequest{}, fmt.Errorf("scan access request: %w", err)
	}
	if reviewedAt.Valid {
		value := fromMillis(reviewedAt.Int64)
		request.ReviewedAt = &value
	}
	request.CreatedAt = fromMillis(createdAt)
	return request, nil
}
