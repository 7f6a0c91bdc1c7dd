package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/snehasaisneha/staticauth/internal/storage"
)

// PutApp upserts an application record keyed by ID. Slug collisions with a
// different app surface as storage.ErrDuplicate.
func (s *Store) PutApp(ctx context.Context, app storage.App) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(app.ID) == "" {
		return fmt.Errorf("app id is required")
	}
	if strings.TrimSpace(app.Slug) == "" {
		return fmt.Errorf("app slug is required")
	}
	if strings.TrimSpace(app.Name) == "" {
		return fmt.Errorf("app name is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO apps (id, slug, name, is_public, description, app_url, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	slug = excluded.slug,
	name = excluded.name,
	is_public = excluded.is_public,
	description = excluded.description,
	app_url = excluded.app_url
`,
		app.ID,
		app.Slug,
		app.Name,
		boolToInt(app.IsPublic),
		app.Description,
		app.AppURL,
		toMillis(app.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("put app: %w", err)
	}
	return nil
}

// GetApp fetches an app by ID.
func (s *Store) GetApp(ctx context.Context, appID string) (storage.App, error) {
	if err := ctx.Err(); err != nil {
		return storage.App{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.App{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(appID) == "" {
		return storage.App{}, fmt.Errorf("app id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, appSelectColumns+` WHERE id = ?`, appID)
	return scanApp(row.Scan)
}

// GetAppBySlug fetches an app by its slug.
func (s *Store) GetAppBySlug(ctx context.Context, slug string) (storage.App, error) {
	if err := ctx.Err(); err != nil {
		return storage.App{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.App{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(slug) == "" {
		return storage.App{}, fmt.Errorf("app slug is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, appSelectColumns+` WHERE slug = ?`, slug)
	return scanApp(row.Scan)
}

// ListApps returns every registered app ordered by name.
func (s *Store) ListApps(ctx context.Context) ([]storage.App, error) {
	return s.listApps(ctx, appSelectColumns+" ORDER BY name, id")
}

// ListPublicApps returns apps flagged for the public directory.
func (s *Store) ListPublicApps(ctx context.Context) ([]storage.App, error) {
	return s.listApps(ctx, appSelectColumns+" WHERE is_public = 1 ORDER BY name, id")
}

func (s *Store) listApps(ctx context.Context, query string) ([]storage.App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	apps := make([]storage.App, 0)
	for rows.Next() {
		app, err := scanApp(rows.Scan)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return apps, nil
}

// DeleteApp removes the app and all dependent rows in one transaction.
func (s *Store) DeleteApp(ctx context.Context, appID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(appID) == "" {
		return fmt.Errorf("app id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete app: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM access_grants WHERE app_id = ?",
		"DELETE FROM access_requests WHERE app_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, appID); err != nil {
			return fmt.Errorf("delete app dependents: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM apps WHERE id = ?", appID)
	if err != nil {
		return fmt.Errorf("delete app: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete app rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete app: %w", err)
	}
	return nil
}

const appSelectColumns = `SELECT
	id,
	slug,
	name,
	is_public,
	description,
	app_url,
	created_at
FROM apps`

func scanApp(scan func(dest ...any) error) (storage.App, error) {
	var app storage.App
	var isPublic int
	var createdAt int64
	if err := scan(
		&app.ID,
		&app.Slug,
		&app.Name,
		&isPublic,
		&app.Description,
		&app.AppURL,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.App{}, storage.ErrNotFound
		}
		return storage.App{}, fmt.Errorf("scan app: %w", err)
	}
	app.IsPublic = isPublic != 0
	app.CreatedAt = fromMillis(createdAt)
	return app, nil
}
