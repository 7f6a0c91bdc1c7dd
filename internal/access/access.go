// Package access manages per-app grants and the request/approval workflow.
package access

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/platform/id"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

// notifications is the slice of the notifier used by the engine. Delivery
// failures never fail the underlying state change.
type notifications interface {
	AccessGranted(ctx context.Context, to string, appName string) error
	AdminAccessRequestAlert(ctx context.Context, admins []user.User, requesterEmail string, appName string, requestMessage string) error
}

// Engine applies grant and request semantics over the stores.
type Engine struct {
	access      storage.AccessStore
	apps        storage.AppStore
	users       storage.UserStore
	notifier    notifications
	now         func() time.Time
	idGenerator func() (string, error)
}

// NewEngine builds an access engine. The notifier may be nil when outbound
// email is not configured.
func NewEngine(access storage.AccessStore, apps storage.AppStore, users storage.UserStore, notifier notifications) (*Engine, error) {
	if access == nil {
		return nil, fmt.Errorf("access store is required")
	}
	if apps == nil {
		return nil, fmt.Errorf("app store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	return &Engine{
		access:      access,
		apps:        apps,
		users:       users,
		notifier:    notifier,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: id.NewID,
	}, nil
}

// Grant gives a user access to an app.
//
// Granting is idempotent: a second grant for the same pair refreshes the
// role instead of failing, so admin retries are safe.
func (e *Engine) Grant(ctx context.Context, userID string, appID string, role string, grantedBy string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e == nil || e.access == nil {
		return fmt.Errorf("access engine is not configured")
	}

	account, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	app, err := e.apps.GetApp(ctx, appID)
	if err != nil {
		return err
	}

	grant := storage.AccessGrant{
		UserID:    account.ID,
		AppID:     app.ID,
		Role:      strings.TrimSpace(role),
		GrantedAt: e.now(),
		GrantedBy: grantedBy,
	}
	if err := e.access.UpsertAccessGrant(ctx, grant); err != nil {
		return fmt.Errorf("store grant: %w", err)
	}

	if e.notifier != nil {
		if err := e.notifier.AccessGranted(ctx, account.Email, app.Name); err != nil {
			log.Printf("access granted notification to %s failed: %v", account.Email, err)
		}
	}
	return nil
}

// Revoke removes a user's access to an app. Revoking a grant that does not
// exist is a no-op.
func (e *Engine) Revoke(ctx context.Context, userID string, appID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e == nil || e.access == nil {
		return fmt.Errorf("access engine is not configured")
	}
	return e.access.DeleteAccessGrant(ctx, userID, appID)
}

// Request records a user's petition for an app grant and alerts subscribed
// admins.
func (e *Engine) Request(ctx context.Context, userID string, appID string, message string) (storage.AccessRequest, error) {
	if err := ctx.Err(); err != nil {
		return storage.AccessRequest{}, err
	}
	if e == nil || e.access == nil {
		return storage.AccessRequest{}, fmt.Errorf("access engine is not configured")
	}

	account, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return storage.AccessRequest{}, err
	}
	app, err := e.apps.GetApp(ctx, appID)
	if err != nil {
		return storage.AccessRequest{}, err
	}

	if _, err := e.access.GetAccessGrant(ctx, account.ID, app.ID); err == nil {
		return storage.AccessRequest{}, apperrors.New(apperrors.CodeAlreadyGranted, "access already granted")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.AccessRequest{}, fmt.Errorf("check grant: %w", err)
	}

	if _, err := e.access.GetPendingAccessRequest(ctx, account.ID, app.ID); err == nil {
		return storage.AccessRequest{}, apperrors.New(apperrors.CodeRequestAlreadyPending, "access request already pending")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.AccessRequest{}, fmt.Errorf("check pending request: %w", err)
	}

	requestID, err := e.idGenerator()
	if err != nil {
		return storage.AccessRequest{}, fmt.Errorf("generate request id: %w", err)
	}
	request := storage.AccessRequest{
		ID:        requestID,
		UserID:    account.ID,
		AppID:     app.ID,
		Message:   strings.TrimSpace(message),
		Status:    storage.RequestStatusPending,
		CreatedAt: e.now(),
	}
	if err := e.access.PutAccessRequest(ctx, request); err != nil {
		// The pending-request unique index closes the gap between the check
		// above and this insert.
		if errors.Is(err, storage.ErrDuplicate) {
			return storage.AccessRequest{}, apperrors.New(apperrors.CodeRequestAlreadyPending, "access request already pending")
		}
		return storage.AccessRequest{}, fmt.Errorf("store request: %w", err)
	}

	if e.notifier != nil {
		admins, err := e.users.ListAdmins(ctx, true)
		if err != nil {
			log.Printf("list admins for access request alert failed: %v", err)
		} else if err := e.notifier.AdminAccessRequestAlert(ctx, admins, account.Email, app.Name, request.Message); err != nil {
			log.Printf("access request alert failed: %v", err)
		}
	}
	return request, nil
}

// Resolve approves or rejects a pending request. Approval also grants.
//
// The request row, not the engine, arbitrates concurrent reviewers: only
// the first resolution lands, the second gets the already-resolved error.
func (e *Engine) Resolve(ctx context.Context, requestID string, approve bool, reviewerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e == nil || e.access == nil {
		return fmt.Errorf("access engine is not configured")
	}

	request, err := e.access.GetAccessRequest(ctx, requestID)
	if err != nil {
		return err
	}

	status := storage.RequestStatusRejected
	if approve {
		status = storage.RequestStatusApproved
	}
	if err := e.access.ResolveAccessRequest(ctx, request.ID, status, reviewerID, e.now()); err != nil {
		return err
	}

	if approve {
		return e.Grant(ctx, request.UserID, request.AppID, "", reviewerID)
	}
	return nil
}

// ListUserGrants returns every grant a user holds.
func (e *Engine) ListUserGrants(ctx context.Context, userID string) ([]storage.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e == nil || e.access == nil {
		return nil, fmt.Errorf("access engine is not configured")
	}
	return e.access.ListAccessGrantsByUser(ctx, userID)
}

// ListAppGrants returns every grant held against an app.
func (e *Engine) ListAppGrants(ctx context.Context, appID string) ([]storage.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e == nil || e.access == nil {
		return nil, fmt.Errorf("access engine is not configured")
	}
	return e.access.ListAccessGrantsByApp(ctx, appID)
}

// GetRequest returns a single access request by ID.
func (e *Engine) GetRequest(ctx context.Context, requestID string) (storage.AccessRequest, error) {
	if err := ctx.Err(); err != nil {
		return storage.AccessRequest{}, err
	}
	if e == nil || e.access == nil {
		return storage.AccessRequest{}, fmt.Errorf("access engine is not configured")
	}
	return e.access.GetAccessRequest(ctx, requestID)
}

// ListRequests returns access requests matching the filter.
func (e *Engine) ListRequests(ctx context.Context, filter storage.RequestFilter) ([]storage.AccessRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e == nil || e.access == nil {
		return nil, fmt.Errorf("access engine is not configured")
	}
	return e.access.ListAccessRequests(ctx, filter)
}

// Check reports whether a user holds a grant for an app.
func (e *Engine) Check(ctx context.Context, userID string, appID string) (storage.AccessGrant, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.AccessGrant{}, false, err
	}
	if e == nil || e.access == nil {
		return storage.AccessGrant{}, false, fmt.Errorf("access engine is not configured")
	}

	grant, err := e.access.GetAccessGrant(ctx, userID, appID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.AccessGrant{}, false, nil
		}
		return storage.AccessGrant{}, false, fmt.Errorf("check grant: %w", err)
	}
	return grant, true, nil
}
