// Package storage defines the persistence interfaces and row types for all
// durable authentication and access-control state.
//
// The store exclusively owns persisted state: every authorization decision
// reads back through it so revocation is immediate, and no component keeps a
// long-lived in-process copy of security-sensitive rows.
package storage

import (
	"context"
	"time"

	"github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/user"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrDuplicate indicates an insert collided with a uniqueness constraint.
var ErrDuplicate = errors.New(errors.CodeAlreadyExists, "record already exists")

// ErrSignCountRegression indicates a passkey counter update that did not
// advance the stored value. The caller treats this as replay.
var ErrSignCountRegression = errors.New(errors.CodeReplayDetected, "sign count did not advance")

// ErrRequestResolved indicates an access request that already left the
// pending state.
var ErrRequestResolved = errors.New(errors.CodeRequestAlreadyResolved, "access request already resolved")

// UserStore persists account records.
type UserStore interface {
	PutUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context, filter UserFilter) (UserPage, error)
	ListAdmins(ctx context.Context, notifyOnly bool) ([]user.User, error)
	// DeleteUser removes the user and cascades sessions, passkeys, grants,
	// and access requests in a single transaction.
	DeleteUser(ctx context.Context, userID string) error
}

// UserFilter restricts and pages a user listing.
type UserFilter struct {
	Status user.Status // empty for all
	Limit  int
	Offset int
}

// UserPage describes a page of user records plus the unpaged total.
type UserPage struct {
	Users []user.User
	Total int
}

// Session is a durable authenticated session row.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore persists session tokens.
type SessionStore interface {
	// PutSession inserts a session. A token collision returns ErrDuplicate;
	// the caller retries with a fresh token rather than overwriting.
	PutSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteSessionsByUser(ctx context.Context, userID string) error
}

// OneTimeCode is an emailed short-lived verification code.
type OneTimeCode struct {
	ID        string
	Email     string
	Code      string
	Purpose   string
	ExpiresAt time.Time
	Used      bool
	Attempts  int
	CreatedAt time.Time
}

// OTPStore persists one-time codes.
type OTPStore interface {
	PutOneTimeCode(ctx context.Context, code OneTimeCode) error
	// GetLatestOneTimeCode returns the newest unused code for the pair,
	// expired or not. Expiry policy belongs to the verifier.
	GetLatestOneTimeCode(ctx context.Context, email string, purpose string) (OneTimeCode, error)
	// IncrementOneTimeCodeAttempts atomically bumps the attempt counter and
	// returns the post-increment value. Concurrent verifiers each observe a
	// distinct count, so the attempt ceiling cannot be bypassed by racing.
	IncrementOneTimeCodeAttempts(ctx context.Context, codeID string) (int, error)
	MarkOneTimeCodeUsed(ctx context.Context, codeID string) error
	// BurnOneTimeCodes marks every unused code for the pair as used.
	BurnOneTimeCodes(ctx context.Context, email string, purpose string) error
}

// PasskeyCredential stores a WebAuthn credential for a user.
//
// SignCount mirrors the counter inside CredentialJSON so the anti-replay
// update can be a single conditional SQL write.
type PasskeyCredential struct {
	CredentialID   string
	UserID         string
	Name           string
	CredentialJSON string
	SignCount      uint32
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastUsedAt     *time.Time
}

// PasskeyCeremony stores an in-flight WebAuthn registration or login
// challenge. Ceremonies are single use and time bounded.
type PasskeyCeremony struct {
	ID          string
	Kind        string
	UserID      string
	SessionJSON string
	ExpiresAt   time.Time
}

// PasskeyStore persists WebAuthn credential and ceremony data.
type PasskeyStore interface {
	PutPasskeyCredential(ctx context.Context, credential PasskeyCredential) error
	GetPasskeyCredential(ctx context.Context, credentialID string) (PasskeyCredential, error)
	ListPasskeyCredentials(ctx context.Context, userID string) ([]PasskeyCredential, error)
	DeletePasskeyCredential(ctx context.Context, credentialID string, userID string) error
	// UpdatePasskeySignCount conditionally advances the stored counter.
	// The write only lands when it would strictly advance the stored value
	// (or both counters are zero, the authenticator-without-counter case);
	// otherwise ErrSignCountRegression is returned and nothing changes.
	UpdatePasskeySignCount(ctx context.Context, credentialID string, credentialJSON string, signCount uint32, usedAt time.Time) error

	PutPasskeyCeremony(ctx context.Context, ceremony PasskeyCeremony) error
	GetPasskeyCeremony(ctx context.Context, ceremonyID string) (PasskeyCeremony, error)
	DeletePasskeyCeremony(ctx context.Context, ceremonyID string) error
	DeleteExpiredPasskeyCeremonies(ctx context.Context, now time.Time) error
}

// App is a protected downstream application.
type App struct {
	ID          string
	Slug        string
	Name        string
	IsPublic    bool
	Description string
	AppURL      string
	CreatedAt   time.Time
}

// AppStore persists application records.
type AppStore interface {
	// PutApp upserts by ID. A slug collision with another app returns
	// ErrDuplicate.
	PutApp(ctx context.Context, app App) error
	GetApp(ctx context.Context, appID string) (App, error)
	GetAppBySlug(ctx context.Context, slug string) (App, error)
	ListApps(ctx context.Context) ([]App, error)
	ListPublicApps(ctx context.Context) ([]App, error)
	// DeleteApp removes the app and cascades grants and access requests.
	DeleteApp(ctx context.Context, appID string) error
}

// AccessGrant records that a user may reach an app, with an optional role
// hint interpreted only by the downstream application.
type AccessGrant struct {
	UserID    string
	AppID     string
	Role      string
	GrantedAt time.Time
	GrantedBy string
}

// Access request lifecycle states.
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// AccessRequest is a user's petition for an app grant.
type AccessRequest struct {
	ID         string
	UserID     string
	AppID      string
	Message    string
	Status     string
	ReviewedBy string
	ReviewedAt *time.Time
	CreatedAt  time.Time
}

// AccessStore persists grants and access requests.
type AccessStore interface {
	// UpsertAccessGrant inserts or, for an existing (user, app) pair,
	// updates the role hint. At most one grant per pair ever exists.
	UpsertAccessGrant(ctx context.Context, grant AccessGrant) error
	GetAccessGrant(ctx context.Context, userID string, appID string) (AccessGrant, error)
	// DeleteAccessGrant is a no-op when no grant exists.
	DeleteAccessGrant(ctx context.Context, userID string, appID string) error
	ListAccessGrantsByUser(ctx context.Context, userID string) ([]AccessGrant, error)
	ListAccessGrantsByApp(ctx context.Context, appID string) ([]AccessGrant, error)

	PutAccessRequest(ctx context.Context, request AccessRequest) error
	GetAccessRequest(ctx context.Context, requestID string) (AccessRequest, error)
	GetPendingAccessRequest(ctx context.Context, userID string, appID string) (AccessRequest, error)
	// ResolveAccessRequest transitions a pending request. A request that
	// already left pending returns ErrRequestResolved.
	ResolveAccessRequest(ctx context.Context, requestID string, status string, reviewedBy string, reviewedAt time.Time) error
	ListAccessRequests(ctx context.Context, filter RequestFilter) ([]AccessRequest, error)
}

// RequestFilter restricts an access-request listing.
type RequestFilter struct {
	AppID  string // empty for all apps
	Status string // empty for all states
}
