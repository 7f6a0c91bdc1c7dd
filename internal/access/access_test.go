package access

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

type grantKey struct {
	userID string
	appID  string
}

type fakeAccessStore struct {
	grants   map[grantKey]storage.AccessGrant
	requests map[string]storage.AccessRequest

	// hidePending makes GetPendingAccessRequest miss, standing in for a
	// concurrent request that landed between the check and the insert.
	hidePending bool
}

func newFakeAccessStore() *fakeAccessStore {
	return &fakeAccessStore{
		grants:   make(map[grantKey]storage.AccessGrant),
		requests: make(map[string]storage.AccessRequest),
	}
}

func (f *fakeAccessStore) UpsertAccessGrant(_ context.Context, grant storage.AccessGrant) error {
	f.grants[grantKey{grant.UserID, grant.AppID}] = grant
	return nil
}

func (f *fakeAccessStore) GetAccessGrant(_ context.Context, userID string, appID string) (storage.AccessGrant, error) {
	grant, ok := f.grants[grantKey{userID, appID}]
	if !ok {
		return storage.AccessGrant{}, storage.ErrNotFound
	}
	return grant, nil
}

func (f *fakeAccessStore) DeleteAccessGrant(_ context.Context, userID string, appID string) error {
	delete(f.grants, grantKey{userID, appID})
	return nil
}

func (f *fakeAccessStore) ListAccessGrantsByUser(_ context.Context, userID string) ([]storage.AccessGrant, error) {
	var out []storage.AccessGrant
	for key, grant := range f.grants {
		if key.userID == userID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (f *fakeAccessStore) ListAccessGrantsByApp(_ context.Context, appID string) ([]storage.AccessGrant, error) {
	var out []storage.AccessGrant
	for key, grant := range f.grants {
		if key.appID == appID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (f *fakeAccessStore) PutAccessRequest(_ context.Context, request storage.AccessRequest) error {
	if request.Status == "" || request.Status == storage.RequestStatusPending {
		for _, existing := range f.requests {
			if existing.UserID == request.UserID && existing.AppID == request.AppID && existing.Status == storage.RequestStatusPending {
				return storage.ErrDuplicate
			}
		}
	}
	f.requests[request.ID] = request
	return nil
}

func (f *fakeAccessStore) GetAccessRequest(_ context.Context, requestID string) (storage.AccessRequest, error) {
	request, ok := f.requests[requestID]
	if !ok {
		return storage.AccessRequest{}, storage.ErrNotFound
	}
	return request, nil
}

func (f *fakeAccessStore) GetPendingAccessRequest(_ context.Context, userID string, appID string) (storage.AccessRequest, error) {
	if f.hidePending {
		return storage.AccessRequest{}, storage.ErrNotFound
	}
	for _, request := range f.requests {
		if request.UserID == userID && request.AppID == appID && request.Status == storage.RequestStatusPending {
			return request, nil
		}
	}
	return storage.AccessRequest{}, storage.ErrNotFound
}

func (f *fakeAccessStore) ResolveAccessRequest(_ context.Context, requestID string, status string, reviewedBy string, reviewedAt time.Time) error {
	request, ok := f.requests[requestID]
	if !ok {
		return storage.ErrNotFound
	}
	if request.Status != storage.RequestStatusPending {
		return storage.ErrRequestResolved
	}
	request.Status = status
	request.ReviewedBy = reviewedBy
	request.ReviewedAt = &reviewedAt
	f.requests[requestID] = request
	return nil
}

func (f *fakeAccessStore) ListAccessRequests(_ context.Context, filter storage.RequestFilter) ([]storage.AccessRequest, error) {
	var out []storage.AccessRequest
	for _, request := range f.requests {
		if filter.AppID != "" && request.AppID != filter.AppID {
			continue
		}
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		out = append(out, request)
	}
	return out, nil
}

type fakeAppStore struct {
	apps map[string]storage.App
}

func (f *fakeAppStore) PutApp(_ context.Context, app storage.App) error {
	f.apps[app.ID] = app
	return nil
}

func (f *fakeAppStore) GetApp(_ context.Context, appID string) (storage.App, error) {
	app, ok := f.apps[appID]
	if !ok {
		return storage.App{}, storage.ErrNotFound
	}
	return app, nil
}

func (f *fakeAppStore) GetAppBySlug(_ context.Context, slug string) (storage.App, error) {
	for _, app := range f.apps {
		if app.Slug == slug {
			return app, nil
		}
	}
	return storage.App{}, storage.ErrNotFound
}

func (f *fakeAppStore) ListApps(context.Context) ([]storage.App, error) { return nil, nil }

func (f *fakeAppStore) ListPublicApps(context.Context) ([]storage.App, error) { return nil, nil }

func (f *fakeAppStore) DeleteApp(_ context.Context, appID string) error {
	delete(f.apps, appID)
	return nil
}

type fakeUserStore struct {
	users  map[string]user.User
	admins []user.User
}

func (f *fakeUserStore) PutUser(_ context.Context, u user.User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserStore) GetUser(_ context.Context, userID string) (user.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (f *fakeUserStore) ListUsers(context.Context, storage.UserFilter) (storage.UserPage, error) {
	return storage.UserPage{}, nil
}

func (f *fakeUserStore) ListAdmins(context.Context, bool) ([]user.User, error) {
	return f.admins, nil
}

func (f *fakeUserStore) DeleteUser(_ context.Context, userID string) error {
	delete(f.users, userID)
	return nil
}

type recordingNotifications struct {
	granted []string
	alerts  []string
}

func (r *recordingNotifications) AccessGranted(_ context.Context, to string, appName string) error {
	r.granted = append(r.granted, to+":"+appName)
	return nil
}

func (r *recordingNotifications) AdminAccessRequestAlert(_ context.Context, admins []user.User, requesterEmail string, appName string, _ string) error {
	for range admins {
		r.alerts = append(r.alerts, requesterEmail+":"+appName)
	}
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeAccessStore, *recordingNotifications) {
	t.Helper()
	access := newFakeAccessStore()
	apps := &fakeAppStore{apps: map[string]storage.App{
		"app-1": {ID: "app-1", Slug: "wiki", Name: "Wiki"},
	}}
	users := &fakeUserStore{
		users: map[string]user.User{
			"user-1":  {ID: "user-1", Email: "person@example.com", Status: user.StatusApproved},
			"admin-1": {ID: "admin-1", Email: "admin@example.com", Status: user.StatusApproved, IsAdmin: true},
		},
		admins: []user.User{{ID: "admin-1", Email: "admin@example.com", IsAdmin: true}},
	}
	notifier := &recordingNotifications{}
	engine, err := NewEngine(access, apps, users, notifier)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }
	sequence := 0
	engine.idGenerator = func() (string, error) {
		sequence++
		return "req-" + string(rune('0'+sequence)), nil
	}
	return engine, access, notifier
}

func TestGrantIsIdempotent(t *testing.T) {
	engine, access, notifier := newTestEngine(t)
	ctx := context.Background()

	if err := engine.Grant(ctx, "user-1", "app-1", "viewer", "admin-1"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := engine.Grant(ctx, "user-1", "app-1", "editor", "admin-1"); err != nil {
		t.Fatalf("re-grant: %v", err)
	}

	if len(access.grants) != 1 {
		t.Fatalf("expected single grant, got %d", len(access.grants))
	}
	grant := access.grants[grantKey{"user-1", "app-1"}]
	if grant.Role != "editor" {
		t.Fatalf("expected refreshed role, got %+v", grant)
	}
	if len(notifier.granted) != 2 {
		t.Fatalf("expected grant notifications, got %d", len(notifier.granted))
	}
}

func TestGrantUnknownUser(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	err := engine.Grant(context.Background(), "missing", "app-1", "", "admin-1")
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevokeMissingGrantIsNoOp(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.Revoke(context.Background(), "user-1", "app-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
}

func TestRequestCreatesPendingAndAlertsAdmins(t *testing.T) {
	engine, access, notifier := newTestEngine(t)

	request, err := engine.Request(context.Background(), "user-1", "app-1", "need it")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if request.Status != storage.RequestStatusPending {
		t.Fatalf("expected pending request, got %+v", request)
	}
	if len(access.requests) != 1 {
		t.Fatalf("expected stored request, got %d", len(access.requests))
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected admin alert, got %d", len(notifier.alerts))
	}
}

func TestRequestRejectsDuplicatePending(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Request(ctx, "user-1", "app-1", ""); err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err := engine.Request(ctx, "user-1", "app-1", "")
	if apperrors.CodeOf(err) != apperrors.CodeRequestAlreadyPending {
		t.Fatalf("expected already pending, got %v", err)
	}
}

func TestRequestDuplicateInsertMapsToPending(t *testing.T) {
	engine, access, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Request(ctx, "user-1", "app-1", ""); err != nil {
		t.Fatalf("request: %v", err)
	}

	// A racing request slips past the pending check; the store's unique
	// index catches it and the caller still sees "already pending".
	access.hidePending = true
	_, err := engine.Request(ctx, "user-1", "app-1", "")
	if apperrors.CodeOf(err) != apperrors.CodeRequestAlreadyPending {
		t.Fatalf("expected already pending, got %v", err)
	}
	if len(access.requests) != 1 {
		t.Fatalf("expected single stored request, got %d", len(access.requests))
	}
}

func TestRequestRejectsExistingGrant(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.Grant(ctx, "user-1", "app-1", "", "admin-1"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	_, err := engine.Request(ctx, "user-1", "app-1", "")
	if apperrors.CodeOf(err) != apperrors.CodeAlreadyGranted {
		t.Fatalf("expected already granted, got %v", err)
	}
}

func TestResolveApproveGrants(t *testing.T) {
	engine, access, _ := newTestEngine(t)
	ctx := context.Background()

	request, err := engine.Request(ctx, "user-1", "app-1", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if err := engine.Resolve(ctx, request.ID, true, "admin-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stored := access.requests[request.ID]
	if stored.Status != storage.RequestStatusApproved || stored.ReviewedBy != "admin-1" {
		t.Fatalf("unexpected resolved request: %+v", stored)
	}
	if _, ok := access.grants[grantKey{"user-1", "app-1"}]; !ok {
		t.Fatal("expected approval to grant access")
	}
}

func TestResolveRejectDoesNotGrant(t *testing.T) {
	engine, access, _ := newTestEngine(t)
	ctx := context.Background()

	request, err := engine.Request(ctx, "user-1", "app-1", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if err := engine.Resolve(ctx, request.ID, false, "admin-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(access.grants) != 0 {
		t.Fatal("expected rejection to not grant access")
	}
}

func TestResolveTwiceFails(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	request, err := engine.Request(ctx, "user-1", "app-1", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := engine.Resolve(ctx, request.ID, true, "admin-1"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	err = engine.Resolve(ctx, request.ID, false, "admin-2")
	if apperrors.CodeOf(err) != apperrors.CodeRequestAlreadyResolved {
		t.Fatalf("expected already resolved, got %v", err)
	}
}

func TestCheckReflectsGrantAndRevoke(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, ok, err := engine.Check(ctx, "user-1", "app-1")
	if err != nil || ok {
		t.Fatalf("expected no grant, got ok=%v err=%v", ok, err)
	}

	if err := engine.Grant(ctx, "user-1", "app-1", "viewer", "admin-1"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	grant, ok, err := engine.Check(ctx, "user-1", "app-1")
	if err != nil || !ok {
		t.Fatalf("expected grant, got ok=%v err=%v", ok, err)
	}
	if grant.Role != "viewer" {
		t.Fatalf("unexpected grant: %+v", grant)
	}

	if err := engine.Revoke(ctx, "user-1", "app-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, ok, err = engine.Check(ctx, "user-1", "app-1")
	if err != nil || ok {
		t.Fatalf("expected revoked grant invisible, got ok=%v err=%v", ok, err)
	}
}
