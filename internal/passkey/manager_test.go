package passkey

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

type fakePasskeyStore struct {
	credentials map[string]storage.PasskeyCredential
	ceremonies  map[string]storage.PasskeyCeremony
	signCountOK bool
}

func newFakePasskeyStore() *fakePasskeyStore {
	return &fakePasskeyStore{
		credentials: make(map[string]storage.PasskeyCredential),
		ceremonies:  make(map[string]storage.PasskeyCeremony),
		signCountOK: true,
	}
}

func (f *fakePasskeyStore) PutPasskeyCredential(_ context.Context, credential storage.PasskeyCredential) error {
	f.credentials[credential.CredentialID] = credential
	return nil
}

func (f *fakePasskeyStore) GetPasskeyCredential(_ context.Context, credentialID string) (storage.PasskeyCredential, error) {
	credential, ok := f.credentials[credentialID]
	if !ok {
		return storage.PasskeyCredential{}, storage.ErrNotFound
	}
	return credential, nil
}

func (f *fakePasskeyStore) ListPasskeyCredentials(_ context.Context, userID string) ([]storage.PasskeyCredential, error) {
	var out []storage.PasskeyCredential
	for _, credential := range f.credentials {
		if credential.UserID == userID {
			out = append(out, credential)
		}
	}
	return out, nil
}

func (f *fakePasskeyStore) DeletePasskeyCredential(_ context.Context, credentialID string, userID string) error {
	credential, ok := f.credentials[credentialID]
	if !ok || credential.UserID != userID {
		return storage.ErrNotFound
	}
	delete(f.credentials, credentialID)
	return nil
}

func (f *fakePasskeyStore) UpdatePasskeySignCount(_ context.Context, credentialID string, credentialJSON string, signCount uint32, usedAt time.Time) error {
	credential, ok := f.credentials[credentialID]
	if !ok {
		return storage.ErrNotFound
	}
	if !f.signCountOK {
		return storage.ErrSignCountRegression
	}
	credential.CredentialJSON = credentialJSON
	credential.SignCount = signCount
	credential.LastUsedAt = &usedAt
	f.credentials[credentialID] = credential
	return nil
}

func (f *fakePasskeyStore) PutPasskeyCeremony(_ context.Context, ceremony storage.PasskeyCeremony) error {
	f.ceremonies[ceremony.ID] = ceremony
	return nil
}

func (f *fakePasskeyStore) GetPasskeyCeremony(_ context.Context, ceremonyID string) (storage.PasskeyCeremony, error) {
	ceremony, ok := f.ceremonies[ceremonyID]
	if !ok {
		return storage.PasskeyCeremony{}, storage.ErrNotFound
	}
	return ceremony, nil
}

func (f *fakePasskeyStore) DeletePasskeyCeremony(_ context.Context, ceremonyID string) error {
	delete(f.ceremonies, ceremonyID)
	return nil
}

func (f *fakePasskeyStore) DeleteExpiredPasskeyCeremonies(_ context.Context, now time.Time) error {
	for id, ceremony := range f.ceremonies {
		if !ceremony.ExpiresAt.After(now) {
			delete(f.ceremonies, id)
		}
	}
	return nil
}

type fakeUserStore struct {
	users map[string]user.User
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

func (f *fakeUserStore) ListAdmins(context.Context, bool) ([]user.User, error) { return nil, nil }

func (f *fakeUserStore) DeleteUser(_ context.Context, userID string) error {
	delete(f.users, userID)
	return nil
}

type fakeProvider struct {
	credential *webauthn.Credential
}

func (f *fakeProvider) BeginRegistration(webauthn.User, ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	return &protocol.CredentialCreation{}, &webauthn.SessionData{Challenge: "challenge"}, nil
}

func (f *fakeProvider) CreateCredential(webauthn.User, webauthn.SessionData, *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	return f.credential, nil
}

func (f *fakeProvider) BeginLogin(webauthn.User, ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: "challenge"}, nil
}

func (f *fakeProvider) BeginDiscoverableLogin(...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: "challenge"}, nil
}

func (f *fakeProvider) ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, _ webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error) {
	validated, err := handler(nil, []byte("user-1"))
	if err != nil {
		return nil, nil, err
	}
	return validated, f.credential, nil
}

type fakeParser struct{}

func (fakeParser) ParseCredentialCreationResponseBytes([]byte) (*protocol.ParsedCredentialCreationData, error) {
	return &protocol.ParsedCredentialCreationData{}, nil
}

func (fakeParser) ParseCredentialRequestResponseBytes([]byte) (*protocol.ParsedCredentialAssertionData, error) {
	return &protocol.ParsedCredentialAssertionData{}, nil
}

func newTestManager(t *testing.T) (*Manager, *fakePasskeyStore, *fakeUserStore, *fakeProvider) {
	t.Helper()
	store := newFakePasskeyStore()
	users := &fakeUserStore{users: map[string]user.User{
		"user-1": {ID: "user-1", Email: "person@example.com", Name: "Person", Status: user.StatusApproved},
	}}
	manager, err := NewManager(store, users, Config{
		RPDisplayName: "staticauth",
		RPID:          "example.com",
		RPOrigins:     []string{"https://auth.example.com"},
		CeremonyTTL:   5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	provider := &fakeProvider{credential: &webauthn.Credential{
		ID: []byte("cred-raw-id"),
		Authenticator: webauthn.Authenticator{
			SignCount: 7,
		},
	}}
	manager.webAuthn = provider
	manager.parser = fakeParser{}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return base }
	sequence := 0
	manager.idGenerator = func() (string, error) {
		sequence++
		return "ceremony-" + string(rune('0'+sequence)), nil
	}
	return manager, store, users, provider
}

func TestBeginRegistrationStoresCeremony(t *testing.T) {
	manager, store, _, _ := newTestManager(t)

	ceremonyID, optionsJSON, err := manager.BeginRegistration(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	if len(optionsJSON) == 0 {
		t.Fatal("expected creation options")
	}

	ceremony, ok := store.ceremonies[ceremonyID]
	if !ok {
		t.Fatal("expected ceremony persisted")
	}
	if ceremony.Kind != string(CeremonyKindRegistration) || ceremony.UserID != "user-1" {
		t.Fatalf("unexpected ceremony: %+v", ceremony)
	}

	var data webauthn.SessionData
	if err := json.Unmarshal([]byte(ceremony.SessionJSON), &data); err != nil {
		t.Fatalf("decode ceremony: %v", err)
	}
	if data.Challenge != "challenge" {
		t.Fatalf("unexpected session data: %+v", data)
	}
}

func TestFinishRegistrationStoresCredential(t *testing.T) {
	manager, store, _, _ := newTestManager(t)
	ctx := context.Background()

	ceremonyID, _, err := manager.BeginRegistration(ctx, "user-1")
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}

	credentialID, err := manager.FinishRegistration(ctx, ceremonyID, []byte(`{}`), "Work laptop")
	if err != nil {
		t.Fatalf("finish registration: %v", err)
	}

	credential, ok := store.credentials[credentialID]
	if !ok {
		t.Fatal("expected credential persisted")
	}
	if credential.UserID != "user-1" || credential.Name != "Work laptop" {
		t.Fatalf("unexpected credential: %+v", credential)
	}
	if credential.SignCount != 7 {
		t.Fatalf("expected sign count captured, got %d", credential.SignCount)
	}
	if _, ok := store.ceremonies[ceremonyID]; ok {
		t.Fatal("expected ceremony consumed")
	}
}

func TestFinishRegistrationCeremonySingleUse(t *testing.T) {
	manager, _, _, _ := newTestManager(t)
	ctx := context.Background()

	ceremonyID, _, err := manager.BeginRegistration(ctx, "user-1")
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	if _, err := manager.FinishRegistration(ctx, ceremonyID, []byte(`{}`), ""); err != nil {
		t.Fatalf("finish registration: %v", err)
	}

	_, err = manager.FinishRegistration(ctx, ceremonyID, []byte(`{}`), "")
	if apperrors.CodeOf(err) != apperrors.CodeCeremonyInvalid {
		t.Fatalf("expected consumed ceremony rejected, got %v", err)
	}
}

func TestFinishRegistrationExpiredCeremony(t *testing.T) {
	manager, _, _, _ := newTestManager(t)
	ctx := context.Background()

	ceremonyID, _, err := manager.BeginRegistration(ctx, "user-1")
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}

	started := manager.now()
	manager.now = func() time.Time { return started.Add(10 * time.Minute) }

	_, err = manager.FinishRegistration(ctx, ceremonyID, []byte(`{}`), "")
	if apperrors.CodeOf(err) != apperrors.CodeChallengeExpired {
		t.Fatalf("expected expired ceremony, got %v", err)
	}
}

func TestFinishLoginKindMismatch(t *testing.T) {
	manager, _, _, _ := newTestManager(t)
	ctx := context.Background()

	ceremonyID, _, err := manager.BeginRegistration(ctx, "user-1")
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}

	_, err = manager.FinishLogin(ctx, ceremonyID, []byte(`{}`))
	if apperrors.CodeOf(err) != apperrors.CodeCeremonyInvalid {
		t.Fatalf("expected kind mismatch rejected, got %v", err)
	}
}

func TestFinishLoginAdvancesSignCount(t *testing.T) {
	manager, store, _, _ := newTestManager(t)
	ctx := context.Background()

	seedCredential(t, store)

	ceremonyID, _, err := manager.BeginLogin(ctx, "person@example.com")
	if err != nil {
		t.Fatalf("begin login: %v", err)
	}

	account, err := manager.FinishLogin(ctx, ceremonyID, []byte(`{}`))
	if err != nil {
		t.Fatalf("finish login: %v", err)
	}
	if account.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", account)
	}

	credential := store.credentials[encodeCredentialID([]byte("cred-raw-id"))]
	if credential.SignCount != 7 {
		t.Fatalf("expected sign count advanced to 7, got %d", credential.SignCount)
	}
	if credential.LastUsedAt == nil {
		t.Fatal("expected last used recorded")
	}
}

func TestFinishLoginSignCountRegression(t *testing.T) {
	manager, store, _, _ := newTestManager(t)
	ctx := context.Background()

	seedCredential(t, store)
	store.signCountOK = false

	ceremonyID, _, err := manager.BeginLogin(ctx, "person@example.com")
	if err != nil {
		t.Fatalf("begin login: %v", err)
	}

	_, err = manager.FinishLogin(ctx, ceremonyID, []byte(`{}`))
	if apperrors.CodeOf(err) != apperrors.CodeReplayDetected {
		t.Fatalf("expected replay detected, got %v", err)
	}
}

func TestFinishLoginCloneWarning(t *testing.T) {
	manager, store, _, provider := newTestManager(t)
	ctx := context.Background()

	seedCredential(t, store)
	provider.credential.Authenticator.CloneWarning = true

	ceremonyID, _, err := manager.BeginLogin(ctx, "person@example.com")
	if err != nil {
		t.Fatalf("begin login: %v", err)
	}

	_, err = manager.FinishLogin(ctx, ceremonyID, []byte(`{}`))
	if apperrors.CodeOf(err) != apperrors.CodeReplayDetected {
		t.Fatalf("expected clone warning rejected, got %v", err)
	}
}

func TestBeginLoginUnknownEmail(t *testing.T) {
	manager, _, _, _ := newTestManager(t)

	_, _, err := manager.BeginLogin(context.Background(), "missing@example.com")
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBeginLoginNoCredentials(t *testing.T) {
	manager, _, _, _ := newTestManager(t)

	// The user exists but never registered a passkey. This is a client
	// mistake, not a server fault.
	_, _, err := manager.BeginLogin(context.Background(), "person@example.com")
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBeginLoginDiscoverable(t *testing.T) {
	manager, store, _, _ := newTestManager(t)

	ceremonyID, _, err := manager.BeginLogin(context.Background(), "")
	if err != nil {
		t.Fatalf("begin discoverable login: %v", err)
	}
	ceremony := store.ceremonies[ceremonyID]
	if ceremony.UserID != "" {
		t.Fatalf("expected unbound ceremony, got %+v", ceremony)
	}
}

func TestPruneExpiredCeremonies(t *testing.T) {
	manager, store, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, _, err := manager.BeginLogin(ctx, ""); err != nil {
		t.Fatalf("begin login: %v", err)
	}

	started := manager.now()
	manager.now = func() time.Time { return started.Add(time.Hour) }

	if err := manager.PruneExpiredCeremonies(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(store.ceremonies) != 0 {
		t.Fatalf("expected ceremonies pruned, got %d", len(store.ceremonies))
	}
}

func seedCredential(t *testing.T, store *fakePasskeyStore) {
	t.Helper()
	credential := webauthn.Credential{ID: []byte("cred-raw-id")}
	payload, err := json.Marshal(credential)
	if err != nil {
		t.Fatalf("encode credential: %v", err)
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.credentials[encodeCredentialID(credential.ID)] = storage.PasskeyCredential{
		CredentialID:   encodeCredentialID(credential.ID),
		UserID:         "user-1",
		CredentialJSON: string(payload),
		SignCount:      3,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
