// Package passkey runs WebAuthn registration and login ceremonies.
package passkey

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/platform/id"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

// provider is the slice of the go-webauthn API the manager uses. It exists
// so tests can substitute ceremony outcomes without a real authenticator.
type provider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type parser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Manager drives passkey ceremonies against the relying-party config.
//
// Ceremony state is persisted, not held in memory, so any replica can finish
// a ceremony another replica began.
type Manager struct {
	store       storage.PasskeyStore
	users       storage.UserStore
	webAuthn    provider
	parser      parser
	config      Config
	now         func() time.Time
	idGenerator func() (string, error)
}

// NewManager builds a passkey manager over the given stores.
func NewManager(store storage.PasskeyStore, users storage.UserStore, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("passkey store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &Manager{
		store:       store,
		users:       users,
		webAuthn:    web,
		parser:      defaultParser{},
		config:      cfg,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: id.NewID,
	}, nil
}

// BeginRegistration opens a credential creation ceremony for a user.
//
// Existing credentials are excluded so an authenticator cannot register the
// same key twice.
func (m *Manager) BeginRegistration(ctx context.Context, userID string) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if m == nil || m.webAuthn == nil {
		return "", nil, fmt.Errorf("passkey manager is not configured")
	}

	account, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	webUser, err := m.loadWebAuthnUser(ctx, account)
	if err != nil {
		return "", nil, fmt.Errorf("load passkey user: %w", err)
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(webUser.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(webUser.credentials).CredentialDescriptors()))
	}

	creation, sessionData, err := m.webAuthn.BeginRegistration(webUser, options...)
	if err != nil {
		return "", nil, fmt.Errorf("begin passkey registration: %w", err)
	}

	ceremonyID, err := m.storeCeremony(ctx, CeremonyKindRegistration, account.ID, sessionData)
	if err != nil {
		return "", nil, err
	}
	optionsJSON, err := json.Marshal(creation)
	if err != nil {
		return "", nil, fmt.Errorf("encode registration options: %w", err)
	}
	return ceremonyID, optionsJSON, nil
}

// FinishRegistration validates the authenticator response and stores the
// new credential under the given display name.
func (m *Manager) FinishRegistration(ctx context.Context, ceremonyID string, responseJSON []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m == nil || m.webAuthn == nil {
		return "", fmt.Errorf("passkey manager is not configured")
	}
	if len(responseJSON) == 0 {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "credential response is required")
	}

	ceremony, err := m.consumeCeremony(ctx, ceremonyID, CeremonyKindRegistration)
	if err != nil {
		return "", err
	}
	if ceremony.UserID == "" {
		return "", apperrors.New(apperrors.CodeCeremonyInvalid, "ceremony is not bound to a user")
	}

	account, err := m.users.GetUser(ctx, ceremony.UserID)
	if err != nil {
		return "", err
	}
	webUser, err := m.loadWebAuthnUser(ctx, account)
	if err != nil {
		return "", fmt.Errorf("load passkey user: %w", err)
	}

	parsed, err := m.parser.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeCeremonyInvalid, "parse credential response", err)
	}
	credential, err := m.webAuthn.CreateCredential(webUser, ceremony.Data, parsed)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeCeremonyInvalid, "validate credential response", err)
	}

	credentialJSON, err := json.Marshal(credential)
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	now := m.now()
	credentialID := encodeCredentialID(credential.ID)
	record := storage.PasskeyCredential{
		CredentialID:   credentialID,
		UserID:         account.ID,
		Name:           strings.TrimSpace(name),
		CredentialJSON: string(credentialJSON),
		SignCount:      credential.Authenticator.SignCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.PutPasskeyCredential(ctx, record); err != nil {
		return "", fmt.Errorf("store passkey credential: %w", err)
	}
	return credentialID, nil
}

// BeginLogin opens an assertion ceremony.
//
// With an email it scopes the challenge to that user's credentials; without
// one it runs a discoverable ceremony and lets the authenticator pick.
func (m *Manager) BeginLogin(ctx context.Context, email string) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if m == nil || m.webAuthn == nil {
		return "", nil, fmt.Errorf("passkey manager is not configured")
	}

	var (
		assertion   *protocol.CredentialAssertion
		sessionData *webauthn.SessionData
		userID      string
	)
	if strings.TrimSpace(email) == "" {
		var err error
		assertion, sessionData, err = m.webAuthn.BeginDiscoverableLogin()
		if err != nil {
			return "", nil, fmt.Errorf("begin passkey login: %w", err)
		}
	} else {
		normalized, err := user.NormalizeEmail(email)
		if err != nil {
			return "", nil, err
		}
		account, err := m.users.GetUserByEmail(ctx, normalized)
		if err != nil {
			return "", nil, err
		}
		webUser, err := m.loadWebAuthnUser(ctx, account)
		if err != nil {
			return "", nil, fmt.Errorf("load passkey user: %w", err)
		}
		if len(webUser.credentials) == 0 {
			return "", nil, apperrors.New(apperrors.CodeNotFound, "no passkeys registered")
		}
		assertion, sessionData, err = m.webAuthn.BeginLogin(webUser)
		if err != nil {
			return "", nil, fmt.Errorf("begin passkey login: %w", err)
		}
		userID = account.ID
	}

	ceremonyID, err := m.storeCeremony(ctx, CeremonyKindLogin, userID, sessionData)
	if err != nil {
		return "", nil, err
	}
	optionsJSON, err := json.Marshal(assertion)
	if err != nil {
		return "", nil, fmt.Errorf("encode login options: %w", err)
	}
	return ceremonyID, optionsJSON, nil
}

// FinishLogin validates the assertion and returns the authenticated user.
//
// The credential's signature counter must advance past the stored value.
// A counter that stalls or regresses means the key material was cloned, and
// the whole login is rejected.
func (m *Manager) FinishLogin(ctx context.Context, ceremonyID string, responseJSON []byte) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if m == nil || m.webAuthn == nil {
		return user.User{}, fmt.Errorf("passkey manager is not configured")
	}
	if len(responseJSON) == 0 {
		return user.User{}, apperrors.New(apperrors.CodeInvalidArgument, "credential response is required")
	}

	ceremony, err := m.consumeCeremony(ctx, ceremonyID, CeremonyKindLogin)
	if err != nil {
		return user.User{}, err
	}

	parsed, err := m.parser.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeCeremonyInvalid, "parse credential response", err)
	}

	validatedUser, validatedCredential, err := m.webAuthn.ValidatePasskeyLogin(m.userHandler(ctx), ceremony.Data, parsed)
	if err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeCeremonyInvalid, "validate passkey login", err)
	}
	record, ok := validatedUser.(*webAuthnUser)
	if !ok {
		return user.User{}, fmt.Errorf("passkey user type mismatch")
	}

	if validatedCredential.Authenticator.CloneWarning {
		return user.User{}, apperrors.New(apperrors.CodeReplayDetected, "credential clone detected")
	}

	credentialJSON, err := json.Marshal(validatedCredential)
	if err != nil {
		return user.User{}, fmt.Errorf("encode credential: %w", err)
	}
	err = m.store.UpdatePasskeySignCount(
		ctx,
		encodeCredentialID(validatedCredential.ID),
		string(credentialJSON),
		validatedCredential.Authenticator.SignCount,
		m.now(),
	)
	if err != nil {
		return user.User{}, err
	}

	return record.user, nil
}

// List returns a user's stored credentials.
func (m *Manager) List(ctx context.Context, userID string) ([]storage.PasskeyCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m == nil || m.store == nil {
		return nil, fmt.Errorf("passkey manager is not configured")
	}
	return m.store.ListPasskeyCredentials(ctx, userID)
}

// Delete removes one of the user's credentials.
func (m *Manager) Delete(ctx context.Context, userID string, credentialID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil || m.store == nil {
		return fmt.Errorf("passkey manager is not configured")
	}
	return m.store.DeletePasskeyCredential(ctx, credentialID, userID)
}

// PruneExpiredCeremonies removes in-flight ceremonies past their deadline.
func (m *Manager) PruneExpiredCeremonies(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil || m.store == nil {
		return fmt.Errorf("passkey manager is not configured")
	}
	return m.store.DeleteExpiredPasskeyCeremonies(ctx, m.now())
}

type webAuthnUser struct {
	user        user.User
	credentials []webauthn.Credential
}

func (u *webAuthnUser) WebAuthnID() []byte { return []byte(u.user.ID) }

func (u *webAuthnUser) WebAuthnName() string { return u.user.Email }

func (u *webAuthnUser) WebAuthnDisplayName() string {
	if u.user.Name != "" {
		return u.user.Name
	}
	return u.user.Email
}

func (u *webAuthnUser) WebAuthnIcon() string { return "" }

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func (m *Manager) loadWebAuthnUser(ctx context.Context, account user.User) (*webAuthnUser, error) {
	records, err := m.store.ListPasskeyCredentials(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	credentials, err := decodeStoredCredentials(records)
	if err != nil {
		return nil, err
	}
	return &webAuthnUser{user: account, credentials: credentials}, nil
}

func decodeStoredCredentials(records []storage.PasskeyCredential) ([]webauthn.Credential, error) {
	if len(records) == 0 {
		return nil, nil
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", record.CredentialID, err)
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func (m *Manager) storeCeremony(ctx context.Context, kind CeremonyKind, userID string, sessionData *webauthn.SessionData) (string, error) {
	if sessionData == nil {
		return "", fmt.Errorf("session data is required")
	}
	payload, err := json.Marshal(sessionData)
	if err != nil {
		return "", fmt.Errorf("encode ceremony: %w", err)
	}
	ceremonyID, err := m.idGenerator()
	if err != nil {
		return "", fmt.Errorf("generate ceremony id: %w", err)
	}
	record := storage.PasskeyCeremony{
		ID:          ceremonyID,
		Kind:        string(kind),
		UserID:      userID,
		SessionJSON: string(payload),
		ExpiresAt:   m.now().Add(m.config.CeremonyTTL),
	}
	if err := m.store.PutPasskeyCeremony(ctx, record); err != nil {
		return "", fmt.Errorf("store ceremony: %w", err)
	}
	return ceremonyID, nil
}

type loadedCeremony struct {
	Data   webauthn.SessionData
	UserID string
}

// consumeCeremony loads a ceremony and deletes it. Ceremonies are strictly
// single use: a failed finish burns the challenge too.
func (m *Manager) consumeCeremony(ctx context.Context, ceremonyID string, expectedKind CeremonyKind) (loadedCeremony, error) {
	ceremonyID = strings.TrimSpace(ceremonyID)
	if ceremonyID == "" {
		return loadedCeremony{}, apperrors.New(apperrors.CodeInvalidArgument, "ceremony id is required")
	}

	stored, err := m.store.GetPasskeyCeremony(ctx, ceremonyID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return loadedCeremony{}, apperrors.New(apperrors.CodeCeremonyInvalid, "ceremony not found")
		}
		return loadedCeremony{}, fmt.Errorf("load ceremony: %w", err)
	}
	_ = m.store.DeletePasskeyCeremony(ctx, ceremonyID)

	if stored.Kind != string(expectedKind) {
		return loadedCeremony{}, apperrors.New(apperrors.CodeCeremonyInvalid, "ceremony kind mismatch")
	}
	if !stored.ExpiresAt.After(m.now()) {
		return loadedCeremony{}, apperrors.New(apperrors.CodeChallengeExpired, "ceremony expired")
	}

	var sessionData webauthn.SessionData
	if err := json.Unmarshal([]byte(stored.SessionJSON), &sessionData); err != nil {
		return loadedCeremony{}, fmt.Errorf("decode ceremony: %w", err)
	}
	return loadedCeremony{Data: sessionData, UserID: stored.UserID}, nil
}

func (m *Manager) userHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(_, userHandle []byte) (webauthn.User, error) {
		userID := string(userHandle)
		if strings.TrimSpace(userID) == "" {
			return nil, fmt.Errorf("user handle is required")
		}
		account, err := m.users.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return m.loadWebAuthnUser(ctx, account)
	}
}

func encodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
