// Package httpapi exposes the authentication service over HTTP/JSON: the
// sign-in and registration flows, passkey ceremonies, self-service account
// endpoints, the admin surface, and the nginx auth_request validator.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/snehasaisneha/staticauth/internal/access"
	"github.com/snehasaisneha/staticauth/internal/otp"
	"github.com/snehasaisneha/staticauth/internal/passkey"
	"github.com/snehasaisneha/staticauth/internal/platform/id"
	"github.com/snehasaisneha/staticauth/internal/session"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

// notifications is the slice of the notifier the handlers send through.
// Delivery failures are logged, never surfaced to the caller.
type notifications interface {
	RegistrationReceived(ctx context.Context, to string) error
	AccountApproved(ctx context.Context, to string) error
	AccessGranted(ctx context.Context, to string, appName string) error
	AdminRegistrationAlert(ctx context.Context, admins []user.User, newEmail string) error
}

// Server hosts the HTTP surface over the domain services.
type Server struct {
	users    storage.UserStore
	apps     storage.AppStore
	sessions *session.Manager
	cookies  *session.CookieCodec
	otp      *otp.Service
	passkeys *passkey.Manager
	access   *access.Engine
	notifier notifications
	config   Config

	now         func() time.Time
	idGenerator func() (string, error)
}

// NewServer wires the HTTP surface. The notifier may be nil when outbound
// email is not configured.
func NewServer(
	users storage.UserStore,
	apps storage.AppStore,
	sessions *session.Manager,
	cookies *session.CookieCodec,
	otpService *otp.Service,
	passkeys *passkey.Manager,
	accessEngine *access.Engine,
	notifier notifications,
	cfg Config,
) (*Server, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if apps == nil {
		return nil, fmt.Errorf("app store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cookies == nil {
		return nil, fmt.Errorf("cookie codec is required")
	}
	if otpService == nil {
		return nil, fmt.Errorf("otp service is required")
	}
	if passkeys == nil {
		return nil, fmt.Errorf("passkey manager is required")
	}
	if accessEngine == nil {
		return nil, fmt.Errorf("access engine is required")
	}
	return &Server{
		users:       users,
		apps:        apps,
		sessions:    sessions,
		cookies:     cookies,
		otp:         otpService,
		passkeys:    passkeys,
		access:      accessEngine,
		notifier:    notifier,
		config:      normalizeConfig(cfg),
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: id.NewID,
	}, nil
}

// Routes returns the request mux for the whole HTTP surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/register/verify", s.handleRegisterVerify)
	mux.HandleFunc("POST /auth/signin", s.handleSignin)
	mux.HandleFunc("POST /auth/signin/verify", s.handleSigninVerify)
	mux.HandleFunc("POST /auth/signout", s.handleSignout)

	mux.HandleFunc("GET /auth/me", s.requireUser(s.handleMe))
	mux.HandleFunc("PATCH /auth/me", s.requireUser(s.handleUpdateMe))
	mux.HandleFunc("DELETE /auth/me", s.requireUser(s.handleDeleteMe))

	mux.HandleFunc("GET /auth/apps/public", s.handlePublicApps)
	mux.HandleFunc("GET /auth/me/apps", s.requireUser(s.handleMyApps))
	mux.HandleFunc("POST /auth/me/apps/{slug}/request", s.requireUser(s.handleRequestAccess))

	mux.HandleFunc("POST /auth/passkey/register/options", s.requireUser(s.handlePasskeyRegisterOptions))
	mux.HandleFunc("POST /auth/passkey/register/verify", s.requireUser(s.handlePasskeyRegisterVerify))
	mux.HandleFunc("POST /auth/passkey/signin/options", s.handlePasskeySigninOptions)
	mux.HandleFunc("POST /auth/passkey/signin/verify", s.handlePasskeySigninVerify)
	mux.HandleFunc("GET /auth/passkeys", s.requireUser(s.handleListPasskeys))
	mux.HandleFunc("DELETE /auth/passkeys/{id}", s.requireUser(s.handleDeletePasskey))

	mux.HandleFunc("GET /auth/validate", s.handleValidate)

	mux.HandleFunc("GET /admin/users", s.requireAdmin(s.handleAdminListUsers))
	mux.HandleFunc("POST /admin/users", s.requireAdmin(s.handleAdminCreateUser))
	mux.HandleFunc("GET /admin/users/pending", s.requireAdmin(s.handleAdminPendingUsers))
	mux.HandleFunc("GET /admin/users/{id}", s.requireAdmin(s.handleAdminGetUser))
	mux.HandleFunc("PATCH /admin/users/{id}", s.requireAdmin(s.handleAdminUpdateUser))
	mux.HandleFunc("DELETE /admin/users/{id}", s.requireAdmin(s.handleAdminDeleteUser))
	mux.HandleFunc("POST /admin/users/{id}/approve", s.requireAdmin(s.handleAdminApproveUser))
	mux.HandleFunc("POST /admin/users/{id}/reject", s.requireAdmin(s.handleAdminRejectUser))

	mux.HandleFunc("GET /admin/apps", s.requireAdmin(s.handleAdminListApps))
	mux.HandleFunc("POST /admin/apps", s.requireAdmin(s.handleAdminCreateApp))
	mux.HandleFunc("GET /admin/apps/{slug}", s.requireAdmin(s.handleAdminGetApp))
	mux.HandleFunc("PATCH /admin/apps/{slug}", s.requireAdmin(s.handleAdminUpdateApp))
	mux.HandleFunc("DELETE /admin/apps/{slug}", s.requireAdmin(s.handleAdminDeleteApp))
	mux.HandleFunc("POST /admin/apps/{slug}/grant", s.requireAdmin(s.handleAdminGrant))
	mux.HandleFunc("POST /admin/apps/{slug}/grants", s.requireAdmin(s.handleAdminBulkGrant))
	mux.HandleFunc("POST /admin/apps/{slug}/revoke", s.requireAdmin(s.handleAdminRevoke))

	mux.HandleFunc("GET /admin/requests", s.requireAdmin(s.handleAdminListRequests))
	mux.HandleFunc("POST /admin/requests/{id}/approve", s.requireAdmin(s.handleAdminApproveRequest))
	mux.HandleFunc("POST /admin/requests/{id}/reject", s.requireAdmin(s.handleAdminRejectRequest))

	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}
