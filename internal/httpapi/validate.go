package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/snehasaisneha/staticauth/internal/storage"
)

// Headers of the auth_request contract with the reverse proxy.
const (
	headerApp      = "X-GK-App"
	headerAuthUser = "X-Auth-User"
	headerAuthName = "X-Auth-Name"
	headerAuthRole = "X-Auth-Role"
)

const adminRole = "admin"

// handleValidate answers the nginx auth_request sub-request for every
// protected downstream hit.
//
// The proxy only ever sees 200, 401, or 403 with an empty body; the reason
// behind a refusal stays in the logs. Responses are never cacheable here,
// caching is the proxy's policy call.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("httpapi").Start(r.Context(), "validate")
	defer span.End()

	w.Header().Set("Cache-Control", "no-store")

	account, _, err := s.currentSession(r.WithContext(ctx))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", account.ID))

	slug := strings.TrimSpace(r.Header.Get(headerApp))
	if slug == "" {
		// Pure identity check: any authenticated user passes.
		w.Header().Set(headerAuthUser, account.Email)
		setNameHeader(w, account.Name)
		w.WriteHeader(http.StatusOK)
		return
	}
	span.SetAttributes(attribute.String("app.slug", slug))

	if account.IsAdmin {
		w.Header().Set(headerAuthUser, account.Email)
		setNameHeader(w, account.Name)
		w.Header().Set(headerAuthRole, adminRole)
		w.WriteHeader(http.StatusOK)
		return
	}

	app, err := s.apps.GetAppBySlug(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		// Unregistered slugs follow the operator's default policy.
		if s.config.DefaultAppAccess == DefaultAppAccessAllow {
			w.Header().Set(headerAuthUser, account.Email)
			setNameHeader(w, account.Name)
			w.WriteHeader(http.StatusOK)
			return
		}
		log.Printf("validate: denied %s for unregistered app %q", account.Email, slug)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err != nil {
		log.Printf("validate: app lookup for %q failed: %v", slug, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	grant, ok, err := s.access.Check(ctx, account.ID, app.ID)
	if err != nil {
		log.Printf("validate: grant check for %s on %q failed: %v", account.Email, slug, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.Header().Set(headerAuthUser, account.Email)
	setNameHeader(w, account.Name)
	if grant.Role != "" {
		w.Header().Set(headerAuthRole, grant.Role)
	}
	w.WriteHeader(http.StatusOK)
}

func setNameHeader(w http.ResponseWriter, name string) {
	if name != "" {
		w.Header().Set(headerAuthName, name)
	}
}
