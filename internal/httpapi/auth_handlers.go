package httpapi

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/snehasaisneha/staticauth/internal/otp"
	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

type userView struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	Name                 string    `json:"name,omitempty"`
	Status               string    `json:"status"`
	IsAdmin              bool      `json:"is_admin"`
	NotifyAccessRequests bool      `json:"notify_access_requests"`
	CreatedAt            time.Time `json:"created_at"`
}

type appView struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	IsPublic    bool   `json:"is_public"`
	Description string `json:"description,omitempty"`
	AppURL      string `json:"app_url,omitempty"`
}

type requestView struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	AppID      string     `json:"app_id"`
	Message    string     `json:"message,omitempty"`
	Status     string     `json:"status"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func viewOfUser(account user.User) userView {
	return userView{
		ID:                   account.ID,
		Email:                account.Email,
		Name:                 account.Name,
		Status:               string(account.Status),
		IsAdmin:              account.IsAdmin,
		NotifyAccessRequests: account.NotifyAccessRequests,
		CreatedAt:            account.CreatedAt,
	}
}

func viewOfApp(app storage.App) appView {
	return appView{
		ID:          app.ID,
		Slug:        app.Slug,
		Name:        app.Name,
		IsPublic:    app.IsPublic,
		Description: app.Description,
		AppURL:      app.AppURL,
	}
}

func viewOfRequest(request storage.AccessRequest) requestView {
	return requestView{
		ID:         request.ID,
		UserID:     request.UserID,
		AppID:      request.AppID,
		Message:    request.Message,
		Status:     request.Status,
		ReviewedBy: request.ReviewedBy,
		ReviewedAt: request.ReviewedAt,
		CreatedAt:  request.CreatedAt,
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Name  string `json:"name"`
}

// handleRegister starts registration for a new email address.
//
// Registration deliberately reveals whether an account exists: the
// alternative is a dead end where the user cannot learn why no code ever
// arrives. Sign-in keeps the same property for symmetry with the original
// deployment model of a small private user base.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	email, err := user.NormalizeEmail(body.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	existing, err := s.users.GetUserByEmail(r.Context(), email)
	if err == nil {
		writeError(w, registrationConflict(existing.Status))
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, err)
		return
	}

	if err := s.otp.Issue(r.Context(), email, otp.PurposeRegister); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "verification code sent"})
}

func registrationConflict(status user.Status) error {
	switch status {
	case user.StatusPending:
		return badRequestf("an account for this email is awaiting approval")
	case user.StatusRejected:
		return badRequestf("registration for this email was declined")
	default:
		return badRequestf("an account for this email already exists, sign in instead")
	}
}

// handleRegisterVerify consumes a registration code and creates the account.
// Accepted email domains are approved on the spot and signed in immediately;
// everyone else waits for an admin.
func (s *Server) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	email, err := user.NormalizeEmail(body.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.otp.Verify(r.Context(), email, otp.PurposeRegister, body.Code); err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.users.GetUserByEmail(r.Context(), email); err == nil {
		writeError(w, badRequestf("an account for this email already exists, sign in instead"))
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, err)
		return
	}

	status := user.StatusPending
	if s.config.DomainAccepted(user.EmailDomain(email)) {
		status = user.StatusApproved
	}
	account, err := user.Create(user.CreateInput{
		Email:  email,
		Name:   body.Name,
		Status: status,
	}, s.now, s.idGenerator)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.PutUser(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}

	if account.Status == user.StatusApproved {
		if err := s.signIn(w, r, account); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": viewOfUser(account)})
		return
	}

	if s.notifier != nil {
		if err := s.notifier.RegistrationReceived(r.Context(), account.Email); err != nil {
			log.Printf("registration received notification to %s failed: %v", account.Email, err)
		}
		admins, err := s.users.ListAdmins(r.Context(), true)
		if err != nil {
			log.Printf("list admins for registration alert failed: %v", err)
		} else if err := s.notifier.AdminRegistrationAlert(r.Context(), admins, account.Email); err != nil {
			log.Printf("registration alert failed: %v", err)
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": viewOfUser(account)})
}

// handleSignin starts sign-in for an existing approved account.
func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	email, err := user.NormalizeEmail(body.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	account, err := s.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	if account.Status != user.StatusApproved {
		writeError(w, apperrors.New(apperrors.CodeAccountNotApproved, "account is not approved"))
		return
	}

	if err := s.otp.Issue(r.Context(), email, otp.PurposeSignin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "verification code sent"})
}

// handleSigninVerify consumes a sign-in code and mints a session.
func (s *Server) handleSigninVerify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	email, err := user.NormalizeEmail(body.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.otp.Verify(r.Context(), email, otp.PurposeSignin, body.Code); err != nil {
		writeError(w, err)
		return
	}
	account, err := s.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.signIn(w, r, account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOfUser(account)})
}

// signIn mints a session for the account and sets the cookie.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request, account user.User) error {
	record, err := s.sessions.Create(r.Context(), account.ID)
	if err != nil {
		return err
	}
	return s.cookies.Write(w, record.Token, record.ExpiresAt)
}

// handleSignout revokes the current session. The cookie is cleared even when
// no live session is behind it.
func (s *Server) handleSignout(w http.ResponseWriter, r *http.Request) {
	if token, err := s.cookies.Read(r); err == nil {
		if err := s.sessions.Revoke(r.Context(), token); err != nil {
			writeError(w, err)
			return
		}
	}
	s.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, account user.User, _ storage.Session) {
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOfUser(account)})
}

type updateMeRequest struct {
	Name                 *string `json:"name"`
	NotifyAccessRequests *bool   `json:"notify_access_requests"`
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, account user.User, _ storage.Session) {
	var body updateMeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Name != nil {
		account.Name = *body.Name
	}
	if body.NotifyAccessRequests != nil {
		if !account.IsAdmin {
			writeError(w, apperrors.New(apperrors.CodePermissionDenied, "only admins receive access request notifications"))
			return
		}
		account.NotifyAccessRequests = *body.NotifyAccessRequests
	}
	account.UpdatedAt = s.now()
	if err := s.users.PutUser(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOfUser(account)})
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request, account user.User, _ storage.Session) {
	if account.IsSeeded {
		writeError(w, apperrors.New(apperrors.CodeAccountProtected, "seeded accounts cannot be deleted"))
		return
	}
	if err := s.users.DeleteUser(r.Context(), account.ID); err != nil {
		writeError(w, err)
		return
	}
	s.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublicApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.apps.ListPublicApps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]appView, 0, len(apps))
	for _, app := range apps {
		views = append(views, viewOfApp(app))
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": views})
}

type grantedAppView struct {
	App       appView   `json:"app"`
	Role      string    `json:"role,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

func (s *Server) handleMyApps(w http.ResponseWriter, r *http.Request, account user.User, _ storage.Session) {
	grants, err := s.access.ListUserGrants(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]grantedAppView, 0, len(grants))
	for _, grant := range grants {
		app, err := s.apps.GetApp(r.Context(), grant.AppID)
		if err != nil {
			writeError(w, err)
			return
		}
		views = append(views, grantedAppView{App: viewOfApp(app), Role: grant.Role, GrantedAt: grant.GrantedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": views})
}

type accessRequestBody struct {
	Message string `json:"message"`
}

func (s *Server) handleRequestAccess(w http.ResponseWriter, r *http.Request, account user.User, _ storage.Session) {
	app, err := s.apps.GetAppBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body accessRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	request, err := s.access.Request(r.Context(), account.ID, app.ID, body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"request": viewOfRequest(request)})
}
