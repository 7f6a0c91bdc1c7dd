package httpapi

import (
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	filter := storage.UserFilter{}
	query := r.URL.Query()
	if status := query.Get("status"); status != "" {
		filter.Status = user.Status(status)
		if !filter.Status.Valid() {
			writeError(w, user.ErrInvalidStatus)
			return
		}
	}
	if limit := query.Get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed < 0 {
			writeError(w, badRequestf("limit must be a non-negative integer"))
			return
		}
		filter.Limit = parsed
	}
	if offset := query.Get("offset"); offset != "" {
		parsed, err := strconv.Atoi(offset)
		if err != nil || parsed < 0 {
			writeError(w, badRequestf("offset must be a non-negative integer"))
			return
		}
		filter.Offset = parsed
	}

	page, err := s.users.ListUsers(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": userViews(page.Users), "total": page.Total})
}

func (s *Server) handleAdminPendingUsers(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	page, err := s.users.ListUsers(r.Context(), storage.UserFilter{Status: user.StatusPending})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": userViews(page.Users), "total": page.Total})
}

func userViews(accounts []user.User) []userView {
	views := make([]userView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, viewOfUser(account))
	}
	return views
}

type adminCreateUserRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
	Approve bool   `json:"approve"`
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	var body adminCreateUserRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	status := user.StatusPending
	if body.Approve {
		status = user.StatusApproved
	}
	account, err := user.Create(user.CreateInput{
		Email:   body.Email,
		Name:    body.Name,
		Status:  status,
		IsAdmin: body.IsAdmin,
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
		s.notifyApproved(r, account)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": viewOfUser(account)})
}

func (s *Server) handleAdminGetUser(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	account, err := s.users.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOfUser(account)})
}

func (s *Server) handleAdminApproveUser(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	s.transitionUser(w, r, user.StatusApproved)
}

func (s *Server) handleAdminRejectUser(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	s.transitionUser(w, r, user.StatusRejected)
}

// transitionUser moves a pending account to approved or rejected. Accounts
// that already left pending are not retransitioned through these endpoints.
func (s *Server) transitionUser(w http.ResponseWriter, r *http.Request, target user.Status) {
	account, err := s.users.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if account.Status != user.StatusPending {
		writeError(w, badRequestf("account is not pending"))
		return
	}
	account.Status = target
	account.UpdatedAt = s.now()
	if err := s.users.PutUser(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}
	if target == user.StatusApproved {
		s.notifyApproved(r, account)
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOfUser(account)})
}

func (s *Server) notifyApproved(r *http.Request, account user.User) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AccountApproved(r.Context(), account.Email); err != nil {
		log.Printf("account approved notification to %s failed: %v", account.Email, err)
	}
}

type adminUpdateUserRequest struct {
	Name                 *string `json:"name"`
	Status               *string `json:"status"`
	IsAdmin              *bool   `json:"is_admin"`
	NotifyAccessRequests *bool   `json:"notify_access_requests"`
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request, admin user.User, _ storage.Session) {
	account, err := s.users.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body adminUpdateUserRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	// Admins cannot change their own standing, another admin must.
	if account.ID == admin.ID && (body.Status != nil || body.IsAdmin != nil) {
		writeError(w, apperrors.New(apperrors.CodePermissionDenied, "cannot change your own status or admin flag"))
		return
	}

	wasApproved := account.Status == user.StatusApproved
	if body.Name != nil {
		account.Name = strings.TrimSpace(*body.Name)
	}
	if body.Status != nil {
		status := user.Status(*body.Status)
		if !status.Valid() {
			writeError(w, user.ErrInvalidStatus)
			return
		}
		account.Status = status
	}
	if body.IsAdmin != nil {
		account.IsAdmin = *body.IsAdmin
	}
	if body.NotifyAccessRequests != nil {
		account.NotifyAccessRequests = *body.NotifyAccessRequests
	}
	account.UpdatedAt = s.now()
	if err := s.users.PutUser(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}
	if !wasApproved && account.Status == user.StatusApproved {
		s.notifyApproved(r, account)
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOfUser(account)})
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request, admin user.User, _ storage.Session) {
	account, err := s.users.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if account.ID == admin.ID {
		writeError(w, badRequestf("cannot delete your own account here, use the account endpoint"))
		return
	}
	if account.IsSeeded {
		writeError(w, apperrors.New(apperrors.CodeAccountProtected, "seeded accounts cannot be deleted"))
		return
	}
	if err := s.users.DeleteUser(r.Context(), account.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminListApps(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	apps, err := s.apps.ListApps(r.Context())
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

type appRequestBody struct {
	Slug        *string `json:"slug"`
	Name        *string `json:"name"`
	IsPublic    *bool   `json:"is_public"`
	Description *string `json:"description"`
	AppURL      *string `json:"app_url"`
}

func (s *Server) handleAdminCreateApp(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	var body appRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Slug == nil || !slugPattern.MatchString(*body.Slug) {
		writeError(w, badRequestf("slug must be lowercase letters, digits, and hyphens"))
		return
	}
	if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
		writeError(w, badRequestf("name is required"))
		return
	}

	appID, err := s.idGenerator()
	if err != nil {
		writeError(w, err)
		return
	}
	app := storage.App{
		ID:        appID,
		Slug:      *body.Slug,
		Name:      strings.TrimSpace(*body.Name),
		CreatedAt: s.now(),
	}
	if body.IsPublic != nil {
		app.IsPublic = *body.IsPublic
	}
	if body.Description != nil {
		app.Description = strings.TrimSpace(*body.Description)
	}
	if body.AppURL != nil {
		app.AppURL = strings.TrimSpace(*body.AppURL)
	}
	if err := s.apps.PutApp(r.Context(), app); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"app": viewOfApp(app)})
}

type appGrantView struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
	GrantedBy string    `json:"granted_by,omitempty"`
}

func (s *Server) handleAdminGetApp(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	app, err := s.apps.GetAppBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	grants, err := s.access.ListAppGrants(r.Context(), app.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]appGrantView, 0, len(grants))
	for _, grant := range grants {
		view := appGrantView{
			UserID:    grant.UserID,
			Role:      grant.Role,
			GrantedAt: grant.GrantedAt,
			GrantedBy: grant.GrantedBy,
		}
		if account, err := s.users.GetUser(r.Context(), grant.UserID); err == nil {
			view.Email = account.Email
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"app": viewOfApp(app), "grants": views})
}

func (s *Server) handleAdminUpdateApp(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	app, err := s.apps.GetAppBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body appRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Slug != nil {
		if !slugPattern.MatchString(*body.Slug) {
			writeError(w, badRequestf("slug must be lowercase letters, digits, and hyphens"))
			return
		}
		app.Slug = *body.Slug
	}
	if body.Name != nil {
		if strings.TrimSpace(*body.Name) == "" {
			writeError(w, badRequestf("name cannot be empty"))
			return
		}
		app.Name = strings.TrimSpace(*body.Name)
	}
	if body.IsPublic != nil {
		app.IsPublic = *body.IsPublic
	}
	if body.Description != nil {
		app.Description = strings.TrimSpace(*body.Description)
	}
	if body.AppURL != nil {
		app.AppURL = strings.TrimSpace(*body.AppURL)
	}
	if err := s.apps.PutApp(r.Context(), app); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"app": viewOfApp(app)})
}

func (s *Server) handleAdminDeleteApp(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	app, err := s.apps.GetAppBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.apps.DeleteApp(r.Context(), app.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantRequestBody struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) handleAdminGrant(w http.ResponseWriter, r *http.Request, admin user.User, _ storage.Session) {
	app, err := s.apps.GetAppBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body grantRequestBody
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
	if err := s.access.Grant(r.Context(), account.ID, app.ID, body.Role, admin.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkGrantRequestBody struct {
	Emails []string `json:"emails"`
	Role   string   `json:"role"`
}

type bulkGrantFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// handleAdminBulkGrant grants one app to a list of users in a single call.
// A bad email does not abort the batch; the response reports each failure
// next to the grants that went through.
func (s *Server) handleAdminBulkGrant(w http.ResponseWriter, r *http.Request, admin user.User, _ storage.Session) {
	app, err := s.apps.GetAppBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body bulkGrantRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if len(body.Emails) == 0 {
		writeError(w, badRequestf("emails are required"))
		return
	}

	granted := make([]string, 0, len(body.Emails))
	failed := make([]bulkGrantFailure, 0)
	for _, raw := range body.Emails {
		email, err := user.NormalizeEmail(raw)
		if err != nil {
			failed = append(failed, bulkGrantFailure{Email: raw, Error: err.Error()})
			continue
		}
		account, err := s.users.GetUserByEmail(r.Context(), email)
		if err != nil {
			failed = append(failed, bulkGrantFailure{Email: email, Error: "user not found"})
			continue
		}
		if err := s.access.Grant(r.Context(), account.ID, app.ID, body.Role, admin.Email); err != nil {
			failed = append(failed, bulkGrantFailure{Email: email, Error: err.Error()})
			continue
		}
		granted = append(granted, email)
	}
	writeJSON(w, http.StatusOK, map[string]any{"granted": granted, "failed": failed})
}

func (s *Server) handleAdminRevoke(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	app, err := s.apps.GetAppBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body grantRequestBody
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
	if err := s.access.Revoke(r.Context(), account.ID, app.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminListRequests(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	filter := storage.RequestFilter{Status: r.URL.Query().Get("status")}
	if slug := r.URL.Query().Get("app"); slug != "" {
		app, err := s.apps.GetAppBySlug(r.Context(), slug)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.AppID = app.ID
	}
	requests, err := s.access.ListRequests(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]requestView, 0, len(requests))
	for _, request := range requests {
		views = append(views, viewOfRequest(request))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": views})
}

func (s *Server) handleAdminApproveRequest(w http.ResponseWriter, r *http.Request, admin user.User, _ storage.Session) {
	s.resolveRequest(w, r, admin, true)
}

func (s *Server) handleAdminRejectRequest(w http.ResponseWriter, r *http.Request, admin user.User, _ storage.Session) {
	s.resolveRequest(w, r, admin, false)
}

func (s *Server) resolveRequest(w http.ResponseWriter, r *http.Request, admin user.User, approve bool) {
	requestID := r.PathValue("id")
	if err := s.access.Resolve(r.Context(), requestID, approve, admin.ID); err != nil {
		writeError(w, err)
		return
	}
	request, err := s.access.GetRequest(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": viewOfRequest(request)})
}
