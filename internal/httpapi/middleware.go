package httpapi

import (
	"net/http"

	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

// authedHandler is a handler that runs with a validated session behind it.
type authedHandler func(w http.ResponseWriter, r *http.Request, account user.User, record storage.Session)

// currentSession resolves the request's cookie to its user and session row.
func (s *Server) currentSession(r *http.Request) (user.User, storage.Session, error) {
	token, err := s.cookies.Read(r)
	if err != nil {
		return user.User{}, storage.Session{}, err
	}
	return s.sessions.Validate(r.Context(), token)
}

// requireUser rejects requests without a live session.
func (s *Server) requireUser(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, record, err := s.currentSession(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, account, record)
	}
}

// requireAdmin rejects requests whose session user is not an admin.
func (s *Server) requireAdmin(next authedHandler) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request, account user.User, record storage.Session) {
		if !account.IsAdmin {
			writeError(w, apperrors.New(apperrors.CodePermissionDenied, "admin access required"))
			return
		}
		next(w, r, account, record)
	})
}
