package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

type passkeyView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

type ceremonyResponse struct {
	CeremonyID string          `json:"ceremony_id"`
	Options    json.RawMessage `json:"options"`
}

type passkeyFinishRequest struct {
	CeremonyID string          `json:"ceremony_id"`
	Name       string          `json:"name"`
	Response   json.RawMessage `json:"response"`
}

func (s *Server) handlePasskeyRegisterOptions(w http.ResponseWriter, r *http.Request, account user.User, _ storage.Session) {
	ceremonyID, options, err := s.passkeys.BeginRegistration(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ceremonyResponse{CeremonyID: ceremonyID, Options: options})
}

// handlePasskeyRegisterVerify completes a registration ceremony. The
// credential always lands on the ceremony's user, which the begin call bound
// to the session holder.
func (s *Server) handlePasskeyRegisterVerify(w http.ResponseWriter, r *http.Request, _ user.User, _ storage.Session) {
	var body passkeyFinishRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	credentialID, err := s.passkeys.FinishRegistration(r.Context(), body.CeremonyID, body.Response, body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"credential_id": credentialID})
}

type passkeySigninOptionsRequest struct {
	Email string `json:"email"`
}

// handlePasskeySigninOptions starts a passkey login. An empty email starts a
// discoverable-credential ceremony.
func (s *Server) handlePasskeySigninOptions(w http.ResponseWriter, r *http.Request) {
	var body passkeySigninOptionsRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ceremonyID, options, err := s.passkeys.BeginLogin(r.Context(), body.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ceremonyResponse{CeremonyID: ceremonyID, Options: options})
}

func (s *Server) handlePasskeySigninVerify(w http.ResponseWriter, r *http.Request) {
	var body passkeyFinishRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	account, err := s.passkeys.FinishLogin(r.Context(), body.CeremonyID, body.Response)
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

func (s *Server) handleListPasskeys(w http.ResponseWriter, r *http.Request, account user.User, _ storage.Session) {
	credentials, err := s.passkeys.List(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]passkeyView, 0, len(credentials))
	for _, credential := range credentials {
		views = append(views, passkeyView{
			ID:         credential.CredentialID,
			Name:       credential.Name,
			CreatedAt:  credential.CreatedAt,
			LastUsedAt: credential.LastUsedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"passkeys": views})
}

func (s *Server) handleDeletePasskey(w http.ResponseWriter, r *http.Request, account user.User, _ storage.Session) {
	if err := s.passkeys.Delete(r.Context(), account.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
