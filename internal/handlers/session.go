package handlers

import (
	"net/http"

	"github.com/remix/authcore/internal/services"
	pkghttp "github.com/remix/authcore/pkg/http"
)

// SessionTokenHeader carries the opaque session token on every
// session-scoped request
const SessionTokenHeader = "Session-Token"

// SessionHandler handles validation and teardown of issued sessions
type SessionHandler struct {
	sessions SessionServiceInterface
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionServiceInterface) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// ValidateResponse reports whether a presented token is live
type ValidateResponse struct {
	Valid bool `json:"valid"`
}

// Validate checks a session token and slides its expiry when live. A missing
// or dead token is a normal 200 with valid=false, not an error.
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(SessionTokenHeader)

	valid, err := h.sessions.Validate(r.Context(), token)
	if err != nil {
		if services.IsInfraError(err) {
			pkghttp.WriteUnavailable(w, "Session validation is temporarily unavailable")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ValidateResponse{Valid: valid})
}

// Logout destroys the presented session. Destroying an absent session still
// succeeds, so retried logouts are harmless.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(SessionTokenHeader)

	if err := h.sessions.Invalidate(r.Context(), token); err != nil {
		if services.IsInfraError(err) {
			pkghttp.WriteUnavailable(w, "Logout is temporarily unavailable")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
