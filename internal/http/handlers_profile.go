package http

import (
	"net/http"

	"fincon/internal/auth"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	p, err := s.accounts.Profile(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(newProfileView(p)).Write(w)
}

// handleDeleteProfile deletes the whole account. On failure the error names
// the step that failed; earlier steps are not rolled back.
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	if err := s.accounts.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if token, _ := r.Context().Value(tokenKey).(string); token != "" {
		_ = s.identity.Logout(r.Context(), token)
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
