package http

import (
	"context"
	"errors"
	"net/http"

	"fincon/internal/auth"
	applog "fincon/internal/log"
)

type ctxKey int

const tokenKey ctxKey = iota

// authedHandler receives the caller's identity resolved by requireAuth.
type authedHandler func(w http.ResponseWriter, r *http.Request, id auth.Identity)

// requireAuth rejects requests without a valid bearer token with 401.
func (s *Server) requireAuth(next authedHandler, allowQueryToken bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r, allowQueryToken)
		if token == "" {
			UnauthorizedError("missing bearer token").Write(w)
			return
		}
		id, err := s.identity.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), tokenKey, token)
		ctx = applog.WithContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, id.ID))
		next(w, r.WithContext(ctx), id)
	})
}

// parseBody parses the request body, writing a 400 on malformed input.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(w, r, err)
		} else {
			BadRequestError("malformed request body").Write(w)
		}
		return nil, false
	}
	return p, true
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	sess, err := s.identity.Signup(r.Context(), p.Get("email"), p.GetSecret("password"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.accounts.EnsureProfile(r.Context(), sess.Identity); err != nil {
		// The account exists; the profile is derived on read until saved.
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to create profile",
			applog.FieldUserID, sess.Identity.ID,
			applog.FieldError, err)
	}
	NewResponse().Status(http.StatusCreated).JSON(newSessionView(sess)).Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	sess, err := s.identity.Login(r.Context(), p.Get("email"), p.GetSecret("password"))
	if errors.Is(err, auth.ErrUnknownAccount) {
		err = auth.ErrInvalidCredentials
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(newSessionView(sess)).Write(w)
}

// handleResetPassword answers 202 whether or not the address has an
// account.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	err := s.identity.ResetPassword(r.Context(), p.Get("email"))
	if err != nil && !errors.Is(err, auth.ErrUnknownAccount) {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusAccepted).Write(w)
}

func (s *Server) handleConfirmReset(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	if err := s.identity.ConfirmPasswordReset(r.Context(), p.Get("token"), p.GetSecret("password")); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r, false); token != "" {
		if err := s.identity.Logout(r.Context(), token); err != nil {
			writeError(w, r, err)
			return
		}
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
