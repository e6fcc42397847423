package api

import (
	"errors"
	"net/http"

	"studiobook/internal/auth"
	"studiobook/internal/metrics"
)

// LoginRequest is the body for POST /admin/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin authenticates an operator and returns a bearer token.
// POST /admin/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_login")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req LoginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	op, token, err := s.auth.Login(req.Email, req.Password, clientIP(r))
	switch {
	case errors.Is(err, auth.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too many login attempts; try again later")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    op,
		"token":   token,
	})
}
