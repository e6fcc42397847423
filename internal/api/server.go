// Package api exposes the booking service over HTTP with JSON bodies.
// Every response carries a success flag; the HTTP status code is the
// authoritative signal, the flag is kept for client convenience.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"studiobook/internal/auth"
	"studiobook/internal/booking"
	"studiobook/internal/metrics"
	"studiobook/internal/storage"
)

// Server is the public HTTP surface of the booking service.
type Server struct {
	svc    *booking.Service
	auth   *auth.Service
	log    *zerolog.Logger
	server *http.Server
}

// NewServer wires the routes and middleware.
func NewServer(addr string, svc *booking.Service, authSvc *auth.Service, log *zerolog.Logger) *Server {
	s := &Server{svc: svc, auth: authSvc, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/bookings", s.handleBookings)
	mux.HandleFunc("/bookings/", s.handleBookingByID)
	mux.HandleFunc("/slots/available", s.handleAvailableSlots)
	mux.HandleFunc("/admin/login", s.handleLogin)
	mux.HandleFunc("/admin/bookings/export", s.handleExportBookings)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler (used by tests).
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info().Str("addr", s.server.Addr).Msg("booking API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// requireOperator authenticates the Bearer token on admin routes. On failure
// it writes the 401 response and returns false.
func (s *Server) requireOperator(w http.ResponseWriter, r *http.Request) (*auth.Operator, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
		return nil, false
	}

	op, err := s.auth.VerifyToken(header[len(prefix):])
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return nil, false
	}
	return op, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Backend internals never reach the caller; storage failures are logged with
// enough context to diagnose and surface as a generic 500.
func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	var verr *booking.ValidationError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, storage.ErrInvalidTransition):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "status change not allowed for this booking",
			"code":    "invalid_transition",
		})
	case errors.Is(err, storage.ErrSlotTaken):
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"error":   "one or more requested time slots are no longer available",
			"code":    "slot_taken",
		})
	default:
		metrics.IncStorageError(op)
		s.log.Error().Err(err).Str("op", op).Msg("storage failure")
		code := "storage"
		if errors.Is(err, context.DeadlineExceeded) {
			code = "timeout"
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "internal storage error",
			"code":    code,
		})
	}
}

func decodeJSONBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
