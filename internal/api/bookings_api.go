package api

import (
	"net/http"
	"strings"

	"studiobook/internal/booking"
	"studiobook/internal/metrics"
	"studiobook/internal/storage"
)

// UpdateBookingRequest is the body for PATCH /bookings. ID selects the
// record; nil fields are left untouched.
type UpdateBookingRequest struct {
	ID               string  `json:"id"`
	Status           *string `json:"status,omitempty"`
	PaymentConfirmed *bool   `json:"payment_confirmed,omitempty"`
}

// PatchBookingRequest is the body for PATCH /bookings/{id}.
type PatchBookingRequest struct {
	Status           *string `json:"status,omitempty"`
	PaymentConfirmed *bool   `json:"payment_confirmed,omitempty"`
}

// handleBookings serves the /bookings collection:
//
//	POST  — create a booking (public booking form)
//	GET   — list bookings, optional ?status= filter (operator)
//	PATCH — partial update by body id (operator)
func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createBooking(w, r)
	case http.MethodGet:
		s.listBookings(w, r)
	case http.MethodPatch:
		s.updateBookingByBody(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	var in booking.CreateInput
	if err := decodeJSONBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.svc.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, "create_booking", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "booking": b})
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_bookings")
	if _, ok := s.requireOperator(w, r); !ok {
		return
	}

	bookings, err := s.svc.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.writeServiceError(w, "list_bookings", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bookings": bookings})
}

func (s *Server) updateBookingByBody(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_booking")
	if _, ok := s.requireOperator(w, r); !ok {
		return
	}

	var req UpdateBookingRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}

	b, err := s.svc.Update(r.Context(), req.ID, storage.Patch{
		Status:           req.Status,
		PaymentConfirmed: req.PaymentConfirmed,
	})
	if err != nil {
		s.writeServiceError(w, "update_booking", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "booking": b})
}

// handleBookingByID serves /bookings/{id}:
//
//	GET    — fetch one booking (operator)
//	PATCH  — update status and/or payment flag (operator)
//	DELETE — soft delete: status moves to cancelled (operator)
func (s *Server) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/bookings/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}

	if _, ok := s.requireOperator(w, r); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getBooking(w, r, id)
	case http.MethodPatch:
		s.patchBooking(w, r, id)
	case http.MethodDelete:
		s.cancelBooking(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("get_booking")

	b, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, "get_booking", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "booking": b})
}

func (s *Server) patchBooking(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("update_booking")

	var req PatchBookingRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.svc.Update(r.Context(), id, storage.Patch{
		Status:           req.Status,
		PaymentConfirmed: req.PaymentConfirmed,
	})
	if err != nil {
		s.writeServiceError(w, "update_booking", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "booking": b})
}

func (s *Server) cancelBooking(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("cancel_booking")

	b, err := s.svc.Cancel(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, "cancel_booking", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "booking": b})
}
