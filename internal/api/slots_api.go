package api

import (
	"net/http"

	"studiobook/internal/metrics"
)

// handleAvailableSlots computes open slots for a date.
// GET /slots/available?date=YYYY-MM-DD
func (s *Server) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("available_slots")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	availability, err := s.svc.AvailableSlots(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, "available_slots", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"date":           availability.Date,
		"availableSlots": availability.AvailableSlots,
		"bookedSlots":    availability.BookedSlots,
	})
}
