package api

import (
	"fmt"
	"net/http"
	"time"

	"studiobook/internal/export"
	"studiobook/internal/metrics"
)

// handleExportBookings streams the booking list as an xlsx workbook.
// Admin only. An optional ?status= query narrows the export.
func (s *Server) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_bookings")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireOperator(w, r); !ok {
		return
	}

	bookings, err := s.svc.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.writeServiceError(w, "export_bookings", err)
		return
	}

	filename := fmt.Sprintf("bookings_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := export.WriteBookings(w, bookings); err != nil {
		// Headers are already sent; all we can do is log.
		s.log.Error().Err(err).Msg("Failed to write bookings export")
	}
}
