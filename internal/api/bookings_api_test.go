package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/auth"
	"studiobook/internal/booking"
	"studiobook/internal/events"
	"studiobook/internal/storage/sqlite"
)

const (
	testOperatorEmail    = "admin@studio.test"
	testOperatorPassword = "studio-admin-password"
)

// newTestServer wires a real sqlite store behind the HTTP handlers and
// returns the handler plus a valid operator token.
func newTestServer(t *testing.T) (http.Handler, string) {
	t.Helper()

	log := zerolog.Nop()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "studio.db"), 2*time.Second, &log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hash, err := auth.HashPassword(testOperatorPassword)
	require.NoError(t, err)
	authSvc := auth.NewService([]auth.Operator{
		{Email: testOperatorEmail, Name: "Studio Admin", PasswordHash: hash},
	}, "test-secret", time.Hour, &log)

	svc := booking.NewService(store, events.NewBus(), &log)
	srv := NewServer(":0", svc, authSvc, &log)

	_, token, err := authSvc.Login(testOperatorEmail, testOperatorPassword, "10.0.0.1")
	require.NoError(t, err)

	return srv.Handler(), token
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func createTestBooking(t *testing.T, h http.Handler, date string, slots []string) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/bookings", "", map[string]any{
		"date":       date,
		"time_slots": slots,
		"package":    "Premium Portrait",
		"name":       "Anna Keller",
		"phone":      "+49 170 1234567",
		"email":      "anna@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, "create failed: %s", w.Body.String())

	resp := decodeBody(t, w)
	b, ok := resp["booking"].(map[string]any)
	require.True(t, ok)
	id, _ := b["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestCreateBookingEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{
			name: "valid booking",
			body: map[string]any{
				"date":       "2026-10-05",
				"time_slots": []string{"10:00 AM", "11:00 AM"},
				"package":    "Family Session",
				"name":       "Jonas Weber",
				"phone":      "+49 151 7654321",
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "missing name",
			body: map[string]any{
				"date":       "2026-10-06",
				"time_slots": []string{"10:00 AM"},
				"phone":      "+49 151 7654321",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing phone",
			body: map[string]any{
				"date":       "2026-10-06",
				"time_slots": []string{"10:00 AM"},
				"name":       "Jonas Weber",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "malformed date",
			body: map[string]any{
				"date":       "05.10.2026",
				"time_slots": []string{"10:00 AM"},
				"name":       "Jonas Weber",
				"phone":      "+49 151 7654321",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "slot not in catalog",
			body: map[string]any{
				"date":       "2026-10-06",
				"time_slots": []string{"07:30 AM"},
				"name":       "Jonas Weber",
				"phone":      "+49 151 7654321",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "no slots",
			body: map[string]any{
				"date":  "2026-10-06",
				"name":  "Jonas Weber",
				"phone": "+49 151 7654321",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown field rejected",
			body: map[string]any{
				"date":       "2026-10-06",
				"time_slots": []string{"10:00 AM"},
				"name":       "Jonas Weber",
				"phone":      "+49 151 7654321",
				"is_admin":   true,
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(t)
			w := doJSON(t, h, http.MethodPost, "/bookings", "", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			resp := decodeBody(t, w)
			if tt.wantStatus == http.StatusCreated {
				assert.Equal(t, true, resp["success"])
				b := resp["booking"].(map[string]any)
				assert.Equal(t, "pending", b["status"])
				assert.NotEmpty(t, b["id"])
			} else {
				assert.Equal(t, false, resp["success"])
				assert.NotEmpty(t, resp["error"])
			}
		})
	}
}

func TestCreateBookingSlotConflict(t *testing.T) {
	h, _ := newTestServer(t)

	createTestBooking(t, h, "2026-10-10", []string{"02:00 PM", "03:00 PM"})

	w := doJSON(t, h, http.MethodPost, "/bookings", "", map[string]any{
		"date":       "2026-10-10",
		"time_slots": []string{"03:00 PM", "04:00 PM"},
		"name":       "Second Caller",
		"phone":      "+49 170 0000000",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "slot_taken", resp["code"])

	// Same slots on another date are untouched.
	createTestBooking(t, h, "2026-10-11", []string{"03:00 PM", "04:00 PM"})
}

func TestBookingLifecycleEndpoints(t *testing.T) {
	h, token := newTestServer(t)
	id := createTestBooking(t, h, "2026-10-12", []string{"09:00 AM"})

	t.Run("get requires operator token", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/bookings/"+id, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("get by id", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/bookings/"+id, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		b := decodeBody(t, w)["booking"].(map[string]any)
		assert.Equal(t, "pending", b["status"])
		assert.Equal(t, "Anna Keller", b["name"])
	})

	t.Run("confirm and mark paid", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPatch, "/bookings/"+id, token, map[string]any{
			"status":            "confirmed",
			"payment_confirmed": true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		b := decodeBody(t, w)["booking"].(map[string]any)
		assert.Equal(t, "confirmed", b["status"])
		assert.Equal(t, true, b["payment_confirmed"])
	})

	t.Run("cannot jump back to pending", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPatch, "/bookings/"+id, token, map[string]any{
			"status": "pending",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_transition", decodeBody(t, w)["code"])
	})

	t.Run("delete cancels", func(t *testing.T) {
		w := doJSON(t, h, http.MethodDelete, "/bookings/"+id, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		b := decodeBody(t, w)["booking"].(map[string]any)
		assert.Equal(t, "cancelled", b["status"])
	})

	t.Run("second delete rejected", func(t *testing.T) {
		w := doJSON(t, h, http.MethodDelete, "/bookings/"+id, token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_transition", decodeBody(t, w)["code"])
	})

	t.Run("cancelled booking rejects updates", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPatch, "/bookings/"+id, token, map[string]any{
			"status": "confirmed",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_transition", decodeBody(t, w)["code"])
	})

	t.Run("get unknown id", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/bookings/no-such-id", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUpdateBookingByBody(t *testing.T) {
	h, token := newTestServer(t)
	id := createTestBooking(t, h, "2026-10-13", []string{"05:00 PM"})

	w := doJSON(t, h, http.MethodPatch, "/bookings", token, map[string]any{
		"id":     id,
		"status": "confirmed",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	b := decodeBody(t, w)["booking"].(map[string]any)
	assert.Equal(t, "confirmed", b["status"])

	t.Run("missing id", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPatch, "/bookings", token, map[string]any{
			"status": "confirmed",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty patch", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPatch, "/bookings", token, map[string]any{"id": id})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListBookingsEndpoint(t *testing.T) {
	h, token := newTestServer(t)

	first := createTestBooking(t, h, "2026-10-14", []string{"09:00 AM"})
	createTestBooking(t, h, "2026-10-15", []string{"10:00 AM"})

	w := doJSON(t, h, http.MethodPatch, "/bookings/"+first, token, map[string]any{
		"status": "confirmed",
	})
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("requires operator token", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/bookings", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("all bookings", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/bookings", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		bookings := decodeBody(t, w)["bookings"].([]any)
		assert.Len(t, bookings, 2)
	})

	t.Run("filter by status", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/bookings?status=confirmed", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		bookings := decodeBody(t, w)["bookings"].([]any)
		require.Len(t, bookings, 1)
		assert.Equal(t, first, bookings[0].(map[string]any)["id"])
	})

	t.Run("invalid status filter", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/bookings?status=archived", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestExportBookingsEndpoint(t *testing.T) {
	h, token := newTestServer(t)
	createTestBooking(t, h, "2026-10-16", []string{"12:00 PM"})

	t.Run("requires operator token", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/admin/bookings/export", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("streams xlsx", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/admin/bookings/export", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
		assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
		// xlsx files are zip archives
		body := w.Body.Bytes()
		require.Greater(t, len(body), 4)
		assert.Equal(t, []byte("PK"), body[:2])
	})
}
