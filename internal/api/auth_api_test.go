package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{
			name: "valid credentials",
			body: map[string]any{
				"email":    testOperatorEmail,
				"password": testOperatorPassword,
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "wrong password",
			body: map[string]any{
				"email":    testOperatorEmail,
				"password": "not-the-password",
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown operator",
			body: map[string]any{
				"email":    "nobody@studio.test",
				"password": "whatever",
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing password",
			body:       map[string]any{"email": testOperatorEmail},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty body",
			body:       map[string]any{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(t)
			w := doJSON(t, h, http.MethodPost, "/admin/login", "", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			resp := decodeBody(t, w)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, true, resp["success"])
				assert.NotEmpty(t, resp["token"])
				user := resp["user"].(map[string]any)
				assert.Equal(t, testOperatorEmail, user["email"])
				// password hash never leaves the server
				_, leaked := user["password_hash"]
				assert.False(t, leaked)
			} else {
				assert.Equal(t, false, resp["success"])
			}
		})
	}
}

func TestLoginTokenGrantsAdminAccess(t *testing.T) {
	h, _ := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/admin/login", "", map[string]any{
		"email":    testOperatorEmail,
		"password": testOperatorPassword,
	})
	require.Equal(t, http.StatusOK, w.Code)
	token := decodeBody(t, w)["token"].(string)

	w = doJSON(t, h, http.MethodGet, "/bookings", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginThrottled(t *testing.T) {
	h, _ := newTestServer(t)

	body := map[string]any{
		"email":    testOperatorEmail,
		"password": "wrong-every-time",
	}

	var last int
	for i := 0; i < 8; i++ {
		w := doJSON(t, h, http.MethodPost, "/admin/login", "", body)
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestAdminRoutesRejectBadTokens(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "no token", token: ""},
		{name: "garbage token", token: "not.a.jwt"},
		{name: "forged token", token: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.e30.invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodGet, "/bookings", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
