package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS_AllowedOrigin(t *testing.T) {
	config := DefaultCORSConfig([]string{"https://app.example.com"})
	handler := CORS(config)(okHandler())

	req := httptest.NewRequest("POST", "/auth/register", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Session-Token")
}

func TestCORS_UnlistedOriginGetsNoHeaders(t *testing.T) {
	config := DefaultCORSConfig([]string{"https://app.example.com"})
	handler := CORS(config)(okHandler())

	req := httptest.NewRequest("POST", "/auth/register", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	config := DefaultCORSConfig([]string{"https://app.example.com"})

	reached := false
	handler := CORS(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest("OPTIONS", "/auth/register", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, reached, "preflight never reaches the handler")
}
