package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func serveCORS(cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(CORS(cfg))
	e.GET("/api/views", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.OPTIONS("/api/views", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(method, "/api/views", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	rec := serveCORS(DefaultCORSConfig(), http.MethodOptions, "https://app.sentinel.dev")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.sentinel.dev", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}

func TestCORSOrigins(t *testing.T) {
	t.Parallel()

	cfg := CORSConfig{AllowOrigins: []string{"*.sentinel.dev"}}

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{name: "subdomain", origin: "https://app.sentinel.dev", want: "https://app.sentinel.dev"},
		{name: "other host", origin: "https://evil.dev", want: ""},
		{name: "no origin", origin: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serveCORS(cfg, http.MethodGet, tt.origin)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
			assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods))
		})
	}
}
