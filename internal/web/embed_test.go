package web

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasEmbeddedFiles(t *testing.T) {
	assert.True(t, HasEmbeddedFiles())
}

func TestStaticRoutes(t *testing.T) {
	e := echo.New()
	e.GET("/api/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, RegisterStaticRoutes(e))

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"root serves index", "/", http.StatusOK, "PocketTelemetry Explorer"},
		{"client route falls back to index", "/sessions/abc", http.StatusOK, "PocketTelemetry Explorer"},
		{"api route wins", "/api/health", http.StatusOK, "ok"},
		{"unknown api path is not the SPA", "/api/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestIndexWiresBuilderEndpoints(t *testing.T) {
	staticFS, err := GetFileSystem()
	require.NoError(t, err)
	page, err := fs.ReadFile(staticFS, "index.html")
	require.NoError(t, err)

	html := string(page)
	for _, want := range []string{
		"sessionPath('/aggregations')",
		"catalog.aggregations.string",
		"$('issue').disabled = true",
	} {
		assert.Contains(t, html, want)
	}

	// The countdown feed ends at expiry, so a new token reopens it.
	token := strings.Index(html, "sessionPath('/token')")
	require.NotEqual(t, -1, token)
	assert.Contains(t, html[token:token+120], "watchCountdown()")
}
