package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryProxy(t *testing.T) {
	var gotPath, gotAuth, gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHost = r.Host
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
		w.Write([]byte(`{"data":{}}`))
	}))
	defer upstream.Close()

	e := echo.New()
	require.NoError(t, SetupMiddleware(e, MiddlewareConfig{TelemetryProxyTarget: upstream.URL}))

	srv := httptest.NewServer(e)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/telemetry/query", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer jwt")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"data":{}}`, string(body))
	assert.Equal(t, "/query", gotPath)
	assert.Equal(t, "Bearer jwt", gotAuth)
	assert.Equal(t, strings.TrimPrefix(upstream.URL, "http://"), gotHost)
	assert.NotEqual(t, strings.TrimPrefix(srv.URL, "http://"), gotHost)
	assert.Empty(t, resp.Header.Get(echo.HeaderAccessControlAllowOrigin))
}

func TestSetupMiddlewareRejectsBadProxyTarget(t *testing.T) {
	err := SetupMiddleware(echo.New(), MiddlewareConfig{TelemetryProxyTarget: "://bad"})
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, 0)
	e := echo.New()
	require.NoError(t, SetupMiddleware(e, MiddlewareConfig{AllowOrigins: []string{"http://localhost:5173"}}))
	RegisterRoutes(e, NewHandlers(&Dependencies{SessionMgr: s.mgr, Gateway: s.gw}))

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:5173")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, 0)
	e := echo.New()
	require.NoError(t, SetupMiddleware(e, MiddlewareConfig{BodyLimit: "1K"}))
	RegisterRoutes(e, NewHandlers(&Dependencies{SessionMgr: s.mgr, Gateway: s.gw}))

	body := `{"clientId":"` + strings.Repeat("a", 4096) + `"}`
	req := httptest.NewRequest(http.MethodPut, "/api/credentials", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
