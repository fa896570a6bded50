// routes.go - Route registration helpers
package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pocket-telemetry/backend/internal/catalog"
	"github.com/pocket-telemetry/backend/internal/publish"
	"github.com/pocket-telemetry/backend/internal/session"
	"github.com/pocket-telemetry/backend/internal/storage"
)

// TelemetryProxyPrefix is the development path forwarded to the telemetry API.
const TelemetryProxyPrefix = "/api/telemetry"

// Dependencies holds all handler dependencies
type Dependencies struct {
	SessionMgr    *session.Manager
	Credentials   storage.CredentialStore
	Gateway       Gateway
	Publisher     publish.Publisher
	Catalog       *catalog.Catalog
	StrictSignals bool
	// CountdownInterval is the WebSocket frame interval; zero means one second.
	CountdownInterval time.Duration
	Version           string
}

// Handlers holds all handler instances
type Handlers struct {
	Health      HealthHandler
	Catalog     CatalogHandler
	Workspace   WorkspaceHandler
	Credentials CredentialsHandler
	Countdown   CountdownHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	cat := deps.Catalog
	if cat == nil {
		cat = deps.SessionMgr.Catalog()
	}
	creds := deps.Credentials
	if creds == nil {
		creds = storage.NewMemoryCredentialStore()
	}
	return &Handlers{
		Health:      NewHealthHandler(deps.Version, deps.SessionMgr.Count),
		Catalog:     NewCatalogHandler(cat),
		Workspace:   NewWorkspaceHandler(deps.SessionMgr, creds, deps.Gateway, deps.Publisher, deps.StrictSignals),
		Credentials: NewCredentialsHandler(creds),
		Countdown:   NewCountdownHandler(deps.SessionMgr, deps.CountdownInterval),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check and reference data
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/catalog", handlers.Catalog.HandleGetCatalog)

	// Explorer sessions
	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.POST("", handlers.Workspace.HandleCreateSession)
	sessionGroup.GET("/:sessionId", handlers.Workspace.HandleGetSession)
	sessionGroup.DELETE("/:sessionId", handlers.Workspace.HandleDeleteSession)
	sessionGroup.PUT("/:sessionId/credentials", handlers.Workspace.HandleSetCredentials)
	sessionGroup.PUT("/:sessionId/kind", handlers.Workspace.HandleSetKind)
	sessionGroup.POST("/:sessionId/signals/toggle", handlers.Workspace.HandleToggleSignal)
	sessionGroup.PUT("/:sessionId/aggregations", handlers.Workspace.HandleSetAggregation)
	sessionGroup.PUT("/:sessionId/range", handlers.Workspace.HandleSetRange)
	sessionGroup.PUT("/:sessionId/mechanism", handlers.Workspace.HandleSetMechanism)
	sessionGroup.POST("/:sessionId/events/toggle", handlers.Workspace.HandleToggleEventType)
	sessionGroup.POST("/:sessionId/reset", handlers.Workspace.HandleReset)
	sessionGroup.GET("/:sessionId/query", handlers.Workspace.HandleGetQuery)
	sessionGroup.POST("/:sessionId/token", handlers.Workspace.HandleIssueToken)
	sessionGroup.POST("/:sessionId/execute", handlers.Workspace.HandleExecute)
	sessionGroup.GET("/:sessionId/result", handlers.Workspace.HandleGetResult)
	sessionGroup.GET("/:sessionId/result/msgpack", handlers.Workspace.HandleGetResultMsgpack)
	sessionGroup.GET("/:sessionId/countdown", handlers.Countdown.HandleCountdown)

	// Saved credential slot
	credGroup := apiGroup.Group("/credentials")
	credGroup.GET("", handlers.Credentials.HandleGetCredentials)
	credGroup.PUT("", handlers.Credentials.HandleSaveCredentials)
	credGroup.DELETE("", handlers.Credentials.HandleClearCredentials)
}

// MiddlewareConfig selects the optional middleware.
type MiddlewareConfig struct {
	RequestLogging bool
	BodyLimit      string
	// AllowOrigins enables CORS when non-empty.
	AllowOrigins []string
	// TelemetryProxyTarget enables the development proxy when set.
	TelemetryProxyTarget string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) error {
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.RequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasSuffix(path, "/countdown")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if len(cfg.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	if cfg.TelemetryProxyTarget != "" {
		target, err := url.Parse(cfg.TelemetryProxyTarget)
		if err != nil {
			return fmt.Errorf("invalid telemetry proxy target: %w", err)
		}
		proxyGroup := e.Group(TelemetryProxyPrefix)
		// Virtual-hosted upstreams route on Host, so present the target's.
		proxyGroup.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Request().Host = target.Host
				return next(c)
			}
		})
		proxyGroup.Use(middleware.ProxyWithConfig(middleware.ProxyConfig{
			Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{URL: target}}),
			Rewrite: map[string]string{
				"^" + TelemetryProxyPrefix + "/*": "/$1",
			},
			ModifyResponse: func(resp *http.Response) error {
				// The proxied API sets its own CORS headers; keep ours.
				resp.Header.Del(echo.HeaderAccessControlAllowOrigin)
				return nil
			},
		}))
		fmt.Printf("[Proxy] %s/* -> %s\n", TelemetryProxyPrefix, target)
	}
	return nil
}
