// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/pocket-telemetry/backend/internal/session"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// CatalogHandler serves the static signal reference data
type CatalogHandler interface {
	HandleGetCatalog(c echo.Context) error
}

// WorkspaceHandler handles explorer session operations
type WorkspaceHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleSetCredentials(c echo.Context) error
	HandleSetKind(c echo.Context) error
	HandleToggleSignal(c echo.Context) error
	HandleSetAggregation(c echo.Context) error
	HandleSetRange(c echo.Context) error
	HandleSetMechanism(c echo.Context) error
	HandleToggleEventType(c echo.Context) error
	HandleReset(c echo.Context) error
	HandleGetQuery(c echo.Context) error
	HandleIssueToken(c echo.Context) error
	HandleExecute(c echo.Context) error
	HandleGetResult(c echo.Context) error
	HandleGetResultMsgpack(c echo.Context) error
}

// CredentialsHandler handles the saved credential slot
type CredentialsHandler interface {
	HandleGetCredentials(c echo.Context) error
	HandleSaveCredentials(c echo.Context) error
	HandleClearCredentials(c echo.Context) error
}

// CountdownHandler streams token countdown ticks
type CountdownHandler interface {
	HandleCountdown(c echo.Context) error
}

// Gateway is the remote side of token issuance and query execution.
type Gateway interface {
	session.TokenIssuer
	session.QueryRunner
}

// SessionManager defines the interface for workspace management
// This allows mocking in tests
type SessionManager interface {
	Create() *session.Workspace
	Get(id string) (*session.Workspace, bool)
	Delete(id string) bool
}
