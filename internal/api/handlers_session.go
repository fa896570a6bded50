// handlers_session.go - Explorer workspace handlers
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pocket-telemetry/backend/internal/models"
	"github.com/pocket-telemetry/backend/internal/publish"
	"github.com/pocket-telemetry/backend/internal/query"
	"github.com/pocket-telemetry/backend/internal/session"
	"github.com/pocket-telemetry/backend/internal/storage"
	"github.com/vmihailenco/msgpack/v5"
)

// WorkspaceHandlerImpl implements the WorkspaceHandler interface
type WorkspaceHandlerImpl struct {
	sessions      SessionManager
	credentials   storage.CredentialStore
	gateway       Gateway
	publisher     publish.Publisher
	strictSignals bool
}

// NewWorkspaceHandler creates a new workspace handler
func NewWorkspaceHandler(sessions SessionManager, creds storage.CredentialStore, gw Gateway, pub publish.Publisher, strict bool) WorkspaceHandler {
	if pub == nil {
		pub = publish.Noop{}
	}
	return &WorkspaceHandlerImpl{
		sessions:      sessions,
		credentials:   creds,
		gateway:       gw,
		publisher:     pub,
		strictSignals: strict,
	}
}

type credentialsRequest struct {
	models.Credentials
	Remember bool `json:"remember"`
}

type kindRequest struct {
	Kind models.QueryKind `json:"kind"`
}

type signalRequest struct {
	Signal string `json:"signal"`
}

type aggregationRequest struct {
	Signal      string `json:"signal"`
	Aggregation string `json:"aggregation"`
}

type rangeRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Interval string `json:"interval"`
}

type mechanismRequest struct {
	Mechanism models.SegmentMechanism `json:"mechanism"`
}

type eventTypeRequest struct {
	EventType string `json:"eventType"`
}

type toggleResponse struct {
	Selected bool                 `json:"selected"`
	Session  models.WorkspaceView `json:"session"`
}

type tokenResponse struct {
	Grant   *models.TokenGrant   `json:"grant"`
	Session models.WorkspaceView `json:"session"`
}

func (h *WorkspaceHandlerImpl) workspace(c echo.Context) (*session.Workspace, error) {
	id := c.Param("sessionId")
	ws, ok := h.sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return ws, nil
}

// edit binds the request into req, applies fn and returns the updated view.
func (h *WorkspaceHandlerImpl) edit(c echo.Context, req interface{}, fn func(*query.State) error) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	if req != nil {
		if err := c.Bind(req); err != nil {
			return NewBadRequestError("invalid request body", err)
		}
	}
	if err := ws.Edit(fn); err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, ws.View())
}

// HandleCreateSession creates a workspace, prefilled from saved credentials.
func (h *WorkspaceHandlerImpl) HandleCreateSession(c echo.Context) error {
	ws := h.sessions.Create()

	if h.credentials != nil {
		saved, err := h.credentials.Load()
		switch {
		case err == nil:
			ws.SetCredentials(models.Credentials{
				ClientID:    saved.ClientID,
				RedirectURI: saved.RedirectURI,
				APIKey:      saved.APIKey,
			})
		case !errors.Is(err, storage.ErrNoCredentials):
			fmt.Printf("[Session %s] Failed to load saved credentials: %v\n", shortID(ws.ID), err)
		}
	}

	return c.JSON(http.StatusCreated, ws.View())
}

// HandleGetSession returns the workspace view.
func (h *WorkspaceHandlerImpl) HandleGetSession(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ws.View())
}

// HandleDeleteSession tears the workspace down and stops its countdown.
func (h *WorkspaceHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSetCredentials replaces the workspace credentials. With remember set,
// the persistable subset is also written to the saved slot.
func (h *WorkspaceHandlerImpl) HandleSetCredentials(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	ws.SetCredentials(req.Credentials)

	if req.Remember && h.credentials != nil {
		saved := req.Credentials.Saved()
		saved.SavedAt = time.Now().UTC()
		if err := h.credentials.Save(saved); err != nil {
			return NewInternalError("failed to save credentials", err)
		}
	}
	return c.JSON(http.StatusOK, ws.View())
}

// HandleSetKind switches the active query kind.
func (h *WorkspaceHandlerImpl) HandleSetKind(c echo.Context) error {
	var req kindRequest
	return h.edit(c, &req, func(s *query.State) error {
		return s.SetQueryKind(req.Kind)
	})
}

// HandleToggleSignal adds or removes a signal from the selection.
func (h *WorkspaceHandlerImpl) HandleToggleSignal(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req signalRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Signal == "" {
		return NewValidationError("signal")
	}

	var selected bool
	if err := ws.Edit(func(s *query.State) error {
		selected = s.ToggleSignal(req.Signal)
		return nil
	}); err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, toggleResponse{Selected: selected, Session: ws.View()})
}

// HandleSetAggregation sets the aggregation for one signal.
func (h *WorkspaceHandlerImpl) HandleSetAggregation(c echo.Context) error {
	var req aggregationRequest
	return h.edit(c, &req, func(s *query.State) error {
		if req.Signal == "" {
			return NewValidationError("signal")
		}
		return s.SetAggregation(req.Signal, req.Aggregation)
	})
}

// HandleSetRange stores the query time window and interval.
func (h *WorkspaceHandlerImpl) HandleSetRange(c echo.Context) error {
	var req rangeRequest
	return h.edit(c, &req, func(s *query.State) error {
		return s.SetTimeRange(req.From, req.To, req.Interval)
	})
}

// HandleSetMechanism selects the segment detection mechanism.
func (h *WorkspaceHandlerImpl) HandleSetMechanism(c echo.Context) error {
	var req mechanismRequest
	return h.edit(c, &req, func(s *query.State) error {
		return s.SetMechanism(req.Mechanism)
	})
}

// HandleToggleEventType adds or removes an event type filter.
func (h *WorkspaceHandlerImpl) HandleToggleEventType(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req eventTypeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.EventType == "" {
		return NewValidationError("eventType")
	}

	var selected bool
	if err := ws.Edit(func(s *query.State) error {
		selected = s.ToggleEventType(req.EventType)
		return nil
	}); err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, toggleResponse{Selected: selected, Session: ws.View()})
}

// HandleReset restores builder defaults, keeping the vehicle token id.
func (h *WorkspaceHandlerImpl) HandleReset(c echo.Context) error {
	return h.edit(c, nil, func(s *query.State) error {
		s.Reset(time.Now())
		return nil
	})
}

// HandleGetQuery returns the generated query text.
func (h *WorkspaceHandlerImpl) HandleGetQuery(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, ws.Query())
}

// HandleIssueToken requests a vehicle JWT and restarts the countdown.
func (h *WorkspaceHandlerImpl) HandleIssueToken(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	grant, err := ws.IssueToken(c.Request().Context(), h.gateway)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, tokenResponse{Grant: grant, Session: ws.View()})
}

// HandleExecute validates and runs the current query, then publishes the
// interpreted result.
func (h *WorkspaceHandlerImpl) HandleExecute(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	res, err := ws.Execute(c.Request().Context(), h.gateway, h.strictSignals)
	if err != nil {
		return FromError(err)
	}

	view := ws.View()
	msg := publish.ResultMessage{
		WorkspaceID:    ws.ID,
		VehicleTokenID: view.Spec.VehicleTokenID,
		Kind:           view.Spec.Kind,
		Query:          res.Query,
		Summary:        res.Rendering.Summary(),
		Rendering:      res.Rendering,
		ExecutedAt:     time.Now().UTC(),
	}
	if err := h.publisher.PublishResult(msg); err != nil {
		fmt.Printf("[Session %s] Failed to publish result: %v\n", shortID(ws.ID), err)
	}

	return c.JSON(http.StatusOK, res)
}

// HandleGetResult returns the last raw result, its rendering and the error slot.
func (h *WorkspaceHandlerImpl) HandleGetResult(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ws.Result())
}

// HandleGetResultMsgpack returns the last result encoded as MessagePack.
func (h *WorkspaceHandlerImpl) HandleGetResultMsgpack(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(ws.Result())
	if err != nil {
		return NewInternalError("failed to encode result", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
