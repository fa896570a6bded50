// handlers_credentials.go - Saved credential slot handlers
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pocket-telemetry/backend/internal/models"
	"github.com/pocket-telemetry/backend/internal/storage"
)

// CredentialsHandlerImpl implements the CredentialsHandler interface
type CredentialsHandlerImpl struct {
	store storage.CredentialStore
}

// NewCredentialsHandler creates a new credentials handler
func NewCredentialsHandler(store storage.CredentialStore) CredentialsHandler {
	return &CredentialsHandlerImpl{store: store}
}

type credentialsResponse struct {
	Saved      *models.SavedCredentials `json:"saved"`
	Persistent bool                     `json:"persistent"`
	Slot       string                   `json:"slot"`
}

// HandleGetCredentials returns the saved slot, or null when empty.
func (h *CredentialsHandlerImpl) HandleGetCredentials(c echo.Context) error {
	saved, err := h.store.Load()
	if err != nil && !errors.Is(err, storage.ErrNoCredentials) {
		return NewInternalError("failed to load credentials", err)
	}
	return c.JSON(http.StatusOK, credentialsResponse{
		Saved:      saved,
		Persistent: h.store.Persistent(),
		Slot:       storage.CredentialSlot,
	})
}

// HandleSaveCredentials overwrites the saved slot. A vehicle token id in the
// body is ignored.
func (h *CredentialsHandlerImpl) HandleSaveCredentials(c echo.Context) error {
	var req models.Credentials
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	saved := req.Saved()
	saved.SavedAt = time.Now().UTC()
	if err := h.store.Save(saved); err != nil {
		return NewInternalError("failed to save credentials", err)
	}
	return c.JSON(http.StatusOK, credentialsResponse{
		Saved:      &saved,
		Persistent: h.store.Persistent(),
		Slot:       storage.CredentialSlot,
	})
}

// HandleClearCredentials empties the saved slot.
func (h *CredentialsHandlerImpl) HandleClearCredentials(c echo.Context) error {
	if err := h.store.Clear(); err != nil {
		return NewInternalError("failed to clear credentials", err)
	}
	return c.NoContent(http.StatusNoContent)
}
