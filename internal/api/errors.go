// errors.go - maps workspace and gateway failures onto JSON error bodies
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pocket-telemetry/backend/internal/models"
	"github.com/pocket-telemetry/backend/internal/session"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func withCause(e *APIError, cause error) *APIError {
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewBadRequestError is returned for request bodies that cannot be bound.
func NewBadRequestError(message string, cause error) *APIError {
	return withCause(&APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}, cause)
}

// NewValidationError reports a missing or empty request field.
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("%s is required", field),
	}
}

func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

func NewConflictError(message string) *APIError {
	return &APIError{Status: http.StatusConflict, Code: "CONFLICT", Message: message}
}

// NewInternalError hides cause from Message and keeps it in Details.
func NewInternalError(message string, cause error) *APIError {
	return withCause(&APIError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: message}, cause)
}

// FromError maps a domain error to its API representation. The message is
// the one recorded in the workspace error slot.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, session.ErrBusy) {
		return NewConflictError("Another request is already in progress for this session")
	}

	var domainErr *models.Error
	if !errors.As(err, &domainErr) {
		return NewInternalError("An unexpected error occurred", err)
	}

	out := &APIError{Message: domainErr.Message}
	switch domainErr.Kind {
	case models.ErrorKindValidation:
		out.Status, out.Code = http.StatusBadRequest, "VALIDATION_ERROR"
	case models.ErrorKindConnection:
		out.Status, out.Code = http.StatusBadGateway, "CONNECTION_ERROR"
	case models.ErrorKindTimeout:
		out.Status, out.Code = http.StatusGatewayTimeout, "TIMEOUT_ERROR"
	case models.ErrorKindRemote:
		out.Status, out.Code = http.StatusBadGateway, "REMOTE_ERROR"
		if domainErr.Status != 0 {
			out.Details = fmt.Sprintf("remote status %d", domainErr.Status)
		}
	default:
		out.Status, out.Code = http.StatusInternalServerError, "UNEXPECTED_ERROR"
		if domainErr.Err != nil {
			out.Details = domainErr.Err.Error()
		}
	}
	return out
}

// ErrorHandler is installed as e.HTTPErrorHandler.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = FromError(err)
	}

	c.JSON(apiErr.Status, apiErr)
}
