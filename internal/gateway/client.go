// Package gateway talks to the two remote services: the token endpoint that
// exchanges developer credentials for a vehicle JWT, and the telemetry API
// that runs query text. Every failure is returned as a *models.Error
// classified as timeout, connection, remote or unexpected.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pocket-telemetry/backend/internal/models"
)

const (
	// DefaultTokenTimeout bounds a token request. It is not configurable.
	DefaultTokenTimeout = 180 * time.Second
	// DefaultQueryTimeout bounds a telemetry query.
	DefaultQueryTimeout = 60 * time.Second

	tokenPath = "/api/auth/vehicle-jwt"
	queryPath = "/query"

	maxResponseBytes = 32 << 20
)

// Config configures a Client.
type Config struct {
	AuthBaseURL      string
	TelemetryBaseURL string
	// TokenTimeout defaults to DefaultTokenTimeout.
	TokenTimeout     time.Duration
	QueryTimeout     time.Duration
	// HTTPClient defaults to a client without its own timeout; deadlines
	// come from the per-call contexts.
	HTTPClient *http.Client
}

// Client is the execution gateway.
type Client struct {
	authBase      string
	telemetryBase string
	tokenTimeout  time.Duration
	queryTimeout  time.Duration
	httpClient    *http.Client
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	authBase, err := normalizeBase(cfg.AuthBaseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: auth base URL: %w", err)
	}
	telemetryBase, err := normalizeBase(cfg.TelemetryBaseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: telemetry base URL: %w", err)
	}

	c := &Client{
		authBase:      authBase,
		telemetryBase: telemetryBase,
		tokenTimeout:  cfg.TokenTimeout,
		queryTimeout:  cfg.QueryTimeout,
		httpClient:    cfg.HTTPClient,
	}
	if c.tokenTimeout <= 0 {
		c.tokenTimeout = DefaultTokenTimeout
	}
	if c.queryTimeout <= 0 {
		c.queryTimeout = DefaultQueryTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c, nil
}

func normalizeBase(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("not set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

type tokenRequest struct {
	ClientID       string `json:"client_id"`
	RedirectURI    string `json:"redirect_uri"`
	APIKey         string `json:"api_key"`
	VehicleTokenID string `json:"vehicle_token_id"`
}

// IssueToken exchanges credentials for a vehicle JWT.
func (c *Client) IssueToken(ctx context.Context, creds models.Credentials) (*models.TokenGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, c.tokenTimeout)
	defer cancel()

	body := tokenRequest{
		ClientID:       creds.ClientID,
		RedirectURI:    creds.RedirectURI,
		APIKey:         creds.APIKey,
		VehicleTokenID: creds.VehicleTokenID,
	}

	status, respBody, err := c.do(ctx, c.authBase+tokenPath, "", body)
	if err != nil {
		return nil, c.transportError(ctx, err, "token service", c.tokenTimeout)
	}

	if status < 200 || status >= 300 {
		msg := detailMessage(respBody)
		if msg == "" {
			msg = fmt.Sprintf("Authentication failed with status %d", status)
		}
		return nil, &models.Error{Kind: models.ErrorKindRemote, Message: msg, Status: status}
	}

	var grant models.TokenGrant
	if err := json.Unmarshal(respBody, &grant); err != nil {
		return nil, &models.Error{Kind: models.ErrorKindUnexpected, Message: "Invalid response from token service", Err: err}
	}
	if grant.VehicleJWT == "" {
		return nil, &models.Error{Kind: models.ErrorKindUnexpected, Message: "Token response did not include vehicle_jwt"}
	}
	return &grant, nil
}

// RunQuery posts queryText with bearer auth and returns the decoded body.
func (c *Client) RunQuery(ctx context.Context, jwt, queryText string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	status, respBody, err := c.do(ctx, c.telemetryBase+queryPath, strings.TrimSpace(jwt), map[string]string{"query": queryText})
	if err != nil {
		return nil, c.transportError(ctx, err, "telemetry API", c.queryTimeout)
	}

	if status < 200 || status >= 300 {
		msg := queryErrorMessage(respBody)
		if msg == "" {
			msg = fmt.Sprintf("Query failed with status %d", status)
		}
		return nil, &models.Error{Kind: models.ErrorKindRemote, Message: msg, Status: status}
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &models.Error{Kind: models.ErrorKindUnexpected, Message: "Invalid response from telemetry API", Err: err}
	}
	return result, nil
}

// do posts a JSON body and returns the status and response body. A non-nil
// error means no complete response was received.
func (c *Client) do(ctx context.Context, endpoint, bearer string, requestBody any) (int, []byte, error) {
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		fmt.Printf("[Gateway] POST %s failed after %s: %v\n", endpoint, time.Since(start).Round(time.Millisecond), err)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	fmt.Printf("[Gateway] POST %s -> %d (%d bytes, %s)\n", endpoint, resp.StatusCode, len(body), time.Since(start).Round(time.Millisecond))
	return resp.StatusCode, body, nil
}

// transportError classifies a failure to get a response.
func (c *Client) transportError(ctx context.Context, err error, service string, timeout time.Duration) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &models.Error{
			Kind:    models.ErrorKindTimeout,
			Message: fmt.Sprintf("Request to %s timed out after %s", service, timeout),
			Err:     err,
		}
	case errors.Is(err, context.Canceled):
		return &models.Error{Kind: models.ErrorKindConnection, Message: fmt.Sprintf("Request to %s was cancelled", service), Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &models.Error{
			Kind:    models.ErrorKindConnection,
			Message: fmt.Sprintf("Unable to connect to %s", service),
			Err:     err,
		}
	}
	return &models.Error{Kind: models.ErrorKindUnexpected, Message: err.Error(), Err: err}
}

// detailMessage extracts a FastAPI-style "detail" from an error body. Detail
// is either a string or a list of validation errors carrying "msg".
func detailMessage(body []byte) string {
	var wire struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &wire) != nil || len(wire.Detail) == 0 {
		return ""
	}

	var text string
	if json.Unmarshal(wire.Detail, &text) == nil {
		return text
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(wire.Detail, &list) == nil && len(list) > 0 {
		return list[0].Msg
	}
	return ""
}

// queryErrorMessage extracts "message", else the first GraphQL error message.
func queryErrorMessage(body []byte) string {
	var wire struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &wire) != nil {
		return ""
	}
	if wire.Message != "" {
		return wire.Message
	}
	if len(wire.Errors) > 0 {
		return wire.Errors[0].Message
	}
	return ""
}
