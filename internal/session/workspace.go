package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pocket-telemetry/backend/internal/catalog"
	"github.com/pocket-telemetry/backend/internal/interpret"
	"github.com/pocket-telemetry/backend/internal/models"
	"github.com/pocket-telemetry/backend/internal/query"
)

// ErrBusy is returned when a token issuance or execution is already in flight.
var ErrBusy = errors.New("another action is already in progress")

// TokenIssuer obtains vehicle JWTs.
type TokenIssuer interface {
	IssueToken(ctx context.Context, creds models.Credentials) (*models.TokenGrant, error)
}

// QueryRunner executes query text against the telemetry API.
type QueryRunner interface {
	RunQuery(ctx context.Context, jwt, queryText string) (map[string]interface{}, error)
}

// Workspace is one browser's explorer state: the live query, credentials,
// token countdown, and the last result or error.
type Workspace struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	query        *query.State
	credentials  models.Credentials
	countdown    *Countdown
	status       models.ActionStatus
	lastResult   map[string]interface{}
	rendering    *interpret.Rendering
	lastError    string
	lastAccessed time.Time
}

// ResultView is a workspace's last execution outcome.
type ResultView struct {
	Result    map[string]interface{} `json:"result" msgpack:"result"`
	Rendering *interpret.Rendering   `json:"rendering" msgpack:"rendering"`
	LastError string                 `json:"lastError,omitempty" msgpack:"lastError,omitempty"`
	Query     string                 `json:"query" msgpack:"query"`
}

func newWorkspace(id string, cat *catalog.Catalog, tick time.Duration, now time.Time) *Workspace {
	return &Workspace{
		ID:           id,
		CreatedAt:    now,
		query:        query.NewState(cat, now),
		countdown:    NewCountdown(tick),
		status:       models.ActionStatusIdle,
		lastAccessed: now,
	}
}

func (w *Workspace) shortID() string {
	if len(w.ID) > 8 {
		return w.ID[:8]
	}
	return w.ID
}

// Edit applies fn to the query state under the workspace lock.
func (w *Workspace) Edit(fn func(*query.State) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn(w.query)
}

// SetCredentials replaces the credentials. The vehicle token id is mirrored
// into the query spec.
func (w *Workspace) SetCredentials(creds models.Credentials) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.credentials = creds
	w.query.SetVehicleTokenID(creds.VehicleTokenID)
}

// Credentials returns the current credentials.
func (w *Workspace) Credentials() models.Credentials {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.credentials
}

// Countdown returns the workspace's token countdown.
func (w *Workspace) Countdown() *Countdown {
	return w.countdown
}

// Query returns the currently generated query text.
func (w *Workspace) Query() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.query.Query()
}

// View returns a snapshot of the workspace.
func (w *Workspace) View() models.WorkspaceView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return models.WorkspaceView{
		ID:          w.ID,
		Status:      w.status,
		Spec:        w.query.Spec(),
		Query:       w.query.Query(),
		Credentials: w.credentials,
		Token:       w.countdown.Snapshot(),
		LastError:   w.lastError,
		HasResult:   w.lastResult != nil,
		CreatedAt:   w.CreatedAt.UnixMilli(),
	}
}

// Result returns the last execution outcome.
func (w *Workspace) Result() ResultView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ResultView{
		Result:    w.lastResult,
		Rendering: w.rendering,
		LastError: w.lastError,
		Query:     w.query.Query(),
	}
}

// IssueToken requests a vehicle JWT with the current credentials and
// restarts the countdown on success. Failures are recorded in the error slot.
func (w *Workspace) IssueToken(ctx context.Context, issuer TokenIssuer) (*models.TokenGrant, error) {
	w.mu.Lock()
	creds := w.credentials
	if !creds.Complete() {
		err := models.NewValidationError("Please fill in all authentication fields")
		w.lastError = err.Message
		w.mu.Unlock()
		return nil, err
	}
	if err := w.beginLocked(models.ActionStatusIssuing); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.mu.Unlock()

	fmt.Printf("[Workspace %s] Requesting vehicle JWT for token %s\n", w.shortID(), creds.VehicleTokenID)
	grant, err := issuer.IssueToken(ctx, creds)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = models.ActionStatusIdle
	if err != nil {
		w.lastError = models.MessageOf(err)
		fmt.Printf("[Workspace %s] Token issuance failed: %v\n", w.shortID(), err)
		return nil, err
	}

	w.lastError = ""
	w.countdown.Start(grant.VehicleJWT)
	fmt.Printf("[Workspace %s] Vehicle JWT issued\n", w.shortID())
	return grant, nil
}

// Execute validates the current query, runs it with the current JWT and
// stores the raw result with its rendering. On failure the previous result
// is kept and the error slot is set.
func (w *Workspace) Execute(ctx context.Context, runner QueryRunner, strict bool) (ResultView, error) {
	w.mu.Lock()
	jwt := w.countdown.JWT()
	if jwt == "" {
		err := models.NewValidationError("Please obtain a Vehicle JWT first")
		w.lastError = err.Message
		w.mu.Unlock()
		return ResultView{}, err
	}
	if err := query.Validate(w.query.Spec(), w.query.Catalog(), strict); err != nil {
		w.lastError = models.MessageOf(err)
		w.mu.Unlock()
		return ResultView{}, err
	}
	if err := w.beginLocked(models.ActionStatusExecuting); err != nil {
		w.mu.Unlock()
		return ResultView{}, err
	}
	text := w.query.Query()
	kind := w.query.Kind()
	order := w.query.Spec().SelectedSignals
	w.mu.Unlock()

	fmt.Printf("[Workspace %s] Executing %s query\n", w.shortID(), kind)
	start := time.Now()
	result, err := runner.RunQuery(ctx, strings.TrimSpace(jwt), text)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = models.ActionStatusIdle
	if err != nil {
		w.lastError = models.MessageOf(err)
		fmt.Printf("[Workspace %s] Query failed after %s: %v\n", w.shortID(), time.Since(start).Round(time.Millisecond), err)
		return ResultView{}, err
	}

	w.lastResult = result
	w.rendering = interpret.Interpret(result, order)
	w.lastError = ""
	fmt.Printf("[Workspace %s] Query complete in %s (%s)\n", w.shortID(), time.Since(start).Round(time.Millisecond), w.rendering.Summary())

	return ResultView{Result: w.lastResult, Rendering: w.rendering, Query: text}, nil
}

func (w *Workspace) beginLocked(status models.ActionStatus) error {
	if w.status != models.ActionStatusIdle {
		return ErrBusy
	}
	w.status = status
	return nil
}

// Close stops the countdown.
func (w *Workspace) Close() {
	w.countdown.Stop()
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastAccessed = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() (time.Time, models.ActionStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastAccessed, w.status
}
