package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pocket-telemetry/backend/internal/catalog"
	"github.com/pocket-telemetry/backend/internal/models"
	"github.com/pocket-telemetry/backend/internal/query"
	"github.com/pocket-telemetry/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = models.Credentials{
	ClientID:       "0xclient",
	RedirectURI:    "https://example.com/callback",
	APIKey:         "secret",
	VehicleTokenID: "12345",
}

func newTestManager() *Manager {
	return NewManagerWithTick(catalog.Default(), 5*time.Millisecond)
}

func TestManagerLifecycle(t *testing.T) {
	m := newTestManager()
	defer m.CloseAll()

	ws := m.Create()
	require.NotEmpty(t, ws.ID)
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get(ws.ID)
	require.True(t, ok)
	assert.Same(t, ws, got)

	_, ok = m.Get("missing")
	assert.False(t, ok)

	assert.True(t, m.Delete(ws.ID))
	assert.False(t, m.Delete(ws.ID))
	assert.Equal(t, 0, m.Count())
}

func TestManagerDeleteStopsCountdown(t *testing.T) {
	m := newTestManager()
	ws := m.Create()

	ws.SetCredentials(testCreds)
	_, err := ws.IssueToken(context.Background(), testutil.NewMockGateway())
	require.NoError(t, err)
	require.True(t, ws.Countdown().Running())

	m.Delete(ws.ID)
	assert.False(t, ws.Countdown().Running())
}

func TestManagerCleanupIdle(t *testing.T) {
	m := newTestManager()
	defer m.CloseAll()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	stale := m.Create()
	fresh := m.Create()
	busy := m.Create()
	busy.status = models.ActionStatusExecuting

	now = now.Add(3 * time.Hour)
	m.Get(fresh.ID)

	removed := m.CleanupIdle(2 * time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := m.Get(stale.ID)
	assert.False(t, ok)
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)
	_, ok = m.Get(busy.ID)
	assert.True(t, ok, "workspaces with an action in flight are kept")
}

func TestManagerEvictsLeastRecentlyUsed(t *testing.T) {
	m := newTestManager()
	defer m.CloseAll()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	first := m.Create()
	for i := 1; i < MaxWorkspaces; i++ {
		m.Create()
	}
	require.Equal(t, MaxWorkspaces, m.Count())

	m.Create()
	assert.Equal(t, MaxWorkspaces, m.Count())
	_, ok := m.Get(first.ID)
	assert.False(t, ok)
}

func TestWorkspaceEditAndView(t *testing.T) {
	m := newTestManager()
	defer m.CloseAll()
	ws := m.Create()

	ws.SetCredentials(testCreds)
	require.NoError(t, ws.Edit(func(s *query.State) error {
		s.ToggleSignal("speed")
		return nil
	}))

	view := ws.View()
	assert.Equal(t, ws.ID, view.ID)
	assert.Equal(t, models.ActionStatusIdle, view.Status)
	assert.Equal(t, "12345", view.Spec.VehicleTokenID)
	assert.Contains(t, view.Query, "signalsLatest(tokenId: 12345)")
	assert.Nil(t, view.Token.ExpiresIn)
	assert.False(t, view.HasResult)
}

func TestWorkspaceIssueToken(t *testing.T) {
	t.Run("incomplete credentials", func(t *testing.T) {
		m := newTestManager()
		defer m.CloseAll()
		ws := m.Create()
		gw := testutil.NewMockGateway()

		ws.SetCredentials(models.Credentials{ClientID: "only"})
		_, err := ws.IssueToken(context.Background(), gw)
		require.Error(t, err)
		assert.Equal(t, "Please fill in all authentication fields", models.MessageOf(err))
		assert.Equal(t, "Please fill in all authentication fields", ws.View().LastError)
		assert.Empty(t, gw.IssueCalls())
	})

	t.Run("success starts countdown and clears error", func(t *testing.T) {
		m := newTestManager()
		defer m.CloseAll()
		ws := m.Create()
		ws.lastError = "previous"

		ws.SetCredentials(testCreds)
		grant, err := ws.IssueToken(context.Background(), testutil.NewMockGateway())
		require.NoError(t, err)
		assert.Equal(t, "test-jwt", grant.VehicleJWT)

		view := ws.View()
		assert.Empty(t, view.LastError)
		assert.Equal(t, "test-jwt", view.Token.VehicleJWT)
		require.NotNil(t, view.Token.ExpiresIn)
		assert.LessOrEqual(t, *view.Token.ExpiresIn, TokenLifetimeSeconds)
	})

	t.Run("remote failure keeps previous token", func(t *testing.T) {
		m := newTestManager()
		defer m.CloseAll()
		ws := m.Create()
		ws.SetCredentials(testCreds)
		_, err := ws.IssueToken(context.Background(), testutil.NewMockGateway())
		require.NoError(t, err)

		gw := testutil.NewMockGateway()
		gw.IssueFunc = func(ctx context.Context, creds models.Credentials) (*models.TokenGrant, error) {
			return nil, &models.Error{Kind: models.ErrorKindRemote, Message: "Authentication failed with status 401", Status: 401}
		}
		_, err = ws.IssueToken(context.Background(), gw)
		require.Error(t, err)

		view := ws.View()
		assert.Equal(t, "Authentication failed with status 401", view.LastError)
		assert.Equal(t, "test-jwt", view.Token.VehicleJWT)
		assert.Equal(t, models.ActionStatusIdle, view.Status)
	})
}

func TestWorkspaceExecute(t *testing.T) {
	ready := func(t *testing.T) (*Workspace, func()) {
		m := newTestManager()
		ws := m.Create()
		ws.SetCredentials(testCreds)
		_, err := ws.IssueToken(context.Background(), testutil.NewMockGateway())
		require.NoError(t, err)
		require.NoError(t, ws.Edit(func(s *query.State) error {
			s.ToggleSignal("speed")
			return nil
		}))
		return ws, m.CloseAll
	}

	t.Run("requires a token", func(t *testing.T) {
		m := newTestManager()
		defer m.CloseAll()
		ws := m.Create()
		gw := testutil.NewMockGateway()

		_, err := ws.Execute(context.Background(), gw, false)
		require.Error(t, err)
		assert.Equal(t, "Please obtain a Vehicle JWT first", models.MessageOf(err))
		assert.Empty(t, gw.RunCalls())
	})

	t.Run("validation failure makes no request", func(t *testing.T) {
		ws, done := ready(t)
		defer done()
		require.NoError(t, ws.Edit(func(s *query.State) error {
			s.ToggleSignal("speed")
			return nil
		}))
		gw := testutil.NewMockGateway()

		_, err := ws.Execute(context.Background(), gw, false)
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindValidation, models.KindOf(err))
		assert.Equal(t, "Please select at least one signal", ws.View().LastError)
		assert.Empty(t, gw.RunCalls())
	})

	t.Run("success stores result and rendering", func(t *testing.T) {
		ws, done := ready(t)
		defer done()
		gw := testutil.NewMockGateway()
		gw.RunFunc = func(ctx context.Context, jwt, text string) (map[string]interface{}, error) {
			return map[string]interface{}{"data": map[string]interface{}{
				"signalsLatest": map[string]interface{}{
					"lastSeen": "2024-01-01T00:05:00Z",
					"speed":    map[string]interface{}{"value": float64(42), "timestamp": "2024-01-01T00:00:00Z"},
				},
			}}, nil
		}

		res, err := ws.Execute(context.Background(), gw, false)
		require.NoError(t, err)
		require.NotNil(t, res.Rendering.Latest)
		assert.Len(t, res.Rendering.Latest.Entries, 1)

		calls := gw.RunCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "test-jwt", calls[0].JWT)
		assert.True(t, strings.HasPrefix(calls[0].Query, "query {"))
		assert.True(t, ws.View().HasResult)
	})

	t.Run("rendering follows selection order", func(t *testing.T) {
		ws, done := ready(t)
		defer done()
		require.NoError(t, ws.Edit(func(s *query.State) error {
			s.ToggleSignal("exteriorAirTemperature")
			return nil
		}))
		gw := testutil.NewMockGateway()
		gw.RunFunc = func(ctx context.Context, jwt, text string) (map[string]interface{}, error) {
			return map[string]interface{}{"data": map[string]interface{}{
				"signalsLatest": map[string]interface{}{
					"exteriorAirTemperature": map[string]interface{}{"value": float64(18)},
					"speed":                  map[string]interface{}{"value": float64(42)},
				},
			}}, nil
		}

		res, err := ws.Execute(context.Background(), gw, false)
		require.NoError(t, err)
		require.Len(t, res.Rendering.Latest.Entries, 2)
		assert.Equal(t, "speed", res.Rendering.Latest.Entries[0].Signal)
		assert.Equal(t, "exteriorAirTemperature", res.Rendering.Latest.Entries[1].Signal)
	})

	t.Run("failure keeps previous result", func(t *testing.T) {
		ws, done := ready(t)
		defer done()
		_, err := ws.Execute(context.Background(), testutil.NewMockGateway(), false)
		require.NoError(t, err)

		gw := testutil.NewMockGateway()
		gw.RunFunc = func(ctx context.Context, jwt, text string) (map[string]interface{}, error) {
			return nil, &models.Error{Kind: models.ErrorKindTimeout, Message: "Query timed out", Err: context.DeadlineExceeded}
		}
		_, err = ws.Execute(context.Background(), gw, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))

		res := ws.Result()
		assert.NotNil(t, res.Result)
		assert.Equal(t, "Query timed out", res.LastError)
	})

	t.Run("rejects concurrent execution", func(t *testing.T) {
		ws, done := ready(t)
		defer done()

		release := make(chan struct{})
		started := make(chan struct{})
		gw := testutil.NewMockGateway()
		gw.RunFunc = func(ctx context.Context, jwt, text string) (map[string]interface{}, error) {
			close(started)
			<-release
			return map[string]interface{}{"data": map[string]interface{}{}}, nil
		}

		errc := make(chan error, 1)
		go func() {
			_, err := ws.Execute(context.Background(), gw, false)
			errc <- err
		}()
		<-started

		assert.Equal(t, models.ActionStatusExecuting, ws.View().Status)
		_, err := ws.Execute(context.Background(), testutil.NewMockGateway(), false)
		assert.ErrorIs(t, err, ErrBusy)

		close(release)
		require.NoError(t, <-errc)
		assert.Equal(t, models.ActionStatusIdle, ws.View().Status)
	})
}
