package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocket-telemetry/backend/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialCountdown(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/countdown"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readCountdown(t *testing.T, conn *websocket.Conn) CountdownMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg CountdownMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestCountdownFeed(t *testing.T) {
	s := newTestServer(t, time.Hour)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ws := s.mgr.Create()
	conn := dialCountdown(t, srv, ws.ID)

	msg := readCountdown(t, conn)
	assert.Equal(t, MsgTypeTick, msg.Type)
	assert.Equal(t, ws.ID, msg.SessionID)
	assert.Nil(t, msg.Token.ExpiresIn)

	ws.SetCredentials(testCreds())
	_, err := ws.IssueToken(context.Background(), s.gw)
	require.NoError(t, err)

	for msg.Token.ExpiresIn == nil {
		msg = readCountdown(t, conn)
	}
	assert.Equal(t, "test-jwt", msg.Token.VehicleJWT)
	assert.Equal(t, session.TokenLifetimeSeconds, *msg.Token.ExpiresIn)

	s.mgr.Delete(ws.ID)
	for msg.Type != MsgTypeClosed {
		msg = readCountdown(t, conn)
	}
}

func TestCountdownFeedStopsAtExpiry(t *testing.T) {
	s := newTestServer(t, time.Microsecond)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ws := s.mgr.Create()
	ws.SetCredentials(testCreds())
	_, err := ws.IssueToken(context.Background(), s.gw)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ws.Countdown().Snapshot().Expired }, 5*time.Second, time.Millisecond)

	conn := dialCountdown(t, srv, ws.ID)
	msg := readCountdown(t, conn)
	assert.Equal(t, MsgTypeExpired, msg.Type)
	assert.Equal(t, 0, *msg.Token.ExpiresIn)
	assert.Equal(t, "test-jwt", msg.Token.VehicleJWT)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestCountdownRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, time.Hour)
	ws := s.mgr.Create()

	rec := s.do(t, http.MethodGet, "/api/sessions/"+ws.ID+"/countdown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
