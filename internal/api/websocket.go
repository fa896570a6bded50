package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pocket-telemetry/backend/internal/models"
)

// WebSocket message types for the countdown feed
const (
	MsgTypeTick    = "tick"
	MsgTypeExpired = "expired"
	MsgTypeClosed  = "closed"
)

// CountdownMessage is one frame of the countdown feed.
type CountdownMessage struct {
	Type      string             `json:"type"`
	SessionID string             `json:"sessionId"`
	Token     models.TokenStatus `json:"token"`
	Timestamp int64              `json:"timestamp"`
}

// CountdownSocketHandler pushes token status to the browser once per interval
type CountdownSocketHandler struct {
	sessions SessionManager
	upgrader websocket.Upgrader
	interval time.Duration
}

// NewCountdownHandler creates a countdown feed handler. interval <= 0 means
// one frame per second.
func NewCountdownHandler(sessions SessionManager, interval time.Duration) *CountdownSocketHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &CountdownSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		interval: interval,
	}
}

// HandleCountdown upgrades the connection and streams token status until the
// token expires, the session is deleted or the client goes away.
func (h *CountdownSocketHandler) HandleCountdown(c echo.Context) error {
	id := c.Param("sessionId")
	if _, ok := h.sessions.Get(id); !ok {
		return NewNotFoundError("session", id)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Printf("[Countdown %s] Client connected\n", shortID(id))

	// The reader only exists to notice the close frame.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Printf("[Countdown %s] Connection error: %v\n", shortID(id), err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		workspace, ok := h.sessions.Get(id)
		if !ok {
			h.send(ws, CountdownMessage{Type: MsgTypeClosed, SessionID: id})
			break
		}

		status := workspace.Countdown().Snapshot()
		msgType := MsgTypeTick
		if status.Expired {
			msgType = MsgTypeExpired
		}
		if err := h.send(ws, CountdownMessage{Type: msgType, SessionID: id, Token: status}); err != nil {
			break
		}
		if status.Expired {
			break
		}

		select {
		case <-gone:
			fmt.Printf("[Countdown %s] Client disconnected\n", shortID(id))
			return nil
		case <-ticker.C:
		}
	}

	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}

func (h *CountdownSocketHandler) send(ws *websocket.Conn, msg CountdownMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[Countdown %s] Failed to send message: %v\n", shortID(msg.SessionID), err)
		return err
	}
	return nil
}
