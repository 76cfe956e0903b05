package http

import (
	"dm-core/domain/event"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// SocketConfig tunes the /ws keepalive.
type SocketConfig struct {
	WriteWait      time.Duration
	PingPeriod     time.Duration
	CheckOrigin    func(r *http.Request) bool
	ReadLimitBytes int64
}

func (s SocketConfig) withDefaults() SocketConfig {
	if s.WriteWait <= 0 {
		s.WriteWait = 10 * time.Second
	}
	if s.PingPeriod <= 0 {
		s.PingPeriod = 30 * time.Second
	}
	if s.ReadLimitBytes <= 0 {
		s.ReadLimitBytes = 512
	}
	if s.CheckOrigin == nil {
		s.CheckOrigin = func(*http.Request) bool { return true }
	}
	return s
}

// Subscribe upgrades to a websocket and pushes every envelope of the
// caller's session as a JSON text frame. The socket is push only, incoming
// frames are read and discarded to process pongs and the close handshake.
func (h *Handler) Subscribe(c echo.Context) error {
	ctx := c.Request().Context()
	id := userID(c)
	session, err := h.gateway.Connect(ctx, id)
	if err != nil {
		return httpError(err)
	}
	defer session.Close()

	upgrader := websocket.Upgrader{CheckOrigin: h.socket.CheckOrigin}
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Debug("Websocket upgrade failed", "user_id", id, "error", err)
		return nil
	}
	defer ws.Close()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		ws.SetReadLimit(h.socket.ReadLimitBytes)
		pongWait := 2 * h.socket.PingPeriod
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.socket.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-readerDone:
			h.log.Debug("Websocket closed by peer", "user_id", id)
			return nil
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return nil
		case env := <-session.Events():
			if err := h.write(ws, env); err != nil {
				h.log.Debug("Websocket write failed", "user_id", id, "error", err)
				return nil
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.socket.WriteWait)); err != nil {
				return nil
			}
		}
	}
}

func (h *Handler) write(ws *websocket.Conn, env event.Envelope) error {
	if err := ws.SetWriteDeadline(time.Now().Add(h.socket.WriteWait)); err != nil {
		return err
	}
	return ws.WriteJSON(env)
}
