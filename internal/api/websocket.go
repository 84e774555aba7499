package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadLimit  = maxRequestBody
	wsPongWait   = 60 * time.Second
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 45 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API-key middleware already gates the endpoint; origins stay open
	// for browser-based MCP inspectors.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsSession serializes writes: the ping loop and the response writer share
// one connection and gorilla allows a single writer at a time.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSession) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// handleWebSocket bridges JSON-RPC over a WebSocket: one request message in,
// one response message out, in order.
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		r.logger.Warn("websocket upgrade failed", "error", err.Error(), "remote", clientKey(req))
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	session := &wsSession{conn: conn}
	stop := make(chan struct{})
	defer close(stop)
	go r.wsPinger(session, stop)

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Warn("websocket closed", "error", err.Error())
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		resp := r.dispatcher.Handle(req.Context(), payload)
		if err := session.writeJSON(resp); err != nil {
			r.logger.Warn("websocket write failed", "error", err.Error())
			return
		}
	}
}

// wsPinger keeps the connection alive while the read loop waits for the
// next request.
func (r *Router) wsPinger(session *wsSession, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := session.ping(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
