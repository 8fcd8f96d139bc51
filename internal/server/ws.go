package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Plaintext local endpoint with no client auth; the Resonite client
	// sends no Origin header worth checking.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades incoming HTTP requests to WebSocket connections and
// hands each connection to the connect callback, which takes ownership of
// the connection lifecycle (including closing it).
type WSHandler struct {
	logger  *log.Logger
	connect func(conn *websocket.Conn)
}

// NewWSHandler creates a WebSocket endpoint handler. connect is invoked on
// the request goroutine for every successfully upgraded connection.
func NewWSHandler(logger *log.Logger, connect func(conn *websocket.Conn)) *WSHandler {
	return &WSHandler{logger: logger, connect: connect}
}

// Routes returns the HTTP routes this handler serves.
func (h *WSHandler) Routes() []string {
	return []string{"/"}
}

// ServeHTTP upgrades the connection. Upgrade failures are logged and the
// request is dropped; they never affect other sessions.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	h.connect(conn)
}
