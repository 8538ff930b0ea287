package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Clients only send small control messages
	maxMessageSize = 4096
)

// upgrader creates a WebSocket upgrader with origin checking from config
func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin validates an Origin header against server.allowed_origins.
// Requests without an origin (CLI clients, tests) are allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	// Prefix matching allows any port number
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// Client represents a WebSocket client connection
type Client struct {
	server    *Server
	conn      *websocket.Conn
	send      chan interface{}
	ownerID   string
	id        string
	closeOnce sync.Once
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.logger.Warnw("JSON unmarshal error",
				"error", err.Error(),
				"client_id", c.id,
			)
			continue
		}

		switch msg.Type {
		case "ping":
			c.enqueue(PongMessage{Type: "pong", Timestamp: time.Now().Unix()})
		default:
			c.server.logger.Debugw("Ignoring client message", "client_id", c.id, "type", msg.Type)
		}
	}
}

// handleReadError logs unexpected WebSocket read errors.
// Expected closure codes (going away, abnormal, no status) are silently ignored.
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		c.server.logger.Warnw("WebSocket read error",
			"client_id", c.id,
			"error", err,
		)
	}
}

// enqueue queues msg for this client without blocking
func (c *Client) enqueue(msg interface{}) {
	c.server.mu.RLock()
	defer c.server.mu.RUnlock()
	if !c.server.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump owns all writes to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("Message write error",
					"error", err.Error(),
					"client_id", c.id,
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close safely closes the client's queue using sync.Once to prevent double-close panics
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
