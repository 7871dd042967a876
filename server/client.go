package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skeinhq/skein/ingest"
)

// WebSocket timeout constants following Gorilla best practices.
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Clients only receive; inbound frames are limited to pings and
	// close handshakes.
	maxMessageSize = 4096

	// Buffered events per client before broadcasts start dropping.
	sendBufferSize = 64
)

// Client is one WebSocket subscriber to the lifecycle event stream.
type Client struct {
	server    *Server
	conn      *websocket.Conn
	send      chan ingest.Event
	id        string
	closeOnce sync.Once
}

// readPump drains the connection so control frames are processed.
// Inbound data frames are ignored; the stream is one-way.
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
		if _, _, err := c.conn.ReadMessage(); err != nil {
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
			return
		}
	}
}

// writePump forwards lifecycle events to the peer and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				c.server.logger.Debugw("Event write error",
					"client_id", c.id,
					"error", err,
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

// close safely closes the send channel; double-close is a no-op.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
