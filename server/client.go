package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket timeout constants following Gorilla best practices
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Buffered outbound messages per client before frames are dropped
	clientSendBuffer = 64
)

// Client is one connected websocket consumer of the work-item stream
type Client struct {
	conn      *websocket.Conn
	send      chan interface{}
	closeOnce sync.Once
	done      chan struct{}
}

// handleJobStream upgrades the connection and streams work-item updates
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan interface{}, clientSendBuffer),
		done: make(chan struct{}),
	}
	s.addClient(client)
	s.logger.Infow("Job stream client connected", "remote", conn.RemoteAddr().String())

	go client.writePump()
	client.readPump() // Blocks until the peer disconnects

	s.removeClient(client)
	client.close()
	s.logger.Infow("Job stream client disconnected", "remote", conn.RemoteAddr().String())
}

// writePump pushes queued messages and pings to the peer
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
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

// readPump drains inbound frames so pong handlers run; the stream is one-way
func (c *Client) readPump() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
