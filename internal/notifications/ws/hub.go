// Package ws streams service status changes to WebSocket clients.
//
// Hub is a notifications.Sender: every status change delivered through the
// notification queue is broadcast to all connected clients as
//
//	{"event": "status_change", "message": "...", "data": {StatusChange}}
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/notifications"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	sendBufSize  = 16
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Event   string              `json:"event"`
	Message string              `json:"message,omitempty"`
	Data    domain.StatusChange `json:"data"`
}

// Hub manages WebSocket client connections.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub. An empty allowedOrigins accepts any origin.
func New(allowedOrigins []string) *Hub {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// Type returns the channel type.
func (h *Hub) Type() notifications.ChannelType {
	return notifications.ChannelTypeWebSocket
}

// Send broadcasts the notification's status change to all clients.
// Clients whose buffers are full are disconnected.
func (h *Hub) Send(_ context.Context, notification notifications.Notification) error {
	data, err := json.Marshal(Message{
		Event:   "status_change",
		Message: notification.Body,
		Data:    notification.Payload.Change,
	})
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("marshal message: %w", err))
	}

	h.broadcast(data)
	return nil
}

// Run blocks until ctx is cancelled, then closes all connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the connection and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	defer h.unregister(c)

	slog.Debug("websocket client connected", "remote_addr", r.RemoteAddr)

	go c.writePump()
	c.readPump()
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

func (h *Hub) deliver(c *client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		// slow consumer
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() { _ = c.conn.Close() }()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
