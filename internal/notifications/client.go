package notifications

import (
	"context"
	"log"
	"time"

	"dermai/internal/models"
	"dermai/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	sendBufferSize = 256
)

var dropNotice = []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)

// Conn is the subset of *websocket.Conn the pumps need.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one socket connection. A user may hold several.
type Client struct {
	ID          string
	UserID      uint
	Role        models.Role
	DisplayName string

	Conn Conn

	// Buffered channel of outbound messages. Closed by the hub on unregister.
	Send chan []byte

	// closed is guarded by hub.mu and set when Send is closed.
	closed bool

	// IncomingHandler receives every inbound text frame.
	IncomingHandler func(*Client, []byte)

	hub *Hub

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}
}

func newClient(hub *Hub, conn Conn, userID uint, role models.Role, displayName string) *Client {
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		Role:        role,
		DisplayName: displayName,
		Conn:        conn,
		Send:        make(chan []byte, sendBufferSize),
		hub:         hub,
		rooms:       make(map[string]struct{}),
	}
}

// Rooms returns a snapshot of the rooms this connection has joined.
func (c *Client) Rooms() []string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// InRoom reports whether this connection has joined room.
func (c *Client) InRoom(room string) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// SendEvent encodes ev and queues it for this connection only.
func (c *Client) SendEvent(ev Event) {
	data, err := ev.Encode()
	if err != nil {
		log.Printf("client %s: encode %s: %v", c.ID, ev.Type, err)
		return
	}
	c.TrySend(data)
}

// Serve runs the write pump alongside the read pump and returns once both have
// stopped. The connection must not be touched after Serve returns.
func (c *Client) Serve() {
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.WritePump()
	}()
	c.ReadPump()
	<-writeDone
}

// ReadPump pumps messages from the websocket connection to the IncomingHandler.
// It blocks until the peer goes away and then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.touch(c.UserID)
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.LogError(context.Background(), c.UserID, c.ID, err, "read")
			}
			break
		}

		c.hub.touch(c.UserID)
		if c.IncomingHandler != nil {
			c.IncomingHandler(c, message)
		}
	}
}

// WritePump pumps messages from the Send channel to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a message without blocking. A full buffer drops the message
// and queues a messages_dropped notice so the client can re-fetch.
// Sends after unregister are dropped.
func (c *Client) TrySend(message []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	c.trySendLocked(message)
}

// trySendLocked requires hub.mu to be held.
func (c *Client) trySendLocked(message []byte) {
	if c.closed {
		observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "closed").Inc()
		return
	}

	select {
	case c.Send <- message:
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "full").Inc()
		log.Printf("client %s (user %d): buffer full, dropped message", c.ID, c.UserID)

		select {
		case c.Send <- dropNotice:
		default:
		}
	}
}

// closeSendLocked closes the send channel once. It requires hub.mu held for writing.
func (c *Client) closeSendLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

var _ Conn = (*websocket.Conn)(nil)
