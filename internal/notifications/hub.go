// Package notifications provides real-time delivery: socket clients, rooms,
// presence and the cross-instance relays.
package notifications

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"dermai/internal/models"
	"dermai/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerConnLimit = errors.New("server connection limit reached")
	ErrUserConnLimit   = errors.New("user connection limit reached")
	ErrHubClosed       = errors.New("hub is shutting down")
)

// ConversationRoom is the room every participant connection of a conversation joins.
func ConversationRoom(conversationID uint) string {
	return "conv:" + strconv.FormatUint(uint64(conversationID), 10)
}

// UserRoom is the personal room of a user. Every connection of the user joins it.
func UserRoom(userID uint) string {
	return "user:" + strconv.FormatUint(uint64(userID), 10)
}

// Hub tracks live connections and the rooms they joined.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	totalConns int
	closed     bool

	presence *ConnectionManager
	logger   *observability.WSLogger
}

// NewHub creates a Hub. Presence is mirrored to Redis when a client is given.
func NewHub(redisClients ...*redis.Client) *Hub {
	var redisClient *redis.Client
	if len(redisClients) > 0 {
		redisClient = redisClients[0]
	}

	return &Hub{
		conns:    make(map[uint]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		presence: NewConnectionManager(redisClient, ConnectionManagerConfig{}),
		logger:   observability.NewWSLogger("chat hub"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "chat hub" }

// Register adds a connection for userID and joins it to the user's personal room.
func (h *Hub) Register(userID uint, role models.Role, displayName string, conn Conn) (*Client, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerConnLimit
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserConnLimit
	}

	client := newClient(h, conn, userID, role, displayName)
	m[client] = struct{}{}
	h.totalConns++
	h.joinLocked(client, UserRoom(userID))
	h.mu.Unlock()

	observability.WebSocketConnections.Inc()
	h.logger.LogConnect(context.Background(), userID, client.ID)
	h.presence.Register(context.Background(), userID)

	return client, nil
}

// UnregisterClient removes the connection from every room and closes its send channel.
// Calling it twice is a no-op.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	m, ok := h.conns[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := m[client]; !exists {
		h.mu.Unlock()
		return
	}

	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
	h.totalConns--
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	client.closeSendLocked()
	h.mu.Unlock()

	observability.WebSocketConnections.Dec()
	h.logger.LogDisconnect(context.Background(), client.UserID, client.ID, "unregistered")
	h.presence.Unregister(context.Background(), client.UserID)
}

// Join subscribes the connection to room. It reports whether the connection was newly added.
func (h *Hub) Join(client *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registeredLocked(client) {
		return false
	}
	return h.joinLocked(client, room)
}

// Leave unsubscribes the connection from room. Leaving a room not joined is a no-op.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
}

func (h *Hub) registeredLocked(client *Client) bool {
	m, ok := h.conns[client.UserID]
	if !ok {
		return false
	}
	_, ok = m[client]
	return ok
}

func (h *Hub) joinLocked(client *Client, room string) bool {
	if _, ok := client.rooms[room]; ok {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}
	return true
}

func (h *Hub) leaveLocked(client *Client, room string) {
	delete(client.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Deliver queues payload on every connection in room except the one whose ID is excludeConnID.
// It returns the number of connections the payload was queued for.
func (h *Hub) Deliver(room string, payload []byte, excludeConnID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.rooms[room] {
		if excludeConnID != "" && c.ID == excludeConnID {
			continue
		}
		c.trySendLocked(payload)
		n++
	}
	return n
}

// RoomSize returns the number of connections subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ConnectionCount returns the number of live connections held by this process.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// IsOnline reports whether a user has a live connection on any instance.
func (h *Hub) IsOnline(userID uint) bool {
	return h.presence.IsOnline(context.Background(), userID)
}

// OnlineUserIDs lists users with a live connection on any instance.
func (h *Hub) OnlineUserIDs(ctx context.Context) []uint {
	return h.presence.GetOnlineUserIDs(ctx)
}

// SetPresenceCallbacks installs the online/offline transition hooks.
func (h *Hub) SetPresenceCallbacks(onOnline, onOffline func(userID uint)) {
	h.presence.SetCallbacks(onOnline, onOffline)
}

func (h *Hub) touch(userID uint) {
	h.presence.Touch(context.Background(), userID)
}

// Shutdown sends a server_shutdown notice to every connection and closes their send channels.
// The write pumps flush the notice and then close the sockets.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.presence.Stop()

	notice, _ := Event{
		Type:    EventServerShutdown,
		Payload: map[string]string{"message": "Server is shutting down"},
	}.Encode()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	closed := 0
	for _, userConns := range h.conns {
		for client := range userConns {
			client.trySendLocked(notice)
			client.closeSendLocked()
			closed++
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	observability.WebSocketConnections.Sub(float64(closed))
	h.logger.LogLifecycle(ctx, "shutdown", map[string]interface{}{"closed_connections": closed})
	return nil
}
