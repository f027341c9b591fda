package notifications

import (
	"errors"
	"sync"
	"testing"
	"time"

	"dermai/internal/models"
	"dermai/internal/observability"

	"github.com/gofiber/websocket/v2"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	mu          sync.Mutex
	inbound     chan []byte
	written     [][]byte
	closed      bool
	closeFrames int
	released    bool
	usedAfter   int
}

func newMockConn() *mockConn {
	return &mockConn{inbound: make(chan []byte, 16)}
}

func (m *mockConn) SetReadLimit(int64)              {}
func (m *mockConn) SetReadDeadline(time.Time) error { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		m.usedAfter++
	}
	return nil
}
func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-m.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return websocket.TextMessage, msg, nil
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		m.usedAfter++
	}
	switch messageType {
	case websocket.TextMessage:
		m.written = append(m.written, data)
	case websocket.CloseMessage:
		m.closeFrames++
	}
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		m.usedAfter++
	}
	m.closed = true
	return nil
}

func (m *mockConn) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.written))
	for i, w := range m.written {
		out[i] = string(w)
	}
	return out
}

func TestClient_TrySendDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	c := register(t, hub, 1, models.RolePatient)

	drops := observability.WebSocketBackpressureDrops.WithLabelValues(hub.Name(), "full")
	before := promtestutil.ToFloat64(drops)

	for i := 0; i < sendBufferSize; i++ {
		c.TrySend([]byte(`{"type":"new_message"}`))
	}
	c.TrySend([]byte(`{"type":"new_message"}`))

	assert.Len(t, c.Send, sendBufferSize)
	assert.Equal(t, before+1, promtestutil.ToFloat64(drops))

	hub.UnregisterClient(c)
	closedDrops := observability.WebSocketBackpressureDrops.WithLabelValues(hub.Name(), "closed")
	closedBefore := promtestutil.ToFloat64(closedDrops)
	assert.NotPanics(t, func() { c.TrySend([]byte(`{}`)) })
	assert.Equal(t, closedBefore+1, promtestutil.ToFloat64(closedDrops))
}

func TestClient_SendAfterUnregisterRace(t *testing.T) {
	hub := NewHub()
	c := register(t, hub, 5, models.RolePatient)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.SendEvent(Event{Type: EventTyping, Payload: TypingPayload{ConversationID: 1, UserID: 5}})
			}
		}()
	}
	go func() {
		for range c.Send {
		}
	}()
	hub.UnregisterClient(c)
	hub.UnregisterClient(c)
	wg.Wait()
}

func (m *mockConn) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
}

func TestClient_ServeWaitsForWritePump(t *testing.T) {
	for i := 0; i < 20; i++ {
		hub := NewHub()
		conn := newMockConn()
		c, err := hub.Register(uint(i+1), models.RolePatient, "Pat", conn)
		require.NoError(t, err)

		for j := 0; j < 5; j++ {
			c.SendEvent(Event{Type: EventJoined, Payload: JoinedPayload{ConversationID: uint(j)}})
		}
		close(conn.inbound)
		c.Serve()
		conn.release()

		conn.mu.Lock()
		assert.Equal(t, 1, conn.closeFrames)
		assert.Len(t, conn.written, 5)
		conn.mu.Unlock()

		time.Sleep(time.Millisecond)
		conn.mu.Lock()
		assert.Zero(t, conn.usedAfter)
		conn.mu.Unlock()
	}
}

func TestClient_PumpsDeliverAndUnregister(t *testing.T) {
	hub := NewHub()
	conn := newMockConn()
	c, err := hub.Register(3, models.RoleDoctor, "Dana Derm", conn)
	require.NoError(t, err)

	received := make(chan string, 1)
	c.IncomingHandler = func(_ *Client, msg []byte) { received <- string(msg) }

	go c.WritePump()
	done := make(chan struct{})
	go func() {
		c.ReadPump()
		close(done)
	}()

	conn.inbound <- []byte(`{"type":"typing"}`)
	assert.Equal(t, `{"type":"typing"}`, <-received)

	c.SendEvent(Event{Type: EventJoined, Payload: JoinedPayload{ConversationID: 4}})
	assert.Eventually(t, func() bool {
		return len(conn.Written()) == 1
	}, testEventuallyTimeout, testPollInterval)
	assert.JSONEq(t, `{"type":"joined","payload":{"conversation_id":4}}`, conn.Written()[0])

	close(conn.inbound)
	<-done
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.closed
	}, testEventuallyTimeout, testPollInterval)
}
