package testutil

import (
	"context"
	"sync"

	"dermai/internal/notifications"
)

// Published is one event captured by RecordingPublisher.
type Published struct {
	Room    string
	Exclude string
	Event   notifications.Event
}

// RecordingPublisher captures every event instead of delivering it.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Published
}

func (p *RecordingPublisher) ToConversation(_ context.Context, conversationID uint, ev notifications.Event, excludeConnID string) {
	p.record(Published{Room: notifications.ConversationRoom(conversationID), Exclude: excludeConnID, Event: ev})
}

func (p *RecordingPublisher) ToUser(_ context.Context, userID uint, ev notifications.Event) {
	p.record(Published{Room: notifications.UserRoom(userID), Event: ev})
}

func (p *RecordingPublisher) record(e Published) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}

// OfType returns the captured events with the given type, in publish order.
func (p *RecordingPublisher) OfType(typ string) []Published {
	var out []Published
	for _, e := range p.Events() {
		if e.Event.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops everything captured so far.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}
