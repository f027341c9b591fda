package notifications

import (
	"context"
	"log/slog"

	"dermai/internal/observability"
)

// Broadcaster pushes events into rooms. With a relay, delivery goes through the
// relay so every instance sees it. Without one, or when a publish fails, the
// event is delivered straight into the local hub.
type Broadcaster struct {
	hub   *Hub
	relay Relay
}

// NewBroadcaster wires the hub to an optional relay. A nil relay means local delivery only.
func NewBroadcaster(hub *Hub, relay Relay) *Broadcaster {
	return &Broadcaster{hub: hub, relay: relay}
}

// Hub returns the local hub.
func (b *Broadcaster) Hub() *Hub { return b.hub }

// RelayName reports the active relay for health output.
func (b *Broadcaster) RelayName() string {
	if b.relay == nil {
		return "local"
	}
	return b.relay.Name()
}

// Start subscribes the relay and feeds its envelopes into the local hub.
func (b *Broadcaster) Start(ctx context.Context) error {
	if b.relay == nil {
		return nil
	}
	return b.relay.Start(ctx, b.deliverLocal)
}

func (b *Broadcaster) deliverLocal(env Envelope) {
	b.hub.Deliver(env.Room, env.Event, env.Exclude)
}

// ToConversation sends ev to every connection in the conversation room except excludeConnID.
func (b *Broadcaster) ToConversation(ctx context.Context, conversationID uint, ev Event, excludeConnID string) {
	b.publish(ctx, ConversationRoom(conversationID), ev, excludeConnID)
}

// ToUser sends ev to every connection of the user.
func (b *Broadcaster) ToUser(ctx context.Context, userID uint, ev Event) {
	b.publish(ctx, UserRoom(userID), ev, "")
}

func (b *Broadcaster) publish(ctx context.Context, room string, ev Event, exclude string) {
	data, err := ev.Encode()
	if err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "encode realtime event",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	env := Envelope{Room: room, Exclude: exclude, Event: data}

	if b.relay == nil {
		b.deliverLocal(env)
		observability.RelayPublishTotal.WithLabelValues("local", "ok").Inc()
		return
	}

	ctx, span := observability.GetTraceLayer().TraceRelayPublish(ctx, b.relay.Name(), room)
	err = b.relay.Publish(ctx, env)
	observability.EndSpan(span, err)
	if err != nil {
		observability.RelayPublishTotal.WithLabelValues(b.relay.Name(), "fallback").Inc()
		observability.GlobalLogger.WarnContext(ctx, "relay publish failed, delivering locally",
			slog.String("relay", b.relay.Name()),
			slog.String("room", room),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
		b.deliverLocal(env)
		return
	}
	observability.RelayPublishTotal.WithLabelValues(b.relay.Name(), "ok").Inc()
}
