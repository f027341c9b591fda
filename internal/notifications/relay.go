package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
)

// Envelope is what travels between instances: the room to deliver into, the
// connection to skip, and the already-encoded event.
type Envelope struct {
	Room    string          `json:"room"`
	Exclude string          `json:"exclude,omitempty"`
	Event   json.RawMessage `json:"event"`
}

// Relay fans envelopes out to every instance, this one included.
type Relay interface {
	Name() string
	Publish(ctx context.Context, env Envelope) error
	// Start subscribes and calls deliver for every envelope until ctx is done.
	Start(ctx context.Context, deliver func(Envelope)) error
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Room == "" || len(env.Event) == 0 {
		return env, fmt.Errorf("decode envelope: room and event are required")
	}
	return env, nil
}

// safeDeliver keeps a panicking delivery from killing a subscriber goroutine.
func safeDeliver(relay string, deliver func(Envelope), env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in %s subscriber: %v\n%s", relay, r, debug.Stack())
		}
	}()
	deliver(env)
}
