package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"
)

const natsSubjectRoot = "dermai"

// NatsRelay fans envelopes out over core NATS subjects.
type NatsRelay struct {
	nc *nats.Conn
}

// ConnectNATS dials the NATS server and wraps the connection in a relay.
func ConnectNATS(url string) (*NatsRelay, error) {
	nc, err := nats.Connect(url, nats.Name("dermai-realtime"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNatsRelay(nc), nil
}

func NewNatsRelay(nc *nats.Conn) *NatsRelay {
	return &NatsRelay{nc: nc}
}

func (r *NatsRelay) Name() string { return "nats" }

// SubjectForRoom maps conv:<id> to dermai.chat.conv.<id> and user:<id> to dermai.user.<id>.
func SubjectForRoom(room string) (string, error) {
	if id, ok := strings.CutPrefix(room, "conv:"); ok && id != "" {
		return natsSubjectRoot + ".chat.conv." + id, nil
	}
	if id, ok := strings.CutPrefix(room, "user:"); ok && id != "" {
		return natsSubjectRoot + ".user." + id, nil
	}
	return "", fmt.Errorf("no subject for room %q", room)
}

func (r *NatsRelay) Publish(_ context.Context, env Envelope) error {
	if r.nc == nil {
		return fmt.Errorf("nats relay: no connection")
	}
	subject, err := SubjectForRoom(env.Room)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := r.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject '%s': %w", subject, err)
	}
	return nil
}

// Start subscribes to dermai.> and delivers until ctx is cancelled.
func (r *NatsRelay) Start(ctx context.Context, deliver func(Envelope)) error {
	if r.nc == nil {
		return fmt.Errorf("nats relay: no connection")
	}
	sub, err := r.nc.Subscribe(natsSubjectRoot+".>", func(m *nats.Msg) {
		env, err := decodeEnvelope(m.Data)
		if err != nil {
			log.Printf("nats relay: subject %s: %v", m.Subject, err)
			return
		}
		safeDeliver(r.Name(), deliver, env)
	})
	if err != nil {
		return fmt.Errorf("nats relay subscribe: %w", err)
	}
	if err := r.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats relay flush: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Close drains the connection.
func (r *NatsRelay) Close() {
	if r.nc != nil {
		_ = r.nc.Drain()
	}
}
