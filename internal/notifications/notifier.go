package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "notifications:user:"
	convChannelPrefix = "chat:conv:"
)

// Notifier is the Redis pub/sub relay.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

func (n *Notifier) Name() string { return "redis" }

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

// ConversationChannel derives the Redis channel name for a conversation.
func ConversationChannel(conversationID uint) string {
	return convChannelPrefix + strconv.FormatUint(uint64(conversationID), 10)
}

// channelForRoom maps a hub room onto its Redis channel.
func channelForRoom(room string) (string, error) {
	if id, ok := strings.CutPrefix(room, "conv:"); ok {
		return convChannelPrefix + id, nil
	}
	if id, ok := strings.CutPrefix(room, "user:"); ok {
		return userChannelPrefix + id, nil
	}
	return "", fmt.Errorf("no channel for room %q", room)
}

// Publish sends the envelope to the room's channel.
func (n *Notifier) Publish(ctx context.Context, env Envelope) error {
	if n.rdb == nil {
		return fmt.Errorf("redis relay: no client")
	}
	channel, err := channelForRoom(env.Room)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return n.rdb.Publish(ctx, channel, data).Err()
}

// Start subscribes to `chat:conv:*` and `notifications:user:*` and calls deliver
// for each envelope until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context, deliver func(Envelope)) error {
	if n.rdb == nil {
		return fmt.Errorf("redis relay: no client")
	}
	sub := n.rdb.PSubscribe(ctx, convChannelPrefix+"*", userChannelPrefix+"*")
	// Wait for the subscription to be confirmed so nothing published after Start is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis relay subscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				env, err := decodeEnvelope([]byte(msg.Payload))
				if err != nil {
					log.Printf("redis relay: channel %s: %v", msg.Channel, err)
					continue
				}
				safeDeliver(n.Name(), deliver, env)
			}
		}
	}()

	return nil
}
