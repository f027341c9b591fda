// Package service provides the chat, notification and report-sharing business logic.
package service

import (
	"context"

	"dermai/internal/notifications"
)

// Publisher delivers realtime events. *notifications.Broadcaster implements it.
type Publisher interface {
	ToConversation(ctx context.Context, conversationID uint, ev notifications.Event, excludeConnID string)
	ToUser(ctx context.Context, userID uint, ev notifications.Event)
}

type nopPublisher struct{}

func (nopPublisher) ToConversation(context.Context, uint, notifications.Event, string) {}
func (nopPublisher) ToUser(context.Context, uint, notifications.Event)                 {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
