package service

import (
	"context"

	"dermai/internal/models"
	"dermai/internal/notifications"
	"dermai/internal/observability"
	"dermai/internal/repository"
)

// NotificationService stores per-user notifications and pushes each new one to
// the user's personal room.
type NotificationService struct {
	repo      repository.NotificationRepository
	publisher Publisher
}

func NewNotificationService(repo repository.NotificationRepository, publisher Publisher) *NotificationService {
	return &NotificationService{repo: repo, publisher: publisherOrNop(publisher)}
}

// Notify appends a notification for userID and pushes it as a `notification` event.
func (s *NotificationService) Notify(
	ctx context.Context,
	userID uint,
	typ models.NotificationType,
	title, message string,
	relatedID uint,
	relatedModel string,
) (*models.Notification, error) {
	n := &models.Notification{
		UserID:       userID,
		Type:         typ,
		Title:        title,
		Message:      message,
		RelatedID:    relatedID,
		RelatedModel: relatedModel,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	observability.NotificationsCreated.WithLabelValues(string(typ)).Inc()

	s.publisher.ToUser(ctx, userID, notifications.NotificationEvent(n))
	return n, nil
}

// List returns the latest notifications and the total unread count.
func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool) ([]models.Notification, int64, error) {
	items, err := s.repo.List(ctx, userID, unreadOnly)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return items, unread, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) (*models.Notification, error) {
	return s.repo.MarkRead(ctx, id, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
