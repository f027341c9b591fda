package repository

import (
	"context"
	"errors"

	"dermai/internal/models"
	"dermai/internal/observability"

	"gorm.io/gorm"
)

// NotificationListLimit caps how many notifications a listing returns.
const NotificationListLimit = 50

// NotificationRepository is the append-only per-user notification store.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, userID uint, unreadOnly bool) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, id, userID uint) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
}

type notificationRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db, log: observability.NewRepoLogger("notifications")}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	n.ID = 0
	n.IsRead = false
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"type":            n.Type,
	})
	return nil
}

func (r *notificationRepository) List(ctx context.Context, userID uint, unreadOnly bool) ([]models.Notification, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	var out []models.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Limit(NotificationListLimit).Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Notification", id)
		}
		return nil, models.NewInternalError(err)
	}
	if n.UserID != userID {
		return nil, models.NewForbiddenError("Not authorized")
	}
	if n.IsRead {
		return &n, nil
	}

	if err := r.db.WithContext(ctx).Model(&n).UpdateColumn("is_read", true).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	n.IsRead = true
	return &n, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		UpdateColumn("is_read", true)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	if res.RowsAffected > 0 {
		r.log.LogUpdate(ctx, map[string]interface{}{"user_id": userID, "marked": res.RowsAffected})
	}
	return res.RowsAffected, nil
}
