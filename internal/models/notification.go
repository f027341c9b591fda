package models

import "time"

// NotificationType enumerates what a notification is about.
type NotificationType string

const (
	NotificationReportShared    NotificationType = "report_shared"
	NotificationMessageReceived NotificationType = "message_received"
	NotificationChatStarted     NotificationType = "chat_started"
)

// Related model names carried on notifications.
const (
	RelatedConversation = "Conversation"
	RelatedReport       = "Report"
)

// Notification is an append-only per-user record with a read flag.
type Notification struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	UserID       uint             `gorm:"not null;index:idx_notifications_user_read,priority:1" json:"user_id"`
	Type         NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Title        string           `gorm:"not null" json:"title"`
	Message      string           `gorm:"type:text;not null" json:"message"`
	RelatedID    uint             `json:"related_id,omitempty"`
	RelatedModel string           `gorm:"type:varchar(32)" json:"related_model,omitempty"`
	IsRead       bool             `gorm:"not null;default:false;index:idx_notifications_user_read,priority:2" json:"is_read"`
	CreatedAt    time.Time        `json:"created_at"`
}
