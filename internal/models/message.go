package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxMessageLength is the longest accepted message body in runes.
const MaxMessageLength = 4000

// Message is a single entry in a conversation. Only IsRead and ReadAt change after insert.
type Message struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PublicID       uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"public_id"`
	ConversationID uint       `gorm:"not null;uniqueIndex:idx_message_seq,priority:1" json:"conversation_id"`
	Seq            int64      `gorm:"not null;uniqueIndex:idx_message_seq,priority:2" json:"seq"`
	SenderID       uint       `gorm:"not null;index" json:"sender_id"`
	SenderRole     Role       `gorm:"type:varchar(16);not null" json:"sender_role"`
	Text           string     `gorm:"type:text;not null" json:"text"`
	IsRead         bool       `gorm:"not null;default:false" json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
