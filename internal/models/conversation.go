package models

import (
	"time"
)

// MaxPreviewLength bounds Conversation.LastMessage.
const MaxPreviewLength = 100

// Conversation is a doctor/patient thread, optionally scoped to a report.
// ReportID 0 is the general thread for the pair.
type Conversation struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	DoctorID           uint       `gorm:"not null;uniqueIndex:idx_conversation_key,priority:1" json:"doctor_id"`
	PatientID          uint       `gorm:"not null;uniqueIndex:idx_conversation_key,priority:2;index" json:"patient_id"`
	ReportID           uint       `gorm:"not null;default:0;uniqueIndex:idx_conversation_key,priority:3" json:"report_id"`
	LastMessage        string     `gorm:"type:text" json:"last_message"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	DoctorUnreadCount  int        `gorm:"not null;default:0" json:"doctor_unread_count"`
	PatientUnreadCount int        `gorm:"not null;default:0" json:"patient_unread_count"`
	MessageCount       int64      `gorm:"not null;default:0" json:"message_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Doctor             *User      `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
	Patient            *User      `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Messages           []Message  `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// RoleOf returns the role userID holds in the conversation.
func (c *Conversation) RoleOf(userID uint) (Role, bool) {
	switch userID {
	case c.DoctorID:
		return RoleDoctor, true
	case c.PatientID:
		return RolePatient, true
	}
	return "", false
}

// IsParticipant reports whether userID is the doctor or the patient.
func (c *Conversation) IsParticipant(userID uint) bool {
	_, ok := c.RoleOf(userID)
	return ok
}

// CounterpartOf returns the other participant's id.
func (c *Conversation) CounterpartOf(userID uint) uint {
	if userID == c.DoctorID {
		return c.PatientID
	}
	return c.DoctorID
}

// UnreadFor returns the unread counter of the given side.
func (c *Conversation) UnreadFor(role Role) int {
	if role == RoleDoctor {
		return c.DoctorUnreadCount
	}
	return c.PatientUnreadCount
}

// UnreadColumn names the counter a reader of the given role owns.
func UnreadColumn(role Role) string {
	if role == RoleDoctor {
		return "doctor_unread_count"
	}
	return "patient_unread_count"
}

// Preview truncates text for Conversation.LastMessage.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= MaxPreviewLength {
		return text
	}
	return string(r[:MaxPreviewLength])
}
