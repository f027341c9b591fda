package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"dermai/internal/models"
	"dermai/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 200
)

// ConversationRepository persists doctor/patient conversations, their messages
// and the per-side unread counters.
type ConversationRepository interface {
	// FindOrCreate returns the conversation keyed by (doctor, patient, report) and
	// whether this call inserted it. Safe under concurrent callers.
	FindOrCreate(ctx context.Context, doctorID, patientID, reportID uint) (*models.Conversation, bool, error)
	// AppendMessage stores a message and bumps the counterpart's unread counter atomically.
	AppendMessage(ctx context.Context, convID, senderID uint, senderRole models.Role, text string) (*models.Message, *models.Conversation, error)
	// MarkRead zeroes the reader's counter and flags the other side's messages read.
	// It returns how many messages changed state.
	MarkRead(ctx context.Context, convID uint, readerRole models.Role) (int64, error)
	ListForUser(ctx context.Context, userID uint, role models.Role) ([]models.Conversation, error)
	Get(ctx context.Context, convID, requesterID uint) (*models.Conversation, error)
	Messages(ctx context.Context, convID uint, afterSeq int64, limit int) ([]models.Message, error)
	ParticipantConversationIDs(ctx context.Context, userID uint) ([]uint, error)
	Participant(ctx context.Context, convID, userID uint) (models.Role, error)
}

type conversationRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewConversationRepository returns a gorm-backed ConversationRepository.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db, log: observability.NewRepoLogger("conversations")}
}

func conversationKey() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "doctor_id"}, {Name: "patient_id"}, {Name: "report_id"}},
		DoNothing: true,
	}
}

func (r *conversationRepository) FindOrCreate(ctx context.Context, doctorID, patientID, reportID uint) (*models.Conversation, bool, error) {
	conv := models.Conversation{DoctorID: doctorID, PatientID: patientID, ReportID: reportID}

	res := r.db.WithContext(ctx).Clauses(conversationKey()).Create(&conv)
	if res.Error != nil && !isUniqueViolation(res.Error) {
		r.log.LogError(ctx, res.Error, "find_or_create")
		return nil, false, models.NewInternalError(res.Error)
	}
	created := res.Error == nil && res.RowsAffected == 1

	var out models.Conversation
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND patient_id = ? AND report_id = ?", doctorID, patientID, reportID).
		First(&out).Error
	if err != nil {
		return nil, false, translateError(err, "Conversation", conv.ID)
	}

	if created {
		r.log.LogCreate(ctx, map[string]interface{}{
			"conversation_id": out.ID,
			"doctor_id":       doctorID,
			"patient_id":      patientID,
			"report_id":       reportID,
		})
	}
	return &out, created, nil
}

func (r *conversationRepository) AppendMessage(ctx context.Context, convID, senderID uint, senderRole models.Role, text string) (*models.Message, *models.Conversation, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "AppendMessage", "messages")
	text = strings.TrimSpace(text)

	var msg models.Message
	var conv models.Conversation

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id", "doctor_id", "patient_id").First(&conv, convID).Error; err != nil {
			return translateError(err, "Conversation", convID)
		}
		role, ok := conv.RoleOf(senderID)
		if !ok || role != senderRole {
			return models.NewForbiddenError("Not a participant of this conversation")
		}
		if text == "" {
			return models.NewValidationError("Message text is required")
		}

		now := time.Now()
		unread := models.UnreadColumn(senderRole.Counterpart())
		res := tx.Model(&models.Conversation{}).Where("id = ?", convID).Updates(map[string]interface{}{
			"message_count":   gorm.Expr("message_count + ?", 1),
			unread:            gorm.Expr(unread+" + ?", 1),
			"last_message":    models.Preview(text),
			"last_message_at": now,
			"updated_at":      now,
		})
		if res.Error != nil {
			return res.Error
		}

		if err := tx.First(&conv, convID).Error; err != nil {
			return err
		}

		msg = models.Message{
			PublicID:       uuid.New(),
			ConversationID: convID,
			Seq:            conv.MessageCount,
			SenderID:       senderID,
			SenderRole:     senderRole,
			Text:           text,
			CreatedAt:      now,
		}
		return tx.Create(&msg).Error
	})
	observability.EndSpan(span, err)
	if err != nil {
		err = translateError(err, "Conversation", convID)
		if models.CodeOf(err) == models.CodeInternal {
			r.log.LogError(ctx, err, "append_message")
		}
		return nil, nil, err
	}

	r.log.LogCreate(ctx, map[string]interface{}{
		"conversation_id": convID,
		"message_id":      msg.ID,
		"seq":             msg.Seq,
	})
	return &msg, &conv, nil
}

func (r *conversationRepository) MarkRead(ctx context.Context, convID uint, readerRole models.Role) (int64, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "MarkRead", "conversations")
	var marked int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", convID).
			UpdateColumn(models.UnreadColumn(readerRole), 0)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Conversation", convID)
		}

		res = tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_role <> ? AND is_read = ?", convID, readerRole, false).
			UpdateColumns(map[string]interface{}{
				"is_read": true,
				"read_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		marked = res.RowsAffected
		return nil
	})
	observability.EndSpan(span, err)
	if err != nil {
		return 0, translateError(err, "Conversation", convID)
	}

	if marked > 0 {
		r.log.LogUpdate(ctx, map[string]interface{}{
			"conversation_id": convID,
			"reader_role":     readerRole,
			"marked":          marked,
		})
	}
	return marked, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uint, role models.Role) ([]models.Conversation, error) {
	column := "patient_id"
	if role == models.RoleDoctor {
		column = "doctor_id"
	}

	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Where(column+" = ?", userID).
		Preload("Doctor").
		Preload("Patient").
		Order("COALESCE(last_message_at, created_at) DESC").
		Order("id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return convs, nil
}

func (r *conversationRepository) Get(ctx context.Context, convID, requesterID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Doctor").
		Preload("Patient").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		First(&conv, convID).Error
	if err != nil {
		return nil, translateError(err, "Conversation", convID)
	}
	if !conv.IsParticipant(requesterID) {
		return nil, models.NewForbiddenError("Not a participant of this conversation")
	}
	return &conv, nil
}

func (r *conversationRepository) Messages(ctx context.Context, convID uint, afterSeq int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultMessagePageSize
	}
	if limit > MaxMessagePageSize {
		limit = MaxMessagePageSize
	}

	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", convID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}

func (r *conversationRepository) ParticipantConversationIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("doctor_id = ? OR patient_id = ?", userID, userID).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *conversationRepository) Participant(ctx context.Context, convID, userID uint) (models.Role, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Select("id", "doctor_id", "patient_id").First(&conv, convID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", models.NewNotFoundError("Conversation", convID)
		}
		return "", models.NewInternalError(err)
	}
	role, ok := conv.RoleOf(userID)
	if !ok {
		return "", models.NewForbiddenError("Not a participant of this conversation")
	}
	return role, nil
}
