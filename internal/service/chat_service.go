package service

import (
	"context"
	"log/slog"
	"sync"

	"dermai/internal/models"
	"dermai/internal/notifications"
	"dermai/internal/observability"
	"dermai/internal/repository"
	"dermai/internal/validation"
)

// Transports a message can arrive over. Used as a metric label.
const (
	TransportWebSocket = "websocket"
	TransportREST      = "rest"
)

const convLockStripes = 64

// ChatService implements the chat protocol on top of the conversation store.
type ChatService struct {
	convs         repository.ConversationRepository
	users         repository.UserRepository
	reports       repository.ReportRepository
	notifications *NotificationService
	publisher     Publisher

	// Append and new_message publish happen under the conversation's stripe,
	// so in-process broadcast order matches seq order.
	locks [convLockStripes]sync.Mutex
}

// OpenConversationInput names the counterpart. Only the id the caller's role
// does not imply is read.
type OpenConversationInput struct {
	UserID    uint
	DoctorID  uint
	PatientID uint
	ReportID  uint
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	ConversationID uint
	SenderID       uint
	Text           string
	Transport      string
}

func NewChatService(
	convs repository.ConversationRepository,
	users repository.UserRepository,
	reports repository.ReportRepository,
	notificationService *NotificationService,
	publisher Publisher,
) *ChatService {
	return &ChatService{
		convs:         convs,
		users:         users,
		reports:       reports,
		notifications: notificationService,
		publisher:     publisherOrNop(publisher),
	}
}

func (s *ChatService) lockFor(conversationID uint) *sync.Mutex {
	return &s.locks[conversationID%convLockStripes]
}

func traceChat(ctx context.Context, method string) (context.Context, func(error)) {
	ctx, span := observability.GetTraceLayer().TraceServiceCall(ctx, "ChatService", method)
	return ctx, func(err error) { observability.EndSpan(span, err) }
}

// OpenConversation finds or creates the caller's conversation with a counterpart.
// It reports whether the conversation was created; creation notifies the counterpart.
func (s *ChatService) OpenConversation(ctx context.Context, in OpenConversationInput) (conv *models.Conversation, created bool, err error) {
	ctx, end := traceChat(ctx, "OpenConversation")
	defer func() { end(err) }()

	caller, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, false, err
	}

	var doctorID, patientID, counterpartID uint
	switch caller.Role {
	case models.RoleDoctor:
		if in.PatientID == 0 {
			return nil, false, models.NewValidationError("Patient ID is required")
		}
		doctorID, patientID, counterpartID = caller.ID, in.PatientID, in.PatientID
	case models.RolePatient:
		if in.DoctorID == 0 {
			return nil, false, models.NewValidationError("Doctor ID is required")
		}
		doctorID, patientID, counterpartID = in.DoctorID, caller.ID, in.DoctorID
	default:
		return nil, false, models.NewForbiddenError("Only doctors and patients can chat")
	}

	counterpart, err := s.users.GetByID(ctx, counterpartID)
	wantRole := caller.Role.Counterpart()
	if err != nil || counterpart.Role != wantRole {
		if err != nil && models.CodeOf(err) != models.CodeNotFound {
			return nil, false, err
		}
		return nil, false, models.NewNotFoundError(roleResource(wantRole), counterpartID)
	}

	if in.ReportID != 0 {
		if err = s.checkReportThread(ctx, in.ReportID, doctorID, patientID); err != nil {
			return nil, false, err
		}
	}

	conv, created, err = s.convs.FindOrCreate(ctx, doctorID, patientID, in.ReportID)
	if err != nil {
		return nil, false, err
	}

	if created {
		msg := "A doctor wants to chat with you"
		if caller.Role == models.RolePatient {
			msg = "A patient wants to chat with you"
		}
		s.notify(ctx, counterpartID, models.NotificationChatStarted, "New Chat Started", msg, conv.ID, models.RelatedConversation)
	}

	conv, err = s.convs.Get(ctx, conv.ID, caller.ID)
	if err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

// checkReportThread allows a report-keyed thread only for the report's owner
// and a doctor it was shared with.
func (s *ChatService) checkReportThread(ctx context.Context, reportID, doctorID, patientID uint) error {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}
	if report.PatientID != patientID {
		return models.NewForbiddenError("Report does not belong to this patient")
	}
	shared, err := s.reports.IsShared(ctx, reportID, doctorID)
	if err != nil {
		return err
	}
	if !shared {
		return models.NewForbiddenError("Report has not been shared with this doctor")
	}
	return nil
}

func roleResource(r models.Role) string {
	if r == models.RoleDoctor {
		return "Doctor"
	}
	return "Patient"
}

// ListConversations returns the caller's conversations, most recent activity first.
func (s *ChatService) ListConversations(ctx context.Context, userID uint) ([]models.Conversation, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.convs.ListForUser(ctx, user.ID, user.Role)
}

// GetConversation fetches a conversation with its messages and marks it read
// for the caller. messages_read goes out only when something changed.
func (s *ChatService) GetConversation(ctx context.Context, conversationID, userID uint, excludeConnID string) (conv *models.Conversation, err error) {
	ctx, end := traceChat(ctx, "GetConversation")
	defer func() { end(err) }()

	role, err := s.convs.Participant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	marked, err := s.convs.MarkRead(ctx, conversationID, role)
	if err != nil {
		return nil, err
	}
	if marked > 0 {
		s.publishRead(ctx, conversationID, userID, role, marked, excludeConnID)
	}
	return s.convs.Get(ctx, conversationID, userID)
}

// SendMessage appends a message, broadcasts new_message to the whole room
// (sender included) and notifies the recipient.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (msg *models.Message, err error) {
	ctx, end := traceChat(ctx, "SendMessage")
	defer func() { end(err) }()

	text, err := validation.MessageText(in.Text, models.MaxMessageLength)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	sender, err := s.users.GetByID(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(in.ConversationID)
	lock.Lock()
	msg, conv, err := s.convs.AppendMessage(ctx, in.ConversationID, sender.ID, sender.Role, text)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	s.publisher.ToConversation(ctx, in.ConversationID, notifications.NewMessageEvent(msg, sender.DisplayName()), "")
	lock.Unlock()

	transport := in.Transport
	if transport == "" {
		transport = TransportREST
	}
	observability.MessageThroughput.WithLabelValues(transport).Inc()

	s.notify(ctx, conv.CounterpartOf(sender.ID), models.NotificationMessageReceived,
		"New Message", "You have a new message from "+sender.DisplayName(),
		conv.ID, models.RelatedConversation)

	return msg, nil
}

// MarkRead resets the caller's unread counter and flags the counterpart's
// messages read. messages_read is broadcast to the room except excludeConnID.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, userID uint, excludeConnID string) (marked int64, err error) {
	ctx, end := traceChat(ctx, "MarkRead")
	defer func() { end(err) }()

	role, err := s.convs.Participant(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	marked, err = s.convs.MarkRead(ctx, conversationID, role)
	if err != nil {
		return 0, err
	}
	s.publishRead(ctx, conversationID, userID, role, marked, excludeConnID)
	return marked, nil
}

func (s *ChatService) publishRead(ctx context.Context, conversationID, userID uint, role models.Role, marked int64, excludeConnID string) {
	s.publisher.ToConversation(ctx, conversationID, notifications.Event{
		Type: notifications.EventMessagesRead,
		Payload: notifications.MessagesReadPayload{
			ConversationID: conversationID,
			UserID:         userID,
			ReaderRole:     role,
			ReadCount:      marked,
		},
	}, excludeConnID)
}

// Typing relays a typing indicator to the room, skipping the sending connection.
func (s *ChatService) Typing(ctx context.Context, conversationID, userID uint, displayName, connID string) error {
	if _, err := s.convs.Participant(ctx, conversationID, userID); err != nil {
		return err
	}
	s.publisher.ToConversation(ctx, conversationID, notifications.Event{
		Type: notifications.EventUserTyping,
		Payload: notifications.TypingPayload{
			ConversationID: conversationID,
			UserID:         userID,
			DisplayName:    displayName,
		},
	}, connID)
	return nil
}

// StopTyping relays the end of a typing indicator. Callers check room membership.
func (s *ChatService) StopTyping(ctx context.Context, conversationID, userID uint, connID string) {
	s.publisher.ToConversation(ctx, conversationID, notifications.Event{
		Type: notifications.EventUserStoppedTyping,
		Payload: notifications.TypingPayload{
			ConversationID: conversationID,
			UserID:         userID,
		},
	}, connID)
}

// CanJoin reports whether userID may subscribe to the conversation room.
// Unknown conversations and non-participants yield false without an error.
func (s *ChatService) CanJoin(ctx context.Context, conversationID, userID uint) (bool, error) {
	_, err := s.convs.Participant(ctx, conversationID, userID)
	if err == nil {
		return true, nil
	}
	switch models.CodeOf(err) {
	case models.CodeNotFound, models.CodeForbidden:
		return false, nil
	}
	return false, err
}

// Messages returns messages with seq > afterSeq, in seq order.
func (s *ChatService) Messages(ctx context.Context, conversationID, userID uint, afterSeq int64, limit int) ([]models.Message, error) {
	if afterSeq < 0 {
		return nil, models.NewValidationError("after_seq must not be negative")
	}
	if _, err := s.convs.Participant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.convs.Messages(ctx, conversationID, afterSeq, limit)
}

// ParticipantConversationIDs lists every conversation the user takes part in.
func (s *ChatService) ParticipantConversationIDs(ctx context.Context, userID uint) ([]uint, error) {
	return s.convs.ParticipantConversationIDs(ctx, userID)
}

// notify records a notification. A failure is logged and never fails the caller.
func (s *ChatService) notify(ctx context.Context, userID uint, typ models.NotificationType, title, message string, relatedID uint, relatedModel string) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Notify(ctx, userID, typ, title, message, relatedID, relatedModel); err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "failed to create notification",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}
}
