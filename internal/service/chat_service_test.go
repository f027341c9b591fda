package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"dermai/internal/models"
	"dermai/internal/notifications"
	"dermai/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) open(t *testing.T) *models.Conversation {
	t.Helper()
	conv, _, err := f.chat.OpenConversation(context.Background(), OpenConversationInput{
		UserID:   f.patient.ID,
		DoctorID: f.doctor.ID,
	})
	require.NoError(t, err)
	f.pub.Reset()
	return conv
}

func TestChatService_OpenConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, created, err := f.chat.OpenConversation(ctx, OpenConversationInput{UserID: f.patient.ID, DoctorID: f.doctor.ID})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, f.doctor.ID, conv.DoctorID)
	assert.Equal(t, f.patient.ID, conv.PatientID)
	assert.Equal(t, uint(0), conv.ReportID)
	require.NotNil(t, conv.Doctor)
	assert.Equal(t, "Dana", conv.Doctor.FirstName)

	started := f.pub.OfType(notifications.EventNotification)
	require.Len(t, started, 1)
	assert.Equal(t, notifications.UserRoom(f.doctor.ID), started[0].Room)
	n := started[0].Event.Payload.(*models.Notification)
	assert.Equal(t, models.NotificationChatStarted, n.Type)
	assert.Equal(t, "New Chat Started", n.Title)
	assert.Equal(t, "A patient wants to chat with you", n.Message)
	assert.Equal(t, conv.ID, n.RelatedID)
	assert.Equal(t, models.RelatedConversation, n.RelatedModel)

	// The doctor opening the same pair gets the existing thread and no second notification.
	again, created, err := f.chat.OpenConversation(ctx, OpenConversationInput{UserID: f.doctor.ID, PatientID: f.patient.ID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
	assert.Len(t, f.pub.OfType(notifications.EventNotification), 1)
}

func TestChatService_OpenConversation_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      OpenConversationInput
		code    string
		message string
	}{
		{"patient without doctor id", OpenConversationInput{UserID: f.patient.ID}, models.CodeValidation, "Doctor ID is required"},
		{"doctor without patient id", OpenConversationInput{UserID: f.doctor.ID}, models.CodeValidation, "Patient ID is required"},
		{"unknown doctor", OpenConversationInput{UserID: f.patient.ID, DoctorID: 999}, models.CodeNotFound, ""},
		{"counterpart has the wrong role", OpenConversationInput{UserID: f.patient.ID, DoctorID: f.stranger.ID}, models.CodeNotFound, ""},
		{"unknown caller", OpenConversationInput{UserID: 999, DoctorID: f.doctor.ID}, models.CodeNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.chat.OpenConversation(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, models.CodeOf(err))
			if tt.message != "" {
				assert.Equal(t, tt.message, err.Error())
			}
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Conversation{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.pub.Events())
}

func TestChatService_OpenConversation_ReportThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := testutil.CreateReport(t, f.db, f.patient.ID)
	strangerReport := testutil.CreateReport(t, f.db, f.stranger.ID)

	_, _, err := f.chat.OpenConversation(ctx, OpenConversationInput{UserID: f.doctor.ID, PatientID: f.patient.ID, ReportID: 424242})
	require.Error(t, err)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))

	_, _, err = f.chat.OpenConversation(ctx, OpenConversationInput{UserID: f.doctor.ID, PatientID: f.patient.ID, ReportID: strangerReport.ID})
	require.Error(t, err)
	assert.Equal(t, models.CodeForbidden, models.CodeOf(err))

	// Owned but not yet shared.
	_, _, err = f.chat.OpenConversation(ctx, OpenConversationInput{UserID: f.patient.ID, DoctorID: f.doctor.ID, ReportID: report.ID})
	require.Error(t, err)
	assert.Equal(t, models.CodeForbidden, models.CodeOf(err))

	var count int64
	require.NoError(t, f.db.Model(&models.Conversation{}).Count(&count).Error)
	assert.Zero(t, count)

	shared, err := f.reportDB.Share(ctx, report.ID, f.doctor.ID)
	require.NoError(t, err)
	require.True(t, shared)

	conv, created, err := f.chat.OpenConversation(ctx, OpenConversationInput{UserID: f.doctor.ID, PatientID: f.patient.ID, ReportID: report.ID})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, report.ID, conv.ReportID)
}

func TestChatService_SendMessage(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	ctx := context.Background()

	msg, err := f.chat.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       f.doctor.ID,
		Text:           "  Please send a closer photo.  ",
		Transport:      TransportWebSocket,
	})
	require.NoError(t, err)
	assert.Equal(t, "Please send a closer photo.", msg.Text)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, models.RoleDoctor, msg.SenderRole)

	events := f.pub.Events()
	require.Len(t, events, 2)

	// new_message goes to the whole room, sender included.
	assert.Equal(t, notifications.EventNewMessage, events[0].Event.Type)
	assert.Equal(t, notifications.ConversationRoom(conv.ID), events[0].Room)
	assert.Empty(t, events[0].Exclude)
	payload := events[0].Event.Payload.(notifications.NewMessagePayload)
	assert.Equal(t, msg.ID, payload.Message.ID)
	assert.Equal(t, "Dana Derm", payload.SenderName)

	assert.Equal(t, notifications.EventNotification, events[1].Event.Type)
	assert.Equal(t, notifications.UserRoom(f.patient.ID), events[1].Room)
	n := events[1].Event.Payload.(*models.Notification)
	assert.Equal(t, models.NotificationMessageReceived, n.Type)
	assert.Equal(t, "New Message", n.Title)
	assert.Equal(t, "You have a new message from Dana Derm", n.Message)

	items, unread, err := f.notify.List(ctx, f.patient.ID, false)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int64(1), unread)
}

func TestChatService_SendMessage_RejectsWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   SendMessageInput
		code string
	}{
		{"non participant", SendMessageInput{ConversationID: conv.ID, SenderID: f.stranger.ID, Text: "hi"}, models.CodeForbidden},
		{"unknown conversation", SendMessageInput{ConversationID: 999, SenderID: f.doctor.ID, Text: "hi"}, models.CodeNotFound},
		{"blank text", SendMessageInput{ConversationID: conv.ID, SenderID: f.doctor.ID, Text: " \n\t "}, models.CodeValidation},
		{"too long", SendMessageInput{ConversationID: conv.ID, SenderID: f.doctor.ID, Text: strings.Repeat("a", models.MaxMessageLength+1)}, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.chat.SendMessage(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, models.CodeOf(err))
		})
	}

	assert.Empty(t, f.pub.Events())
	var stored models.Conversation
	require.NoError(t, f.db.First(&stored, conv.ID).Error)
	assert.Zero(t, stored.MessageCount)
	assert.Zero(t, stored.PatientUnreadCount)
	assert.Zero(t, stored.DoctorUnreadCount)
}

func TestChatService_BroadcastOrderMatchesSeq(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	ctx := context.Background()

	const perSide = 10
	var wg sync.WaitGroup
	for _, sender := range []uint{f.doctor.ID, f.patient.ID} {
		wg.Add(1)
		go func(senderID uint) {
			defer wg.Done()
			for i := 0; i < perSide; i++ {
				_, err := f.chat.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: senderID, Text: "ping"})
				assert.NoError(t, err)
			}
		}(sender)
	}
	wg.Wait()

	published := f.pub.OfType(notifications.EventNewMessage)
	require.Len(t, published, 2*perSide)
	for i, p := range published {
		assert.Equal(t, int64(i+1), p.Event.Payload.(notifications.NewMessagePayload).Message.Seq)
	}
}

func TestChatService_MarkRead(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.chat.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: f.doctor.ID, Text: "update"})
		require.NoError(t, err)
	}
	f.pub.Reset()

	marked, err := f.chat.MarkRead(ctx, conv.ID, f.patient.ID, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), marked)

	reads := f.pub.OfType(notifications.EventMessagesRead)
	require.Len(t, reads, 1)
	assert.Equal(t, "conn-1", reads[0].Exclude)
	assert.Equal(t, notifications.MessagesReadPayload{
		ConversationID: conv.ID, UserID: f.patient.ID, ReaderRole: models.RolePatient, ReadCount: 3,
	}, reads[0].Event.Payload)

	// A second read changes nothing but is still announced.
	marked, err = f.chat.MarkRead(ctx, conv.ID, f.patient.ID, "conn-1")
	require.NoError(t, err)
	assert.Zero(t, marked)
	assert.Len(t, f.pub.OfType(notifications.EventMessagesRead), 2)

	_, err = f.chat.MarkRead(ctx, conv.ID, f.stranger.ID, "")
	assert.Equal(t, models.CodeForbidden, models.CodeOf(err))
}

func TestChatService_GetConversationMarksRead(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	ctx := context.Background()

	_, err := f.chat.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: f.patient.ID, Text: "it itches"})
	require.NoError(t, err)
	f.pub.Reset()

	got, err := f.chat.GetConversation(ctx, conv.ID, f.doctor.ID, "")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.True(t, got.Messages[0].IsRead)
	assert.Zero(t, got.DoctorUnreadCount)
	assert.Len(t, f.pub.OfType(notifications.EventMessagesRead), 1)

	// Nothing left to mark: no broadcast.
	_, err = f.chat.GetConversation(ctx, conv.ID, f.doctor.ID, "")
	require.NoError(t, err)
	assert.Len(t, f.pub.OfType(notifications.EventMessagesRead), 1)

	_, err = f.chat.GetConversation(ctx, conv.ID, f.stranger.ID, "")
	assert.Equal(t, models.CodeForbidden, models.CodeOf(err))
}

func TestChatService_Typing(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	ctx := context.Background()

	require.NoError(t, f.chat.Typing(ctx, conv.ID, f.patient.ID, "Pat Doe", "conn-p"))
	f.chat.StopTyping(ctx, conv.ID, f.patient.ID, "conn-p")

	events := f.pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notifications.EventUserTyping, events[0].Event.Type)
	assert.Equal(t, "conn-p", events[0].Exclude)
	assert.Equal(t, "Pat Doe", events[0].Event.Payload.(notifications.TypingPayload).DisplayName)
	assert.Equal(t, notifications.EventUserStoppedTyping, events[1].Event.Type)

	err := f.chat.Typing(ctx, conv.ID, f.stranger.ID, "Sam Stranger", "conn-s")
	assert.Equal(t, models.CodeForbidden, models.CodeOf(err))
	assert.Len(t, f.pub.Events(), 2)
}

func TestChatService_CanJoinAndMessages(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	ctx := context.Background()

	ok, err := f.chat.CanJoin(ctx, conv.ID, f.doctor.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.chat.CanJoin(ctx, conv.ID, f.stranger.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.chat.CanJoin(ctx, 999, f.doctor.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.chat.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: f.patient.ID, Text: text})
		require.NoError(t, err)
	}

	msgs, err := f.chat.Messages(ctx, conv.ID, f.doctor.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)

	_, err = f.chat.Messages(ctx, conv.ID, f.stranger.ID, 0, 0)
	assert.Equal(t, models.CodeForbidden, models.CodeOf(err))

	_, err = f.chat.Messages(ctx, conv.ID, f.doctor.ID, -1, 0)
	assert.Equal(t, models.CodeValidation, models.CodeOf(err))

	ids, err := f.chat.ParticipantConversationIDs(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{conv.ID}, ids)

	list, err := f.chat.ListConversations(ctx, f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "three", list[0].LastMessage)
}
