package notifications

import (
	"encoding/json"
	"errors"
	"testing"

	"dermai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"type":"send_message","conversation_id":4,"text":"hi","client_ref":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, EventSendMessage, in.Type)
	assert.Equal(t, uint(4), in.ConversationID)
	assert.Equal(t, "hi", in.Text)
	assert.Equal(t, "r1", in.ClientRef)

	_, err = DecodeInbound([]byte(`{"conversation_id":4}`))
	assert.Error(t, err)

	_, err = DecodeInbound([]byte(`{not json`))
	assert.Error(t, err)
}

func TestErrorEvent(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		in       InboundEvent
		expected ErrorPayload
	}{
		{
			name: "failed send echoes text",
			err:  models.NewForbiddenError("Not a participant of this conversation"),
			in:   InboundEvent{Type: EventSendMessage, ConversationID: 2, Text: "hello", ClientRef: "abc"},
			expected: ErrorPayload{
				Code: models.CodeForbidden, Message: "Not a participant of this conversation",
				Event: EventSendMessage, ConversationID: 2, ClientRef: "abc", Text: "hello",
			},
		},
		{
			name: "internal errors are masked",
			err:  errors.New("pq: connection refused"),
			in:   InboundEvent{Type: EventMarkRead, ConversationID: 2},
			expected: ErrorPayload{
				Code: models.CodeInternal, Message: "Internal server error",
				Event: EventMarkRead, ConversationID: 2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ErrorEvent(tt.err, tt.in)
			assert.Equal(t, EventError, ev.Type)
			assert.Equal(t, tt.expected, ev.Payload)
		})
	}
}

func TestEventEncode(t *testing.T) {
	data, err := Event{Type: EventMessagesRead, Payload: MessagesReadPayload{
		ConversationID: 3, UserID: 7, ReaderRole: models.RoleDoctor, ReadCount: 2,
	}}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"messages_read","payload":{"conversation_id":3,"user_id":7,"reader_role":"doctor","read_count":2}}`, string(data))

	var round map[string]interface{}
	data, err = Event{Type: EventRoomsJoined}.Encode()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &round))
	assert.NotContains(t, round, "payload")
}

func TestRooms(t *testing.T) {
	assert.Equal(t, "conv:42", ConversationRoom(42))
	assert.Equal(t, "user:7", UserRoom(7))
}
