package server

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"dermai/internal/middleware"
	"dermai/internal/models"
	"dermai/internal/notifications"
	"dermai/internal/observability"
	"dermai/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

var errConversationRequired = models.NewValidationError("conversation_id is required")

// WebSocketChatHandler upgrades an authenticated request into a chat connection.
// @Summary Realtime chat socket
// @Description Authenticate with Authorization: Bearer, ?token= or a single-use ?ticket=.
// @Tags realtime
// @Success 101
// @Failure 401 {object} models.ErrorResponse
// @Failure 426 {object} models.ErrorResponse
// @Router /ws/chat [get]
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		user, _ := conn.Locals("user").(*models.User)
		if user == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"code":"UNAUTHORIZED","message":"unauthorized"}}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(user.ID, user.Role, user.DisplayName(), conn)
		if err != nil {
			if frame, encErr := (notifications.Event{
				Type: notifications.EventError,
				Payload: notifications.ErrorPayload{
					Code:    models.CodeForbidden,
					Message: err.Error(),
				},
			}).Encode(); encErr == nil {
				_ = conn.WriteMessage(websocket.TextMessage, frame)
			}
			_ = conn.Close()
			return
		}

		ctx := middleware.WithConnID(middleware.WithUserID(s.shutdownCtx, user.ID), client.ID)
		client.IncomingHandler = func(c *notifications.Client, raw []byte) {
			s.handleChatEvent(ctx, c, raw)
		}

		client.SendEvent(notifications.Event{
			Type: notifications.EventConnected,
			Payload: notifications.ConnectedPayload{
				UserID: user.ID,
				ConnID: client.ID,
				Role:   user.Role,
			},
		})

		go s.autoJoin(ctx, client)

		// The pooled conn is recycled as soon as this handler returns, so
		// Serve blocks until the write pump has stopped too.
		client.Serve()
	})
}

// autoJoin subscribes a new connection to every conversation of its user.
func (s *Server) autoJoin(ctx context.Context, client *notifications.Client) {
	ids, err := s.chatService.ParticipantConversationIDs(ctx, client.UserID)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "auto-join failed", slog.String("error", err.Error()))
		client.SendEvent(notifications.ErrorEvent(err, notifications.InboundEvent{Type: notifications.EventRoomsJoined}))
		return
	}

	joined := make([]uint, 0, len(ids))
	for _, id := range ids {
		s.hub.Join(client, notifications.ConversationRoom(id))
		joined = append(joined, id)
	}
	client.SendEvent(notifications.Event{
		Type:    notifications.EventRoomsJoined,
		Payload: notifications.RoomsJoinedPayload{ConversationIDs: joined},
	})
}

// handleChatEvent dispatches one inbound frame. Errors go back to the
// sending connection only and never close it.
func (s *Server) handleChatEvent(ctx context.Context, c *notifications.Client, raw []byte) {
	var in notifications.InboundEvent
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.ErrorContext(ctx, "panic in chat event handler",
				slog.String("event", in.Type),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			c.SendEvent(notifications.ErrorEvent(fmt.Errorf("panic: %v", r), in))
		}
	}()

	in, err := notifications.DecodeInbound(raw)
	if err != nil {
		c.SendEvent(notifications.ErrorEvent(&models.AppError{
			Code:    models.CodeValidation,
			Message: "Malformed event",
			Err:     err,
		}, in))
		return
	}
	observability.WebSocketEventsTotal.WithLabelValues(in.Type).Inc()

	if err := s.dispatch(ctx, c, in); err != nil {
		if models.CodeOf(err) == models.CodeInternal {
			middleware.Logger.ErrorContext(ctx, "chat event failed",
				slog.String("event", in.Type),
				slog.String("error", err.Error()),
			)
		}
		c.SendEvent(notifications.ErrorEvent(err, in))
	}
}

func (s *Server) dispatch(ctx context.Context, c *notifications.Client, in notifications.InboundEvent) error {
	switch in.Type {
	case notifications.EventJoin:
		if in.ConversationID == 0 {
			return errConversationRequired
		}
		ok, err := s.chatService.CanJoin(ctx, in.ConversationID, c.UserID)
		if err != nil {
			return err
		}
		if !ok {
			// Non-participants are ignored without a reply.
			return nil
		}
		s.hub.Join(c, notifications.ConversationRoom(in.ConversationID))
		c.SendEvent(notifications.Event{
			Type:    notifications.EventJoined,
			Payload: notifications.JoinedPayload{ConversationID: in.ConversationID},
		})

	case notifications.EventLeave:
		if in.ConversationID == 0 {
			return errConversationRequired
		}
		s.hub.Leave(c, notifications.ConversationRoom(in.ConversationID))

	case notifications.EventTyping:
		if in.ConversationID == 0 {
			return errConversationRequired
		}
		if !middleware.TypingLimit.Allow(ctx, s.redis, c.UserID) {
			return nil
		}
		return s.chatService.Typing(ctx, in.ConversationID, c.UserID, c.DisplayName, c.ID)

	case notifications.EventStopTyping:
		if in.ConversationID == 0 {
			return errConversationRequired
		}
		if !c.InRoom(notifications.ConversationRoom(in.ConversationID)) {
			return nil
		}
		s.chatService.StopTyping(ctx, in.ConversationID, c.UserID, c.ID)

	case notifications.EventSendMessage:
		if in.ConversationID == 0 {
			return errConversationRequired
		}
		if !middleware.SendMessageLimit.Allow(ctx, s.redis, c.UserID) {
			return models.NewValidationError("Rate limit exceeded. Please wait a moment.")
		}
		_, err := s.chatService.SendMessage(ctx, service.SendMessageInput{
			ConversationID: in.ConversationID,
			SenderID:       c.UserID,
			Text:           in.Text,
			Transport:      service.TransportWebSocket,
		})
		return err

	case notifications.EventMarkRead:
		if in.ConversationID == 0 {
			return errConversationRequired
		}
		_, err := s.chatService.MarkRead(ctx, in.ConversationID, c.UserID, c.ID)
		return err

	default:
		return models.NewValidationError(fmt.Sprintf("Unknown event type %q", in.Type))
	}
	return nil
}
