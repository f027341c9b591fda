package server

import (
	"dermai/internal/models"
	"dermai/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateConversationRequest names the counterpart. A patient sends doctor_id,
// a doctor sends patient_id. report_id scopes the thread to a shared report.
type CreateConversationRequest struct {
	DoctorID  uint `json:"doctor_id"`
	PatientID uint `json:"patient_id"`
	ReportID  uint `json:"report_id"`
}

// SendMessageRequest is the body of POST /conversations/:id/messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// GetConversations handles GET /api/conversations
// @Summary List conversations
// @Description Conversations of the caller, most recent activity first.
// @Tags conversations
// @Produce json
// @Success 200 {array} models.Conversation
// @Failure 401 {object} models.ErrorResponse
// @Router /conversations [get]
func (s *Server) GetConversations(c *fiber.Ctx) error {
	convs, err := s.chatService.ListConversations(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(convs)
}

// GetConversation handles GET /api/conversations/:id
// @Summary Get a conversation
// @Description Returns the conversation with its messages and marks it read for the caller.
// @Tags conversations
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} models.Conversation
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /conversations/{id} [get]
func (s *Server) GetConversation(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	conv, err := s.chatService.GetConversation(c.UserContext(), convID, currentUserID(c), "")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(conv)
}

// CreateConversation handles POST /api/conversations
// @Summary Open a conversation
// @Description Finds or creates the caller's conversation with a doctor or patient.
// @Tags conversations
// @Accept json
// @Produce json
// @Param request body CreateConversationRequest true "Counterpart"
// @Success 200 {object} models.Conversation "Existing conversation"
// @Success 201 {object} models.Conversation "Created conversation"
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /conversations [post]
func (s *Server) CreateConversation(c *fiber.Ctx) error {
	var req CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	conv, created, err := s.chatService.OpenConversation(c.UserContext(), service.OpenConversationInput{
		UserID:    currentUserID(c),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		ReportID:  req.ReportID,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(conv)
}

// SendMessage handles POST /api/conversations/:id/messages
// @Summary Send a message
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path int true "Conversation ID"
// @Param request body SendMessageRequest true "Message"
// @Success 201 {object} models.Message
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /conversations/{id}/messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	msg, err := s.chatService.SendMessage(c.UserContext(), service.SendMessageInput{
		ConversationID: convID,
		SenderID:       currentUserID(c),
		Text:           req.Text,
		Transport:      service.TransportREST,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetMessages handles GET /api/conversations/:id/messages
// @Summary Fetch messages after a sequence number
// @Description Used by clients to reconcile after a reconnect. Ordered by seq.
// @Tags conversations
// @Produce json
// @Param id path int true "Conversation ID"
// @Param after_seq query int false "Return messages with seq greater than this"
// @Param limit query int false "Page size (default 50, max 200)"
// @Success 200 {array} models.Message
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /conversations/{id}/messages [get]
func (s *Server) GetMessages(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	afterSeq, err := parseAfterSeq(c)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	msgs, err := s.chatService.Messages(c.UserContext(), convID, currentUserID(c), afterSeq, parseLimit(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(msgs)
}

// MarkConversationRead handles POST /api/conversations/:id/read
// @Summary Mark a conversation read
// @Tags conversations
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} object{conversation_id=int,read_count=int}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /conversations/{id}/read [post]
func (s *Server) MarkConversationRead(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	marked, err := s.chatService.MarkRead(c.UserContext(), convID, currentUserID(c), "")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"conversation_id": convID,
		"read_count":      marked,
	})
}
