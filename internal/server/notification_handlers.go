package server

import (
	"dermai/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetNotifications handles GET /api/notifications
// @Summary List notifications
// @Description Latest 50 notifications plus the unread count.
// @Tags notifications
// @Produce json
// @Param unread query bool false "Only unread notifications"
// @Success 200 {object} object{notifications=[]models.Notification,unread_count=int}
// @Router /notifications [get]
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	items, unread, err := s.notificationService.List(c.UserContext(), currentUserID(c), c.QueryBool("unread"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return c.JSON(fiber.Map{
		"notifications": items,
		"unread_count":  unread,
	})
}

// MarkNotificationRead handles PUT /api/notifications/:id/read
// @Summary Mark one notification read
// @Tags notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} models.Notification
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /notifications/{id}/read [put]
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	n, err := s.notificationService.MarkRead(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(n)
}

// MarkAllNotificationsRead handles PUT /api/notifications/read-all
// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Success 200 {object} object{updated=int}
// @Router /notifications/read-all [put]
func (s *Server) MarkAllNotificationsRead(c *fiber.Ctx) error {
	updated, err := s.notificationService.MarkAllRead(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}
