package server

import (
	"dermai/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ShareReportRequest is the body of POST /reports/:id/share.
type ShareReportRequest struct {
	DoctorID uint `json:"doctor_id"`
}

// ShareReport handles POST /api/reports/:id/share
// @Summary Share a report with a doctor
// @Description Records the share, opens the report's conversation and notifies the doctor.
// @Tags reports
// @Accept json
// @Produce json
// @Param id path int true "Report ID"
// @Param request body ShareReportRequest true "Doctor"
// @Success 200 {object} object{conversation_id=int}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /reports/{id}/share [post]
func (s *Server) ShareReport(c *fiber.Ctx) error {
	reportID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req ShareReportRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	conv, err := s.reportService.ShareReport(c.UserContext(), currentUserID(c), reportID, req.DoctorID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"conversation_id": conv.ID})
}
