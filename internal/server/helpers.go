package server

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"dermai/internal/models"
	"dermai/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// The error message is derived from the parameter name (e.g. "id" -> "Invalid ID",
// "reportId" -> "Invalid report ID").
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// parseAfterSeq reads ?after_seq as a non-negative int64. Absent means 0.
func parseAfterSeq(c *fiber.Ctx) (int64, error) {
	raw := c.Query("after_seq")
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, models.NewValidationError("after_seq must be a non-negative integer")
	}
	return v, nil
}

func parseLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", repository.DefaultMessagePageSize)
	if limit <= 0 {
		return repository.DefaultMessagePageSize
	}
	if limit > repository.MaxMessagePageSize {
		return repository.MaxMessagePageSize
	}
	return limit
}

// currentUser returns the user AuthRequired stored in locals.
func currentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals("user").(*models.User)
	return u
}

func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

// humanizeParam converts a route param name into a human-readable label.
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}

var errRedisUnavailable = errors.New("redis unavailable")
