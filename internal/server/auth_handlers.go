package server

import (
	"errors"
	"strconv"
	"time"

	"dermai/internal/cache"
	"dermai/internal/middleware"
	"dermai/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AuthRequired authenticates the request and loads the caller.
// A single-use ?ticket= wins over a JWT; the JWT may come from the
// Authorization header or ?token=. Failures answer 401 before any upgrade.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		var userID uint
		if ticket := c.Query("ticket"); ticket != "" {
			val, ok, err := cache.ConsumeOnce(ctx, s.redis, cache.WSTicketKey(ticket))
			if err != nil || !ok {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			id, err := strconv.ParseUint(val, 10, 32)
			if err != nil || id == 0 {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			userID = uint(id)
		} else {
			tokenString, err := middleware.ExtractToken(c)
			if err != nil {
				msg := "Authorization required"
				if errors.Is(err, middleware.ErrInvalidAuthHeader) {
					msg = "Invalid authorization header format"
				}
				return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
			}

			claims, err := middleware.ParseToken(s.config, tokenString)
			if err != nil {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired token"))
			}
			if claims.JTI != "" && cache.Exists(ctx, s.redis, cache.BlacklistKey(claims.JTI)) {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token has been revoked"))
			}
			c.Locals("tokenClaims", claims)
			userID = claims.UserID
		}

		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			if models.CodeOf(err) == models.CodeNotFound {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("User not found"))
			}
			return models.RespondWithAppError(c, err)
		}

		c.Locals("userID", user.ID)
		c.Locals("user", user)
		c.SetUserContext(middleware.WithUserID(ctx, user.ID))
		return c.Next()
	}
}

// GetMe returns the authenticated user.
// @Summary Current user
// @Tags auth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /me [get]
func (s *Server) GetMe(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

// Logout revokes the presented access token until it expires.
// @Summary Revoke the current token
// @Tags auth
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, ok := c.Locals("tokenClaims").(*middleware.TokenClaims)
	if !ok || claims.JTI == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Only token-authenticated requests can log out"))
	}
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errRedisUnavailable))
	}

	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if err := s.redis.Set(c.UserContext(), cache.BlacklistKey(claims.JTI), "1", ttl).Err(); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// IssueWSTicket mints a single-use ticket for the chat socket handshake.
// @Summary Issue a WebSocket ticket
// @Description Returns a ticket valid for 30 seconds; pass it as ?ticket= on /api/ws/chat.
// @Tags realtime
// @Produce json
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errRedisUnavailable))
	}

	ticket := uuid.NewString()
	userID := currentUserID(c)
	if err := s.redis.Set(c.UserContext(), cache.WSTicketKey(ticket), strconv.FormatUint(uint64(userID), 10), cache.WSTicketTTL).Err(); err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}
