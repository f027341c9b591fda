// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"time"

	_ "dermai/docs" // swagger docs
	"dermai/internal/bootstrap"
	"dermai/internal/config"
	"dermai/internal/featureflags"
	"dermai/internal/middleware"
	"dermai/internal/models"
	"dermai/internal/notifications"
	"dermai/internal/repository"
	"dermai/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config      *config.Config
	db          *gorm.DB
	redis       *redis.Client
	app         *fiber.App
	runtime     *bootstrap.Runtime
	shutdownCtx context.Context
	shutdownFn  context.CancelFunc

	userRepo         repository.UserRepository
	conversationRepo repository.ConversationRepository
	reportRepo       repository.ReportRepository
	notificationRepo repository.NotificationRepository

	hub          *notifications.Hub
	broadcaster  *notifications.Broadcaster
	featureFlags *featureflags.Manager

	chatService         *service.ChatService
	notificationService *service.NotificationService
	reportService       *service.ReportService
}

// NewServer builds the services on top of an initialized runtime and assembles the Fiber app.
func NewServer(cfg *config.Config, rt *bootstrap.Runtime) (*Server, error) {
	if rt == nil || rt.DB == nil {
		return nil, errors.New("server requires a runtime with a database")
	}

	s := &Server{
		config:           cfg,
		db:               rt.DB,
		redis:            rt.Redis,
		runtime:          rt,
		userRepo:         repository.NewUserRepository(rt.DB, rt.Redis),
		conversationRepo: repository.NewConversationRepository(rt.DB),
		reportRepo:       repository.NewReportRepository(rt.DB),
		notificationRepo: repository.NewNotificationRepository(rt.DB),
		hub:              rt.Hub,
		broadcaster:      rt.Broadcaster,
		featureFlags:     featureflags.NewManager(cfg.FeatureFlags),
	}
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())

	s.notificationService = service.NewNotificationService(s.notificationRepo, s.broadcaster)
	s.chatService = service.NewChatService(s.conversationRepo, s.userRepo, s.reportRepo, s.notificationService, s.broadcaster)
	s.reportService = service.NewReportService(s.reportRepo, s.userRepo, s.conversationRepo, s.notificationService)

	s.hub.SetPresenceCallbacks(
		func(userID uint) { s.publishPresence(userID, "online") },
		func(userID uint) { s.publishPresence(userID, "offline") },
	)

	app := fiber.New(fiber.Config{
		AppName:      "DermAI API",
		ErrorHandler: errorHandler,
	})
	s.app = app
	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	return s, nil
}

// App exposes the Fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error",
		slog.String("path", c.Path()),
		slog.String("error", err.Error()),
	)
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())
	middleware.InitMetrics(app, "dermai-api")

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Everything below authenticates exactly once, so a ws ticket is consumed once.
	protected := api.Group("", s.AuthRequired())

	protected.Get("/me", s.GetMe)
	protected.Post("/auth/logout", s.Logout)
	protected.Get("/feature-flags", s.GetFeatureFlags)

	conversations := protected.Group("/conversations")
	conversations.Get("/", s.GetConversations)
	conversations.Post("/", s.CreateConversation)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	conversations.Get("/:id/messages", s.GetMessages)
	conversations.Post("/:id/messages", middleware.RateLimit(
		s.redis, middleware.SendMessageLimit.Max, middleware.SendMessageLimit.Window, "rest_send"), s.SendMessage)
	conversations.Post("/:id/read", s.MarkConversationRead)
	conversations.Get("/:id", s.GetConversation)

	notificationRoutes := protected.Group("/notifications")
	notificationRoutes.Get("/", s.GetNotifications)
	notificationRoutes.Put("/read-all", s.MarkAllNotificationsRead)
	notificationRoutes.Put("/:id/read", s.MarkNotificationRead)

	protected.Post("/reports/:id/share", s.ShareReport)

	protected.Post("/ws/ticket", s.IssueWSTicket)
	protected.Get("/ws/chat", s.WebSocketChatHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"relay":  s.broadcaster.RelayName(),
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"connections": s.hub.ConnectionCount(),
		"time":        time.Now(),
	})
}

// Start subscribes to the realtime relay and serves HTTP until Shutdown.
func (s *Server) Start() error {
	if err := s.runtime.Start(s.shutdownCtx); err != nil {
		return err
	}
	log.Printf("Server starting on port %s...", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops relay subscriptions, drains HTTP, closes sockets with a
// server_shutdown notice, then closes the DB and Redis.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		log.Printf("error shutting down %s: %v", s.hub.Name(), err)
	}

	if err := s.runtime.Close(); err != nil {
		log.Printf("error closing runtime: %v", err)
	}

	log.Println("Server shutdown complete")
	return nil
}

// publishPresence announces a user's online/offline transition to their conversation rooms.
func (s *Server) publishPresence(userID uint, status string) {
	if !s.featureFlags.Enabled(featureflags.PresenceEvents, userID) {
		return
	}
	ctx, cancel := context.WithTimeout(s.shutdownCtx, 5*time.Second)
	defer cancel()

	ids, err := s.chatService.ParticipantConversationIDs(ctx, userID)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "presence fan-out skipped",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
		return
	}
	ev := notifications.Event{
		Type:    notifications.EventUserStatus,
		Payload: notifications.UserStatusPayload{UserID: userID, Status: status},
	}
	for _, id := range ids {
		s.broadcaster.ToConversation(ctx, id, ev, "")
	}
}
