// Package bootstrap wires the process-wide runtime: storage, Redis, the
// realtime hub and the cross-instance relay.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"dermai/internal/cache"
	"dermai/internal/config"
	"dermai/internal/database"
	"dermai/internal/models"
	"dermai/internal/notifications"
	"dermai/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo populates an empty development database with demo accounts.
	SeedDemo bool
}

// Runtime holds the long-lived dependencies shared by the HTTP and WebSocket layers.
type Runtime struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Hub         *notifications.Hub
	Broadcaster *notifications.Broadcaster

	nats *notifications.NatsRelay
}

// InitRuntime connects to the DB and Redis, then builds the hub and the relay
// selected by cfg.RealtimeRelay.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// nil when unreachable
	rdb := cache.InitRedis(cfg.RedisURL)

	rt := &Runtime{DB: db, Redis: rdb}
	if err := rt.initRealtime(cfg); err != nil {
		return nil, err
	}

	if opts.SeedDemo && !cfg.IsProduction() {
		if err := seedIfEmpty(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return rt, nil
}

// NewRuntime assembles a Runtime around existing connections. A nil relay
// keeps delivery on this instance.
func NewRuntime(db *gorm.DB, rdb *redis.Client, relay notifications.Relay) *Runtime {
	var hub *notifications.Hub
	if rdb != nil {
		hub = notifications.NewHub(rdb)
	} else {
		hub = notifications.NewHub()
	}
	return &Runtime{
		DB:          db,
		Redis:       rdb,
		Hub:         hub,
		Broadcaster: notifications.NewBroadcaster(hub, relay),
	}
}

func (rt *Runtime) initRealtime(cfg *config.Config) error {
	relay, err := rt.selectRelay(cfg)
	if err != nil {
		return err
	}
	built := NewRuntime(rt.DB, rt.Redis, relay)
	rt.Hub, rt.Broadcaster = built.Hub, built.Broadcaster
	log.Printf("realtime relay: %s", rt.Broadcaster.RelayName())
	return nil
}

func (rt *Runtime) selectRelay(cfg *config.Config) (notifications.Relay, error) {
	switch cfg.RealtimeRelay {
	case config.RelayNATS:
		relay, err := notifications.ConnectNATS(cfg.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("nats connection failed: %w", err)
		}
		rt.nats = relay
		return relay, nil
	case config.RelayLocal:
		return nil, nil
	default:
		if rt.Redis == nil {
			log.Println("WARNING: redis unavailable, realtime delivery limited to this instance")
			return nil, nil
		}
		return notifications.NewNotifier(rt.Redis), nil
	}
}

// Start subscribes to the relay. Deliveries stop when ctx is canceled.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.Broadcaster.Start(ctx)
}

// Close releases the relay, Redis and DB connections. The hub must already be shut down.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.nats != nil {
		rt.nats.Close()
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if rt.DB != nil {
		if err := database.Close(rt.DB); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}
	return errors.Join(errs...)
}

func seedIfEmpty(ctx context.Context, db *gorm.DB) error {
	var users int64
	if err := db.WithContext(ctx).Model(&models.User{}).Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		return nil
	}
	_, err := seed.Seed(ctx, db, seed.DefaultOptions())
	return err
}
