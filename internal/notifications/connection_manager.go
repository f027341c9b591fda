package notifications

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"dermai/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPresenceOnlineSetKey  = "presence:online_users"
	defaultPresenceLastSeenKeyNS = "presence:last_seen:"
	defaultPresenceTTL           = 90 * time.Second
	defaultOfflineGrace          = 5 * time.Second
	defaultReaperInterval        = 60 * time.Second
)

// ConnectionManagerConfig controls Redis presence and cleanup behavior.
type ConnectionManagerConfig struct {
	OnlineSetKey       string
	LastSeenKeyPrefix  string
	LastSeenTTL        time.Duration
	OfflineGracePeriod time.Duration
	ReaperInterval     time.Duration
	OnUserOnline       func(userID uint)
	OnUserOffline      func(userID uint)
}

// ConnectionManager counts live connections per user, mirrors presence into Redis so
// other instances can see it, and emits online/offline transitions. A user going
// offline is only reported after the grace period, so a quick reconnect is silent.
type ConnectionManager struct {
	rdb *redis.Client

	mu              sync.RWMutex
	localConnCounts map[uint]int
	offlineTimers   map[uint]*time.Timer
	offlineNotified map[uint]bool

	onlineSetKey      string
	lastSeenKeyPrefix string
	lastSeenTTL       time.Duration
	offlineGrace      time.Duration

	onUserOnline  func(userID uint)
	onUserOffline func(userID uint)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewConnectionManager creates a manager and starts the stale-entry reaper when Redis is available.
func NewConnectionManager(rdb *redis.Client, cfg ConnectionManagerConfig) *ConnectionManager {
	m := &ConnectionManager{
		rdb:               rdb,
		localConnCounts:   make(map[uint]int),
		offlineTimers:     make(map[uint]*time.Timer),
		offlineNotified:   make(map[uint]bool),
		onlineSetKey:      firstNonEmpty(cfg.OnlineSetKey, defaultPresenceOnlineSetKey),
		lastSeenKeyPrefix: firstNonEmpty(cfg.LastSeenKeyPrefix, defaultPresenceLastSeenKeyNS),
		lastSeenTTL:       positiveOr(cfg.LastSeenTTL, defaultPresenceTTL),
		offlineGrace:      positiveOr(cfg.OfflineGracePeriod, defaultOfflineGrace),
		onUserOnline:      cfg.OnUserOnline,
		onUserOffline:     cfg.OnUserOffline,
		stopCh:            make(chan struct{}),
	}

	if m.rdb != nil {
		go m.reaperLoop(positiveOr(cfg.ReaperInterval, defaultReaperInterval))
	}

	return m
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// SetCallbacks replaces the online/offline hooks.
func (m *ConnectionManager) SetCallbacks(onOnline, onOffline func(userID uint)) {
	m.mu.Lock()
	m.onUserOnline = onOnline
	m.onUserOffline = onOffline
	m.mu.Unlock()
}

func (m *ConnectionManager) SetOfflineGracePeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.offlineGrace = d
	m.mu.Unlock()
}

// Stop halts the reaper and cancels pending offline timers.
func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		for userID, timer := range m.offlineTimers {
			timer.Stop()
			delete(m.offlineTimers, userID)
		}
		m.mu.Unlock()
	})
}

// Register records a new local connection for userID. Reconnecting inside the
// offline grace window does not emit a second online transition.
func (m *ConnectionManager) Register(ctx context.Context, userID uint) {
	m.mu.Lock()
	t, pending := m.offlineTimers[userID]
	if pending {
		t.Stop()
		delete(m.offlineTimers, userID)
	}
	first := m.localConnCounts[userID] == 0 && !pending
	m.localConnCounts[userID]++
	m.mu.Unlock()

	m.Touch(ctx, userID)
	if first {
		m.emitOnline(userID)
	}
}

// Touch refreshes the user's last-seen key in Redis.
func (m *ConnectionManager) Touch(ctx context.Context, userID uint) {
	if m.rdb == nil {
		return
	}
	uid := strconv.FormatUint(uint64(userID), 10)
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, m.onlineSetKey, uid)
		pipe.SetEx(ctx, m.lastSeenKey(userID), strconv.FormatInt(time.Now().Unix(), 10), m.lastSeenTTL)
		return nil
	})
	if err != nil {
		observability.GlobalLogger.WarnContext(ctx, "presence touch failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}
}

// Unregister drops one local connection. When it was the last one, the user is
// reported offline after the grace period unless they reconnect first.
func (m *ConnectionManager) Unregister(_ context.Context, userID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := m.localConnCounts[userID]; n > 1 {
		m.localConnCounts[userID] = n - 1
		return
	}
	delete(m.localConnCounts, userID)

	if t, ok := m.offlineTimers[userID]; ok {
		t.Stop()
	}
	m.offlineTimers[userID] = time.AfterFunc(m.offlineGrace, func() {
		m.finalizeOffline(context.Background(), userID)
	})
}

// IsOnline reports whether the user has a local connection or a fresh last-seen key.
func (m *ConnectionManager) IsOnline(ctx context.Context, userID uint) bool {
	m.mu.RLock()
	local := m.localConnCounts[userID] > 0
	m.mu.RUnlock()
	if local || m.rdb == nil {
		return local
	}

	exists, err := m.rdb.Exists(ctx, m.lastSeenKey(userID)).Result()
	return err == nil && exists > 0
}

// GetOnlineUserIDs returns online user IDs from Redis, unioned with local connections.
func (m *ConnectionManager) GetOnlineUserIDs(ctx context.Context) []uint {
	seen := make(map[uint]struct{})
	result := make([]uint, 0)
	add := func(userID uint) {
		if _, ok := seen[userID]; ok {
			return
		}
		seen[userID] = struct{}{}
		result = append(result, userID)
	}

	m.scanOnlineSet(ctx, func(userID uint, fresh bool) {
		if fresh {
			add(userID)
		}
	})
	for _, userID := range m.localUserIDs() {
		add(userID)
	}
	return result
}

// scanOnlineSet visits every member of the online set. Members whose last-seen
// key expired are removed from the set before fn sees them with fresh=false.
func (m *ConnectionManager) scanOnlineSet(ctx context.Context, fn func(userID uint, fresh bool)) {
	if m.rdb == nil {
		return
	}
	members, err := m.rdb.SMembers(ctx, m.onlineSetKey).Result()
	if err != nil {
		return
	}

	for _, raw := range members {
		id64, parseErr := strconv.ParseUint(raw, 10, 32)
		if parseErr != nil {
			continue
		}
		userID := uint(id64)
		exists, existsErr := m.rdb.Exists(ctx, m.lastSeenKey(userID)).Result()
		if existsErr != nil {
			continue
		}
		if exists == 0 {
			_ = m.rdb.SRem(ctx, m.onlineSetKey, raw).Err()
		}
		fn(userID, exists > 0)
	}
}

// reapOnce performs one cleanup pass over the online set.
func (m *ConnectionManager) reapOnce(ctx context.Context) {
	m.scanOnlineSet(ctx, func(userID uint, fresh bool) {
		if fresh {
			return
		}
		m.mu.RLock()
		hasLocal := m.localConnCounts[userID] > 0
		m.mu.RUnlock()
		if !hasLocal {
			m.emitOffline(userID)
		}
	})
}

func (m *ConnectionManager) reaperLoop(interval time.Duration) {
	ctx := context.Background()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapOnce(ctx)
		}
	}
}

func (m *ConnectionManager) finalizeOffline(ctx context.Context, userID uint) {
	m.mu.Lock()
	delete(m.offlineTimers, userID)
	reconnected := m.localConnCounts[userID] > 0
	m.mu.Unlock()
	if reconnected {
		return
	}

	if m.rdb != nil {
		exists, err := m.rdb.Exists(ctx, m.lastSeenKey(userID)).Result()
		if err == nil && exists > 0 {
			// Another instance refreshed presence.
			return
		}
		_ = m.rdb.SRem(ctx, m.onlineSetKey, strconv.FormatUint(uint64(userID), 10)).Err()
	}

	m.emitOffline(userID)
}

func (m *ConnectionManager) emitOnline(userID uint) {
	m.mu.Lock()
	m.offlineNotified[userID] = false
	cb := m.onUserOnline
	m.mu.Unlock()
	if cb != nil {
		cb(userID)
	}
}

func (m *ConnectionManager) emitOffline(userID uint) {
	m.mu.Lock()
	if m.offlineNotified[userID] {
		m.mu.Unlock()
		return
	}
	m.offlineNotified[userID] = true
	cb := m.onUserOffline
	m.mu.Unlock()
	if cb != nil {
		cb(userID)
	}
}

func (m *ConnectionManager) localUserIDs() []uint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint, 0, len(m.localConnCounts))
	for userID, count := range m.localConnCounts {
		if count > 0 {
			ids = append(ids, userID)
		}
	}
	return ids
}

func (m *ConnectionManager) lastSeenKey(userID uint) string {
	return m.lastSeenKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}
