package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	UserTTL     = 5 * time.Minute
	WSTicketTTL = 30 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

func WSTicketKey(ticket string) string {
	return "ws_ticket:" + ticket
}

func BlacklistKey(jti string) string {
	return "blacklist:" + jti
}

// Remember returns the cached value at key, or calls load and caches its result.
// A nil client or a Redis failure falls through to load.
func Remember[T any](ctx context.Context, rdb *redis.Client, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if rdb != nil {
		if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
			var cached T
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if rdb != nil {
		if raw, err := json.Marshal(value); err == nil {
			rdb.Set(ctx, key, raw, ttl)
		}
	}
	return value, nil
}

// Invalidate drops key from the cache.
func Invalidate(ctx context.Context, rdb *redis.Client, key string) {
	if rdb != nil {
		rdb.Del(ctx, key)
	}
}

// ConsumeOnce atomically reads and deletes key. It returns ok=false when the key is absent.
func ConsumeOnce(ctx context.Context, rdb *redis.Client, key string) (string, bool, error) {
	if rdb == nil {
		return "", false, errors.New("redis unavailable")
	}
	val, err := rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Exists reports whether key is present. Redis failures report false.
func Exists(ctx context.Context, rdb *redis.Client, key string) bool {
	if rdb == nil {
		return false
	}
	n, err := rdb.Exists(ctx, key).Result()
	return err == nil && n > 0
}
