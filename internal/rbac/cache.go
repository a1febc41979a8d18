package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "rbac:version"

// Cache stores resolved effective permissions in Redis. Any permission or
// assignment change bumps a global version so stale entries are never read.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	return ver, err
}

// Fetch returns cached permissions or populates them with load. Redis failures
// fall through to load so authorization never depends on cache health.
func (c *Cache) Fetch(ctx context.Context, tenantID, userID int64, load func(context.Context) (EffectivePermissions, error)) (EffectivePermissions, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	ver, err := c.version(ctx)
	if err != nil {
		c.warn("rbac cache version", err)
		return load(ctx)
	}
	key := fmt.Sprintf("rbac:effective:%d:%d:%d", ver, tenantID, userID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached EffectivePermissions
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.warn("rbac cache get", err)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		perms, err := load(ctx)
		if err != nil {
			return EffectivePermissions{}, err
		}
		if raw, err := json.Marshal(perms); err == nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				c.warn("rbac cache set", err)
			}
		}
		return perms, nil
	})
	if err != nil {
		return EffectivePermissions{}, err
	}
	return v.(EffectivePermissions), nil
}

// Invalidate bumps the cache version.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		c.warn("rbac cache invalidate", err)
	}
}

func (c *Cache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}
