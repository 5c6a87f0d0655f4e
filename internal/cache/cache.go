// Package cache provides a Redis-backed cache for wallet statistics.
//
// Aggregating an organization's wallets is a table scan; the backoffice
// dashboard polls it aggressively. The cache absorbs that read load and is
// invalidated on every balance mutation. A nil *Cache is valid and caches
// nothing, so callers never branch on whether Redis is configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/omnilypro/omnily/internal/wallet"
)

// Config configures the Redis connection and entry lifetime.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Cache wraps a Redis client for wallet stats caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Addr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "omnily"
	}

	logger.Info("redis cache connected",
		slog.String("addr", cfg.Addr),
		slog.Duration("ttl", ttl),
	)
	return &Cache{client: client, ttl: ttl, prefix: prefix, logger: logger}, nil
}

func (c *Cache) statsKey(orgID uuid.UUID) string {
	return fmt.Sprintf("%s:wallet_stats:%s", c.prefix, orgID)
}

// GetStats returns the cached stats for an org, or (nil, false) on a miss.
// Cache failures count as misses; the caller falls through to the database.
func (c *Cache) GetStats(ctx context.Context, orgID uuid.UUID) (*wallet.Stats, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.statsKey(orgID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "reading stats cache",
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	var stats wallet.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

// SetStats stores the stats snapshot for an org. Best effort.
func (c *Cache) SetStats(ctx context.Context, orgID uuid.UUID, stats *wallet.Stats) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.statsKey(orgID), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "writing stats cache",
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateStats drops the cached stats for an org. Called after every
// balance mutation so the dashboard never shows a stale total for longer
// than one request.
func (c *Cache) InvalidateStats(ctx context.Context, orgID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.statsKey(orgID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "invalidating stats cache",
			slog.String("error", err.Error()),
		)
	}
}

// Ping checks the Redis connection for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
