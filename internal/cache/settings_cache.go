package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vaidashi/gallery-api/internal/models"
)

const settingsKey = "gallery:settings"

// SettingsCache keeps the site settings record in Redis
type SettingsCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

// NewSettingsCache creates a SettingsCache
func NewSettingsCache(client redis.UniversalClient, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &SettingsCache{
		client:  client,
		baseTTL: ttl,
	}
}

// Get returns the cached settings or ErrCacheMiss
func (c *SettingsCache) Get(ctx context.Context) (*models.SiteSettings, error) {
	data, err := c.client.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var settings models.SiteSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings failed: %w", err)
	}

	return &settings, nil
}

// Set stores settings with a jittered TTL
func (c *SettingsCache) Set(ctx context.Context, settings *models.SiteSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings failed: %w", err)
	}

	jitter := time.Duration(rand.Int63n(int64(c.baseTTL/10) + 1))
	if err := c.client.Set(ctx, settingsKey, data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Invalidate drops the cached settings
func (c *SettingsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, settingsKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}
