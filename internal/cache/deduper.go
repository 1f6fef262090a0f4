package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDeduper records delivered event IDs in Redis for a bounded window
type EventDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewEventDeduper creates an EventDeduper
func NewEventDeduper(client redis.UniversalClient, ttl time.Duration) *EventDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &EventDeduper{client: client, ttl: ttl}
}

// Claim marks eventID as delivered and reports whether this call was the first
func (d *EventDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKey(eventID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	return ok, nil
}

// Release forgets eventID so a redelivery is processed again
func (d *EventDeduper) Release(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, dedupKey(eventID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func dedupKey(eventID string) string {
	return fmt.Sprintf("gallery:event:%s", eventID)
}
