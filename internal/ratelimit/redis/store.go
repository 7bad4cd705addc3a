// Package redis provides a shared fixed-window counter store for
// multi-instance deployments.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brastel-digital/leadgate/internal/lead"
)

const keyPrefix = "leadgate:ratelimit:"

// Store counts requests in Redis so every instance observes the same window.
type Store struct {
	client redis.UniversalClient
	clock  lead.Clock
}

// New creates a Store over an existing Redis client.
func New(client redis.UniversalClient, clock lead.Clock) *Store {
	return &Store{client: client, clock: clock}
}

// Incr implements ratelimit.Store. INCR is atomic server-side; the window
// TTL is attached on the first request and never slides afterwards. Expiry
// is Redis's own, so no sweep loop is needed for this backend.
func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	rk := keyPrefix + key
	count, err := s.client.Incr(ctx, rk).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, rk, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	ttl, err := s.client.PTTL(ctx, rk).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}
	return int(count), s.clock.Now().Add(ttl), nil
}
