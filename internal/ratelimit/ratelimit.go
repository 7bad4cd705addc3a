// Package ratelimit implements fixed-window admission control keyed by
// client identifier, over a pluggable counter store.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store performs the atomic check-and-increment for one key. Incr opens a
// fresh window (count=1, resetAt=now+window) when none exists or the prior
// one has expired, otherwise increments the live window's counter. The
// returned count includes the current request; resetAt never slides.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// Config holds limiter tunables.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

// Limiter decides whether a request from a given client identifier is
// admitted under the configured fixed window.
type Limiter struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// New creates a Limiter over the given store.
func New(store Store, cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 10
	}
	return &Limiter{store: store, cfg: cfg, logger: logger}
}

// Admit performs a single check-and-increment for key. A store failure fails
// open: an unreachable shared store must not take the endpoint down.
func (l *Limiter) Admit(ctx context.Context, key string) Result {
	count, resetAt, err := l.store.Incr(ctx, key, l.cfg.Window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, admitting", zap.String("key", key), zap.Error(err))
		return Result{Allowed: true, Limit: l.cfg.MaxRequests, Remaining: 0, ResetAt: time.Now().Add(l.cfg.Window)}
	}
	remaining := l.cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= l.cfg.MaxRequests,
		Limit:     l.cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
