// Package memory provides the in-process fixed-window counter store.
//
// State is process-local: under multiple server instances each process
// enforces its own limit independently.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/brastel-digital/leadgate/internal/lead"
)

type window struct {
	count   int
	resetAt time.Time
}

// Store keeps one counter window per client identifier. A periodic sweep
// removes expired windows so the map stays bounded under churning clients.
type Store struct {
	mu      sync.Mutex
	windows map[string]*window

	clock      lead.Clock
	sweepEvery time.Duration

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option customizes a Store.
type Option func(*Store)

// WithSweepInterval overrides how often expired windows are removed.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepEvery = d }
}

// New creates a Store. Call Start to run the sweep loop and Stop on shutdown.
func New(clock lead.Clock, opts ...Option) *Store {
	s := &Store{
		windows:    make(map[string]*window),
		clock:      clock,
		sweepEvery: time.Minute,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr implements ratelimit.Store. The whole check-and-increment happens
// under one lock so two simultaneous requests can never both observe the
// same pre-increment count.
func (s *Store) Incr(_ context.Context, key string, windowLen time.Duration) (int, time.Time, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(windowLen)}
		s.windows[key] = w
		return w.count, w.resetAt, nil
	}
	w.count++
	return w.count, w.resetAt, nil
}

// Start launches the sweep loop. It runs until Stop is called or ctx ends.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go func() {
		defer close(s.done)
		t := time.NewTicker(s.sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-t.C:
				s.sweep()
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// sweep holds the lock only for the map walk; admit checks observe a short,
// bounded pause at worst.
func (s *Store) sweep() {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
}

// Len reports the number of live windows, for tests and readiness probes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
