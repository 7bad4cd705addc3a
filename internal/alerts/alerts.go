// Package alerts defines the operational alert publishing contract. The
// pipeline raises alerts for non-fatal failures (deal creation, notification
// dispatch) that keep the user-facing response successful but need operator
// attention.
package alerts

import (
	"context"
	"time"
)

// Event is one operational alert.
type Event struct {
	Kind         string    `json:"kind"`
	SubmissionID string    `json:"submission_id"`
	Email        string    `json:"email"`
	Detail       string    `json:"detail"`
	At           time.Time `json:"at"`
}

// Publisher sends alert events to an operations channel.
type Publisher interface {
	// Publish sends one event. Publish errors are an operator concern; the
	// pipeline logs and swallows them.
	Publish(ctx context.Context, e Event) error

	// Close cleans up any client connections and resources.
	Close() error
}

// NoOp is a publisher that discards events.
type NoOp struct{}

// Publish for NoOp does nothing and returns nil.
func (NoOp) Publish(_ context.Context, _ Event) error { return nil }

// Close for NoOp does nothing and returns nil.
func (NoOp) Close() error { return nil }
