// Package journal defines the interface for recording pipeline outcomes.
// The journal is an operational audit trail only; nothing is ever replayed
// from it.
package journal

import (
	"context"
	"time"
)

// Entry is the recorded outcome of one lead submission.
type Entry struct {
	SubmissionID string
	Email        string
	ClientKey    string
	Outcome      string
	ContactID    string
	DealID       string
	FailureKind  string
	ReceivedAt   time.Time
}

// Provider persists journal entries.
type Provider interface {
	// Record stores one entry. Failures here never affect the caller-facing
	// outcome of a submission.
	Record(ctx context.Context, e Entry) error

	// Close releases the underlying resources.
	Close()
}

// NoOp discards entries, for deployments without a journal database.
type NoOp struct{}

// Record for NoOp does nothing.
func (NoOp) Record(_ context.Context, _ Entry) error { return nil }

// Close for NoOp does nothing.
func (NoOp) Close() {}
