// Package notify defines the outbound-message contract the pipeline uses to
// reach leads and sales reps.
package notify

import "context"

// Receipt is the ephemeral record of one send attempt. It is logged, never
// persisted.
type Receipt struct {
	Success   bool
	MessageID string
}

// Dispatcher sends messages through the provider. Template sends are the
// qualification-flow contract; free-form text is a lower-contract operation
// reserved for diagnostic and manual paths.
type Dispatcher interface {
	// SendTemplate delivers a pre-approved template. recipient must be in the
	// provider's canonical form: digits only, country code included, no
	// leading symbol.
	SendTemplate(ctx context.Context, recipient, template string, params []string) (Receipt, error)

	// SendText delivers free-form text to an existing conversation.
	SendText(ctx context.Context, recipient, body string) (Receipt, error)
}

// Noop discards all sends, for deployments without a messaging provider.
type Noop struct{}

// SendTemplate reports success without sending anything.
func (Noop) SendTemplate(_ context.Context, _, _ string, _ []string) (Receipt, error) {
	return Receipt{Success: true, MessageID: "noop"}, nil
}

// SendText reports success without sending anything.
func (Noop) SendText(_ context.Context, _, _ string) (Receipt, error) {
	return Receipt{Success: true, MessageID: "noop"}, nil
}
