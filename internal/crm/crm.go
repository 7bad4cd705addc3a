// Package crm defines the contact/deal call contracts the pipeline depends
// on, decoupled from the concrete CRM vendor.
package crm

import (
	"context"
	"errors"
	"fmt"
)

// Contact mirrors the lead submission on the CRM side plus the CRM's own
// record ID. Email is the natural key; the CRM enforces case-insensitive
// uniqueness on it.
type Contact struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	Company       string
	Role          string
	PreferredTime string
	UTMSource     string
	UTMMedium     string
	UTMCampaign   string
	UTMContent    string
	UTMTerm       string
}

// UpsertResult reports the contact ID and whether the record was created.
type UpsertResult struct {
	ID    string
	IsNew bool
}

// DealProperties names the sales opportunity created per qualified lead.
type DealProperties struct {
	Name     string
	Pipeline string
	Stage    string
}

// Client is the pipeline's view of the CRM. Implementations never retry;
// retry policy belongs to the caller.
type Client interface {
	// UpsertContact searches by exact email and patches the found record or
	// creates a new one. Repeated calls with the same data are idempotent.
	UpsertContact(ctx context.Context, c Contact) (UpsertResult, error)

	// CreateDeal creates a deal and associates it one-directionally with the
	// contact. When association fails after the deal exists, the deal ID is
	// returned together with an error matching ErrDealUnassociated.
	CreateDeal(ctx context.Context, props DealProperties, contactID string) (string, error)

	// GetContactByEmail looks up a contact; zero hits yield ErrContactNotFound.
	GetContactByEmail(ctx context.Context, email string) (Contact, error)
}

// ErrContactNotFound marks a search that yielded zero results. Not a failure.
var ErrContactNotFound = errors.New("crm: contact not found")

// ErrDealUnassociated marks the partial failure where the deal was created
// but the deal-to-contact association did not stick.
var ErrDealUnassociated = errors.New("crm: deal created but association failed")

// Kind classifies CRM failures.
type Kind string

const (
	KindTransport         Kind = "transport"
	KindAuth              Kind = "auth"
	KindMalformedResponse Kind = "malformed_response"
)

// Error is the single failure type all CRM operations propagate, carrying
// the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("crm %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps cause as a classified CRM error.
func NewError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}
