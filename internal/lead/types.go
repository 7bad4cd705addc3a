// Package lead defines the lead-submission data model shared across the
// ingestion pipeline, plus input validation and phone normalization.
package lead

import "time"

// Submission is one inbound lead-capture form post. It is immutable once
// validated; optional fields stay empty rather than being defaulted.
type Submission struct {
	FirstName     string `json:"firstName" validate:"required,min=2"`
	LastName      string `json:"lastName" validate:"required,min=2"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,phonedigits"`
	Company       string `json:"company,omitempty"`
	Role          string `json:"role,omitempty"`
	PreferredTime string `json:"preferredTime,omitempty"`
	Consent       bool   `json:"consent" validate:"eq=true"`
	UTMSource     string `json:"utm_source,omitempty"`
	UTMMedium     string `json:"utm_medium,omitempty"`
	UTMCampaign   string `json:"utm_campaign,omitempty"`
	UTMContent    string `json:"utm_content,omitempty"`
	UTMTerm       string `json:"utm_term,omitempty"`
}

// FullName joins first and last name for CRM deal naming.
func (s Submission) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Clock abstracts time.Now so window math and journal timestamps are testable.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique submission identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
