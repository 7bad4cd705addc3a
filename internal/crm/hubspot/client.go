// Package hubspot implements crm.Client against the HubSpot v3/v4 CRM REST
// API, authenticated with a long-lived private app token.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brastel-digital/leadgate/internal/crm"
)

// DefaultBaseURL is HubSpot's public API host.
const DefaultBaseURL = "https://api.hubapi.com"

// dealToContactAssociation is HubSpot's fixed association type for the
// one-directional deal → contact link.
const dealToContactAssociation = 3

// Config controls the HubSpot client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the HubSpot CRM. It performs no retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client. An empty BaseURL falls back to the public host.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchResponse struct {
	Total   int            `json:"total"`
	Results []objectRecord `json:"results"`
}

type objectRecord struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

var contactProperties = []string{
	"email", "firstname", "lastname", "phone", "company", "jobtitle",
	"preferred_time", "utm_source", "utm_medium", "utm_campaign",
	"utm_content", "utm_term",
}

// UpsertContact searches by exact email (limit 1) and patches or creates.
// Only non-empty incoming fields are written, so a repeat submission never
// clears a property by omission.
func (c *Client) UpsertContact(ctx context.Context, contact crm.Contact) (crm.UpsertResult, error) {
	existing, err := c.searchByEmail(ctx, contact.Email)
	if err != nil {
		return crm.UpsertResult{}, err
	}

	props := contactPropertyMap(contact)
	if existing != nil {
		body := map[string]any{"properties": props}
		var rec objectRecord
		err := c.do(ctx, http.MethodPatch, "/crm/v3/objects/contacts/"+existing.ID, body, &rec, "update contact")
		if err != nil {
			return crm.UpsertResult{}, err
		}
		id := rec.ID
		if id == "" {
			id = existing.ID
		}
		return crm.UpsertResult{ID: id, IsNew: false}, nil
	}

	body := map[string]any{"properties": props}
	var rec objectRecord
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", body, &rec, "create contact"); err != nil {
		return crm.UpsertResult{}, err
	}
	if rec.ID == "" {
		return crm.UpsertResult{}, crm.NewError(crm.KindMalformedResponse, "create contact", fmt.Errorf("response missing id"))
	}
	return crm.UpsertResult{ID: rec.ID, IsNew: true}, nil
}

// CreateDeal creates the deal, then establishes the deal → contact
// association. The two steps are not transactional: an association failure
// after a successful create surfaces as crm.ErrDealUnassociated with the
// deal ID preserved.
func (c *Client) CreateDeal(ctx context.Context, props crm.DealProperties, contactID string) (string, error) {
	body := map[string]any{
		"properties": map[string]string{
			"dealname":  props.Name,
			"pipeline":  props.Pipeline,
			"dealstage": props.Stage,
		},
	}
	var rec objectRecord
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/deals", body, &rec, "create deal"); err != nil {
		return "", err
	}
	if rec.ID == "" {
		return "", crm.NewError(crm.KindMalformedResponse, "create deal", fmt.Errorf("response missing id"))
	}

	assocPath := fmt.Sprintf("/crm/v4/objects/deals/%s/associations/contacts/%s", rec.ID, contactID)
	assocBody := []map[string]any{{
		"associationCategory": "HUBSPOT_DEFINED",
		"associationTypeId":   dealToContactAssociation,
	}}
	if err := c.do(ctx, http.MethodPut, assocPath, assocBody, nil, "associate deal"); err != nil {
		return rec.ID, fmt.Errorf("%w: %w", crm.ErrDealUnassociated, err)
	}
	return rec.ID, nil
}

// GetContactByEmail retrieves a contact for downstream notification lookups.
func (c *Client) GetContactByEmail(ctx context.Context, email string) (crm.Contact, error) {
	rec, err := c.searchByEmail(ctx, email)
	if err != nil {
		return crm.Contact{}, err
	}
	if rec == nil {
		return crm.Contact{}, crm.ErrContactNotFound
	}
	return contactFromRecord(*rec), nil
}

func (c *Client) searchByEmail(ctx context.Context, email string) (*objectRecord, error) {
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{{
			PropertyName: "email",
			Operator:     "EQ",
			Value:        email,
		}}}},
		Properties: contactProperties,
		Limit:      1,
	}
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp, "search contact"); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// do performs one authenticated request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, op string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return crm.NewError(crm.KindTransport, op, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return crm.NewError(crm.KindTransport, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return crm.NewError(crm.KindTransport, op, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return crm.NewError(crm.KindAuth, op, fmt.Errorf("credential rejected: status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return crm.NewError(crm.KindTransport, op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return crm.NewError(crm.KindMalformedResponse, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func contactPropertyMap(c crm.Contact) map[string]string {
	props := map[string]string{}
	set := func(name, value string) {
		if value != "" {
			props[name] = value
		}
	}
	set("email", c.Email)
	set("firstname", c.FirstName)
	set("lastname", c.LastName)
	set("phone", c.Phone)
	set("company", c.Company)
	set("jobtitle", c.Role)
	set("preferred_time", c.PreferredTime)
	set("utm_source", c.UTMSource)
	set("utm_medium", c.UTMMedium)
	set("utm_campaign", c.UTMCampaign)
	set("utm_content", c.UTMContent)
	set("utm_term", c.UTMTerm)
	return props
}

func contactFromRecord(rec objectRecord) crm.Contact {
	p := rec.Properties
	return crm.Contact{
		ID:            rec.ID,
		Email:         p["email"],
		FirstName:     p["firstname"],
		LastName:      p["lastname"],
		Phone:         p["phone"],
		Company:       p["company"],
		Role:          p["jobtitle"],
		PreferredTime: p["preferred_time"],
		UTMSource:     p["utm_source"],
		UTMMedium:     p["utm_medium"],
		UTMCampaign:   p["utm_campaign"],
		UTMContent:    p["utm_content"],
		UTMTerm:       p["utm_term"],
	}
}
