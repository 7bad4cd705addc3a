// Package whatsapp implements notify.Dispatcher against the WhatsApp
// Business Cloud API. Templates must be pre-registered and approved by the
// provider before they can be sent.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brastel-digital/leadgate/internal/notify"
)

// DefaultBaseURL is Meta's graph API host.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// Config controls the Cloud API dispatcher.
type Config struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	Language      string
	Timeout       time.Duration
}

// Dispatcher posts messages to the Cloud API messages endpoint.
type Dispatcher struct {
	baseURL       string
	token         string
	phoneNumberID string
	language      string
	http          *http.Client
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	lang := cfg.Language
	if lang == "" {
		lang = "pt_BR"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		baseURL:       base,
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		language:      lang,
		http:          &http.Client{Timeout: timeout},
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendTemplate sends a pre-approved template with positional body parameters.
func (d *Dispatcher) SendTemplate(ctx context.Context, recipient, template string, params []string) (notify.Receipt, error) {
	components := []map[string]any{}
	if len(params) > 0 {
		textParams := make([]map[string]string, 0, len(params))
		for _, p := range params {
			textParams = append(textParams, map[string]string{"type": "text", "text": p})
		}
		components = append(components, map[string]any{
			"type":       "body",
			"parameters": textParams,
		})
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipient,
		"type":              "template",
		"template": map[string]any{
			"name":       template,
			"language":   map[string]string{"code": d.language},
			"components": components,
		},
	}
	return d.post(ctx, payload)
}

// SendText sends free-form text. The provider only delivers it inside an
// open customer-service window, which is why the qualification flow never
// uses this path.
func (d *Dispatcher) SendText(ctx context.Context, recipient, body string) (notify.Receipt, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipient,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return d.post(ctx, payload)
}

func (d *Dispatcher) post(ctx context.Context, payload map[string]any) (notify.Receipt, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return notify.Receipt{}, fmt.Errorf("encode message: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", d.baseURL, d.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return notify.Receipt{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return notify.Receipt{}, fmt.Errorf("send message: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return notify.Receipt{}, fmt.Errorf("send message: unexpected status %d", resp.StatusCode)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return notify.Receipt{}, fmt.Errorf("decode send response: %w", err)
	}
	receipt := notify.Receipt{Success: true}
	if len(out.Messages) > 0 {
		receipt.MessageID = out.Messages[0].ID
	}
	return receipt, nil
}
