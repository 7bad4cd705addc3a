package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brastel-digital/leadgate/internal/clock/system"
	"github.com/brastel-digital/leadgate/internal/config"
	"github.com/brastel-digital/leadgate/internal/lead"
	"github.com/brastel-digital/leadgate/internal/metrics"
	"github.com/brastel-digital/leadgate/internal/pipeline"
	"github.com/brastel-digital/leadgate/internal/ratelimit"
	ratelimitmemory "github.com/brastel-digital/leadgate/internal/ratelimit/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeProcessor struct {
	mu      sync.Mutex
	calls   int
	keys    []string
	subs    []lead.Submission
	outcome pipeline.Outcome
}

func (p *fakeProcessor) Process(_ context.Context, sub lead.Submission, clientKey string) pipeline.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.keys = append(p.keys, clientKey)
	p.subs = append(p.subs, sub)
	return p.outcome
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 5},
		RateLimit: config.RateLimitConfig{
			WindowMinutes:     15,
			MaxRequests:       10,
			Store:             "memory",
			TrustProxyHeaders: true,
		},
	}
}

func newTestServer(t *testing.T, processor *fakeProcessor, maxRequests int) *Server {
	t.Helper()
	store := ratelimitmemory.New(system.New())
	limiter := ratelimit.New(store, ratelimit.Config{
		Window:      15 * time.Minute,
		MaxRequests: maxRequests,
	}, zap.NewNop())
	return NewServer(limiter, lead.NewValidator(), processor, testConfig(), zap.NewNop())
}

func anaPayload() []byte {
	return []byte(`{"firstName":"Ana","lastName":"Souza","email":"ana@x.com","phone":"11987654321","consent":true}`)
}

func postLead(server *Server, body []byte, clientIP string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/leads", bytes.NewReader(body))
	req.Header.Set("X-Forwarded-For", clientIP)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubmitLead_Succeeds(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{outcome: pipeline.Outcome{
		Success:   true,
		ContactID: "101",
		DealID:    "deal-1",
	}}
	server := newTestServer(t, processor, 10)

	rec := postLead(server, anaPayload(), "1.2.3.4")

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Success   bool   `json:"success"`
		ContactID string `json:"contactId"`
		DealID    string `json:"dealId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "101", resp.ContactID)
	require.Equal(t, "deal-1", resp.DealID)

	require.Equal(t, 1, processor.calls)
	require.Equal(t, "1.2.3.4", processor.keys[0])
	require.Equal(t, "ana@x.com", processor.subs[0].Email)
}

func TestSubmitLead_OmitsDealIDWhenAbsent(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{outcome: pipeline.Outcome{Success: true, ContactID: "101"}}
	server := newTestServer(t, processor, 10)

	rec := postLead(server, anaPayload(), "1.2.3.4")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "dealId")
}

func TestSubmitLead_InvalidJSON(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	server := newTestServer(t, processor, 10)

	rec := postLead(server, []byte("{invalid"), "1.2.3.4")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, processor.calls)
}

func TestSubmitLead_BadEmailNamesField(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	server := newTestServer(t, processor, 10)

	body := []byte(`{"firstName":"Ana","lastName":"Souza","email":"not-an-email","phone":"11987654321","consent":true}`)
	rec := postLead(server, body, "1.2.3.4")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Fields []lead.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Fields, 1)
	require.Equal(t, "email", resp.Fields[0].Field)
	require.Zero(t, processor.calls)
}

func TestSubmitLead_NoConsentNeverReachesPipeline(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	server := newTestServer(t, processor, 10)

	body := []byte(`{"firstName":"Ana","lastName":"Souza","email":"ana@x.com","phone":"11987654321","consent":false}`)
	rec := postLead(server, body, "1.2.3.4")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "consent")
	require.Zero(t, processor.calls)
}

func TestSubmitLead_RateLimited(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{outcome: pipeline.Outcome{Success: true, ContactID: "101"}}
	server := newTestServer(t, processor, 10)

	for i := 0; i < 10; i++ {
		rec := postLead(server, anaPayload(), "9.9.9.9")
		require.Equal(t, http.StatusCreated, rec.Code, "request %d", i+1)
	}

	rec := postLead(server, anaPayload(), "9.9.9.9")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var resp struct {
		Limit     int    `json:"limit"`
		Remaining int    `json:"remaining"`
		ResetAt   string `json:"resetAt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 10, resp.Limit)
	require.Equal(t, 0, resp.Remaining)
	require.NotEmpty(t, resp.ResetAt)

	require.Equal(t, 10, processor.calls)
}

func TestSubmitLead_RateLimitIsPerClient(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{outcome: pipeline.Outcome{Success: true, ContactID: "101"}}
	server := newTestServer(t, processor, 1)

	require.Equal(t, http.StatusCreated, postLead(server, anaPayload(), "1.1.1.1").Code)
	require.Equal(t, http.StatusTooManyRequests, postLead(server, anaPayload(), "1.1.1.1").Code)
	require.Equal(t, http.StatusCreated, postLead(server, anaPayload(), "2.2.2.2").Code)
}

func TestSubmitLead_RateLimitPrecedesValidation(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{outcome: pipeline.Outcome{Success: true, ContactID: "101"}}
	server := newTestServer(t, processor, 1)

	require.Equal(t, http.StatusCreated, postLead(server, anaPayload(), "3.3.3.3").Code)
	rec := postLead(server, []byte(`{"email":"not-an-email"}`), "3.3.3.3")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSubmitLead_CrmFailureIsGeneric(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{outcome: pipeline.Outcome{
		FailureKind: pipeline.KindCrmUnavailable,
	}}
	server := newTestServer(t, processor, 10)

	rec := postLead(server, anaPayload(), "1.2.3.4")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), userSafeError)
	require.NotContains(t, rec.Body.String(), "hubspot")
	require.NotContains(t, rec.Body.String(), "connection")
}

func TestSubmitLead_DegradedOutcomeStillCreated(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{outcome: pipeline.Outcome{
		Success:      true,
		ContactID:    "101",
		Degradations: []pipeline.Kind{pipeline.KindNotificationFailed},
	}}
	server := newTestServer(t, processor, 10)

	rec := postLead(server, anaPayload(), "1.2.3.4")
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestSubmitLead_ConcurrentAdmitsNeverExceedLimit(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{outcome: pipeline.Outcome{Success: true, ContactID: "101"}}
	server := newTestServer(t, processor, 10)

	const attempts = 30
	codes := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = postLead(server, anaPayload(), "7.7.7.7").Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		if code == http.StatusCreated {
			created++
		}
	}
	require.Equal(t, 10, created)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeProcessor{}, 10)
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeProcessor{}, 10)

	warm := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	server.Handler().ServeHTTP(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeProcessor{}, 10)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestClientKeyResolution(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		trust      bool
		want       string
	}{
		{"forwarded first hop", "1.2.3.4, 10.0.0.1", "", "10.0.0.2:1234", true, "1.2.3.4"},
		{"real ip fallback", "", "5.6.7.8", "10.0.0.2:1234", true, "5.6.7.8"},
		{"remote addr", "", "", "10.0.0.2:1234", true, "10.0.0.2"},
		{"untrusted proxy headers ignored", "1.2.3.4", "", "10.0.0.2:1234", false, "10.0.0.2"},
		{"no address at all", "", "", "", true, fallbackClientKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/v1/leads", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			require.Equal(t, tc.want, clientKey(req, tc.trust))
		})
	}
}
