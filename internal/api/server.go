// Package api exposes the HTTP interface for the lead ingestion service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brastel-digital/leadgate/internal/config"
	"github.com/brastel-digital/leadgate/internal/lead"
	"github.com/brastel-digital/leadgate/internal/metrics"
	"github.com/brastel-digital/leadgate/internal/pipeline"
	"github.com/brastel-digital/leadgate/internal/ratelimit"
)

// userSafeError is the generic message returned for any upstream failure.
// Raw provider errors never reach the submitter.
const userSafeError = "an error occurred, please try again"

// Processor runs one validated submission through the pipeline.
type Processor interface {
	Process(ctx context.Context, sub lead.Submission, clientKey string) pipeline.Outcome
}

// Server wires HTTP handlers to the rate limiter, validator and pipeline.
type Server struct {
	router    chi.Router
	limiter   *ratelimit.Limiter
	validator *lead.Validator
	processor Processor
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	limiter *ratelimit.Limiter,
	validator *lead.Validator,
	processor Processor,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		limiter:   limiter,
		validator: validator,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/leads", s.submitLead)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitResponse struct {
	Success   bool   `json:"success"`
	ContactID string `json:"contactId"`
	DealID    string `json:"dealId,omitempty"`
}

type rateLimitedResponse struct {
	Error     string `json:"error"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields []lead.FieldError `json:"fields"`
}

func (s *Server) submitLead(w http.ResponseWriter, r *http.Request) {
	var sub lead.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	key := clientKey(r, s.cfg.RateLimit.TrustProxyHeaders)
	admit := s.limiter.Admit(r.Context(), key)
	if !admit.Allowed {
		metrics.ObserveRateLimitRejection()
		metrics.ObserveSubmission("rate_limited")
		s.writeRateLimited(w, admit)
		return
	}

	if verr := s.validator.Validate(sub); verr != nil {
		metrics.ObserveSubmission("invalid_input")
		s.writeJSON(w, http.StatusBadRequest, validationResponse{
			Error:  "invalid submission",
			Fields: verr.Fields,
		})
		return
	}

	outcome := s.processor.Process(r.Context(), sub, key)
	if !outcome.Success {
		s.writeError(w, http.StatusBadGateway, userSafeError)
		return
	}
	s.writeJSON(w, http.StatusCreated, submitResponse{
		Success:   true,
		ContactID: outcome.ContactID,
		DealID:    outcome.DealID,
	})
}

func (s *Server) writeRateLimited(w http.ResponseWriter, res ratelimit.Result) {
	retryAfter := int(time.Until(res.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))
	s.writeJSON(w, http.StatusTooManyRequests, rateLimitedResponse{
		Error:     "too many requests",
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt.UTC().Format(time.RFC3339),
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, routePattern(r), ww.status, duration)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", duration.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, userSafeError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

