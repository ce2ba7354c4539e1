package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ordesk/ordesk/internal/orchestrator"
	"github.com/ordesk/ordesk/internal/sanitize"
	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/provider"
)

// Conversation is the slice of the engine the HTTP surface needs: submit a
// fragment and wait for the debounced turn, plus session and provider
// administration.
type Conversation interface {
	Handle(ctx context.Context, userID string, frag domain.BufferedFragment) (orchestrator.TurnResult, error)
	Reset(ctx context.Context, userID string) error
	Sessions(ctx context.Context) ([]string, error)
	ProviderStatuses() []provider.Status
	ResetBreaker(name string) error
	Preflight(ctx context.Context) error
}

// Server exposes the conversation engine over REST.
type Server struct {
	conv     Conversation
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	version  string
}

// Option customizes the HTTP server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetricsGatherer mounts GET /metrics backed by the given registry.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithVersion sets the version string reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewHandler builds the chi router for the engine.
func NewHandler(conv Conversation, opts ...Option) http.Handler {
	s := &Server{
		conv:   conv,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()

	r.Post("/v1/messages", s.PostMessage)
	r.Get("/v1/sessions", s.ListSessions)
	r.Post("/v1/sessions/{userID}/reset", s.ResetSession)
	r.Get("/v1/providers", s.GetProviders)
	r.Post("/v1/providers/{name}/reset", s.ResetBreaker)
	r.Get("/health", s.GetHealth)
	r.Get("/ready", s.GetReady)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MessageRequest is one user fragment. The reply covers the whole debounced
// turn the fragment ends up in, so slow-typing users get a single answer.
type MessageRequest struct {
	UserID   string         `json:"user_id"`
	Text     string         `json:"text"`
	ImageURL string         `json:"image_url,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PostMessage handles POST /v1/messages.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostMessage: invalid request body", "err", err)
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	text, err := sanitize.Input(body.Text)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, sanitize.ErrInputTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), status)
		s.logger.Warn("PostMessage: fragment rejected", "user_id", body.UserID, "err", err, "size", len(body.Text))
		return
	}

	frag := domain.BufferedFragment{
		Text:     text,
		HasImage: body.ImageURL != "",
		ImageURL: body.ImageURL,
		Metadata: body.Metadata,
	}

	res, err := s.conv.Handle(r.Context(), body.UserID, frag)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSuperseded):
			// A newer fragment took over this turn; nothing to say here.
			w.WriteHeader(http.StatusNoContent)
		case isTimeout(err):
			http.Error(w, fmt.Sprintf("Turn timed out: %v", err), http.StatusGatewayTimeout)
			s.logger.Warn("PostMessage: turn timed out", "user_id", body.UserID, "err", err)
		default:
			http.Error(w, fmt.Sprintf("Turn failed: %v", err), http.StatusInternalServerError)
			s.logger.Error("PostMessage: turn failed", "user_id", body.UserID, "err", err)
		}
		return
	}

	writeJSON(w, s.logger, res)
}

// ResetSession handles POST /v1/sessions/{userID}/reset.
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.conv.Reset(r.Context(), userID); err != nil {
		http.Error(w, fmt.Sprintf("Reset error: %v", err), http.StatusInternalServerError)
		s.logger.Error("ResetSession failed", "user_id", userID, "err", err)
		return
	}
	writeJSON(w, s.logger, map[string]string{"status": "reset", "user_id": userID})
}

// ListSessions handles GET /v1/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.conv.Sessions(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("ListSessions failed", "err", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, s.logger, map[string]any{"sessions": ids})
}

// GetProviders handles GET /v1/providers.
func (s *Server) GetProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, s.conv.ProviderStatuses())
}

// ResetBreaker handles POST /v1/providers/{name}/reset. The name "all"
// resets every breaker.
func (s *Server) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.conv.ResetBreaker(name); err != nil {
		http.Error(w, fmt.Sprintf("Unknown provider: %v", err), http.StatusNotFound)
		return
	}
	s.logger.Info("circuit breaker reset", "provider", name)
	writeJSON(w, s.logger, map[string]string{"status": "reset", "provider": name})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

// GetReady handles GET /ready: it probes one generative backend through the
// breaker, so a fully open fleet reports not ready.
func (s *Server) GetReady(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.Preflight(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("Not ready: %v", err), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.logger, map[string]string{"status": "ready"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{
		"app":     "ordesk-http",
		"version": s.version,
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}

func isTimeout(err error) bool {
	var timeoutErr *domain.AggregationTimeoutError
	return errors.As(err, &timeoutErr)
}
