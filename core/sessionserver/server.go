// Package sessionserver mints ephemeral realtime credentials for clients so
// the long-lived API key stays on the server.
package sessionserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxUpstreamBodyBytes = 1 << 20

type Server struct {
	cfg    Config
	client *http.Client
}

type Option func(*Server)

// WithHTTPClient replaces the client used to reach the upstream session
// endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Server) {
		if client != nil {
			s.client = client
		}
	}
}

func New(cfg Config, opts ...Option) *Server {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = DefaultUpstreamURL
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}

	s := &Server{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP surface of the server: GET /session behind CORS
// and otelhttp instrumentation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session", s.handleSession)
	return otelhttp.NewHandler(withCORS(s.cfg.AllowedOrigins, mux), "voicechat-backend")
}

// upstreamError is a non-success answer from the upstream session endpoint.
type upstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	body, err := s.createSession(r.Context())
	if err != nil {
		var upstreamErr *upstreamError
		if errors.As(err, &upstreamErr) {
			logger.Warn("Failed to create realtime session", "status", upstreamErr.StatusCode, "body", string(upstreamErr.Body))
			writeDetail(w, upstreamErr.StatusCode, detailFromBody(upstreamErr.Body))
			return
		}
		logger.Error("Unexpected error creating realtime session", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logger.Warn("Failed to write session response", "error", err)
	}
}

// createSession asks the upstream for a new realtime session and returns its
// JSON body unchanged.
func (s *Server) createSession(ctx context.Context) (_ []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "create realtime session",
		trace.WithAttributes(attribute.String("model", s.cfg.Model)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "session creation failed")
		}
		span.End()
	}()

	payload, err := json.Marshal(map[string]string{"model": s.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.UpstreamURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.upstream_status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &upstreamError{StatusCode: resp.StatusCode, Body: body}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("upstream returned invalid JSON")
	}
	return body, nil
}

// detailFromBody keeps a JSON upstream body structured and falls back to the
// raw text otherwise.
func detailFromBody(body []byte) any {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{"detail": detail}); err != nil {
		logger.Warn("Failed to write error response", "error", err)
	}
}
