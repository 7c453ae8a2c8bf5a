// Package credentials fetches short-lived realtime session credentials from
// the application backend.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const sessionPath = "/session"

// maxBodySize caps how much of an error body is kept for diagnostics.
const maxBodySize = 64 << 10

var ErrMissingBaseURL = errors.New("credential endpoint base URL is not configured")

// Error reports a failed credential request: the backend was unreachable,
// answered with a non-success status or returned an unexpected body.
type Error struct {
	// StatusCode is zero when no response was received.
	StatusCode int
	// Body is the raw response body, kept for diagnostics.
	Body string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("failed to fetch session key: status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("failed to fetch session key: status %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("failed to fetch session key: status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("failed to fetch session key: %v", e.Err)
	}
	return "failed to fetch session key"
}

func (e *Error) Unwrap() error { return e.Err }

type Fetcher struct {
	baseURL string
	client  *http.Client
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default otelhttp-instrumented client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// NewFetcher creates a fetcher for the backend at baseURL. There is no
// fallback URL; an empty baseURL returns [ErrMissingBaseURL].
func NewFetcher(baseURL string, opts ...Option) (*Fetcher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}

	f := &Fetcher{
		baseURL: baseURL,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Fetch requests a new ephemeral credential. It sends exactly one request
// and never retries.
func (f *Fetcher) Fetch(ctx context.Context) (credential string, err error) {
	ctx, span := tracer.Start(ctx, "fetch session credential")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+sessionPath, nil)
	if err != nil {
		return "", &Error{Err: fmt.Errorf("error creating HTTP request: %w", err)}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{Err: fmt.Errorf("error sending request: %w", err)}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return "", &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("error reading response body: %w", err)}
		}
		logger.WarnContext(ctx, "Failed to fetch session key", "status", resp.StatusCode, "body", string(body))
		return "", &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		ClientSecret *struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("error decoding response: %w", err)}
	}
	if parsed.ClientSecret == nil || parsed.ClientSecret.Value == "" {
		return "", &Error{StatusCode: resp.StatusCode, Err: errors.New("response is missing client_secret.value")}
	}

	return parsed.ClientSecret.Value, nil
}
