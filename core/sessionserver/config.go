package sessionserver

import (
	"errors"
	"os"
	"strings"
	"time"
)

const (
	DefaultAddr            = ":8000"
	DefaultModel           = "gpt-4o-realtime-preview-2024-12-17"
	DefaultUpstreamURL     = "https://api.openai.com/v1/realtime/sessions"
	DefaultUpstreamTimeout = 10 * time.Second
)

var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

type Config struct {
	Addr string
	// APIKey is the long-lived key used to mint ephemeral credentials. It
	// never leaves the server.
	APIKey          string
	Model           string
	UpstreamURL     string
	UpstreamTimeout time.Duration
	// AllowedOrigins lists browser origins that get CORS headers. Empty
	// disables CORS.
	AllowedOrigins map[string]struct{}
}

// LoadFromEnv reads the server configuration from the environment, falling
// back to defaults for everything except the API key.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:            envOr("VOICECHAT_BACKEND_ADDR", DefaultAddr),
		APIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:           envOr("VOICECHAT_MODEL", DefaultModel),
		UpstreamURL:     envOr("VOICECHAT_UPSTREAM_URL", DefaultUpstreamURL),
		UpstreamTimeout: envDurationOr("VOICECHAT_UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
		AllowedOrigins:  map[string]struct{}{},
	}

	origins := splitCSV(os.Getenv("VOICECHAT_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}
	for _, origin := range origins {
		cfg.AllowedOrigins[origin] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Warn("Ignoring invalid duration", "key", key, "value", raw)
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
