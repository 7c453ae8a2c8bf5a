package sessionserver

import (
	"errors"
	"testing"
	"time"
)

func TestLoadFromEnvRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := LoadFromEnv(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VOICECHAT_ALLOWED_ORIGINS", "")
	t.Setenv("VOICECHAT_MODEL", "")
	t.Setenv("VOICECHAT_UPSTREAM_TIMEOUT", "")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("expected default model, got %q", cfg.Model)
	}
	if cfg.UpstreamTimeout != DefaultUpstreamTimeout {
		t.Fatalf("expected default timeout, got %s", cfg.UpstreamTimeout)
	}
	for _, origin := range DefaultAllowedOrigins {
		if _, ok := cfg.AllowedOrigins[origin]; !ok {
			t.Fatalf("expected default origin %q to be allowed", origin)
		}
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VOICECHAT_ALLOWED_ORIGINS", " https://chat.example , ,http://localhost:8080")
	t.Setenv("VOICECHAT_MODEL", "gpt-4o-mini-realtime-preview")
	t.Setenv("VOICECHAT_UPSTREAM_TIMEOUT", "3s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.AllowedOrigins)
	}
	if _, ok := cfg.AllowedOrigins["https://chat.example"]; !ok {
		t.Fatalf("expected trimmed origin to be allowed, got %v", cfg.AllowedOrigins)
	}
	if cfg.Model != "gpt-4o-mini-realtime-preview" {
		t.Fatalf("expected model override, got %q", cfg.Model)
	}
	if cfg.UpstreamTimeout != 3*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.UpstreamTimeout)
	}
}
