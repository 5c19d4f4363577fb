package server

import (
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Addr != ":8080" {
		t.Errorf("Expected default addr :8080, got %q", cfg.Addr)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("Expected default max message size 4096, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 10 {
		t.Errorf("Expected default burst 10, got %d", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("Expected default refill interval 1s, got %v", cfg.RateLimit.RefillInterval)
	}
	if cfg.DBPath != "parley.db" {
		t.Errorf("Expected default db path parley.db, got %q", cfg.DBPath)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("Expected default token ttl 24h, got %v", cfg.TokenTTL)
	}
	if cfg.JWTSecret != "" {
		t.Error("Expected no default JWT secret")
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("PARLEY_ADDR", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example.com, http://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("PARLEY_DB_PATH", "/tmp/relay.db")
	t.Setenv("PARLEY_JWT_SECRET", "env-secret")
	t.Setenv("PARLEY_TOKEN_TTL", "1h")

	cfg := NewConfigFromEnv()

	if cfg.Addr != ":9090" {
		t.Errorf("Expected addr :9090, got %q", cfg.Addr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example.com" {
		t.Errorf("Unexpected allowed origins %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("Expected max message size 1024, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 5 {
		t.Errorf("Expected burst 5, got %d", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("Expected refill interval 2s, got %v", cfg.RateLimit.RefillInterval)
	}
	if cfg.DBPath != "/tmp/relay.db" {
		t.Errorf("Expected db path /tmp/relay.db, got %q", cfg.DBPath)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Errorf("Expected secret from env, got %q", cfg.JWTSecret)
	}
	if cfg.TokenTTL != time.Hour {
		t.Errorf("Expected token ttl 1h, got %v", cfg.TokenTTL)
	}
}

func TestNewConfigFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("PARLEY_TOKEN_TTL", "-5m")

	cfg := NewConfigFromEnv()

	if cfg.MaxMessageSize != 4096 {
		t.Errorf("Expected fallback max message size 4096, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 10 {
		t.Errorf("Expected fallback burst 10, got %d", cfg.RateLimit.Burst)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("Expected fallback token ttl 24h, got %v", cfg.TokenTTL)
	}
}

func TestSetConfigSanitizesZeroValues(t *testing.T) {
	SetConfig(&Config{})
	t.Cleanup(func() { SetConfig(nil) })

	cfg := currentConfig()
	if cfg.Addr != ":8080" {
		t.Errorf("Expected sanitized addr :8080, got %q", cfg.Addr)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("Expected sanitized max message size 4096, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 10 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("Expected sanitized rate limit defaults, got %+v", cfg.RateLimit)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("Expected sanitized token ttl 24h, got %v", cfg.TokenTTL)
	}
}
