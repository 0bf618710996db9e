package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.ThrottleWindow != 24*time.Hour {
		t.Fatalf("expected 24h throttle window, got %v", cfg.ThrottleWindow)
	}
	if cfg.NotifyConcurrency != 8 {
		t.Fatalf("expected default concurrency 8, got %d", cfg.NotifyConcurrency)
	}
	if cfg.ThrottleBackend != "postgres" {
		t.Fatalf("expected postgres throttle backend")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SITE_URL", "https://rides.example")
	t.Setenv("THROTTLE_WINDOW", "12h")
	t.Setenv("NOTIFY_CONCURRENCY", "3")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.SiteURL != "https://rides.example" {
		t.Fatalf("expected override site url")
	}
	if cfg.ThrottleWindow != 12*time.Hour {
		t.Fatalf("expected 12h window, got %v", cfg.ThrottleWindow)
	}
	if cfg.NotifyConcurrency != 3 {
		t.Fatalf("expected concurrency override")
	}
}

func TestMailConfigured(t *testing.T) {
	cfg := Config{}
	if cfg.MailConfigured() {
		t.Fatalf("expected unconfigured mail")
	}
	cfg = Config{MailgunAPIKey: "key", MailgunDomain: "mg.example", MailFrom: "rides@example.com"}
	if !cfg.MailConfigured() {
		t.Fatalf("expected configured mail")
	}
}
