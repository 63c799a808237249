package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOverrides_ServerConfig(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_HOST", "127.0.0.1")
	os.Setenv("PAPER_TIGER_PORT", "8123")
	os.Setenv("PAPER_TIGER_ROUTE_PREFIX", "v1")
	os.Setenv("PAPER_TIGER_ADMIN_METRICS_API_KEY", "shh")
	os.Setenv("PAPER_TIGER_START", "false")
	os.Setenv("PAPER_TIGER_AUTO_START", "true")
	defer clearEnv()

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("expected port 8123, got %d", cfg.Server.Port)
	}
	if cfg.Server.RoutePrefix != "/v1" {
		t.Errorf("expected route prefix /v1, got %s", cfg.Server.RoutePrefix)
	}
	if cfg.Server.AdminMetricsAPIKey != "shh" {
		t.Errorf("expected admin metrics api key shh, got %s", cfg.Server.AdminMetricsAPIKey)
	}
	if cfg.Server.Start {
		t.Error("expected Start to be false")
	}
	if !cfg.Server.AutoStart {
		t.Error("expected AutoStart to be true")
	}
}

func TestEnvOverrides_LoggingConfig(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_LOG_LEVEL", "debug")
	os.Setenv("PAPER_TIGER_LOG_FORMAT", "console")
	os.Setenv("PAPER_TIGER_ENVIRONMENT", "staging")
	defer clearEnv()

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("expected log format console, got %s", cfg.Logging.Format)
	}
	if cfg.Logging.Environment != "staging" {
		t.Errorf("expected environment staging, got %s", cfg.Logging.Environment)
	}
}

func TestEnvOverrides_ClockConfig(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_CLOCK_MODE", "accelerated")
	os.Setenv("PAPER_TIGER_CLOCK_MULTIPLIER", "60")
	defer clearEnv()

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Clock.Mode != "accelerated" {
		t.Errorf("expected clock mode accelerated, got %s", cfg.Clock.Mode)
	}
	if cfg.Clock.Multiplier != 60 {
		t.Errorf("expected multiplier 60, got %d", cfg.Clock.Multiplier)
	}
}

func TestEnvOverrides_BillingConfig(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_BILLING_POLL_INTERVAL", "250ms")
	os.Setenv("PAPER_TIGER_BILLING_POLL_DISABLED", "true")
	defer clearEnv()

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Billing.PollInterval.Duration != 250*time.Millisecond {
		t.Errorf("expected poll interval 250ms, got %v", cfg.Billing.PollInterval.Duration)
	}
	if !cfg.Billing.PollDisabled {
		t.Error("expected PollDisabled to be true")
	}
}

func TestEnvOverrides_WebhookConfig(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_WEBHOOK_WORKERS", "8")
	os.Setenv("PAPER_TIGER_WEBHOOK_TIMEOUT", "10s")
	defer clearEnv()

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Webhook.WorkerCount != 8 {
		t.Errorf("expected worker count 8, got %d", cfg.Webhook.WorkerCount)
	}
	if cfg.Webhook.DeliveryTimeout.Duration != 10*time.Second {
		t.Errorf("expected delivery timeout 10s, got %v", cfg.Webhook.DeliveryTimeout.Duration)
	}
}

func TestEnvOverrides_AuthConfig(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_AUTH_MODE", "strict")
	os.Setenv("PAPER_TIGER_AUTH_KEY_1", "key_one")
	os.Setenv("PAPER_TIGER_AUTH_KEY_2", "key_two")
	defer func() {
		clearEnv()
		os.Unsetenv("PAPER_TIGER_AUTH_KEY_1")
		os.Unsetenv("PAPER_TIGER_AUTH_KEY_2")
	}()

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Auth.Mode != "strict" {
		t.Errorf("expected auth mode strict, got %s", cfg.Auth.Mode)
	}
	if len(cfg.Auth.Keys) != 2 {
		t.Fatalf("expected 2 auth keys, got %d: %v", len(cfg.Auth.Keys), cfg.Auth.Keys)
	}
	found := map[string]bool{}
	for _, k := range cfg.Auth.Keys {
		found[k] = true
	}
	if !found["key_one"] || !found["key_two"] {
		t.Errorf("expected both key_one and key_two present, got %v", cfg.Auth.Keys)
	}
}

func TestEnvOverrides_RoutePrefixNormalized(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_ROUTE_PREFIX", "api/")
	defer clearEnv()

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Server.RoutePrefix != "/api" {
		t.Errorf("expected normalized route prefix /api, got %s", cfg.Server.RoutePrefix)
	}
}
