package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()
	defer clearEnv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error with defaults, got: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Clock.Mode != "real" {
		t.Errorf("expected default clock mode real, got %s", cfg.Clock.Mode)
	}
	if cfg.Billing.PollInterval.Duration != 1*time.Second {
		t.Errorf("expected default billing poll interval 1s, got %v", cfg.Billing.PollInterval.Duration)
	}
	if cfg.Webhook.WorkerCount != 4 {
		t.Errorf("expected default webhook worker count 4, got %d", cfg.Webhook.WorkerCount)
	}
	if cfg.Auth.Mode != "lenient" {
		t.Errorf("expected default auth mode lenient, got %s", cfg.Auth.Mode)
	}
}

func TestLoadConfig_InvalidClockMode(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_CLOCK_MODE", "bogus")
	defer clearEnv()

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for invalid clock.mode, got nil")
	}
	if !contains(err.Error(), "clock.mode") {
		t.Errorf("expected error mentioning clock.mode, got: %v", err)
	}
}

func TestLoadConfig_InvalidAuthMode(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_AUTH_MODE", "nonsense")
	defer clearEnv()

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for invalid auth.mode, got nil")
	}
	if !contains(err.Error(), "auth.mode") {
		t.Errorf("expected error mentioning auth.mode, got: %v", err)
	}
}

func TestLoadConfig_EnvOverridesApply(t *testing.T) {
	clearEnv()
	os.Setenv("PAPER_TIGER_PORT", "9000")
	os.Setenv("PAPER_TIGER_CLOCK_MODE", "manual")
	os.Setenv("PAPER_TIGER_START", "false")
	defer clearEnv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Clock.Mode != "manual" {
		t.Errorf("expected clock mode manual, got %s", cfg.Clock.Mode)
	}
	if cfg.Server.Start {
		t.Error("expected Server.Start to be false")
	}
}

func TestResolvePort_EnvWins(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 1234
	env := map[string]string{"PAPER_TIGER_PORT": "9999"}

	port, err := ResolvePort(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port != 9999 {
		t.Errorf("expected env override to win with port 9999, got %d", port)
	}
}

func TestResolvePort_ConfiguredWhenNoEnv(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 4242

	port, err := ResolvePort(cfg, func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port != 4242 {
		t.Errorf("expected configured port 4242, got %d", port)
	}
}

func TestResolvePort_EphemeralWhenUnset(t *testing.T) {
	cfg := defaultConfig()

	port, err := ResolvePort(cfg, func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port < ephemeralPortLow || port >= ephemeralPortHigh {
		t.Errorf("expected port in [%d, %d), got %d", ephemeralPortLow, ephemeralPortHigh, port)
	}
}

func TestNormalizeRoutePrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{"  /api/  ", "/api"},
		{"paper-tiger", "/paper-tiger"},
		{"/v1/paper-tiger", "/v1/paper-tiger"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := normalizeRoutePrefix(tt.input)
			if got != tt.want {
				t.Errorf("normalizeRoutePrefix(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func clearEnv() {
	envVars := []string{
		"PAPER_TIGER_HOST", "PAPER_TIGER_PORT", "PAPER_TIGER_ROUTE_PREFIX",
		"PAPER_TIGER_ADMIN_METRICS_API_KEY", "PAPER_TIGER_START", "PAPER_TIGER_AUTO_START",
		"PAPER_TIGER_LOG_LEVEL", "PAPER_TIGER_LOG_FORMAT", "PAPER_TIGER_ENVIRONMENT",
		"PAPER_TIGER_CLOCK_MODE", "PAPER_TIGER_CLOCK_MULTIPLIER",
		"PAPER_TIGER_BILLING_POLL_INTERVAL", "PAPER_TIGER_BILLING_POLL_DISABLED",
		"PAPER_TIGER_WEBHOOK_WORKERS", "PAPER_TIGER_WEBHOOK_TIMEOUT",
		"PAPER_TIGER_AUTH_MODE",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}
}

func contains(s, substr string) bool {
	if substr == "" {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
