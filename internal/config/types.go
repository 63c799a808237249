package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding,
// unchanged from the teacher's internal/config/types.go.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or
// numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits
// human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config aggregates process configuration from file and environment
// overrides, trimmed to this domain from the teacher's much larger
// Config tree (paywall/coupons/x402/solana sub-configs dropped — see
// DESIGN.md).
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Clock   ClockConfig   `yaml:"clock"`
	Billing BillingConfig `yaml:"billing"`
	Webhook WebhookConfig `yaml:"webhook"`
	Auth    AuthConfig    `yaml:"auth"`
	Admin   AdminConfig   `yaml:"admin"`
}

// ServerConfig holds HTTP server configuration, including the port
// precedence inputs of spec.md §4.12.
type ServerConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"` // 0 means "pick an ephemeral port"
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"`
	// Start mirrors PAPER_TIGER_START: whether the binary should bind and
	// serve at all (false lets a test harness import the module and drive
	// it purely in-process). AutoStart is the legacy spelling kept for
	// compatibility, per spec.md §6.
	Start     bool `yaml:"start"`
	AutoStart bool `yaml:"auto_start"`
}

// LoggingConfig configures the process-wide zerolog logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Service     string `yaml:"service"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ClockConfig seeds the virtual clock's starting mode, per spec.md §4.1.
type ClockConfig struct {
	Mode       string `yaml:"mode"` // real | accelerated | manual
	Multiplier int64  `yaml:"multiplier"`
}

// BillingConfig configures the billing engine's real-time poll, per
// spec.md §4.11. Only PollDisabled reaches the engine; PollInterval is
// loaded and validated but the engine always polls on a fixed 1-second
// tick.
type BillingConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	PollDisabled bool     `yaml:"poll_disabled"`
}

// WebhookConfig configures the delivery pipeline's worker pool, per
// spec.md §4.9/§5. Only WorkerCount reaches the pipeline; DeliveryTimeout
// is loaded but the pipeline always uses a fixed 5-second per-attempt
// timeout.
type WebhookConfig struct {
	WorkerCount     int      `yaml:"worker_count"`
	DeliveryTimeout Duration `yaml:"delivery_timeout"`
}

// AuthConfig configures the auth filter of spec.md §4.5.
type AuthConfig struct {
	// Mode is "lenient" (any non-empty Bearer or Basic key is accepted)
	// or "strict" (the key must also start with sk_test_ or sk_live_).
	// In both modes a missing or malformed Authorization header is
	// rejected with 401, per spec.md §6's "Missing -> 401" baseline.
	Mode string `yaml:"mode"`
	Keys []string `yaml:"keys"`
}

// AdminConfig configures the non-emulated /_config/* surface, including
// the admin-only rate limiter of SPEC_FULL.md §2.2.
type AdminConfig struct {
	RateLimitRequests int      `yaml:"rate_limit_requests"`
	RateLimitWindow   Duration `yaml:"rate_limit_window"`
}
