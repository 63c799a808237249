package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file (path may be empty to skip
// straight to defaults+env) and applies environment overrides, the same
// defaultConfig -> parseFile -> applyEnvOverrides -> finalize pipeline as
// the teacher's internal/config/config.go.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults for a mock that
// should run correctly with zero configuration.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         0,
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
			Start:        true,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Service:     "paper-tiger",
			Environment: "development",
		},
		Clock: ClockConfig{
			Mode:       "real",
			Multiplier: 1,
		},
		Billing: BillingConfig{
			PollInterval: Duration{Duration: 1 * time.Second},
		},
		Webhook: WebhookConfig{
			WorkerCount:     4,
			DeliveryTimeout: Duration{Duration: 5 * time.Second},
		},
		Auth: AuthConfig{
			Mode: "lenient",
		},
		Admin: AdminConfig{
			RateLimitRequests: 60,
			RateLimitWindow:   Duration{Duration: 1 * time.Minute},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file on top of the
// already-populated defaults.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
