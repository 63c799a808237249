package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the
// config. Environment variables take precedence over YAML. All env vars
// use the PAPER_TIGER_ prefix, per spec.md §6 (which additionally names
// PAPER_TIGER_PORT, PAPER_TIGER_START, and the legacy
// PAPER_TIGER_AUTO_START literally).
func (c *Config) applyEnvOverrides() {
	setIfEnv(&c.Server.Host, "PAPER_TIGER_HOST")
	setIntIfEnv(&c.Server.Port, "PAPER_TIGER_PORT")
	setIfEnv(&c.Server.RoutePrefix, "PAPER_TIGER_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "PAPER_TIGER_ADMIN_METRICS_API_KEY")
	setBoolIfEnv(&c.Server.Start, "PAPER_TIGER_START")
	setBoolIfEnv(&c.Server.AutoStart, "PAPER_TIGER_AUTO_START")
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	setIfEnv(&c.Logging.Level, "PAPER_TIGER_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "PAPER_TIGER_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "PAPER_TIGER_ENVIRONMENT")

	setIfEnv(&c.Clock.Mode, "PAPER_TIGER_CLOCK_MODE")
	if v := os.Getenv("PAPER_TIGER_CLOCK_MULTIPLIER"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Clock.Multiplier = n
		}
	}

	setDurationIfEnv(&c.Billing.PollInterval, "PAPER_TIGER_BILLING_POLL_INTERVAL")
	setBoolIfEnv(&c.Billing.PollDisabled, "PAPER_TIGER_BILLING_POLL_DISABLED")

	setIntIfEnv(&c.Webhook.WorkerCount, "PAPER_TIGER_WEBHOOK_WORKERS")
	setDurationIfEnv(&c.Webhook.DeliveryTimeout, "PAPER_TIGER_WEBHOOK_TIMEOUT")

	setIfEnv(&c.Auth.Mode, "PAPER_TIGER_AUTH_MODE")
	// PAPER_TIGER_AUTH_KEY_* values are collected into Auth.Keys, the
	// same dynamic-env-var-scan pattern as the teacher's CEDROS_API_KEY_*.
	// The auth filter does not consult Auth.Keys; which keys it accepts
	// depends only on Auth.Mode.
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "PAPER_TIGER_AUTH_KEY_") {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 || parts[1] == "" {
			continue
		}
		c.Auth.Keys = append(c.Auth.Keys, parts[1])
	}
}

// setIfEnv sets a string pointer to the environment variable value if it
// exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setIntIfEnv sets an int pointer from an environment variable.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable,
// accepting Go-style duration strings ("5m", "120s").
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end
// with /. Examples: "api" -> "/api", "/api/" -> "/api".
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}
