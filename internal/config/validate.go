package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that would break the pipeline at runtime.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Enabled {
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
		}
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required when DB_ENABLED=true")
		}
	}
	if c.Redis.Enabled && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "NATS_URL is required when NATS_ENABLED=true")
	}

	// LLM
	switch c.LLM.Provider {
	case "openai":
	case "anthropic":
		if c.LLM.APIKey == "" {
			errs = append(errs, "LLM_API_KEY is required for the anthropic provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("LLM_PROVIDER must be openai or anthropic, got %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, "LLM_MODEL is required")
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, "LLM_TIMEOUT must be positive")
	}

	// Pipeline
	if c.Pipeline.DedupPolicy != "first" && c.Pipeline.DedupPolicy != "last" {
		errs = append(errs, fmt.Sprintf("PIPELINE_DEDUP_POLICY must be first or last, got %q", c.Pipeline.DedupPolicy))
	}
	if c.Sources.Timeout <= 0 {
		errs = append(errs, "SOURCES_TIMEOUT must be positive")
	}
	if c.RateLimit.QueriesPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_QUERIES_PER_MINUTE must be positive, got %d", c.RateLimit.QueriesPerMinute))
	}

	// Auth: warn only
	if c.Auth.JWTSecret == "" {
		slog.Warn("AUTH_JWT_SECRET is empty, API has no authentication")
	} else if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, "AUTH_JWT_SECRET must be at least 32 characters")
	}

	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < c.LLM.Timeout {
		slog.Warn("SERVER_WRITE_TIMEOUT is shorter than LLM_TIMEOUT, slow answers will be cut off",
			"write_timeout", c.Server.WriteTimeout, "llm_timeout", c.LLM.Timeout)
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
