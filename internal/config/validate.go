package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Provider credentials
	if c.Storage.BaseURL == "" {
		errs = append(errs, "STORAGE_BASE_URL is required")
	}
	if c.Storage.ServiceKey == "" {
		errs = append(errs, "STORAGE_SERVICE_KEY is required")
	}
	if c.STT.APIKey == "" {
		errs = append(errs, "STT_API_KEY is required")
	}
	if c.Extract.APIKey == "" {
		errs = append(errs, "EXTRACT_API_KEY is required")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Canonical timezone must resolve; relative dates depend on it
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("PIPELINE_TIMEZONE %q is not a valid IANA zone", c.Pipeline.Timezone))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	if c.RateLimit.Enabled && c.RateLimit.MaxReqs < 1 {
		errs = append(errs, "RATELIMIT_MAX_REQS must be at least 1 when rate limiting is enabled")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}
