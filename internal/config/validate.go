package config

import (
	"fmt"
	"net/url"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}

	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("server.rate_limit_per_minute must be > 0 (got %d)", c.Server.RateLimitPerMinute)
	}

	if err := c.RQC.validate(); err != nil {
		return fmt.Errorf("rqc: %w", err)
	}

	if err := c.Queue.validate(); err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	return nil
}

func (c *RQCConfig) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https (got %q)", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %v)", c.Timeout)
	}
	return nil
}

func (c *QueueConfig) validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be > 0 (got %d)", c.MaxAttempts)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry_interval must be > 0 (got %v)", c.RetryInterval)
	}
	if c.DrainParallelism <= 0 {
		return fmt.Errorf("drain_parallelism must be > 0 (got %d)", c.DrainParallelism)
	}
	if c.StuckAfter <= 0 {
		return fmt.Errorf("stuck_after must be > 0 (got %v)", c.StuckAfter)
	}
	return nil
}
