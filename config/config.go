package config

import (
	"fmt"
	"time"

	"github.com/finvue/resilience/logger"
	"github.com/finvue/resilience/ratelimit"
	"github.com/finvue/resilience/retry"
)

// Config is the root configuration for the resilience layer.
type Config struct {
	Logging logger.Config    `mapstructure:"logging"`
	Tiers   []ratelimit.Tier `mapstructure:"tiers"`
	Limiter LimiterConfig    `mapstructure:"limiter"`
	Retry   RetryConfig      `mapstructure:"retry"`
	Queue   QueueConfig      `mapstructure:"queue"`
}

// LimiterConfig tunes the bucket map lifecycle.
type LimiterConfig struct {
	// IdleTTL is how long an untouched bucket survives before eviction.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
	// SweepInterval is how often the eviction sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RetryConfig mirrors retry.Policy for file-based configuration.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=0"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	JitterRatio float64       `mapstructure:"jitter_ratio" validate:"gte=0,lte=1"`
}

// Policy converts the file form into a retry policy. Zero fields defer
// to the retry package's defaults.
func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		JitterRatio: c.JitterRatio,
	}
}

// QueueConfig configures offline queue persistence.
type QueueConfig struct {
	// Dir is the base directory for the file store. Empty keeps the
	// queue in memory.
	Dir string `mapstructure:"dir"`
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()
	if len(c.Tiers) == 0 {
		c.Tiers = ratelimit.DefaultTiers()
	}
	if c.Limiter.IdleTTL <= 0 {
		c.Limiter.IdleTTL = 10 * time.Minute
	}
	if c.Limiter.SweepInterval <= 0 {
		c.Limiter.SweepInterval = time.Minute
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 200 * time.Millisecond
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 10 * time.Second
	}
	if c.Retry.JitterRatio == 0 {
		c.Retry.JitterRatio = 0.2
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := ratelimit.ValidateTiers(c.Tiers); err != nil {
		return err
	}
	if c.Retry.JitterRatio < 0 || c.Retry.JitterRatio > 1 {
		return fmt.Errorf("retry.jitter_ratio must be between 0 and 1 (got: %g)", c.Retry.JitterRatio)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay must not be below retry.base_delay")
	}
	return nil
}
