package scheduler

import (
	"time"

	"github.com/smallbiznis/ambassador/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled        bool
	RunInterval    time.Duration
	BatchSize      int
	JobTimeout     time.Duration
	HandlerTimeout time.Duration
	// EnabledJobs restricts the run to the named jobs. Empty runs all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		RunInterval:    5 * time.Second,
		BatchSize:      25,
		JobTimeout:     time.Minute,
		HandlerTimeout: 20 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = defaults.HandlerTimeout
	}
	if c.HandlerTimeout > c.JobTimeout {
		c.HandlerTimeout = c.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Outbox.Enabled,
		RunInterval: cfg.Outbox.RunInterval,
		BatchSize:   cfg.Outbox.BatchSize,
		// A job must never outlive the lease of the tasks it claimed.
		JobTimeout: cfg.Outbox.Lease,
	}.withDefaults()
}
