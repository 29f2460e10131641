package config

import "github.com/gavelbot/gavel/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "gavel.db"

	// Queue workers: 0 = no background workers, negative = invalid
	if c.Queue.Workers < 0 {
		return errors.Newf("queue.workers must be >= 0, got %d", c.Queue.Workers)
	}

	// Queue poll interval: 0 = use default, negative = invalid
	if c.Queue.PollIntervalSeconds < 0 {
		return errors.Newf("queue.poll_interval_seconds must be >= 0, got %d", c.Queue.PollIntervalSeconds)
	}
	if c.Queue.ClaimBatch < 0 {
		return errors.Newf("queue.claim_batch must be >= 0, got %d", c.Queue.ClaimBatch)
	}
	if c.Queue.StallTimeoutMinutes < 0 {
		return errors.Newf("queue.stall_timeout_minutes must be >= 0, got %d", c.Queue.StallTimeoutMinutes)
	}
	if c.Queue.RatePerSecond < 0 {
		return errors.Newf("queue.rate_per_second must be >= 0, got %f", c.Queue.RatePerSecond)
	}
	if c.Queue.RateBurst < 0 {
		return errors.Newf("queue.rate_burst must be >= 0, got %d", c.Queue.RateBurst)
	}

	// The vote platform endpoints must be set; defaults cover both
	if c.Snapshot.HubURL == "" {
		return errors.New("snapshot.hub_url cannot be empty")
	}
	if c.Snapshot.BaseURL == "" {
		return errors.New("snapshot.base_url cannot be empty")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Newf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	return nil
}
