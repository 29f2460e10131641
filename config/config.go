package config

import "fmt"

// Config represents the core gavel configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// QueueConfig configures the durable job queue workers
type QueueConfig struct {
	Workers             int     `mapstructure:"workers"`               // Number of concurrent job workers (default: 1)
	PollIntervalSeconds int     `mapstructure:"poll_interval_seconds"` // How often workers check for due jobs (default: 5)
	ClaimBatch          int     `mapstructure:"claim_batch"`           // Max jobs claimed per poll (default: 10)
	StallTimeoutMinutes int     `mapstructure:"stall_timeout_minutes"` // Running longer than this flags a stall (default: 10)
	RatePerSecond       float64 `mapstructure:"rate_per_second"`       // Job execution rate limit (default: 5)
	RateBurst           int     `mapstructure:"rate_burst"`            // Rate limiter burst (default: 10)
}

// TelegramConfig configures the chat platform client
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// SnapshotConfig configures the off-chain vote platform
type SnapshotConfig struct {
	HubURL  string `mapstructure:"hub_url"`  // GraphQL hub endpoint
	BaseURL string `mapstructure:"base_url"` // Public site, used to build proposal URLs
}

// LogConfig configures structured logging
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "gavel.db" // Fallback default
	}
	return c.Database.Path
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Queue: {Workers: %d}, Snapshot: %s}",
		c.Database.Path, c.Queue.Workers, c.Snapshot.HubURL)
}
