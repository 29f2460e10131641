package config

import "github.com/spf13/viper"

// Directory permissions for ~/.gavel
const DefaultDirPermissions = 0o750

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "gavel.db")

	// Queue defaults
	v.SetDefault("queue.workers", 1)
	v.SetDefault("queue.poll_interval_seconds", 5)
	v.SetDefault("queue.claim_batch", 10)
	v.SetDefault("queue.stall_timeout_minutes", 10)
	v.SetDefault("queue.rate_per_second", 5.0)
	v.SetDefault("queue.rate_burst", 10)

	// Snapshot defaults
	v.SetDefault("snapshot.hub_url", "https://hub.snapshot.org/graphql")
	v.SetDefault("snapshot.base_url", "https://snapshot.org")

	// Log defaults
	v.SetDefault("log.level", "info")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Chat platform credentials
	v.BindEnv("telegram.token", "GAVEL_TELEGRAM_TOKEN")

	// Database path
	v.BindEnv("database.path", "GAVEL_DATABASE_PATH")
}
