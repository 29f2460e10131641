package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/gavelbot/gavel/errors"
)

// UserConfigPath returns the path to the user config file in ~/.gavel/gavel.toml
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gavel", "gavel.toml")
}

// Save writes the configuration to path as TOML, rotating backups of
// any existing file first.
func Save(path string, c *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	if err := createBackup(path); err != nil {
		return err
	}

	content, err := toml.Marshal(tomlConfig(c))
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return errors.Wrapf(err, "writing config to %s", path)
	}
	return nil
}

// tomlConfig mirrors Config with toml tags matching the mapstructure
// keys, so a saved file round-trips through LoadFromFile.
func tomlConfig(c *Config) map[string]any {
	return map[string]any{
		"database": map[string]any{
			"path": c.Database.Path,
		},
		"queue": map[string]any{
			"workers":               c.Queue.Workers,
			"poll_interval_seconds": c.Queue.PollIntervalSeconds,
			"claim_batch":           c.Queue.ClaimBatch,
			"stall_timeout_minutes": c.Queue.StallTimeoutMinutes,
			"rate_per_second":       c.Queue.RatePerSecond,
			"rate_burst":            c.Queue.RateBurst,
		},
		"telegram": map[string]any{
			"token": c.Telegram.Token,
		},
		"snapshot": map[string]any{
			"hub_url":  c.Snapshot.HubURL,
			"base_url": c.Snapshot.BaseURL,
		},
		"log": map[string]any{
			"level": c.Log.Level,
		},
	}
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete oldest backup")
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, 0o644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}
