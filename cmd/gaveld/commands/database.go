package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/gavelbot/gavel/config"
	"github.com/gavelbot/gavel/db"
	"github.com/gavelbot/gavel/errors"
	"github.com/gavelbot/gavel/logger"
)

// loadConfig loads the gavel configuration, honoring the --config flag
// when set, and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.InheritedFlags().GetString("config")
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// openDatabase opens and migrates the database at the configured path.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	dbPath := cfg.GetDatabasePath()

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}
