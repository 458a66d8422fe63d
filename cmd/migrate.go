package cmd

import (
	"fmt"
	"log/slog"

	"github.com/vantigo/vantigo/db"
	"github.com/vantigo/vantigo/internal/config"
)

// runMigrate applies pending database migrations and exits. Useful for
// deploy pipelines that migrate before rolling the serve processes.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("migrations applied", "database", cfg.PostgresDBName)
	return nil
}
