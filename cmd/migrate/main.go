package main

// Apply or inspect the run ledger schema:
//   go run ./cmd/migrate
//   go run ./cmd/migrate -status

import (
	"context"
	"errors"
	"flag"
	"os"

	"gfwpro-workflow/internal/shared/config"
	"gfwpro-workflow/internal/shared/storage/db"
	"gfwpro-workflow/internal/shared/telemetry"
)

func main() {
	status := flag.Bool("status", false, "print applied migrations instead of migrating")
	flag.Parse()

	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := run(context.Background(), cfg.DatabaseURL, *status); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, statusOnly bool) error {
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	sqlDB, err := db.Connect(ctx, databaseURL, db.OptionsFromEnv(db.DefaultCLIOptions()))
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if statusOnly {
		return db.MigrationStatus(ctx, sqlDB)
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return err
	}
	telemetry.Info("migrate.done", nil)
	return nil
}
