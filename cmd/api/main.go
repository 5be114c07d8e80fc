package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"gfwpro-workflow/internal/bootstrap"
	"gfwpro-workflow/internal/services/health"
	"gfwpro-workflow/internal/shared/config"
	"gfwpro-workflow/internal/shared/server"
	"gfwpro-workflow/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := requireLedger(cfg); err != nil {
		telemetry.Error("api.config_invalid", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	app, err := bootstrap.Build(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		telemetry.Error("api.bootstrap_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer app.Close()

	r := server.NewRouter(server.RouterDeps{
		Config: cfg,
		Runs:   app.Runs,
		Health: health.NewService(app.DB),
	})

	addr := server.Addr(cfg.Port)
	telemetry.Info("api.started", map[string]any{"addr": addr, "env": cfg.Env})

	if err := r.Run(addr); err != nil {
		telemetry.Error("api.server_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

// requireLedger rejects a config without DATABASE_URL. The in-memory ledger
// is private to one process, so the API would never see another run.
func requireLedger(cfg config.Config) error {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required: the status API reads the shared run ledger")
	}
	return nil
}
