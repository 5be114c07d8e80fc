package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path"
	"strings"

	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/queue"
	"gfwpro-workflow/internal/runs"
	"gfwpro-workflow/internal/shared/config"
	"gfwpro-workflow/internal/shared/storage/db"
	"gfwpro-workflow/internal/shared/storage/object"
	localstore "gfwpro-workflow/internal/shared/storage/object/local"
	s3store "gfwpro-workflow/internal/shared/storage/object/s3"
	"gfwpro-workflow/internal/shared/telemetry"
	"gfwpro-workflow/internal/workflow"
)

const resultsPrefix = "results"

// App holds the dependencies shared by the binaries.
type App struct {
	Config    config.Config
	DB        *sql.DB
	Inputs    object.ObjectStore
	Artifacts object.ObjectStore
	Queue     queue.Client
	Runs      runs.Repo
	Client    *gfw.Client
	Runner    *workflow.Runner
}

// Options selects which parts Build wires.
type Options struct {
	// RequireAPI builds the GFW Pro client and runner; the token must be set.
	RequireAPI bool
	DBOptions  db.Options
}

// Build prepares shared dependencies. Ledger and queue are optional: without
// DATABASE_URL runs are kept in memory, without GFW_SQS_QUEUE_URL Queue is nil.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if opts.RequireAPI {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg, opts.DBOptions)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.Runs = &runs.PGRepo{DB: sqlDB}
	} else {
		app.Runs = runs.NewMemoryRepo()
	}

	if app.Inputs, app.Artifacts, err = buildStores(ctx, cfg); err != nil {
		return nil, err
	}

	if cfg.SQSQueueURL != "" {
		q, err := queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		app.Queue = q
	}

	if opts.RequireAPI {
		client, err := gfw.NewClient(gfw.Options{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIToken,
			HTTPClient:   &http.Client{Timeout: cfg.HTTPTimeout},
			MaxRedirects: cfg.MaxRedirects,
		})
		if err != nil {
			return nil, err
		}
		app.Client = client
		app.Runner = &workflow.Runner{
			Pipeline: &workflow.Pipeline{API: client},
			Poller:   &workflow.Poller{API: client},
			Fetcher:  &workflow.Fetcher{API: client, Store: app.Artifacts},
			Runs:     app.Runs,
		}
	}
	return app, nil
}

// Close releases the database handle.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// PayloadSettings returns the trigger payload knobs from configuration.
func PayloadSettings(cfg config.Config) gfw.PayloadSettings {
	return gfw.PayloadSettings{
		UserEmail:       cfg.UserEmail,
		AlertStartDate:  cfg.AlertStartDate,
		AlertEndDate:    cfg.AlertEndDate,
		GHGYield:        cfg.GHGYield,
		GHGBaselineYear: cfg.GHGBaselineYear,
	}
}

// PollOptions returns the configured poll bounds.
func PollOptions(cfg config.Config) workflow.PollOptions {
	return workflow.PollOptions{Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts}
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		telemetry.Info("bootstrap.ledger", map[string]any{"backend": "memory"})
		return nil, nil
	}
	if opts == (db.Options{}) {
		opts = db.DefaultServiceOptions()
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(opts))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.ledger_fallback", map[string]any{"backend": "memory", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	telemetry.Info("bootstrap.ledger", map[string]any{"backend": "postgres"})
	return sqlDB, nil
}

// buildStores returns the CSV input store and the artifact store. Locally,
// artifacts land in OUTPUT_DIR as {listId}_{analysisId}.zip.
func buildStores(ctx context.Context, cfg config.Config) (object.ObjectStore, object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		opts := s3store.Options{Region: cfg.AWSRegion, Bucket: cfg.S3Bucket, Prefix: cfg.S3Prefix, KMSKeyID: cfg.SSEKMSKeyID}
		inputs, err := s3store.New(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		opts.Prefix = path.Join(cfg.S3Prefix, resultsPrefix)
		artifacts, err := s3store.New(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		return inputs, artifacts, nil
	default:
		return localstore.New(cfg.LocalStoreDir), localstore.New(cfg.OutputDir), nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
