package bootstrap

import (
	"context"
	"testing"
	"time"

	"gfwpro-workflow/internal/runs"
	"gfwpro-workflow/internal/shared/config"
	localstore "gfwpro-workflow/internal/shared/storage/object/local"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		BaseURL:         "https://api.example.test/v1",
		APIToken:        "token",
		UserEmail:       "me@example.com",
		PollInterval:    30 * time.Second,
		PollMaxAttempts: 12,
		MaxRedirects:    5,
		HTTPTimeout:     time.Minute,
		OutputDir:       t.TempDir(),
		LocalStoreDir:   t.TempDir(),
		ObjectStoreType: "local",
		Env:             "dev",
		AlertStartDate:  "2024-01-01",
		GHGYield:        0.5,
	}
}

func TestBuildWiresRunnerWithMemoryLedger(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t), Options{RequireAPI: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if app.Runner == nil || app.Client == nil {
		t.Fatalf("runner not wired")
	}
	if _, ok := app.Runs.(*runs.MemoryRepo); !ok {
		t.Fatalf("runs = %T, want memory repo", app.Runs)
	}
	if _, ok := app.Artifacts.(*localstore.Store); !ok {
		t.Fatalf("artifacts = %T, want local store", app.Artifacts)
	}
	if app.Queue != nil {
		t.Fatalf("queue should be nil without GFW_SQS_QUEUE_URL")
	}
}

func TestBuildRequiresTokenForAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIToken = ""
	if _, err := Build(context.Background(), cfg, Options{RequireAPI: true}); err == nil {
		t.Fatalf("expected missing token error")
	}
	app, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Build without API: %v", err)
	}
	if app.Runner != nil {
		t.Fatalf("runner should not be wired without RequireAPI")
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	s := PayloadSettings(cfg)
	if s.UserEmail != "me@example.com" || s.AlertStartDate != "2024-01-01" || s.GHGYield != 0.5 {
		t.Fatalf("settings = %+v", s)
	}
	p := PollOptions(cfg)
	if p.Interval != 30*time.Second || p.MaxAttempts != 12 {
		t.Fatalf("poll = %+v", p)
	}
}
