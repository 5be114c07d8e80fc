package db

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"strings"
	"testing"

	"gfwpro-workflow/internal/shared/telemetry"
)

func TestRunMigrationsSkipsDisabledLedger(t *testing.T) {
	if err := RunMigrations(context.Background(), nil); err != nil {
		t.Fatalf("RunMigrations(nil) = %v", err)
	}
}

func TestMigrationStatusRequiresDatabase(t *testing.T) {
	if err := MigrationStatus(context.Background(), nil); err == nil {
		t.Fatalf("expected error without a database")
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil || len(names) == 0 {
		t.Fatalf("embedded migrations = %v, %v", names, err)
	}
	raw, err := migrationFiles.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read %s: %v", names[0], err)
	}
	if !strings.Contains(string(raw), "-- +goose Up") {
		t.Fatalf("%s lacks a goose Up annotation", names[0])
	}
}

func TestGooseLoggerWritesThroughTelemetry(t *testing.T) {
	var buf bytes.Buffer
	telemetry.SetOutput(&buf)
	t.Cleanup(func() { telemetry.SetOutput(os.Stdout) })

	gooseLogger{}.Printf("OK   %s\n", "00001_workflow_runs.sql")
	out := buf.String()
	if !strings.Contains(out, `"msg":"db.migrate"`) || !strings.Contains(out, "00001_workflow_runs.sql") {
		t.Fatalf("log = %s", out)
	}
}
