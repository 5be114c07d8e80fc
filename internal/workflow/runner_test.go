package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/runs"
	"gfwpro-workflow/internal/shared/storage/object/local"
)

type runnerFixture struct {
	runner   *Runner
	upload   *fakeUpload
	status   *scriptedStatus
	download *fakeDownload
	repo     *runs.MemoryRepo
	dir      string
}

func newRunnerFixture(t *testing.T, statuses ...string) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		upload:   &fakeUpload{},
		status:   statusScript(statuses...),
		download: &fakeDownload{body: []byte("PK\x03\x04result")},
		repo:     runs.NewMemoryRepo(),
		dir:      t.TempDir(),
	}
	f.runner = &Runner{
		Pipeline: &Pipeline{API: f.upload, Now: fixedNow},
		Poller:   &Poller{API: f.status, Sleep: (&sleepRecorder{}).Sleep},
		Fetcher:  &Fetcher{API: f.download, Store: local.New(f.dir)},
		Runs:     f.repo,
	}
	return f
}

func (f *runnerFixture) request() RunRequest {
	return RunRequest{
		RequestID:      "req-1",
		UserEmail:      "me@example.com",
		CSV:            []byte("id\n1\n"),
		Commodity:      "Cocoa Generic",
		AnalysisID:     "FCD",
		ListNamePrefix: "client_demo",
		Poll:           PollOptions{MaxAttempts: 5},
	}
}

func TestExecuteDownloadsArtifact(t *testing.T) {
	f := newRunnerFixture(t, "pending", "complete")
	f.status.statuses[1].ResultURL = "https://files/r.zip"
	var seen []string
	f.runner.OnStatus = func(ev StatusEvent) { seen = append(seen, ev.Snapshot.Status) }

	report, err := f.runner.Execute(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Run.Status != runs.StatusDownloaded || report.Run.ListID != "4217" || report.Run.ArtifactKey != "4217_FCD.zip" {
		t.Fatalf("run = %+v", report.Run)
	}
	if report.Poll == nil || report.Poll.Attempts != 2 || report.Artifact == nil {
		t.Fatalf("report = %+v", report)
	}
	if len(seen) != 2 {
		t.Fatalf("status events = %v", seen)
	}
	got, err := os.ReadFile(filepath.Join(f.dir, "4217_FCD.zip"))
	if err != nil || string(got) != "PK\x03\x04result" {
		t.Fatalf("artifact = %q, %v", got, err)
	}

	stored, err := f.repo.GetByID(context.Background(), report.Run.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if stored.Status != runs.StatusDownloaded || stored.ListName != "client_demo_1714564800_"+strings.ReplaceAll(report.Run.ID, "-", "")[:8] || stored.Attempts != 2 {
		t.Fatalf("ledger entry = %+v", stored)
	}
}

func TestExecuteTriggerFailureRecordsListID(t *testing.T) {
	f := newRunnerFixture(t, "complete")
	f.upload.triggerErr = errors.New("http status 500")

	report, err := f.runner.Execute(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Outcome.Kind != OutcomePartial || report.Run.Status != runs.StatusTriggerFailed {
		t.Fatalf("report = %+v", report)
	}
	if f.status.Calls() != 0 {
		t.Fatalf("poller ran after trigger failure")
	}
	stored, _ := f.repo.GetLatestByListID(context.Background(), "4217", "FCD")
	if stored.ID != report.Run.ID || stored.Status != runs.StatusTriggerFailed {
		t.Fatalf("ledger entry = %+v", stored)
	}
}

func TestExecuteMissingResultURL(t *testing.T) {
	f := newRunnerFixture(t, "COMPLETED")
	report, err := f.runner.Execute(context.Background(), f.request())
	if !errors.Is(err, gfw.ErrMissingResultURL) {
		t.Fatalf("err = %v, want ErrMissingResultURL", err)
	}
	if report.Run.Status != runs.StatusMissingResult || f.download.calls != 0 {
		t.Fatalf("run = %+v downloads=%d", report.Run, f.download.calls)
	}
}

func TestExecutePollOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{name: "failed", statuses: []string{"pending", "FAILED"}, want: runs.StatusFailed},
		{name: "timed out", statuses: []string{"pending"}, want: runs.StatusTimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRunnerFixture(t, tt.statuses...)
			report, err := f.runner.Execute(context.Background(), f.request())
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if report.Run.Status != tt.want {
				t.Fatalf("status = %s, want %s", report.Run.Status, tt.want)
			}
			if f.download.calls != 0 {
				t.Fatalf("downloaded on %s", tt.name)
			}
		})
	}
}

func TestExecuteInterruptedStillRecorded(t *testing.T) {
	f := newRunnerFixture(t, "pending")
	ctx, cancel := context.WithCancel(context.Background())
	f.runner.Poller.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	report, err := f.runner.Execute(ctx, f.request())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Run.Status != runs.StatusInterrupted {
		t.Fatalf("status = %s", report.Run.Status)
	}
	stored, _ := f.repo.GetByID(context.Background(), report.Run.ID)
	if stored.Status != runs.StatusInterrupted || stored.RemoteState != "pending" {
		t.Fatalf("ledger entry = %+v", stored)
	}
}

func TestExecutePrepareFailure(t *testing.T) {
	f := newRunnerFixture(t, "complete")
	f.upload.prepareErr = errors.New("403")
	report, err := f.runner.Execute(context.Background(), f.request())
	if !errors.Is(err, gfw.ErrPrepareFailed) {
		t.Fatalf("err = %v", err)
	}
	if report.Run.Status != runs.StatusError || report.Run.ListID != "" {
		t.Fatalf("run = %+v", report.Run)
	}
}

func TestResumeReusesLedgerEntry(t *testing.T) {
	f := newRunnerFixture(t, "complete")
	f.status.statuses[0].ResultURL = "https://files/r.zip"
	seed := runs.Run{ID: "prior", AnalysisID: "FCD", ListID: "4217", Status: runs.StatusTimedOut, CreatedAt: fixedNow()}
	if err := f.repo.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := f.runner.Resume(context.Background(), "4217", "FCD", DefaultPollOptions(), false)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if report.Run.ID != "prior" || report.Run.Status != runs.StatusDownloaded {
		t.Fatalf("run = %+v", report.Run)
	}
}

func TestRetriggerWithoutLedgerEntry(t *testing.T) {
	f := newRunnerFixture(t)
	f.runner.Runs = nil
	report, err := f.runner.Retrigger(context.Background(), "88", "GHG", map[string]any{"yield": 0.5})
	if err != nil {
		t.Fatalf("Retrigger: %v", err)
	}
	if report.Outcome.Kind != OutcomeSucceeded || report.Run.Status != runs.StatusPolling || report.Run.ListID != "88" {
		t.Fatalf("report = %+v", report)
	}
}
