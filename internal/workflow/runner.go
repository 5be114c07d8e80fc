package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/runs"
	"gfwpro-workflow/internal/shared/metrics"
	"gfwpro-workflow/internal/shared/telemetry"
)

// Runner executes whole workflow runs and records each one in the run ledger.
type Runner struct {
	Pipeline *Pipeline
	Poller   *Poller
	Fetcher  *Fetcher
	Runs     runs.Repo
	Now      func() time.Time
	// OnStatus, when set, receives every status change of every run.
	OnStatus func(StatusEvent)
}

// RunRequest is one end-to-end execution.
type RunRequest struct {
	RequestID      string
	UserEmail      string
	CSV            []byte
	Commodity      string
	AnalysisID     string
	ListNamePrefix string
	Payload        any
	Poll           PollOptions
	SkipDownload   bool
}

// Report summarizes a run. Outcome is zero for Resume; Poll and Artifact are
// nil when the run did not get that far.
type Report struct {
	Run      runs.Run
	Outcome  Outcome
	Poll     *PollResult
	Artifact *Artifact
}

// Execute runs the pipeline, then polls and downloads the result. A partial
// pipeline outcome returns a nil error with the ledger status trigger_failed.
func (r *Runner) Execute(ctx context.Context, req RunRequest) (Report, error) {
	start := time.Now()
	run := runs.Run{
		ID:         uuid.NewString(),
		RequestID:  req.RequestID,
		AnalysisID: req.AnalysisID,
		Status:     runs.StatusPreparing,
		CreatedAt:  r.now(),
	}
	r.create(ctx, run)
	metrics.IncRunsStarted()
	defer func() { metrics.ObserveRunDurationMs(metrics.SinceMillis(start)) }()

	pipeline := *r.Pipeline
	userStep := pipeline.OnStep
	pipeline.OnStep = func(step gfw.Step, progress Outcome) {
		run.UploadID = progress.Ticket.UploadID
		run.ListName = progress.ListName
		run.ListID = progress.Job.ListID
		switch step {
		case gfw.StepPrepareUpload:
			run.Status = runs.StatusUploading
		case gfw.StepUploadFile:
			run.Status = runs.StatusCreating
		case gfw.StepCreateList:
			run.Status = runs.StatusTriggering
		case gfw.StepTriggerAnalysis:
			run.Status = runs.StatusPolling
		}
		r.save(ctx, run)
		if userStep != nil {
			userStep(step, progress)
		}
	}

	report := Report{}
	outcome, err := pipeline.Run(ctx, PipelineInput{
		UserEmail:      req.UserEmail,
		CSV:            req.CSV,
		Commodity:      req.Commodity,
		AnalysisID:     req.AnalysisID,
		ListNamePrefix: req.ListNamePrefix,
		Payload:        req.Payload,
		RunID:          run.ID,
	})
	report.Outcome = outcome
	switch {
	case err != nil:
		run.Status = runs.StatusError
		run.Error = err.Error()
		r.save(ctx, run)
		metrics.IncRunsFailed()
		report.Run = run
		return report, err
	case outcome.Kind == OutcomePartial:
		run.ListID = outcome.Job.ListID
		run.Status = runs.StatusTriggerFailed
		run.Error = outcome.Err.Error()
		r.save(ctx, run)
		metrics.IncRunsPartial()
		report.Run = run
		return report, nil
	}

	err = r.pollAndFetch(ctx, &run, &report, req.Poll, req.SkipDownload)
	report.Run = run
	return report, err
}

// Resume polls an existing list and downloads its result, reusing the latest
// ledger entry for the list when there is one.
func (r *Runner) Resume(ctx context.Context, listID, analysisID string, opts PollOptions, skipDownload bool) (Report, error) {
	start := time.Now()
	defer func() { metrics.ObserveRunDurationMs(metrics.SinceMillis(start)) }()

	run, err := r.latest(ctx, listID, analysisID)
	if err != nil {
		run = runs.Run{
			ID:         uuid.NewString(),
			AnalysisID: analysisID,
			ListID:     listID,
			Status:     runs.StatusPolling,
			CreatedAt:  r.now(),
		}
		r.create(ctx, run)
	} else {
		run.Status = runs.StatusPolling
		run.Error = ""
		r.save(ctx, run)
	}

	report := Report{}
	err = r.pollAndFetch(ctx, &run, &report, opts, skipDownload)
	report.Run = run
	return report, err
}

// Retrigger re-sends the trigger for an existing list. The returned outcome is
// Partial when the trigger failed again.
func (r *Runner) Retrigger(ctx context.Context, listID, analysisID string, payload any) (Report, error) {
	run, err := r.latest(ctx, listID, analysisID)
	if err != nil {
		run = runs.Run{
			ID:         uuid.NewString(),
			AnalysisID: analysisID,
			ListID:     listID,
			Status:     runs.StatusTriggering,
			CreatedAt:  r.now(),
		}
		r.create(ctx, run)
	}

	outcome := r.Pipeline.Retrigger(ctx, gfw.Job{ListID: listID}, analysisID, payload)
	if outcome.Kind == OutcomePartial {
		run.Status = runs.StatusTriggerFailed
		run.Error = outcome.Err.Error()
	} else {
		run.Status = runs.StatusPolling
		run.Error = ""
	}
	r.save(ctx, run)
	return Report{Run: run, Outcome: outcome}, nil
}

func (r *Runner) pollAndFetch(ctx context.Context, run *runs.Run, report *Report, opts PollOptions, skipDownload bool) error {
	poller := *r.Poller
	userChange := poller.OnChange
	poller.OnChange = func(ev StatusEvent) {
		run.RemoteState = ev.Snapshot.Status
		run.Attempts = ev.Attempt
		r.save(ctx, *run)
		if userChange != nil {
			userChange(ev)
		}
		if r.OnStatus != nil {
			r.OnStatus(ev)
		}
	}

	res, err := poller.Poll(ctx, run.ListID, run.AnalysisID, opts)
	report.Poll = &res
	run.Attempts = res.Attempts
	run.RemoteState = res.Snapshot.Status
	run.ResultURL = res.Snapshot.ResultURL
	if err != nil {
		return r.finish(ctx, run, runs.StatusError, err)
	}

	switch res.Outcome {
	case PollInterrupted:
		return r.finish(ctx, run, runs.StatusInterrupted, nil)
	case PollTimedOut:
		return r.finish(ctx, run, runs.StatusTimedOut, nil)
	case PollFailed:
		return r.finish(ctx, run, runs.StatusFailed, nil)
	}

	if skipDownload {
		return r.finish(ctx, run, runs.StatusComplete, nil)
	}
	artifact, err := r.Fetcher.FetchSnapshot(ctx, res.Snapshot, run.ListID, run.AnalysisID)
	if err != nil {
		if errors.Is(err, gfw.ErrMissingResultURL) {
			return r.finish(ctx, run, runs.StatusMissingResult, err)
		}
		return r.finish(ctx, run, runs.StatusError, err)
	}
	report.Artifact = &artifact
	run.ArtifactKey = artifact.Key
	return r.finish(ctx, run, runs.StatusDownloaded, nil)
}

func (r *Runner) finish(ctx context.Context, run *runs.Run, status string, err error) error {
	run.Status = status
	if err != nil {
		run.Error = err.Error()
	}
	r.save(ctx, *run)

	switch status {
	case runs.StatusDownloaded, runs.StatusComplete:
		metrics.IncRunsCompleted()
	case runs.StatusInterrupted, runs.StatusTimedOut:
	default:
		metrics.IncRunsFailed()
	}
	telemetry.Info("workflow.run.finished", map[string]any{
		"run_id":      run.ID,
		"list_id":     run.ListID,
		"analysis_id": run.AnalysisID,
		"status":      status,
		"attempts":    run.Attempts,
	})
	return err
}

func (r *Runner) latest(ctx context.Context, listID, analysisID string) (runs.Run, error) {
	if r.Runs == nil {
		return runs.Run{}, runs.ErrNotFound
	}
	return r.Runs.GetLatestByListID(context.WithoutCancel(ctx), listID, analysisID)
}

// Ledger writes outlive cancellation so an interrupted run is still recorded.
func (r *Runner) create(ctx context.Context, run runs.Run) {
	if r.Runs == nil {
		return
	}
	if err := r.Runs.Create(context.WithoutCancel(ctx), run); err != nil {
		telemetry.Warn("workflow.ledger.create_failed", map[string]any{"run_id": run.ID, "error": err.Error()})
	}
}

func (r *Runner) save(ctx context.Context, run runs.Run) {
	if r.Runs == nil {
		return
	}
	if err := r.Runs.Update(context.WithoutCancel(ctx), run); err != nil {
		telemetry.Warn("workflow.ledger.update_failed", map[string]any{"run_id": run.ID, "error": err.Error()})
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
