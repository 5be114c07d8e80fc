package workflow

import (
	"context"
	"errors"
	"time"

	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/shared/config"
	"gfwpro-workflow/internal/shared/metrics"
	"gfwpro-workflow/internal/shared/telemetry"
)

// StatusAPI fetches the current analysis status of a list.
type StatusAPI interface {
	Status(ctx context.Context, listID, analysisID string) (gfw.StatusSnapshot, error)
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollOptions bounds a poll loop.
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollOptions is the plain poller: 10s between up to 360 requests.
func DefaultPollOptions() PollOptions {
	return PollOptions{Interval: config.DefaultPollInterval, MaxAttempts: config.DefaultPollMaxAttempts}
}

// HeavyPollOptions is for long analyses: 60s between up to 60 requests.
func HeavyPollOptions() PollOptions {
	return PollOptions{Interval: config.HeavyPollInterval, MaxAttempts: config.HeavyPollMaxAttempts}
}

func (o PollOptions) withDefaults() PollOptions {
	def := DefaultPollOptions()
	if o.Interval < 0 {
		o.Interval = def.Interval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	return o
}

// PollOutcome is how a poll loop ended.
type PollOutcome string

const (
	PollComplete PollOutcome = "complete"
	PollFailed   PollOutcome = "failed"
	// PollTimedOut means MaxAttempts requests were made without a terminal status.
	PollTimedOut PollOutcome = "timed_out"
	// PollInterrupted means ctx was cancelled; Snapshot holds the last known status.
	PollInterrupted PollOutcome = "interrupted"
)

// PollResult carries the last snapshot seen and the number of status requests made.
type PollResult struct {
	Outcome  PollOutcome
	Snapshot gfw.StatusSnapshot
	Attempts int
}

// StatusEvent is emitted when the raw status differs from the previous poll.
type StatusEvent struct {
	ListID     string
	AnalysisID string
	Attempt    int
	Previous   string
	Snapshot   gfw.StatusSnapshot
}

// Poller polls an analysis until it is terminal, times out or is cancelled.
type Poller struct {
	API      StatusAPI
	Sleep    Sleeper
	OnChange func(StatusEvent)
}

// Poll issues at most opts.MaxAttempts status requests, sleeping opts.Interval
// between non-terminal ones. Failed and timed-out analyses are outcomes, not
// errors; the error is non-nil only for status request failures.
func (p *Poller) Poll(ctx context.Context, listID, analysisID string, opts PollOptions) (PollResult, error) {
	if p.API == nil {
		return PollResult{}, errors.New("poller api is nil")
	}
	opts = opts.withDefaults()
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var res PollResult
	seen := false
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		snap, err := p.API.Status(ctx, listID, analysisID)
		res.Attempts = attempt
		metrics.IncPollAttempts()
		if err != nil {
			if ctx.Err() != nil {
				res.Outcome = PollInterrupted
				return res, nil
			}
			return res, err
		}

		if !seen || snap.Status != res.Snapshot.Status {
			p.notify(StatusEvent{
				ListID:     listID,
				AnalysisID: analysisID,
				Attempt:    attempt,
				Previous:   res.Snapshot.Status,
				Snapshot:   snap,
			})
		}
		seen = true
		res.Snapshot = snap

		switch snap.Class() {
		case gfw.ClassComplete:
			res.Outcome = PollComplete
			return res, nil
		case gfw.ClassFailed:
			res.Outcome = PollFailed
			return res, nil
		}

		if attempt == opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, opts.Interval); err != nil {
			res.Outcome = PollInterrupted
			return res, nil
		}
	}

	res.Outcome = PollTimedOut
	telemetry.Warn("workflow.poll.timed_out", map[string]any{
		"list_id":     listID,
		"analysis_id": analysisID,
		"attempts":    res.Attempts,
		"status":      res.Snapshot.Status,
	})
	return res, nil
}

func (p *Poller) notify(ev StatusEvent) {
	telemetry.Info("workflow.poll.status", map[string]any{
		"list_id":     ev.ListID,
		"analysis_id": ev.AnalysisID,
		"attempt":     ev.Attempt,
		"status":      ev.Snapshot.Status,
		"class":       string(ev.Snapshot.Class()),
	})
	if p.OnChange != nil {
		p.OnChange(ev)
	}
}
