package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/shared/telemetry"
)

// UploadAPI is the subset of the GFW Pro client the pipeline drives.
type UploadAPI interface {
	PrepareUpload(ctx context.Context, userEmail string) (gfw.UploadTicket, error)
	UploadFile(ctx context.Context, ticket gfw.UploadTicket, data []byte) error
	CreateList(ctx context.Context, in gfw.CreateListRequest) (gfw.Job, error)
	TriggerAnalysis(ctx context.Context, listID, analysisID string, payload any) error
}

// OutcomeKind tags how far a pipeline run got.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	// OutcomePartial means the list exists but the analysis was not triggered.
	OutcomePartial OutcomeKind = "partial"
	OutcomeFailed  OutcomeKind = "failed"
)

// Outcome is the structured result of Pipeline.Run. Job is populated as soon
// as the list exists, including on partial outcomes.
type Outcome struct {
	Kind     OutcomeKind
	Step     gfw.Step
	Ticket   gfw.UploadTicket
	ListName string
	Job      gfw.Job
	Err      error
}

// PipelineInput describes one upload-and-trigger run.
type PipelineInput struct {
	UserEmail      string
	CSV            []byte
	Commodity      string
	AnalysisID     string
	ListNamePrefix string
	Payload        any
	// RunID seeds the list name suffix. Empty means a fresh uuid.
	RunID string
}

// Pipeline sequences prepare, upload, create list and trigger. It keeps no
// per-run state, so one value may serve concurrent runs.
type Pipeline struct {
	API UploadAPI
	Now func() time.Time
	// OnStep is called after each step succeeds with the progress so far.
	OnStep func(step gfw.Step, progress Outcome)
}

const listNameTokenLen = 8

// ListName returns prefix_<unix seconds>_<token>, where token is the first
// eight alphanumerics of runID. Runs started in the same second by one
// process differ by token.
func ListName(prefix string, now time.Time, runID string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "list"
	}
	token := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, runID)
	if token == "" {
		return fmt.Sprintf("%s_%d", prefix, now.Unix())
	}
	return fmt.Sprintf("%s_%d_%s", prefix, now.Unix(), token[:min(len(token), listNameTokenLen)])
}

// Run executes the four steps in order. Failures in the first three steps are
// returned as errors with a Failed outcome; a trigger failure yields a Partial
// outcome carrying the list id and a nil error.
func (p *Pipeline) Run(ctx context.Context, in PipelineInput) (Outcome, error) {
	if p.API == nil {
		return Outcome{Kind: OutcomeFailed}, errors.New("pipeline api is nil")
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	var out Outcome

	ticket, err := p.API.PrepareUpload(ctx, in.UserEmail)
	if err != nil {
		return p.fail(out, gfw.StepPrepareUpload, gfw.ErrPrepareFailed, err)
	}
	out.Ticket = ticket
	p.stepDone(gfw.StepPrepareUpload, out)

	if err := p.API.UploadFile(ctx, ticket, in.CSV); err != nil {
		return p.fail(out, gfw.StepUploadFile, gfw.ErrUploadFailed, err)
	}
	p.stepDone(gfw.StepUploadFile, out)

	runID := in.RunID
	if strings.TrimSpace(runID) == "" {
		runID = uuid.NewString()
	}
	out.ListName = ListName(in.ListNamePrefix, now(), runID)
	job, err := p.API.CreateList(ctx, gfw.CreateListRequest{
		UploadID:    ticket.UploadID,
		ListName:    out.ListName,
		Commodity:   in.Commodity,
		AnalysisIDs: in.AnalysisID,
	})
	if err != nil {
		return p.fail(out, gfw.StepCreateList, gfw.ErrJobCreationFailed, err)
	}
	out.Job = job
	p.stepDone(gfw.StepCreateList, out)

	return p.trigger(ctx, out, in.AnalysisID, in.Payload), nil
}

// Retrigger re-runs only the trigger step against an existing list.
func (p *Pipeline) Retrigger(ctx context.Context, job gfw.Job, analysisID string, payload any) Outcome {
	if p.API == nil {
		return Outcome{
			Kind: OutcomePartial,
			Step: gfw.StepTriggerAnalysis,
			Job:  job,
			Err:  gfw.NewStepError(gfw.StepTriggerAnalysis, gfw.ErrTriggerFailed, errors.New("pipeline api is nil")),
		}
	}
	return p.trigger(ctx, Outcome{Job: job}, analysisID, payload)
}

func (p *Pipeline) trigger(ctx context.Context, out Outcome, analysisID string, payload any) Outcome {
	out.Step = gfw.StepTriggerAnalysis
	if err := p.API.TriggerAnalysis(ctx, out.Job.ListID, analysisID, payload); err != nil {
		if !errors.Is(err, gfw.ErrTriggerFailed) {
			err = gfw.NewStepError(gfw.StepTriggerAnalysis, gfw.ErrTriggerFailed, err)
		}
		out.Kind = OutcomePartial
		out.Err = err
		telemetry.Warn("workflow.trigger_failed", map[string]any{
			"list_id":     out.Job.ListID,
			"analysis_id": analysisID,
			"error":       err.Error(),
		})
		return out
	}
	out.Kind = OutcomeSucceeded
	p.stepDone(gfw.StepTriggerAnalysis, out)
	return out
}

func (p *Pipeline) fail(out Outcome, step gfw.Step, kind, err error) (Outcome, error) {
	if !errors.Is(err, kind) {
		err = gfw.NewStepError(step, kind, err)
	}
	out.Kind = OutcomeFailed
	out.Step = step
	out.Err = err
	telemetry.Error("workflow.step_failed", map[string]any{
		"step":  string(step),
		"error": err.Error(),
	})
	return out, err
}

func (p *Pipeline) stepDone(step gfw.Step, out Outcome) {
	out.Step = step
	telemetry.Info("workflow.step_done", map[string]any{
		"step":    string(step),
		"list_id": out.Job.ListID,
	})
	if p.OnStep != nil {
		p.OnStep(step, out)
	}
}
