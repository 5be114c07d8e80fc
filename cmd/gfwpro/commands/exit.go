package commands

import (
	"errors"

	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/runs"
	"gfwpro-workflow/internal/workflow"
)

// Process exit codes.
const (
	ExitOK = 0
	// ExitFailure covers configuration, transport and download errors.
	ExitFailure = 1
	// ExitPartial means the list exists but the analysis was not triggered.
	ExitPartial = 2
	// ExitIncomplete means polling timed out or was interrupted.
	ExitIncomplete = 3
	// ExitServerSide means the analysis failed remotely or completed without a resultUrl.
	ExitServerSide = 4
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFailure
}

// reportError turns a finished run into the command's error value.
func reportError(report workflow.Report, err error) error {
	if err != nil {
		if errors.Is(err, gfw.ErrMissingResultURL) {
			return &exitError{code: ExitServerSide, err: err}
		}
		return &exitError{code: ExitFailure, err: err}
	}
	if report.Outcome.Kind == workflow.OutcomePartial {
		return &exitError{code: ExitPartial, err: report.Outcome.Err}
	}
	switch report.Run.Status {
	case runs.StatusFailed:
		return &exitError{code: ExitServerSide, err: errors.New("analysis failed: status " + report.Run.RemoteState)}
	case runs.StatusTimedOut:
		return &exitError{code: ExitIncomplete, err: errors.New("gave up polling: last status " + report.Run.RemoteState)}
	case runs.StatusInterrupted:
		return &exitError{code: ExitIncomplete, err: errors.New("interrupted: last status " + report.Run.RemoteState)}
	}
	return nil
}
