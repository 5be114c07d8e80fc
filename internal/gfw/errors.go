package gfw

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedRedirect = errors.New("redirect response missing Location header")
	ErrExceededRedirects = errors.New("exceeded maximum redirects")
	ErrPrepareFailed     = errors.New("prepare upload failed")
	ErrUploadFailed      = errors.New("file upload failed")
	ErrJobCreationFailed = errors.New("list creation failed")
	ErrTriggerFailed     = errors.New("analysis trigger failed")
	ErrStatusFailed      = errors.New("status request failed")
	ErrMissingResultURL  = errors.New("analysis complete but resultUrl not provided")
	ErrDownloadFailed    = errors.New("result download failed")
)

// Step names the workflow call that produced an error.
type Step string

const (
	StepPrepareUpload   Step = "prepare_upload"
	StepUploadFile      Step = "upload_file"
	StepCreateList      Step = "create_list"
	StepTriggerAnalysis Step = "trigger_analysis"
	StepPollStatus      Step = "poll_status"
	StepDownloadResult  Step = "download_result"
)

// StepError ties a failure kind (one of the Err* sentinels) to the step that
// raised it and the underlying cause. errors.Is matches both Kind and Err.
type StepError struct {
	Step Step
	Kind error
	Err  error
}

func (e *StepError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Step))
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StepError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewStepError wraps err as a failure of kind raised by step.
func NewStepError(step Step, kind, err error) error {
	return &StepError{Step: step, Kind: kind, Err: err}
}

func stepError(step Step, kind, err error) error {
	return NewStepError(step, kind, err)
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// StatusCodeOf returns the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
