package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/queue"
	"gfwpro-workflow/internal/shared/storage/object"
	"gfwpro-workflow/internal/workflow"
)

// maxCSVBytes caps staged inputs read into memory.
const maxCSVBytes = 64 << 20

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingField indicates a message missing a required field.
type ErrMissingField struct {
	Meta      MessageMeta
	Field     string
	RequestID string
}

func (e ErrMissingField) Error() string { return "missing " + e.Field }

// ErrLoadInput indicates the staged CSV could not be read.
type ErrLoadInput struct {
	CSVKey string
	Err    error
}

func (e ErrLoadInput) Error() string {
	return fmt.Sprintf("load input %s: %v", e.CSVKey, e.Err)
}

func (e ErrLoadInput) Unwrap() error { return e.Err }

// ErrProcess indicates the workflow failed after the message was parsed.
type ErrProcess struct {
	AnalysisID string
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process workflow"
	}
	return "process workflow: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.AnalysisID) == "" {
		return msg, meta, ErrMissingField{Meta: meta, Field: "analysisId", RequestID: msg.RequestID}
	}
	if strings.TrimSpace(msg.CSVKey) == "" {
		return msg, meta, ErrMissingField{Meta: meta, Field: "csvKey", RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Executor runs a workflow. *workflow.Runner satisfies it.
type Executor interface {
	Execute(ctx context.Context, req workflow.RunRequest) (workflow.Report, error)
}

// Defaults fill message fields the sender left empty.
type Defaults struct {
	UserEmail      string
	Commodity      string
	ListNamePrefix string
	Payload        gfw.PayloadSettings
	Poll           workflow.PollOptions
}

// Processor turns queue messages into workflow runs.
type Processor struct {
	Exec     Executor
	Inputs   object.ObjectStore
	Defaults Defaults
}

// HandleMessage loads the staged CSV and executes the run described by msg.
func (p *Processor) HandleMessage(ctx context.Context, msg queue.Message) (workflow.Report, error) {
	if p == nil || p.Exec == nil || p.Inputs == nil {
		return workflow.Report{}, errors.New("workflow processor not configured")
	}

	csv, err := p.loadInput(ctx, msg.CSVKey)
	if err != nil {
		return workflow.Report{}, err
	}

	d := p.Defaults
	settings := d.Payload
	settings.UserEmail = firstNonEmpty(msg.UserEmail, d.UserEmail)
	analysisID := gfw.CanonicalAnalysisID(msg.AnalysisID)

	report, err := p.Exec.Execute(ctx, workflow.RunRequest{
		RequestID:      msg.RequestID,
		UserEmail:      settings.UserEmail,
		CSV:            csv,
		Commodity:      firstNonEmpty(msg.Commodity, d.Commodity),
		AnalysisID:     analysisID,
		ListNamePrefix: firstNonEmpty(msg.ListNamePrefix, d.ListNamePrefix),
		Payload:        gfw.BuildTriggerPayload(analysisID, settings),
		Poll:           d.Poll,
	})
	if err != nil {
		return report, ErrProcess{AnalysisID: analysisID, RequestID: msg.RequestID, Err: err}
	}
	return report, nil
}

func (p *Processor) loadInput(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.Inputs.Open(ctx, key)
	if err != nil {
		return nil, ErrLoadInput{CSVKey: key, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxCSVBytes+1))
	if err != nil {
		return nil, ErrLoadInput{CSVKey: key, Err: err}
	}
	if len(data) > maxCSVBytes {
		return nil, ErrLoadInput{CSVKey: key, Err: fmt.Errorf("input exceeds %d bytes", maxCSVBytes)}
	}
	return data, nil
}

// Settled reports whether a message can be deleted after HandleMessage.
// Once the list exists a redelivery would create a duplicate list, so any
// outcome past list creation settles the message.
func Settled(report workflow.Report, err error) bool {
	if report.Run.ListID != "" || report.Outcome.Job.ListID != "" {
		return true
	}
	return err == nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
