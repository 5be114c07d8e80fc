package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"gfwpro-workflow/internal/queue"
	"gfwpro-workflow/internal/runs"
	"gfwpro-workflow/internal/workflow"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	report workflow.Report
	err    error
	calls  int
}

func (f *fakeProcessor) HandleMessage(ctx context.Context, msg queue.Message) (workflow.Report, error) {
	f.calls++
	return f.report, f.err
}

func sqsMessage(t *testing.T, id string, msg queue.Message) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("r-" + id),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func validMessage() queue.Message {
	return queue.Message{RequestID: "req-1", AnalysisID: "FCD", CSVKey: "inputs/abc_plots.csv", Version: queue.MessageVersion}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{report: workflow.Report{Run: runs.Run{ListID: "77", Status: runs.StatusDownloaded}}}

	handleMessage(context.Background(), client, "queue", proc, sqsMessage(t, "m1", validMessage()))

	if len(client.deleted) != 1 || client.deleted[0] != "r-m1" {
		t.Fatalf("deleted = %v, want [r-m1]", client.deleted)
	}
}

func TestWorkerKeepsMessageWhenNoListWasCreated(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: errors.New("prepare upload: 503")}

	handleMessage(context.Background(), client, "queue", proc, sqsMessage(t, "m2", validMessage()))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %v", client.deleted)
	}
}

func TestWorkerSettlesFailedRunOnceListExists(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{
		report: workflow.Report{Run: runs.Run{ListID: "77", Status: runs.StatusMissingResult}},
		err:    errors.New("resultUrl not provided"),
	}

	handleMessage(context.Background(), client, "queue", proc, sqsMessage(t, "m3", validMessage()))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete after list creation, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesAfterShutdownCancels(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{report: workflow.Report{Run: runs.Run{ListID: "77", Status: runs.StatusInterrupted}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handleMessage(ctx, client, "queue", proc, sqsMessage(t, "m4", validMessage()))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDropsUnusableMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: "{bad-json"},
		{name: "empty body", body: "  "},
		{name: "missing csv key", body: `{"requestId":"r","analysisId":"FCD"}`},
		{name: "missing analysis", body: `{"requestId":"r","csvKey":"inputs/x.csv"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSQS{}
			proc := &fakeProcessor{}
			msg := sqstypes.Message{
				MessageId:     aws.String("m"),
				ReceiptHandle: aws.String("r"),
				Body:          aws.String(tt.body),
			}

			handleMessage(context.Background(), client, "queue", proc, msg)

			if len(client.deleted) != 1 {
				t.Fatalf("expected delete, got %d", len(client.deleted))
			}
			if proc.calls != 0 {
				t.Fatalf("processor called for unusable message")
			}
		})
	}
}

func TestWorkerMissingReceiptHandle(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{report: workflow.Report{Run: runs.Run{ListID: "77"}}}
	msg := sqsMessage(t, "m5", validMessage())
	msg.ReceiptHandle = nil

	handleMessage(context.Background(), client, "queue", proc, msg)

	if len(client.deleted) != 0 {
		t.Fatalf("delete attempted without receipt handle")
	}
}

func TestReceiveCount(t *testing.T) {
	if got := receiveCount(sqstypes.Message{Attributes: map[string]string{"ApproximateReceiveCount": "3"}}); got != 3 {
		t.Fatalf("receiveCount = %d, want 3", got)
	}
	if got := receiveCount(sqstypes.Message{}); got != 0 {
		t.Fatalf("receiveCount = %d, want 0", got)
	}
}
