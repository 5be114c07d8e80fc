package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"gfwpro-workflow/internal/bootstrap"
	"gfwpro-workflow/internal/queue"
	"gfwpro-workflow/internal/shared/config"
	"gfwpro-workflow/internal/shared/metrics"
	"gfwpro-workflow/internal/shared/telemetry"
	"gfwpro-workflow/internal/workerproc"
	"gfwpro-workflow/internal/workflow"
)

const (
	defaultRegion             = "us-east-1"
	defaultVisibilitySeconds  = 4200
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel, cfg.LogFormat)

	if cfg.SQSQueueURL == "" {
		fatal("worker.config_invalid", errors.New("GFW_SQS_QUEUE_URL is required"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("GFW_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	shutdownTimeout := time.Duration(envInt("GFW_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second
	concurrency := max(1, cfg.WorkerConcurrency)

	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		fatal("worker.aws_config_failed", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{RequireAPI: true})
	if err != nil {
		fatal("worker.bootstrap_failed", err)
	}
	defer app.Close()

	proc := &workerproc.Processor{
		Exec:   app.Runner,
		Inputs: app.Inputs,
		Defaults: workerproc.Defaults{
			UserEmail:      cfg.UserEmail,
			Commodity:      cfg.Commodity,
			ListNamePrefix: cfg.ListNamePrefix,
			Payload:        bootstrap.PayloadSettings(cfg),
			Poll:           bootstrap.PollOptions(cfg),
		},
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue":       cfg.SQSQueueURL,
		"concurrency": concurrency,
		"visibility":  visibilitySeconds,
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(cfg.SQSQueueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, sqsClient, cfg.SQSQueueURL, proc, m)
			}(msg)
		}
	}

	telemetry.Info("worker.shutdown_requested", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": shutdownTimeout.String()})
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// messageHandler runs the workflow for a parsed message. *workerproc.Processor satisfies it.
type messageHandler interface {
	HandleMessage(ctx context.Context, msg queue.Message) (workflow.Report, error)
}

func handleMessage(ctx context.Context, client sqsAPI, queueURL string, proc messageHandler, msg sqstypes.Message) {
	decoded, meta, err := workerproc.ParseMessage(aws.ToString(msg.Body))
	if err != nil {
		fields := baseFields(msg, "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		event := "worker.job.decode_failed"
		var (
			empty   workerproc.ErrEmptyBody
			missing workerproc.ErrMissingField
		)
		switch {
		case errors.As(err, &empty):
			event = "worker.job.empty_body"
		case errors.As(err, &missing):
			event = "worker.job.missing_field"
			fields["field"] = missing.Field
			if missing.RequestID != "" {
				fields["request_id"] = missing.RequestID
			}
		default:
			fields["error"] = err.Error()
		}
		telemetry.Error(event, fields)
		if deleteMessage(ctx, client, queueURL, msg, "", "") {
			metrics.IncJobsDropped()
		}
		return
	}

	telemetry.Info("worker.job.received", baseFields(msg, decoded.AnalysisID, decoded.RequestID))

	report, err := proc.HandleMessage(ctx, decoded)
	fields := baseFields(msg, decoded.AnalysisID, decoded.RequestID)
	if report.Run.ListID != "" {
		fields["list_id"] = report.Run.ListID
	}
	if report.Run.Status != "" {
		fields["status"] = report.Run.Status
	}
	if err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.job.failed", fields)
	}

	if !workerproc.Settled(report, err) {
		metrics.IncJobsRetried()
		return
	}
	if deleteMessage(ctx, client, queueURL, msg, decoded.AnalysisID, decoded.RequestID) {
		telemetry.Info("worker.job.settled", fields)
		metrics.IncJobsSettled()
	}
}

// deleteMessage runs after shutdown starts too, so it ignores cancellation.
func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, analysisID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, analysisID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, analysisID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.job.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, analysisID, requestID string) map[string]any {
	fields := map[string]any{
		"analysis_id":    analysisID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func fatal(event string, err error) {
	telemetry.Error(event, map[string]any{"error": err.Error()})
	os.Exit(1)
}
