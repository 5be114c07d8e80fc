package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const defaultRegion = "us-east-1"

// Client sends workflow requests to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSClient sends workflow requests to AWS SQS. FIFO queues (URL ending in
// .fifo) group messages by analysis and deduplicate on the request id.
type SQSClient struct {
	api      sqsSender
	queueURL string
	fifo     bool
}

// NewSQSClient loads the default AWS config for region and returns a client
// bound to queueURL.
func NewSQSClient(ctx context.Context, queueURL, region string) (*SQSClient, error) {
	if strings.TrimSpace(queueURL) == "" {
		return nil, fmt.Errorf("GFW_SQS_QUEUE_URL is required")
	}
	if strings.TrimSpace(region) == "" {
		region = defaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSQSClient(sqs.NewFromConfig(cfg), queueURL), nil
}

func newSQSClient(api sqsSender, queueURL string) *SQSClient {
	queueURL = strings.TrimSpace(queueURL)
	return &SQSClient{api: api, queueURL: queueURL, fifo: strings.HasSuffix(queueURL, ".fifo")}
}

// Send encodes msg and delivers it. The analysis id and schema version are
// mirrored into message attributes so consumers can filter without decoding.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	body, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"analysisId": {DataType: aws.String("String"), StringValue: aws.String(msg.AnalysisID)},
			"version":    {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(msg.Version))},
		},
	}
	if s.fifo {
		in.MessageGroupId = aws.String(msg.AnalysisID)
		in.MessageDeduplicationId = aws.String(msg.RequestID)
	}
	if _, err := s.api.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

var _ Client = (*SQSClient)(nil)
