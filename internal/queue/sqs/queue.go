// Package sqs provides an AWS SQS implementation of the queue interfaces.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"courier-go/internal/queue"
)

// maxWaitTime is the longest long-poll SQS accepts.
const maxWaitTime = 20 * time.Second

// sqsClient is the subset of the SQS API the queue uses.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Config holds SQS-specific configuration.
type Config struct {
	QueueURL string
	Region   string

	// Endpoint overrides the service endpoint (LocalStack, ElasticMQ).
	Endpoint string
}

// Queue implements queue.Queue and queue.StatsProvider on top of one SQS queue.
type Queue struct {
	client   sqsClient
	queueURL string
}

// New loads the default AWS credential chain for cfg.Region and returns a queue.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *sqs.Client
	if cfg.Endpoint != "" {
		client = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	} else {
		client = sqs.NewFromConfig(awsCfg)
	}

	return NewWithClient(client, cfg.QueueURL), nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client sqsClient, queueURL string) *Queue {
	return &Queue{
		client:   client,
		queueURL: queueURL,
	}
}

// Enqueue sends body as one SQS message.
func (q *Queue) Enqueue(ctx context.Context, body []byte) (string, error) {
	if len(body) > queue.MaxMessageSize {
		return "", queue.ErrMessageTooLarge
	}

	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send to SQS: %w", err)
	}

	return aws.ToString(out.MessageId), nil
}

// ReceiveBatch long-polls SQS for up to opts.MaxMessages messages.
func (q *Queue) ReceiveBatch(ctx context.Context, opts queue.ReceiveOptions) ([]queue.Message, error) {
	opts = opts.Normalize()

	wait := opts.WaitTime
	if wait > maxWaitTime {
		wait = maxWaitTime
	}
	visibility := int32(opts.VisibilityTimeout / time.Second)
	if visibility < 1 {
		visibility = 1
	}

	receivedAt := time.Now()
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(opts.MaxMessages),
		VisibilityTimeout:   visibility,
		WaitTimeSeconds:     int32(wait / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameSentTimestamp,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive from SQS: %w", err)
	}

	deadline := receivedAt.Add(time.Duration(visibility) * time.Second)
	msgs := make([]queue.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, toMessage(m, deadline))
	}
	return msgs, nil
}

func toMessage(m types.Message, deadline time.Time) queue.Message {
	msg := queue.Message{
		ID:                 aws.ToString(m.MessageId),
		Body:               []byte(aws.ToString(m.Body)),
		ReceiptHandle:      aws.ToString(m.ReceiptHandle),
		VisibilityDeadline: deadline,
	}

	if v, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			msg.ReceiveCount = n
		}
	}
	if v, ok := m.Attributes[string(types.MessageSystemAttributeNameSentTimestamp)]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			msg.EnqueuedAt = time.UnixMilli(ms)
		}
	}
	return msg
}

// Delete removes exactly the message delivered with receiptHandle.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		var invalid *types.ReceiptHandleIsInvalid
		var notInflight *types.MessageNotInflight
		if errors.As(err, &invalid) || errors.As(err, &notInflight) {
			return fmt.Errorf("%w: %v", queue.ErrReceiptHandleInvalid, err)
		}
		return fmt.Errorf("failed to delete from SQS: %w", err)
	}
	return nil
}

// Stats reads the approximate visible and in-flight counts.
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})
	if err != nil {
		return queue.Stats{}, fmt.Errorf("failed to fetch queue attributes: %w", err)
	}

	var s queue.Stats
	if v, err := strconv.ParseInt(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)], 10, 64); err == nil {
		s.Available = v
	}
	if v, err := strconv.ParseInt(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)], 10, 64); err == nil {
		s.InFlight = v
	}
	return s, nil
}

// Close is a no-op; the SQS client holds no connection state.
func (q *Queue) Close() error {
	return nil
}
