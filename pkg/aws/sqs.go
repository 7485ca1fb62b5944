package aws

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// ErrNoMessage is returned by ReceiveOne when the long poll ends empty.
var ErrNoMessage = errors.New("no message available")

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SQSMessage is one received message and the handle needed to delete it.
type SQSMessage struct {
	Body          string
	ReceiptHandle string
}

// SQSQueue sends and receives import tasks on a single queue.
type SQSQueue struct {
	client            SQSAPI
	queueURL          string
	waitSeconds       int32
	visibilitySeconds int32
}

// NewSQSQueue creates a queue wrapper for the given queue URL.
func NewSQSQueue(cfg sdkaws.Config, queueURL string) *SQSQueue {
	return NewSQSQueueWithClient(sqs.NewFromConfig(cfg), queueURL)
}

// NewSQSQueueWithClient wraps an existing client.
func NewSQSQueueWithClient(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{
		client:            client,
		queueURL:          queueURL,
		waitSeconds:       20,
		visibilitySeconds: 300,
	}
}

// URL returns the queue URL.
func (q *SQSQueue) URL() string {
	return q.queueURL
}

// SendMessage enqueues one message body.
func (q *SQSQueue) SendMessage(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &q.queueURL,
		MessageBody: &body,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// ReceiveOne long polls for a single message. The message stays invisible for the
// visibility timeout and reappears unless DeleteMessage is called.
func (q *SQSQueue) ReceiveOne(ctx context.Context) (*SQSMessage, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.queueURL,
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     q.waitSeconds,
		VisibilityTimeout:   q.visibilitySeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	if len(out.Messages) == 0 || out.Messages[0].Body == nil {
		return nil, ErrNoMessage
	}
	msg := out.Messages[0]
	return &SQSMessage{Body: *msg.Body, ReceiptHandle: sdkaws.ToString(msg.ReceiptHandle)}, nil
}

// DeleteMessage acknowledges a received message.
func (q *SQSQueue) DeleteMessage(ctx context.Context, receiptHandle string) error {
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.queueURL,
		ReceiptHandle: &receiptHandle,
	}); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// Ping checks the queue is reachable by resolving its URL from the queue name.
func (q *SQSQueue) Ping(ctx context.Context, queueName string) error {
	_, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: &queueName})
	if err != nil {
		return fmt.Errorf("failed to get queue URL: %w", err)
	}
	return nil
}

// GetQueueURL retrieves the URL for a queue name.
func GetQueueURL(ctx context.Context, cfg sdkaws.Config, queueName string) (string, error) {
	client := sqs.NewFromConfig(cfg)
	result, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: &queueName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL: %w", err)
	}
	return *result.QueueUrl, nil
}
