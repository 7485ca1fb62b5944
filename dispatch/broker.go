package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	aws_pkg "product-importer/pkg/aws"

	"github.com/redis/go-redis/v9"
)

// Delivery is one received task. Handle identifies it to Ack.
type Delivery struct {
	Body   []byte
	Handle string
}

// Broker is a durable at-least-once queue. A received task that is never acknowledged is
// delivered again.
type Broker interface {
	Name() string
	Enqueue(ctx context.Context, body []byte) error
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Ping(ctx context.Context) error
}

// RedisBroker is a reliable list queue: tasks move atomically from the queue list to a
// processing list on receive and are removed from it on ack.
type RedisBroker struct {
	client     *redis.Client
	queue      string
	processing string
	block      time.Duration
}

func NewRedisBroker(client *redis.Client, queue string) *RedisBroker {
	return &RedisBroker{
		client:     client,
		queue:      queue,
		processing: queue + ":processing",
		block:      5 * time.Second,
	}
}

func (b *RedisBroker) Name() string {
	return ModeRedis
}

func (b *RedisBroker) Enqueue(ctx context.Context, body []byte) error {
	if err := b.client.RPush(ctx, b.queue, body).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (b *RedisBroker) Receive(ctx context.Context) (*Delivery, error) {
	body, err := b.client.BLMove(ctx, b.queue, b.processing, "LEFT", "RIGHT", b.block).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("failed to receive task: %w", err)
	}
	return &Delivery{Body: []byte(body), Handle: body}, nil
}

func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	if err := b.client.LRem(ctx, b.processing, 1, d.Handle).Err(); err != nil {
		return fmt.Errorf("failed to ack task: %w", err)
	}
	return nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.client.Ping(ctx).Err()
}

// RequeueOrphans moves tasks left in the processing list by a crashed worker back to the
// head of the queue and returns how many moved. Call it before a worker starts consuming.
func (b *RedisBroker) RequeueOrphans(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := b.client.LMove(ctx, b.processing, b.queue, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to requeue orphaned tasks: %w", err)
		}
		moved++
	}
}

// SQSClient is the queue surface SQSBroker needs.
type SQSClient interface {
	SendMessage(ctx context.Context, body string) error
	ReceiveOne(ctx context.Context) (*aws_pkg.SQSMessage, error)
	DeleteMessage(ctx context.Context, receiptHandle string) error
	Ping(ctx context.Context, queueName string) error
}

var _ SQSClient = (*aws_pkg.SQSQueue)(nil)

// SQSBroker receives one message at a time and deletes it on ack. Unacked messages
// reappear after the visibility timeout.
type SQSBroker struct {
	queue     SQSClient
	queueName string
}

func NewSQSBroker(queue SQSClient, queueName string) *SQSBroker {
	return &SQSBroker{queue: queue, queueName: queueName}
}

func (b *SQSBroker) Name() string {
	return ModeSQS
}

func (b *SQSBroker) Enqueue(ctx context.Context, body []byte) error {
	return b.queue.SendMessage(ctx, string(body))
}

func (b *SQSBroker) Receive(ctx context.Context) (*Delivery, error) {
	msg, err := b.queue.ReceiveOne(ctx)
	if errors.Is(err, aws_pkg.ErrNoMessage) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, err
	}
	return &Delivery{Body: []byte(msg.Body), Handle: msg.ReceiptHandle}, nil
}

func (b *SQSBroker) Ack(ctx context.Context, d *Delivery) error {
	return b.queue.DeleteMessage(ctx, d.Handle)
}

func (b *SQSBroker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return b.queue.Ping(ctx, b.queueName)
}
