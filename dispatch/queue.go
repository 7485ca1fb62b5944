package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	aws_pkg "product-importer/pkg/aws"
	"product-importer/staging"

	"go.uber.org/zap"
)

// QueueDispatcher stages upload content and enqueues tasks for the worker process.
type QueueDispatcher struct {
	broker Broker
	stager staging.Stager
	logger *zap.Logger
}

func NewQueueDispatcher(broker Broker, stager staging.Stager, logger *zap.Logger) *QueueDispatcher {
	return &QueueDispatcher{broker: broker, stager: stager, logger: logger}
}

func (d *QueueDispatcher) Mode() string {
	return d.broker.Name()
}

func (d *QueueDispatcher) StartImport(ctx context.Context, taskID string, content []byte) error {
	key, err := d.stager.Put(ctx, taskID, content)
	if err != nil {
		return fmt.Errorf("failed to stage upload: %w", err)
	}

	body, err := json.Marshal(Task{Type: TaskImport, TaskID: taskID, StagingKey: key})
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := d.broker.Enqueue(ctx, body); err != nil {
		_ = d.stager.Delete(ctx, key)
		return err
	}

	d.logger.Info("import task queued", zap.String("task_id", taskID), zap.String("broker", d.broker.Name()))
	return nil
}

func (d *QueueDispatcher) NotifyWebhooks(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	body, err := json.Marshal(Task{Type: TaskWebhook, Event: event, Payload: data})
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return d.broker.Enqueue(ctx, body)
}

// Worker consumes tasks one at a time and acknowledges each only after it has been
// handled, so a crash mid-task leads to redelivery.
type Worker struct {
	broker  Broker
	stager  staging.Stager
	handler *Handler
	metrics aws_pkg.MetricsRecorder
	logger  *zap.Logger
}

// NewWorker creates a Worker. metrics may be nil.
func NewWorker(broker Broker, stager staging.Stager, handler *Handler, metrics aws_pkg.MetricsRecorder, logger *zap.Logger) *Worker {
	return &Worker{broker: broker, stager: stager, handler: handler, metrics: metrics, logger: logger}
}

// Run consumes until ctx is cancelled. A task in progress when ctx ends is finished first.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", zap.String("broker", w.broker.Name()))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return nil
		default:
		}

		d, err := w.broker.Receive(ctx)
		if errors.Is(err, ErrNoTask) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("failed to receive task", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		w.Process(context.WithoutCancel(ctx), d)
	}
}

// Process handles one delivery and acknowledges it.
func (w *Worker) Process(ctx context.Context, d *Delivery) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task handler panicked", zap.Any("panic", r))
		}
		if err := w.broker.Ack(ctx, d); err != nil {
			w.logger.Error("failed to ack task", zap.Error(err))
		}
	}()

	var task Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		w.logger.Error("dropping malformed task", zap.Error(err), zap.ByteString("body", d.Body))
		return
	}
	w.record(task.Type)

	switch task.Type {
	case TaskImport:
		w.runImport(ctx, task)
	case TaskWebhook:
		w.handler.Notify(ctx, task.Event, task.Payload)
	default:
		w.logger.Warn("dropping task of unknown type", zap.String("type", task.Type))
	}
}

func (w *Worker) runImport(ctx context.Context, task Task) {
	content, err := w.stager.Get(ctx, task.StagingKey)
	if err != nil {
		w.logger.Error("failed to load staged upload",
			zap.String("task_id", task.TaskID),
			zap.String("staging_key", task.StagingKey),
			zap.Error(err),
		)
		w.handler.failImport(ctx, task.TaskID, err)
		return
	}

	rec := w.handler.Import(ctx, task.TaskID, content)
	w.logger.Info("import task finished", zap.String("task_id", task.TaskID), zap.String("status", rec.Status))

	if err := w.stager.Delete(ctx, task.StagingKey); err != nil {
		w.logger.Warn("failed to remove staged upload", zap.String("staging_key", task.StagingKey), zap.Error(err))
	}
}

func (w *Worker) record(taskType string) {
	if w.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = w.metrics.RecordCount(ctx, aws_pkg.MetricQueueTasks, map[string]string{"Type": taskType})
}
