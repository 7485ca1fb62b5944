// Package dispatch runs imports and webhook fan-out in the background, either through a
// durable queue consumed by the worker process or on goroutines inside the API process.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"

	"product-importer/models"
	"product-importer/progress"

	"go.uber.org/zap"
)

// Dispatch modes reported by Dispatcher.Mode.
const (
	ModeRedis     = "redis"
	ModeSQS       = "sqs"
	ModeInProcess = "in-process"
)

// Task types carried on the queue.
const (
	TaskImport  = "import"
	TaskWebhook = "webhook"
)

// ErrNoTask is returned by Broker.Receive when a poll ends without a task.
var ErrNoTask = errors.New("no task available")

// Dispatcher hands work off and returns immediately.
type Dispatcher interface {
	StartImport(ctx context.Context, taskID string, content []byte) error
	NotifyWebhooks(ctx context.Context, event string, payload any) error
	Mode() string
}

// ImportRunner runs one import to completion.
type ImportRunner interface {
	Run(ctx context.Context, taskID string, content []byte) models.UploadStatus
}

// WebhookNotifier delivers one event to its subscribers.
type WebhookNotifier interface {
	Dispatch(ctx context.Context, event string, data any)
}

// Task is the JSON message on the durable queue.
type Task struct {
	Type       string          `json:"type"`
	TaskID     string          `json:"task_id,omitempty"`
	StagingKey string          `json:"staging_key,omitempty"`
	Event      string          `json:"event,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Handler executes dequeued work. Both dispatch modes run work through the same Handler.
type Handler struct {
	importer ImportRunner
	webhooks WebhookNotifier
	store    progress.Store
	logger   *zap.Logger
}

func NewHandler(importer ImportRunner, webhooks WebhookNotifier, store progress.Store, logger *zap.Logger) *Handler {
	return &Handler{importer: importer, webhooks: webhooks, store: store, logger: logger}
}

// Import runs the pipeline and announces a completed run as bulk.imported.
func (h *Handler) Import(ctx context.Context, taskID string, content []byte) models.UploadStatus {
	rec := h.importer.Run(ctx, taskID, content)
	if rec.Status == models.UploadStatusCompleted && h.webhooks != nil {
		h.webhooks.Dispatch(ctx, models.EventBulkImported, rec.Summary())
	}
	return rec
}

// Notify fans event out to subscribers.
func (h *Handler) Notify(ctx context.Context, event string, payload any) {
	if h.webhooks == nil {
		return
	}
	h.webhooks.Dispatch(ctx, event, payload)
}

// failImport records a job that could not start, such as one whose staged file is gone.
func (h *Handler) failImport(ctx context.Context, taskID string, cause error) {
	rec := models.UploadStatus{
		TaskID:  taskID,
		Status:  models.UploadStatusFailed,
		Message: "Import failed: " + cause.Error(),
		Errors:  []string{cause.Error()},
	}
	if err := h.store.Set(ctx, rec); err != nil {
		h.logger.Error("failed to record import failure", zap.String("task_id", taskID), zap.Error(err))
	}
}
