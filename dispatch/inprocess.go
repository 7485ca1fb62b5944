package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// InProcessDispatcher runs each unit of work on its own goroutine. Work is lost if the
// process dies; there is no redelivery.
type InProcessDispatcher struct {
	handler *Handler
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewInProcessDispatcher(handler *Handler, logger *zap.Logger) *InProcessDispatcher {
	return &InProcessDispatcher{handler: handler, logger: logger}
}

func (d *InProcessDispatcher) Mode() string {
	return ModeInProcess
}

// StartImport detaches from the request context so the import outlives the request.
func (d *InProcessDispatcher) StartImport(_ context.Context, taskID string, content []byte) error {
	d.spawn("import", zap.String("task_id", taskID), func(ctx context.Context) {
		d.handler.Import(ctx, taskID, content)
	})
	return nil
}

func (d *InProcessDispatcher) NotifyWebhooks(_ context.Context, event string, payload any) error {
	d.spawn("webhook", zap.String("event", event), func(ctx context.Context) {
		d.handler.Notify(ctx, event, payload)
	})
	return nil
}

// Wait blocks until every spawned goroutine has returned.
func (d *InProcessDispatcher) Wait() {
	d.wg.Wait()
}

func (d *InProcessDispatcher) spawn(kind string, field zap.Field, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("background task panicked", zap.String("kind", kind), field, zap.Any("panic", r))
			}
		}()
		fn(context.Background())
	}()
}
