package dispatch

import (
	"context"
	"errors"
	"fmt"

	"product-importer/staging"

	"go.uber.org/zap"
)

// ErrBrokerDisabled is returned by ProbeBroker when no durable broker is configured.
var ErrBrokerDisabled = errors.New("durable broker disabled")

// ProbeBroker returns broker if it answers a ping. A nil broker means the durable queue
// is switched off.
func ProbeBroker(ctx context.Context, broker Broker) (Broker, error) {
	if broker == nil {
		return nil, ErrBrokerDisabled
	}
	if err := broker.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%s broker unreachable: %w", broker.Name(), err)
	}
	return broker, nil
}

// New picks the dispatch strategy once: the durable queue when broker is reachable,
// otherwise in-process goroutines.
func New(ctx context.Context, broker Broker, stager staging.Stager, handler *Handler, logger *zap.Logger) Dispatcher {
	live, err := ProbeBroker(ctx, broker)
	if err != nil || stager == nil {
		logger.Warn("durable queue unavailable, running background work in-process", zap.Error(err))
		return NewInProcessDispatcher(handler, logger)
	}
	logger.Info("durable queue available", zap.String("broker", live.Name()))
	return NewQueueDispatcher(live, stager, logger)
}
