package sender

import (
	"context"
	"time"

	"product-importer/models"
)

// SendResult describes one completed HTTP delivery.
type SendResult struct {
	StatusCode int
	Duration   time.Duration
}

// WebhookSender posts webhook envelopes to subscriber URLs.
type WebhookSender interface {
	Send(ctx context.Context, url string, envelope models.WebhookEnvelope) (SendResult, error)
}

// NewEnvelope wraps data for event, stamped with the current UTC time.
func NewEnvelope(event string, data any) models.WebhookEnvelope {
	return models.WebhookEnvelope{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
}
