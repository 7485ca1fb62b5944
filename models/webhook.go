package models

import (
	"time"

	"gorm.io/datatypes"
)

// Webhook event names.
const (
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
	EventBulkImported   = "bulk.imported"
	EventBulkDeleted    = "bulk.deleted"

	// EventTest is only sent by the synchronous test delivery and cannot be subscribed to.
	EventTest = "test"
)

// WebhookEvents is the fixed set of events a webhook may subscribe to.
var WebhookEvents = []string{
	EventProductCreated,
	EventProductUpdated,
	EventProductDeleted,
	EventBulkImported,
	EventBulkDeleted,
}

// IsWebhookEvent reports whether name is one of WebhookEvents.
func IsWebhookEvent(name string) bool {
	for _, e := range WebhookEvents {
		if e == name {
			return true
		}
	}
	return false
}

// Webhook is a registered subscriber endpoint.
type Webhook struct {
	ID        uint                        `gorm:"primaryKey" json:"id"`
	URL       string                      `gorm:"type:varchar(500);not null" json:"url"`
	Events    datatypes.JSONSlice[string] `gorm:"type:jsonb;not null" json:"events"`
	Enabled   bool                        `gorm:"not null;index" json:"enabled"`
	Secret    *string                     `gorm:"type:varchar(255)" json:"secret,omitempty"`
	CreatedAt time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// Subscribes reports whether the webhook listens for event.
func (w *Webhook) Subscribes(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// CreateWebhookRequest is the payload for POST /api/webhooks.
type CreateWebhookRequest struct {
	URL     string   `json:"url" validate:"required,url,max=500"`
	Events  []string `json:"events" validate:"required,min=1"`
	Enabled *bool    `json:"enabled"`
	Secret  *string  `json:"secret" validate:"omitempty,max=255"`
}

// UpdateWebhookRequest is the payload for PUT /api/webhooks/:id.
type UpdateWebhookRequest struct {
	URL     *string  `json:"url" validate:"omitempty,url,max=500"`
	Events  []string `json:"events"`
	Enabled *bool    `json:"enabled"`
	Secret  *string  `json:"secret" validate:"omitempty,max=255"`
}

// WebhookEnvelope is the outbound POST body.
type WebhookEnvelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// WebhookTestResult is the outcome of a synchronous test delivery.
type WebhookTestResult struct {
	Success        bool    `json:"success"`
	StatusCode     int     `json:"status_code,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms,omitempty"`
	Error          string  `json:"error,omitempty"`
}
