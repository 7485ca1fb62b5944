package repository

import (
	"context"

	"product-importer/models"

	"gorm.io/gorm"
)

// WebhookRepository defines data-access operations for webhooks.
type WebhookRepository interface {
	List(ctx context.Context) ([]models.Webhook, error)
	FindByID(ctx context.Context, id uint) (*models.Webhook, error)
	FindEnabledForEvent(ctx context.Context, event string) ([]models.Webhook, error)
	Create(ctx context.Context, webhook *models.Webhook) error
	Update(ctx context.Context, webhook *models.Webhook) error
	Delete(ctx context.Context, webhook *models.Webhook) error
}

// GormWebhookRepository implements WebhookRepository using GORM.
type GormWebhookRepository struct {
	db *gorm.DB
}

func NewGormWebhookRepository(db *gorm.DB) *GormWebhookRepository {
	return &GormWebhookRepository{db: db}
}

func (r *GormWebhookRepository) List(ctx context.Context) ([]models.Webhook, error) {
	webhooks := []models.Webhook{}
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&webhooks).Error; err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *GormWebhookRepository) FindByID(ctx context.Context, id uint) (*models.Webhook, error) {
	var w models.Webhook
	if err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

// FindEnabledForEvent returns the enabled webhooks subscribed to event.
func (r *GormWebhookRepository) FindEnabledForEvent(ctx context.Context, event string) ([]models.Webhook, error) {
	var enabled []models.Webhook
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&enabled).Error; err != nil {
		return nil, err
	}

	matched := enabled[:0]
	for _, w := range enabled {
		if w.Subscribes(event) {
			matched = append(matched, w)
		}
	}
	return matched, nil
}

func (r *GormWebhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	return r.db.WithContext(ctx).Create(webhook).Error
}

func (r *GormWebhookRepository) Update(ctx context.Context, webhook *models.Webhook) error {
	return r.db.WithContext(ctx).Save(webhook).Error
}

func (r *GormWebhookRepository) Delete(ctx context.Context, webhook *models.Webhook) error {
	return r.db.WithContext(ctx).Delete(webhook).Error
}
