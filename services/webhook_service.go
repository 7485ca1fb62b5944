package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"product-importer/apperrors"
	"product-importer/models"
	aws_pkg "product-importer/pkg/aws"
	"product-importer/repository"
	"product-importer/sender"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ErrInvalidEvents is wrapped by the 400 returned for unknown event names.
var ErrInvalidEvents = errors.New("invalid webhook events")

// WebhookService manages subscribers and delivers events to them.
type WebhookService interface {
	List(ctx context.Context) ([]models.Webhook, error)
	Get(ctx context.Context, id uint) (*models.Webhook, error)
	Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error)
	Update(ctx context.Context, id uint, req *models.UpdateWebhookRequest) (*models.Webhook, error)
	Delete(ctx context.Context, id uint) error
	Test(ctx context.Context, id uint) (*models.WebhookTestResult, error)
	Dispatch(ctx context.Context, event string, data any)
}

type webhookServiceImpl struct {
	repo        repository.WebhookRepository
	sender      sender.WebhookSender
	snsClient   aws_pkg.SNSPublisher
	snsTopicArn string
	metrics     aws_pkg.MetricsRecorder
	logger      *zap.Logger
}

// NewWebhookService creates a new WebhookService. snsClient and metrics may be nil.
func NewWebhookService(
	repo repository.WebhookRepository,
	webhookSender sender.WebhookSender,
	snsClient aws_pkg.SNSPublisher,
	snsTopicArn string,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
) WebhookService {
	return &webhookServiceImpl{
		repo:        repo,
		sender:      webhookSender,
		snsClient:   snsClient,
		snsTopicArn: snsTopicArn,
		metrics:     metrics,
		logger:      logger,
	}
}

// ValidateEvents returns a 400 naming every unknown event in events.
func ValidateEvents(events []string) error {
	var invalid []string
	for _, e := range events {
		if !models.IsWebhookEvent(e) {
			invalid = append(invalid, e)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	return apperrors.New(400,
		fmt.Sprintf("Invalid events: %s. Available: %s",
			strings.Join(invalid, ", "), strings.Join(models.WebhookEvents, ", ")),
		ErrInvalidEvents)
}

func (s *webhookServiceImpl) List(ctx context.Context) ([]models.Webhook, error) {
	hooks, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.Internal("Database query error", err)
	}
	return hooks, nil
}

func (s *webhookServiceImpl) Get(ctx context.Context, id uint) (*models.Webhook, error) {
	w, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Webhook not found")
	}
	return w, nil
}

func (s *webhookServiceImpl) Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	if err := ValidateEvents(req.Events); err != nil {
		return nil, err
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	w := &models.Webhook{
		URL:     req.URL,
		Events:  datatypes.JSONSlice[string](req.Events),
		Enabled: enabled,
		Secret:  req.Secret,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return nil, apperrors.Internal("Failed to create webhook", err)
	}
	s.logger.Info("webhook created", zap.Uint("id", w.ID), zap.String("url", w.URL), zap.Strings("events", req.Events))
	return w, nil
}

func (s *webhookServiceImpl) Update(ctx context.Context, id uint, req *models.UpdateWebhookRequest) (*models.Webhook, error) {
	w, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Webhook not found")
	}
	if req.Events != nil {
		if err := ValidateEvents(req.Events); err != nil {
			return nil, err
		}
		w.Events = datatypes.JSONSlice[string](req.Events)
	}
	if req.URL != nil {
		w.URL = *req.URL
	}
	if req.Enabled != nil {
		w.Enabled = *req.Enabled
	}
	if req.Secret != nil {
		w.Secret = req.Secret
	}
	if err := s.repo.Update(ctx, w); err != nil {
		return nil, apperrors.Internal("Failed to update webhook", err)
	}
	return w, nil
}

func (s *webhookServiceImpl) Delete(ctx context.Context, id uint) error {
	w, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "Webhook not found")
	}
	if err := s.repo.Delete(ctx, w); err != nil {
		return apperrors.Internal("Failed to delete webhook", err)
	}
	s.logger.Info("webhook deleted", zap.Uint("id", w.ID))
	return nil
}

// Test sends a synchronous test delivery. Delivery problems are reported in the result,
// not as an error; only a missing webhook or a lookup failure returns an error.
func (s *webhookServiceImpl) Test(ctx context.Context, id uint) (*models.WebhookTestResult, error) {
	w, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Webhook not found")
	}

	envelope := sender.NewEnvelope(models.EventTest, map[string]string{"message": "This is a test webhook"})
	res, err := s.sender.Send(ctx, w.URL, envelope)
	if err != nil {
		s.logger.Warn("webhook test delivery failed", zap.Uint("id", w.ID), zap.Error(err))
		return &models.WebhookTestResult{Success: false, Error: err.Error()}, nil
	}

	ms := float64(res.Duration) / float64(time.Millisecond)
	return &models.WebhookTestResult{
		Success:        res.StatusCode < 400,
		StatusCode:     res.StatusCode,
		ResponseTimeMS: math.Round(ms*100) / 100,
	}, nil
}

// Dispatch delivers data to every enabled subscriber of event concurrently and waits for
// all of them. A failing subscriber is logged and never affects the others.
func (s *webhookServiceImpl) Dispatch(ctx context.Context, event string, data any) {
	hooks, err := s.repo.FindEnabledForEvent(ctx, event)
	if err != nil {
		s.logger.Error("failed to load webhooks", zap.String("event", event), zap.Error(err))
		return
	}

	envelope := sender.NewEnvelope(event, data)
	s.publishEvent(ctx, envelope)
	if len(hooks) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook models.Webhook) {
			defer wg.Done()
			s.deliver(ctx, hook, envelope)
		}(hook)
	}
	wg.Wait()
}

func (s *webhookServiceImpl) deliver(ctx context.Context, hook models.Webhook, envelope models.WebhookEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("webhook delivery panicked", zap.Uint("webhook_id", hook.ID), zap.Any("panic", r))
		}
	}()

	fields := []zap.Field{
		zap.Uint("webhook_id", hook.ID),
		zap.String("url", hook.URL),
		zap.String("event", envelope.Event),
	}
	res, err := s.sender.Send(ctx, hook.URL, envelope)
	switch {
	case err != nil:
		s.logger.Warn("webhook delivery failed", append(fields, zap.Error(err))...)
		s.record(aws_pkg.MetricWebhooksFailed, envelope.Event)
	case res.StatusCode >= 300 || res.StatusCode < 200:
		s.logger.Warn("webhook rejected delivery", append(fields, zap.Int("status_code", res.StatusCode))...)
		s.record(aws_pkg.MetricWebhooksFailed, envelope.Event)
	default:
		s.logger.Debug("webhook delivered", append(fields,
			zap.Int("status_code", res.StatusCode),
			zap.Duration("duration", res.Duration))...)
		s.record(aws_pkg.MetricWebhooksDelivered, envelope.Event)
	}
}

// publishEvent mirrors the envelope to SNS (non-fatal on error).
func (s *webhookServiceImpl) publishEvent(ctx context.Context, envelope models.WebhookEnvelope) {
	if s.snsClient == nil || s.snsTopicArn == "" {
		return
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		s.logger.Error("Failed to marshal SNS event", zap.Error(err))
		return
	}
	if err := s.snsClient.Publish(ctx, s.snsTopicArn, b, map[string]string{"event": envelope.Event}); err != nil {
		s.logger.Error("Failed to publish SNS event", zap.Error(err))
		return
	}
	s.logger.Debug("Published SNS event", zap.String("topic", s.snsTopicArn), zap.String("event", envelope.Event))
}

func (s *webhookServiceImpl) record(metric, event string) {
	if s.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.metrics.RecordCount(ctx, metric, map[string]string{"Event": event})
}
