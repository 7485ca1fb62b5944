package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"product-importer/apperrors"
	"product-importer/models"
	"product-importer/repository"

	"go.uber.org/zap"
)

// ErrDuplicateSKU is wrapped by the 400 returned when a sku is already taken.
var ErrDuplicateSKU = errors.New("duplicate sku")

// EventNotifier hands a webhook event to the dispatch layer.
type EventNotifier interface {
	NotifyWebhooks(ctx context.Context, event string, payload any) error
}

// ProductService defines the product CRUD operations behind /api/products.
type ProductService interface {
	List(ctx context.Context, filter models.ProductFilter) (*models.ProductListResponse, error)
	Get(ctx context.Context, id uint) (*models.Product, error)
	Create(ctx context.Context, req *models.CreateProductRequest) (*models.Product, error)
	Update(ctx context.Context, id uint, req *models.UpdateProductRequest) (*models.Product, error)
	Delete(ctx context.Context, id uint) error
	DeleteAll(ctx context.Context) (int64, error)
}

type productServiceImpl struct {
	repo     repository.ProductRepository
	notifier EventNotifier
	logger   *zap.Logger
}

// NewProductService creates a new ProductService.
func NewProductService(repo repository.ProductRepository, notifier EventNotifier, logger *zap.Logger) ProductService {
	return &productServiceImpl{repo: repo, notifier: notifier, logger: logger}
}

func (s *productServiceImpl) List(ctx context.Context, filter models.ProductFilter) (*models.ProductListResponse, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal("Database query error", err)
	}
	if items == nil {
		items = []models.Product{}
	}

	totalPages := 0
	if filter.PageSize > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(filter.PageSize)))
	}
	return &models.ProductListResponse{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *productServiceImpl) Get(ctx context.Context, id uint) (*models.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Product not found")
	}
	return p, nil
}

func (s *productServiceImpl) Create(ctx context.Context, req *models.CreateProductRequest) (*models.Product, error) {
	if err := s.ensureSKUFree(ctx, req.SKU, 0); err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	p := &models.Product{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Active:      active,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperrors.Internal("Failed to create product", err)
	}

	s.logger.Info("product created", zap.Uint("id", p.ID), zap.String("sku", p.SKU))
	s.notify(ctx, models.EventProductCreated, p)
	return p, nil
}

func (s *productServiceImpl) Update(ctx context.Context, id uint, req *models.UpdateProductRequest) (*models.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Product not found")
	}

	updates := map[string]interface{}{}
	if req.SKU != nil && models.NormalizeSKU(*req.SKU) != p.SKU {
		if err := s.ensureSKUFree(ctx, *req.SKU, p.ID); err != nil {
			return nil, err
		}
		updates["sku"] = *req.SKU
	}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.Quantity != nil {
		updates["quantity"] = *req.Quantity
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	updates["updated_at"] = time.Now()

	if err := s.repo.Update(ctx, p, updates); err != nil {
		return nil, notFoundOr(err, "Product not found")
	}

	s.notify(ctx, models.EventProductUpdated, p)
	return p, nil
}

func (s *productServiceImpl) Delete(ctx context.Context, id uint) error {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "Product not found")
	}
	snapshot := *p
	if err := s.repo.Delete(ctx, p); err != nil {
		return apperrors.Internal("Failed to delete product", err)
	}

	s.logger.Info("product deleted", zap.Uint("id", snapshot.ID), zap.String("sku", snapshot.SKU))
	s.notify(ctx, models.EventProductDeleted, snapshot)
	return nil
}

func (s *productServiceImpl) DeleteAll(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, apperrors.Internal("Failed to delete products", err)
	}

	s.logger.Warn("all products deleted", zap.Int64("count", count))
	s.notify(ctx, models.EventBulkDeleted, map[string]int64{"count": count})
	return count, nil
}

// ensureSKUFree returns a 400 if sku belongs to a product other than selfID.
func (s *productServiceImpl) ensureSKUFree(ctx context.Context, sku string, selfID uint) error {
	if models.NormalizeSKU(sku) == "" {
		return apperrors.BadRequest("SKU must not be blank")
	}
	existing, err := s.repo.FindBySKU(ctx, sku)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return apperrors.Internal("Database query error", err)
	case existing.ID == selfID:
		return nil
	}
	return apperrors.New(400,
		fmt.Sprintf("Product with SKU '%s' already exists", models.NormalizeSKU(sku)),
		ErrDuplicateSKU)
}

// notify is fire-and-forget; a dispatch failure never fails the request.
func (s *productServiceImpl) notify(ctx context.Context, event string, payload any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyWebhooks(ctx, event, payload); err != nil {
		s.logger.Error("failed to dispatch webhook event", zap.String("event", event), zap.Error(err))
	}
}
