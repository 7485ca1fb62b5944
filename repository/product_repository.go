package repository

import (
	"context"
	"fmt"
	"time"

	"product-importer/models"

	"gorm.io/gorm"
)

const insertBatchSize = 500

// ProductRepository defines data-access operations for products.
type ProductRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Product, error)
	FindBySKU(ctx context.Context, sku string) (*models.Product, error)
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int64, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product, updates map[string]interface{}) error
	Delete(ctx context.Context, product *models.Product) error
	DeleteAll(ctx context.Context) (int64, error)
	BulkUpsert(ctx context.Context, rows []models.ProductRow) (int, error)
}

// GormProductRepository implements ProductRepository using GORM.
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository.
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormProductRepository) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).
		Where("sku = ?", models.NormalizeSKU(sku)).
		First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// List returns one page of products, newest first, plus the total match count.
func (r *GormProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("sku ILIKE ? OR name ILIKE ? OR description ILIKE ?", like, like, like)
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	products := []models.Product{}
	offset := (filter.Page - 1) * filter.PageSize
	if err := query.
		Order("id DESC").
		Offset(offset).Limit(filter.PageSize).
		Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *GormProductRepository) Create(ctx context.Context, product *models.Product) error {
	product.SKU = models.NormalizeSKU(product.SKU)
	return r.db.WithContext(ctx).Create(product).Error
}

// Update applies updates to product and reloads it.
func (r *GormProductRepository) Update(ctx context.Context, product *models.Product, updates map[string]interface{}) error {
	if sku, ok := updates["sku"].(string); ok {
		updates["sku"] = models.NormalizeSKU(sku)
	}
	db := r.db.WithContext(ctx)
	if err := db.Model(product).Updates(updates).Error; err != nil {
		return err
	}
	return translate(db.First(product, "id = ?", product.ID).Error)
}

func (r *GormProductRepository) Delete(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Delete(product).Error
}

// DeleteAll removes every product and returns how many rows went.
func (r *GormProductRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.Product{})
	return res.RowsAffected, res.Error
}

// BulkUpsert inserts or updates rows keyed by normalized sku in a single transaction.
// Existing products get name, description, price and quantity from the row where the row
// supplies them; sku and active are never changed on update. Repeated skus within rows
// collapse into one write where later values win.
func (r *GormProductRepository) BulkUpsert(ctx context.Context, rows []models.ProductRow) (int, error) {
	skus, bySKU := collapseRows(rows)
	if len(skus) == 0 {
		return 0, nil
	}

	affected := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.Product
		if err := tx.Where("sku IN ?", skus).Find(&existing).Error; err != nil {
			return fmt.Errorf("load existing products: %w", err)
		}
		found := make(map[string]uint, len(existing))
		for _, p := range existing {
			found[p.SKU] = p.ID
		}

		now := time.Now()
		var inserts []models.Product
		for _, sku := range skus {
			row := bySKU[sku]
			id, ok := found[sku]
			if !ok {
				inserts = append(inserts, newProduct(row, now))
				continue
			}
			if err := tx.Model(&models.Product{}).
				Where("id = ?", id).
				Updates(rowUpdates(row, now)).Error; err != nil {
				return fmt.Errorf("update product %s: %w", sku, err)
			}
			affected++
		}

		if len(inserts) > 0 {
			if err := tx.CreateInBatches(&inserts, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert products: %w", err)
			}
			affected += len(inserts)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func collapseRows(rows []models.ProductRow) ([]string, map[string]models.ProductRow) {
	var skus []string
	bySKU := make(map[string]models.ProductRow, len(rows))
	for _, row := range rows {
		row.SKU = models.NormalizeSKU(row.SKU)
		if row.SKU == "" {
			continue
		}
		prev, seen := bySKU[row.SKU]
		if !seen {
			skus = append(skus, row.SKU)
			bySKU[row.SKU] = row
			continue
		}
		if row.Name == "" {
			row.Name = prev.Name
		}
		if row.Description == nil {
			row.Description = prev.Description
		}
		if row.Price == nil {
			row.Price = prev.Price
		}
		if row.Quantity == nil {
			row.Quantity = prev.Quantity
		}
		if row.Active == nil {
			row.Active = prev.Active
		}
		bySKU[row.SKU] = row
	}
	return skus, bySKU
}

func rowUpdates(row models.ProductRow, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{"updated_at": now}
	if row.Name != "" {
		updates["name"] = row.Name
	}
	if row.Description != nil {
		updates["description"] = *row.Description
	}
	if row.Price != nil {
		updates["price"] = *row.Price
	}
	if row.Quantity != nil {
		updates["quantity"] = *row.Quantity
	}
	return updates
}

func newProduct(row models.ProductRow, now time.Time) models.Product {
	p := models.Product{
		SKU:         row.SKU,
		Name:        row.Name,
		Description: row.Description,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Name == "" {
		p.Name = row.SKU
	}
	if row.Price != nil {
		p.Price = *row.Price
	}
	if row.Quantity != nil {
		p.Quantity = *row.Quantity
	}
	if row.Active != nil {
		p.Active = *row.Active
	}
	return p
}
