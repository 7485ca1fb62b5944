package models

import (
	"strings"
	"time"
)

// Product is the GORM model persisted in Postgres.
type Product struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SKU         string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"sku"`
	Name        string    `gorm:"type:varchar(255);not null;index" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`
	Price       float64   `gorm:"not null;default:0" json:"price"`
	Quantity    int       `gorm:"not null;default:0" json:"quantity"`
	Active      bool      `gorm:"not null;index" json:"active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProductRow is one normalized record handed to the batch upsert.
// Nil fields keep the stored value on update.
type ProductRow struct {
	SKU         string
	Name        string
	Description *string
	Price       *float64
	Quantity    *int
	Active      *bool
}

// NormalizeSKU trims and lowercases a sku before any comparison or write.
func NormalizeSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

// CreateProductRequest is the payload for POST /api/products.
type CreateProductRequest struct {
	SKU         string  `json:"sku" validate:"required,max=100"`
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description *string `json:"description"`
	Price       float64 `json:"price" validate:"gte=0"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
	Active      *bool   `json:"active"`
}

// UpdateProductRequest is the payload for PUT /api/products/:id. Only non-nil fields are applied.
type UpdateProductRequest struct {
	SKU         *string  `json:"sku" validate:"omitempty,max=100"`
	Name        *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Quantity    *int     `json:"quantity" validate:"omitempty,gte=0"`
	Active      *bool    `json:"active"`
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	Page     int
	PageSize int
	Search   string
	Active   *bool
}

// ProductListResponse is the paginated product listing.
type ProductListResponse struct {
	Items      []Product `json:"items"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}
