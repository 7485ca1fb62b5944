package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"product-importer/apperrors"
	"product-importer/models"
	"product-importer/services"

	"github.com/gin-gonic/gin"
)

type ProductController struct {
	service   services.ProductService
	validator *RequestValidator
}

func NewProductController(service services.ProductService, validator *RequestValidator) *ProductController {
	return &ProductController{service: service, validator: validator}
}

// List returns a page of products filtered by search and active.
func (pc *ProductController) List(c *gin.Context) {
	page, pageSize, err := pc.validator.ParsePagination(c)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	active, err := pc.validator.ParseOptionalBool(c, "active")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	res, err := pc.service.List(c.Request.Context(), models.ProductFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(c.Query("search")),
		Active:   active,
	})
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (pc *ProductController) Get(c *gin.Context) {
	id, err := pc.validator.ParseID(c, "id")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	p, err := pc.service.Get(c.Request.Context(), id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *ProductController) Create(c *gin.Context) {
	var req models.CreateProductRequest
	if err := pc.validator.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}
	p, err := pc.service.Create(c.Request.Context(), &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (pc *ProductController) Update(c *gin.Context) {
	id, err := pc.validator.ParseID(c, "id")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	var req models.UpdateProductRequest
	if err := pc.validator.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}
	p, err := pc.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *ProductController) Delete(c *gin.Context) {
	id, err := pc.validator.ParseID(c, "id")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	if err := pc.service.Delete(c.Request.Context(), id); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully", "success": true})
}

// DeleteAll removes every product; the caller must pass confirm=true.
func (pc *ProductController) DeleteAll(c *gin.Context) {
	confirm, err := pc.validator.ParseOptionalBool(c, "confirm")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	if confirm == nil || !*confirm {
		apperrors.Respond(c, apperrors.BadRequest("Please confirm deletion by setting confirm=true"))
		return
	}

	count, err := pc.service.DeleteAll(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Successfully deleted %d products", count),
		"success": true,
	})
}
