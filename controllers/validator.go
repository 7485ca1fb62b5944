package controllers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"product-importer/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Pagination limits
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// RequestValidator handles all input validation
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

// BindJSON decodes the request body into dst and validates it.
func (rv *RequestValidator) BindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperrors.BadRequest("Invalid request body: " + err.Error())
	}
	if err := rv.validate.Struct(dst); err != nil {
		return apperrors.BadRequest(describeValidation(err))
	}
	return nil
}

// ParsePagination validates page (>= 1) and page_size (1..100, default 20).
func (rv *RequestValidator) ParsePagination(c *gin.Context) (int, int, error) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 0, 0, apperrors.BadRequest("page must be an integer >= 1")
	}

	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(DefaultPageSize)))
	if err != nil || pageSize < 1 || pageSize > MaxPageSize {
		return 0, 0, apperrors.BadRequest(fmt.Sprintf("page_size must be an integer between 1 and %d", MaxPageSize))
	}
	return page, pageSize, nil
}

// ParseOptionalBool reads a boolean query parameter; absent gives nil.
func (rv *RequestValidator) ParseOptionalBool(c *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid boolean value for '%s'", name))
	}
	return &v, nil
}

// ParseID reads a positive integer path parameter.
func (rv *RequestValidator) ParseID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.BadRequest(fmt.Sprintf("invalid %s", name))
	}
	return uint(id), nil
}

// IsValidCSVFile checks the upload name ends in .csv
func (rv *RequestValidator) IsValidCSVFile(file *multipart.FileHeader) bool {
	return strings.EqualFold(filepath.Ext(file.Filename), ".csv")
}

// ValidateFileSize checks if file size is within limits
func (rv *RequestValidator) ValidateFileSize(size, maxBytes int64) error {
	if size > maxBytes {
		return apperrors.BadRequest(fmt.Sprintf("File too large. Maximum size is %dMB", maxBytes/(1024*1024)))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed on '%s=%s'", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return "Validation failed: " + strings.Join(parts, "; ")
}
