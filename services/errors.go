package services

import (
	"errors"

	"product-importer/apperrors"
	"product-importer/repository"
)

// notFoundOr maps repository.ErrNotFound to a 404 with message and anything else to a 500.
func notFoundOr(err error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(message)
	}
	return apperrors.Internal("Database query error", err)
}
