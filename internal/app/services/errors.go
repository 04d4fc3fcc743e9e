// Package services holds helpers shared by the domain services.
package services

import (
	stderrors "errors"

	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/errors"
)

// StoreError maps storage sentinel errors to API errors. Other errors pass
// through unchanged.
func StoreError(err error, resource, id string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, storage.ErrNotFound):
		return errors.NotFound(resource, id)
	case stderrors.Is(err, storage.ErrConflict):
		return errors.Conflict(resource + " already exists").WithDetails("id", id)
	case stderrors.Is(err, storage.ErrStale):
		return errors.Conflict(resource + " was changed by another request; reload and retry").WithDetails("id", id)
	case stderrors.Is(err, storage.ErrInsufficientStock):
		return errors.Conflict("Insufficient stock")
	}
	return err
}
