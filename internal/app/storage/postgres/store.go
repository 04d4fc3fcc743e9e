package postgres

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/brandloom/storefront/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.BrandStore = (*Store)(nil)
var _ storage.CatalogStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.ContentStore = (*Store)(nil)
var _ storage.SupportStore = (*Store)(nil)
var _ storage.MarketingStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// mapError translates driver errors into storage sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return storage.ErrConflict
		case "23503":
			return storage.ErrNotFound
		}
	}
	return err
}

// requireChanged reports ErrStale when a conditional update matched no row.
// Callers check existence first, so no match means the status moved on.
func requireChanged(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrStale
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
