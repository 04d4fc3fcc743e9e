package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/storage"
)

type productRow struct {
	ID          string         `db:"id"`
	BrandID     string         `db:"brand_id"`
	Slug        string         `db:"slug"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	PriceMinor  int64          `db:"price_minor"`
	Currency    string         `db:"currency"`
	Stock       int            `db:"stock"`
	Status      string         `db:"status"`
	Images      pq.StringArray `db:"images"`
	Tags        pq.StringArray `db:"tags"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func newProductRow(p catalog.Product) productRow {
	return productRow{
		ID: p.ID, BrandID: p.BrandID, Slug: p.Slug, Name: p.Name, Description: p.Description,
		PriceMinor: p.PriceMinor, Currency: p.Currency, Stock: p.Stock, Status: string(p.Status),
		Images: pq.StringArray(nonNil(p.Images)), Tags: pq.StringArray(nonNil(p.Tags)),
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (r productRow) toDomain() catalog.Product {
	return catalog.Product{
		ID: r.ID, BrandID: r.BrandID, Slug: r.Slug, Name: r.Name, Description: r.Description,
		PriceMinor: r.PriceMinor, Currency: r.Currency, Stock: r.Stock, Status: catalog.Status(r.Status),
		Images: []string(r.Images), Tags: []string(r.Tags), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

const productColumns = `id, brand_id, slug, name, description, price_minor, currency, stock, status,
	images, tags, created_at, updated_at`

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :brand_id, :slug, :name, :description, :price_minor, :currency, :stock, :status,
			:images, :tags, :created_at, :updated_at)
	`, newProductRow(p))
	if err != nil {
		return catalog.Product{}, mapError(err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	existing, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return catalog.Product{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	rows, err := s.db.NamedQueryContext(ctx, `
		UPDATE products
		SET slug = :slug, name = :name, description = :description, price_minor = :price_minor,
		    currency = :currency, status = :status, images = :images, tags = :tags,
		    updated_at = :updated_at
		WHERE id = :id
		RETURNING stock
	`, newProductRow(p))
	if err != nil {
		return catalog.Product{}, mapError(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return catalog.Product{}, mapError(err)
		}
		return catalog.Product{}, storage.ErrNotFound
	}
	if err := rows.Scan(&p.Stock); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	var row productRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE id = $1`, id); err != nil {
		return catalog.Product{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error) {
	var row productRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE slug = $1`, slug); err != nil {
		return catalog.Product{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetProducts(ctx context.Context, ids []string) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	return productsToDomain(rows), nil
}

func (s *Store) ListActiveProducts(ctx context.Context, f catalog.Filter) ([]catalog.Product, error) {
	cursorTime, cursorID, err := catalog.ParseCursor(f.Cursor)
	if err != nil {
		return nil, err
	}

	where := []string{"status = 'active'", "brand_id IN (SELECT id FROM brands WHERE status = 'approved')"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.BrandID != "" {
		where = append(where, "brand_id = "+arg(f.BrandID))
	}
	if f.Tag != "" {
		where = append(where, arg(f.Tag)+" = ANY(tags)")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + q + "%")
		where = append(where, fmt.Sprintf("(name ILIKE %s OR description ILIKE %s)", p, p))
	}
	if !cursorTime.IsZero() {
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(cursorTime), arg(cursorID)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
		SELECT %s FROM products
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT %s
	`, productColumns, strings.Join(where, " AND "), arg(limit+1))

	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return productsToDomain(rows), nil
}

func (s *Store) ListBrandProducts(ctx context.Context, brandID string) ([]catalog.Product, error) {
	var rows []productRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+productColumns+` FROM products
		WHERE brand_id = $1
		ORDER BY created_at DESC, id DESC
	`, brandID)
	if err != nil {
		return nil, err
	}
	return productsToDomain(rows), nil
}

func productsToDomain(rows []productRow) []catalog.Product {
	out := make([]catalog.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

func (s *Store) AdjustStock(ctx context.Context, changes []catalog.StockChange) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, c := range changes {
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = $3
			WHERE id = $1 AND stock + $2 >= 0
		`, c.ProductID, c.Delta, now)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return stockFailure(ctx, tx, c.ProductID)
		}
	}
	return tx.Commit()
}

func stockFailure(ctx context.Context, tx *sqlx.Tx, productID string) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID); err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrInsufficientStock
}

// Tags ------------------------------------------------------------------------

func (s *Store) UpsertTag(ctx context.Context, tag catalog.Tag) (catalog.Tag, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (slug, name) VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
	`, tag.Slug, tag.Name)
	if err != nil {
		return catalog.Tag{}, mapError(err)
	}
	return tag, nil
}

func (s *Store) ListTags(ctx context.Context) ([]catalog.Tag, error) {
	var rows []struct {
		Slug string `db:"slug"`
		Name string `db:"name"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT slug, name FROM tags ORDER BY slug`); err != nil {
		return nil, err
	}
	out := make([]catalog.Tag, 0, len(rows))
	for _, r := range rows {
		out = append(out, catalog.Tag{Slug: r.Slug, Name: r.Name})
	}
	return out, nil
}
