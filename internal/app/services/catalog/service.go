// Package catalog manages products and tags and serves storefront listings.
package catalog

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/services"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

const (
	// DefaultPageSize applies when a listing does not set a limit.
	DefaultPageSize = 24
	// MaxPageSize caps listing limits.
	MaxPageSize = 100
	// First100Size is the number of products in the home page listing.
	First100Size = 100
)

// Service implements product and tag management.
type Service struct {
	store    storage.CatalogStore
	brands   storage.BrandStore
	first100 *cache.Cache[[]catalog.Product]
	tags     *cache.Cache[[]catalog.Tag]
	currency string
	log      *logging.Logger
}

// New constructs the catalog service. currency is applied to products that
// do not name one.
func New(store storage.CatalogStore, brands storage.BrandStore, caches *cache.Caches, currency string, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("catalog")
	}
	if currency == "" {
		currency = "INR"
	}
	return &Service{
		store:    store,
		brands:   brands,
		first100: caches.First100,
		tags:     caches.Tags,
		currency: strings.ToUpper(currency),
		log:      log,
	}
}

// ProductInput carries the editable fields of a product.
type ProductInput struct {
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	PriceMinor  int64          `json:"price_minor"`
	Currency    string         `json:"currency"`
	Stock       int            `json:"stock"`
	Status      catalog.Status `json:"status"`
	Images      []string       `json:"images"`
	Tags        []string       `json:"tags"`
}

func (in *ProductInput) normalize(defaultCurrency string) error {
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	if in.Status == "" {
		in.Status = catalog.StatusDraft
	}
	switch {
	case in.Name == "":
		return errors.InvalidInput("name is required")
	case !brand.ValidSlug(in.Slug):
		return errors.InvalidInput("slug must be 3-48 characters of a-z, 0-9 and -")
	case in.PriceMinor <= 0:
		return errors.InvalidInput("price_minor must be positive")
	case in.Stock < 0:
		return errors.InvalidInput("stock cannot be negative")
	case !in.Status.Valid():
		return errors.InvalidInputf("unknown status %q", in.Status)
	case len(in.Currency) != 3:
		return errors.InvalidInput("currency must be an ISO 4217 code")
	}
	in.Images = compact(in.Images, false)
	in.Tags = compact(in.Tags, true)
	return nil
}

func compact(values []string, lower bool) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// CreateProduct adds a product to brandID's catalog. Products can only be
// activated for approved brands.
func (s *Service) CreateProduct(ctx context.Context, brandID string, in ProductInput) (catalog.Product, error) {
	if err := in.normalize(s.currency); err != nil {
		return catalog.Product{}, err
	}
	if err := s.checkBrand(ctx, brandID, in.Status); err != nil {
		return catalog.Product{}, err
	}
	created, err := s.store.CreateProduct(ctx, catalog.Product{
		BrandID:     brandID,
		Slug:        in.Slug,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		PriceMinor:  in.PriceMinor,
		Currency:    in.Currency,
		Stock:       in.Stock,
		Status:      in.Status,
		Images:      in.Images,
		Tags:        in.Tags,
	})
	if err != nil {
		return catalog.Product{}, services.StoreError(err, "product", in.Slug)
	}
	s.invalidateListings(ctx)
	s.log.WithContext(ctx).WithField("brand_id", brandID).WithField("product_id", created.ID).Info("product created")
	return created, nil
}

// UpdateProduct replaces the editable fields of a brand's product.
func (s *Service) UpdateProduct(ctx context.Context, brandID, id string, in ProductInput) (catalog.Product, error) {
	if err := in.normalize(s.currency); err != nil {
		return catalog.Product{}, err
	}
	p, err := s.owned(ctx, brandID, id)
	if err != nil {
		return catalog.Product{}, err
	}
	if err := s.checkBrand(ctx, brandID, in.Status); err != nil {
		return catalog.Product{}, err
	}
	p.Slug = in.Slug
	p.Name = in.Name
	p.Description = strings.TrimSpace(in.Description)
	p.PriceMinor = in.PriceMinor
	p.Currency = in.Currency
	p.Status = in.Status
	p.Images = in.Images
	p.Tags = in.Tags

	// The requested stock is applied as a delta against what was read, so
	// reservations made since then are kept.
	delta := in.Stock - p.Stock
	if delta != 0 {
		if err := s.store.AdjustStock(ctx, []catalog.StockChange{{ProductID: id, Delta: delta}}); err != nil {
			return catalog.Product{}, services.StoreError(err, "product", id)
		}
	}

	updated, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		if delta != 0 {
			if undoErr := s.store.AdjustStock(ctx, []catalog.StockChange{{ProductID: id, Delta: -delta}}); undoErr != nil {
				s.log.WithContext(ctx).WithError(undoErr).WithField("product_id", id).Error("revert stock edit failed")
			}
		}
		return catalog.Product{}, services.StoreError(err, "product", id)
	}
	s.invalidateListings(ctx)
	s.log.WithContext(ctx).WithField("product_id", id).WithField("status", updated.Status).Info("product updated")
	return updated, nil
}

// Archive removes a product from sale.
func (s *Service) Archive(ctx context.Context, brandID, id string) (catalog.Product, error) {
	p, err := s.owned(ctx, brandID, id)
	if err != nil {
		return catalog.Product{}, err
	}
	if p.Status == catalog.StatusArchived {
		return p, nil
	}
	p.Status = catalog.StatusArchived
	updated, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, services.StoreError(err, "product", id)
	}
	s.invalidateListings(ctx)
	s.log.WithContext(ctx).WithField("product_id", id).Info("product archived")
	return updated, nil
}

// Restock adds delta units to a product.
func (s *Service) Restock(ctx context.Context, brandID, id string, delta int) (catalog.Product, error) {
	if delta == 0 {
		return catalog.Product{}, errors.InvalidInput("delta must not be zero")
	}
	if _, err := s.owned(ctx, brandID, id); err != nil {
		return catalog.Product{}, err
	}
	if err := s.store.AdjustStock(ctx, []catalog.StockChange{{ProductID: id, Delta: delta}}); err != nil {
		return catalog.Product{}, services.StoreError(err, "product", id)
	}
	s.invalidateListings(ctx)
	return s.Get(ctx, id)
}

func (s *Service) owned(ctx context.Context, brandID, id string) (catalog.Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return catalog.Product{}, err
	}
	if p.BrandID != brandID {
		return catalog.Product{}, errors.NotFound("product", id)
	}
	return p, nil
}

func (s *Service) checkBrand(ctx context.Context, brandID string, status catalog.Status) error {
	b, err := s.brands.GetBrand(ctx, brandID)
	if err != nil {
		return services.StoreError(err, "brand", brandID)
	}
	if status == catalog.StatusActive && !b.Visible() {
		return errors.Conflict("products can only be activated once the brand is approved")
	}
	return nil
}

// Get returns any product by id.
func (s *Service) Get(ctx context.Context, id string) (catalog.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return catalog.Product{}, services.StoreError(err, "product", id)
	}
	return p, nil
}

// Storefront returns an active product of an approved brand by slug.
func (s *Service) Storefront(ctx context.Context, slug string) (catalog.Product, error) {
	p, err := s.store.GetProductBySlug(ctx, slug)
	if err != nil {
		return catalog.Product{}, services.StoreError(err, "product", slug)
	}
	if p.Status != catalog.StatusActive {
		return catalog.Product{}, errors.NotFound("product", slug)
	}
	b, err := s.brands.GetBrand(ctx, p.BrandID)
	if err != nil || !b.Visible() {
		return catalog.Product{}, errors.NotFound("product", slug)
	}
	return p, nil
}

// BrandProducts lists every product of a brand regardless of status.
func (s *Service) BrandProducts(ctx context.Context, brandID string) ([]catalog.Product, error) {
	return s.store.ListBrandProducts(ctx, brandID)
}

// ListActive returns one page of active products, newest first.
func (s *Service) ListActive(ctx context.Context, f catalog.Filter) (catalog.Page, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageSize
	case f.Limit > MaxPageSize:
		f.Limit = MaxPageSize
	}
	f.Tag = strings.ToLower(strings.TrimSpace(f.Tag))

	items, err := s.store.ListActiveProducts(ctx, f)
	if stderrors.Is(err, catalog.ErrInvalidCursor) {
		return catalog.Page{}, errors.InvalidInput("invalid cursor")
	}
	if err != nil {
		return catalog.Page{}, err
	}

	page := catalog.Page{Items: items}
	if len(items) > f.Limit {
		page.Items = items[:f.Limit]
		last := page.Items[len(page.Items)-1]
		page.NextCursor = catalog.EncodeCursor(last.CreatedAt, last.ID)
	}
	if page.Items == nil {
		page.Items = []catalog.Product{}
	}
	return page, nil
}

// First100 returns the newest active products for the home page through
// the first100 cache.
func (s *Service) First100(ctx context.Context) ([]catalog.Product, error) {
	return s.first100.Get(ctx, cache.KeyFirst100, func(ctx context.Context) ([]catalog.Product, error) {
		page, err := s.ListActive(ctx, catalog.Filter{Limit: First100Size})
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	})
}

// Tags returns every tag through the tag cache.
func (s *Service) Tags(ctx context.Context) ([]catalog.Tag, error) {
	return s.tags.Get(ctx, cache.KeyAllTags, func(ctx context.Context) ([]catalog.Tag, error) {
		tags, err := s.store.ListTags(ctx)
		if err != nil {
			return nil, err
		}
		if tags == nil {
			tags = []catalog.Tag{}
		}
		return tags, nil
	})
}

// SaveTag creates or renames a tag.
func (s *Service) SaveTag(ctx context.Context, tag catalog.Tag) (catalog.Tag, error) {
	tag.Slug = strings.ToLower(strings.TrimSpace(tag.Slug))
	tag.Name = strings.TrimSpace(tag.Name)
	if !brand.ValidSlug(tag.Slug) {
		return catalog.Tag{}, errors.InvalidInput("tag slug must be 3-48 characters of a-z, 0-9 and -")
	}
	if tag.Name == "" {
		tag.Name = tag.Slug
	}
	saved, err := s.store.UpsertTag(ctx, tag)
	if err != nil {
		return catalog.Tag{}, err
	}
	s.tags.Evict(ctx, cache.KeyAllTags)
	return saved, nil
}

// InvalidateListings drops cached product listings after stock or status
// changes made outside this service.
func (s *Service) InvalidateListings(ctx context.Context) {
	s.invalidateListings(ctx)
}

func (s *Service) invalidateListings(ctx context.Context) {
	s.first100.Evict(ctx, cache.KeyFirst100)
}
