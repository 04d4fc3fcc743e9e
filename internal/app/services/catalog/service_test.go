package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/app/storage/memory"
	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

type fixture struct {
	svc     *Service
	store   *memory.Store
	brandID string
}

func newFixture(t *testing.T, status brand.Status) fixture {
	t.Helper()
	store := memory.New()
	b, err := store.CreateBrand(context.Background(), brand.Brand{Slug: "acme", Name: "Acme", Status: status})
	require.NoError(t, err)
	caches := cache.NewCaches(cache.NewLocalKV(0), cache.TTLs{}, logging.NewDiscard())
	return fixture{svc: New(store, store, caches, "inr", logging.NewDiscard()), store: store, brandID: b.ID}
}

func product(slug string, status catalog.Status) ProductInput {
	return ProductInput{Slug: slug, Name: "Tee " + slug, PriceMinor: 49900, Stock: 5, Status: status, Tags: []string{"Summer", "summer", " "}}
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t, brand.StatusApproved)
	ctx := context.Background()

	p, err := f.svc.CreateProduct(ctx, f.brandID, product("tee-1", ""))
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDraft, p.Status)
	assert.Equal(t, "INR", p.Currency)
	assert.Equal(t, []string{"summer"}, p.Tags)

	bad := product("tee-2", catalog.StatusActive)
	bad.PriceMinor = 0
	_, err = f.svc.CreateProduct(ctx, f.brandID, bad)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	_, err = f.svc.CreateProduct(ctx, f.brandID, product("tee-1", catalog.StatusActive))
	assert.True(t, errors.IsCode(err, errors.CodeConflict), "duplicate slug")

	_, err = f.svc.CreateProduct(ctx, "missing", product("tee-3", catalog.StatusDraft))
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestPendingBrandCannotActivate(t *testing.T) {
	f := newFixture(t, brand.StatusPending)
	_, err := f.svc.CreateProduct(context.Background(), f.brandID, product("tee-1", catalog.StatusActive))
	assert.True(t, errors.IsCode(err, errors.CodeConflict))

	_, err = f.svc.CreateProduct(context.Background(), f.brandID, product("tee-1", catalog.StatusDraft))
	assert.NoError(t, err)
}

func TestUpdateRequiresOwnership(t *testing.T) {
	f := newFixture(t, brand.StatusApproved)
	ctx := context.Background()
	p, err := f.svc.CreateProduct(ctx, f.brandID, product("tee-1", catalog.StatusActive))
	require.NoError(t, err)

	_, err = f.svc.UpdateProduct(ctx, "other-brand", p.ID, product("tee-1", catalog.StatusActive))
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	in := product("tee-1", catalog.StatusActive)
	in.PriceMinor = 59900
	updated, err := f.svc.UpdateProduct(ctx, f.brandID, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, int64(59900), updated.PriceMinor)
}

// reserveAfterRead takes units of stock right after the first product read,
// as a checkout running alongside an edit would.
type reserveAfterRead struct {
	storage.CatalogStore
	units int
	done  bool
}

func (s *reserveAfterRead) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	p, err := s.CatalogStore.GetProduct(ctx, id)
	if err == nil && !s.done {
		s.done = true
		if err := s.AdjustStock(ctx, []catalog.StockChange{{ProductID: id, Delta: -s.units}}); err != nil {
			return catalog.Product{}, err
		}
	}
	return p, err
}

func TestUpdateProductKeepsConcurrentReservation(t *testing.T) {
	f := newFixture(t, brand.StatusApproved)
	ctx := context.Background()
	p, err := f.svc.CreateProduct(ctx, f.brandID, product("tee-1", catalog.StatusActive))
	require.NoError(t, err)
	require.Equal(t, 5, p.Stock)

	f.svc.store = &reserveAfterRead{CatalogStore: f.store, units: 2}
	in := product("tee-1", catalog.StatusActive)
	in.Name = "Tee renamed"
	in.Stock = 8
	updated, err := f.svc.UpdateProduct(ctx, f.brandID, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Tee renamed", updated.Name)
	assert.Equal(t, 6, updated.Stock, "edit adds 3 on top of the 2 units reserved meanwhile")

	got, err := f.store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)
}

func TestListActivePagination(t *testing.T) {
	f := newFixture(t, brand.StatusApproved)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.svc.CreateProduct(ctx, f.brandID, product(fmt.Sprintf("tee-%d", i), catalog.StatusActive))
		require.NoError(t, err)
	}
	_, err := f.svc.CreateProduct(ctx, f.brandID, product("draft-1", catalog.StatusDraft))
	require.NoError(t, err)

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := f.svc.ListActive(ctx, catalog.Filter{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, p := range page.Items {
			assert.False(t, seen[p.ID], "product %s returned twice", p.ID)
			seen[p.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)

	_, err = f.svc.ListActive(ctx, catalog.Filter{Cursor: "garbage"})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestFirst100CacheInvalidatedOnWrite(t *testing.T) {
	f := newFixture(t, brand.StatusApproved)
	ctx := context.Background()

	first, err := f.svc.First100(ctx)
	require.NoError(t, err)
	assert.Empty(t, first)

	p, err := f.svc.CreateProduct(ctx, f.brandID, product("tee-1", catalog.StatusActive))
	require.NoError(t, err)
	first, err = f.svc.First100(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = f.svc.Archive(ctx, f.brandID, p.ID)
	require.NoError(t, err)
	first, err = f.svc.First100(ctx)
	require.NoError(t, err)
	assert.Empty(t, first)
}

func TestStorefrontHidesDrafts(t *testing.T) {
	f := newFixture(t, brand.StatusApproved)
	ctx := context.Background()
	_, err := f.svc.CreateProduct(ctx, f.brandID, product("tee-1", catalog.StatusDraft))
	require.NoError(t, err)

	_, err = f.svc.Storefront(ctx, "tee-1")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestSuspendedBrandProductsHidden(t *testing.T) {
	f := newFixture(t, brand.StatusApproved)
	ctx := context.Background()
	_, err := f.svc.CreateProduct(ctx, f.brandID, product("tee-1", catalog.StatusActive))
	require.NoError(t, err)

	b, err := f.store.GetBrand(ctx, f.brandID)
	require.NoError(t, err)
	b.Status = brand.StatusSuspended
	_, err = f.store.UpdateBrand(ctx, b)
	require.NoError(t, err)

	page, err := f.svc.ListActive(ctx, catalog.Filter{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = f.svc.Storefront(ctx, "tee-1")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestRestock(t *testing.T) {
	f := newFixture(t, brand.StatusApproved)
	ctx := context.Background()
	p, err := f.svc.CreateProduct(ctx, f.brandID, product("tee-1", catalog.StatusActive))
	require.NoError(t, err)

	updated, err := f.svc.Restock(ctx, f.brandID, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, updated.Stock)

	_, err = f.svc.Restock(ctx, f.brandID, p.ID, -100)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
}

func TestTagsCache(t *testing.T) {
	f := newFixture(t, brand.StatusApproved)
	ctx := context.Background()

	tags, err := f.svc.Tags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	_, err = f.svc.SaveTag(ctx, catalog.Tag{Slug: "Summer"})
	require.NoError(t, err)
	tags, err = f.svc.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, catalog.Tag{Slug: "summer", Name: "summer"}, tags[0])
}
