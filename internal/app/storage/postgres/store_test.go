package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/domain/marketing"
	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/platform/migrations"
	"github.com/brandloom/storefront/internal/permissions"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestGetBrandNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM brands WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetBrand(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetProductScansArrays(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "brand_id", "slug", "name", "description", "price_minor", "currency", "stock", "status",
		"images", "tags", "created_at", "updated_at",
	}).AddRow("p1", "b1", "tee", "Tee", "", int64(49900), "INR", 4, "active", "{a.jpg,b.jpg}", "{summer}", now, now)

	mock.ExpectQuery(`SELECT .* FROM products WHERE id = \$1`).WithArgs("p1").WillReturnRows(rows)

	p, err := store.GetProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.PriceMinor != 49900 || p.Status != catalog.StatusActive {
		t.Fatalf("unexpected product: %+v", p)
	}
	if len(p.Images) != 2 || p.Images[1] != "b.jpg" || !p.HasTag("summer") {
		t.Fatalf("arrays not scanned: %+v", p)
	}
}

func TestAdjustStockInsufficient(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products SET stock = stock \+ \$2`).
		WithArgs("p1", -3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.AdjustStock(context.Background(), []catalog.StockChange{{ProductID: "p1", Delta: -3}})
	if !errors.Is(err, storage.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdjustStockCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products SET stock`).WithArgs("p1", -1, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE products SET stock`).WithArgs("p2", -2, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.AdjustStock(context.Background(), []catalog.StockChange{
		{ProductID: "p1", Delta: -1},
		{ProductID: "p2", Delta: -2},
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

var orderRowColumns = []string{
	"id", "user_id", "brand_id", "items", "subtotal_minor", "shipping_minor", "total_minor", "currency",
	"status", "address", "payment_order_id", "payment_id", "shipment_id", "awb", "courier", "label_url",
	"tracking_status", "return_shipment_id", "cancel_reason", "paid_at", "created_at", "updated_at",
}

func expectOrder(mock sqlmock.Sqlmock, id, status, items string) {
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).WithArgs(id).WillReturnRows(
		sqlmock.NewRows(orderRowColumns).AddRow(id, "u1", "b1", items, int64(100), int64(0), int64(100), "INR",
			status, `{}`, "pay_1", "", "", "", "", "", "", "", "", nil, now, now))
}

func TestUpdateOrderRequiresExpectedStatus(t *testing.T) {
	store, mock := newMockStore(t)

	expectOrder(mock, "o1", "paid", `[]`)
	mock.ExpectExec(`UPDATE orders SET .* WHERE id = \$12 AND status = \$13`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	o := order.Order{ID: "o1", Status: order.StatusCancelled}
	if _, err := store.UpdateOrder(context.Background(), o, order.StatusPending); !errors.Is(err, storage.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOrderRejectsCorruptItems(t *testing.T) {
	store, mock := newMockStore(t)
	expectOrder(mock, "o1", "pending", `{not json`)

	if _, err := store.GetOrder(context.Background(), "o1"); err == nil {
		t.Fatal("expected decode error for corrupt items")
	}
}

func TestUpdateCampaignClaimsFromStatuses(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM campaigns WHERE id = \$1`).WithArgs("c1").WillReturnRows(
		sqlmock.NewRows([]string{
			"id", "brand_id", "name", "channel", "audience", "product_id", "template_name", "template_params",
			"subject", "html_body", "status", "scheduled_at", "sent_at", "recipients", "delivered", "failed",
			"created_by", "created_at", "updated_at",
		}).AddRow("c1", "b1", "Sale", "email", "customers", "", "", "{}", "Hi", "<p>Hi</p>", "sending",
			nil, nil, 0, 0, 0, "u1", now, now))
	mock.ExpectExec(`WHERE id = \$\d+ AND status = ANY\(\$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	c := marketing.Campaign{ID: "c1", Status: marketing.StatusSending}
	_, err := store.UpdateCampaign(context.Background(), c, marketing.StatusDraft, marketing.StatusScheduled)
	if !errors.Is(err, storage.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestUpdateProductKeepsStoredStock(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM products WHERE id = \$1`).WithArgs("p1").WillReturnRows(
		sqlmock.NewRows([]string{
			"id", "brand_id", "slug", "name", "description", "price_minor", "currency", "stock", "status",
			"images", "tags", "created_at", "updated_at",
		}).AddRow("p1", "b1", "tee", "Tee", "", int64(49900), "INR", 4, "active", "{}", "{}", now, now))
	mock.ExpectQuery(`UPDATE products\s+SET slug = .* RETURNING stock`).
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(3))

	p, err := store.UpdateProduct(context.Background(), catalog.Product{ID: "p1", Slug: "tee", Name: "Tee v2", Stock: 40})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if p.Stock != 3 {
		t.Fatalf("stock = %d, want stored value 3", p.Stock)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateAPIKeyConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO brand_api_keys`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.CreateAPIKey(context.Background(), brand.APIKey{BrandID: "b1", Prefix: "abc", Permissions: permissions.RoleStaff})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListActiveProductsQuery(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`status = 'active' AND brand_id IN \(SELECT id FROM brands WHERE status = 'approved'\) AND brand_id = \$1 AND \$2 = ANY\(tags\)\s+ORDER BY created_at DESC, id DESC\s+LIMIT \$3`).
		WithArgs("b1", "summer", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.ListActiveProducts(context.Background(), catalog.Filter{BrandID: "b1", Tag: "summer", Limit: 2}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMemberPermissionsRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO brand_members`).
		WithArgs("b1", "u1", permissions.RoleOwner.Int64(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"brand_id", "user_id", "permissions", "created_at", "updated_at"}).
			AddRow("b1", "u1", permissions.RoleOwner.Int64(), now, now))

	m, err := store.UpsertMember(context.Background(), brand.Member{BrandID: "b1", UserID: "u1", Permissions: permissions.RoleOwner})
	if err != nil {
		t.Fatalf("upsert member: %v", err)
	}
	if !m.Permissions.IsOwner() {
		t.Fatalf("owner bit lost: %v", m.Permissions)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := migrations.Up(db.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)
	ctx := context.Background()
	slug := fmt.Sprintf("it-%d", time.Now().UnixNano())

	b, err := store.CreateBrand(ctx, brand.Brand{Slug: slug, Name: "Integration", OwnerID: "u1", Status: brand.StatusPending})
	if err != nil {
		t.Fatalf("create brand: %v", err)
	}
	p, err := store.CreateProduct(ctx, catalog.Product{BrandID: b.ID, Slug: slug + "-p", Name: "P", PriceMinor: 100, Currency: "INR", Stock: 2, Status: catalog.StatusActive})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := store.AdjustStock(ctx, []catalog.StockChange{{ProductID: p.ID, Delta: -3}}); !errors.Is(err, storage.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}
