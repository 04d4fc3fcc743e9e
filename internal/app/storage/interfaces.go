package storage

import (
	"context"
	"errors"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/domain/content"
	"github.com/brandloom/storefront/internal/app/domain/marketing"
	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/app/domain/support"
	"github.com/brandloom/storefront/internal/app/domain/user"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("storage: conflict")
	// ErrStale is returned by conditional updates when the record no longer
	// has the status the caller read. Nothing is written.
	ErrStale = errors.New("storage: record changed concurrently")
	// ErrInsufficientStock is returned by AdjustStock when a product would go
	// below zero. No change is applied.
	ErrInsufficientStock = errors.New("storage: insufficient stock")
)

// UserStore persists users synced from the auth provider.
type UserStore interface {
	UpsertUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	ListUsers(ctx context.Context, limit int) ([]user.User, error)
}

// BrandStore persists brands, their members and API keys.
type BrandStore interface {
	CreateBrand(ctx context.Context, b brand.Brand) (brand.Brand, error)
	UpdateBrand(ctx context.Context, b brand.Brand) (brand.Brand, error)
	GetBrand(ctx context.Context, id string) (brand.Brand, error)
	GetBrandBySlug(ctx context.Context, slug string) (brand.Brand, error)
	ListBrands(ctx context.Context, status brand.Status) ([]brand.Brand, error)

	UpsertMember(ctx context.Context, m brand.Member) (brand.Member, error)
	GetMember(ctx context.Context, brandID, userID string) (brand.Member, error)
	ListMembers(ctx context.Context, brandID string) ([]brand.Member, error)
	ListMemberships(ctx context.Context, userID string) ([]brand.Member, error)
	DeleteMember(ctx context.Context, brandID, userID string) error

	CreateAPIKey(ctx context.Context, key brand.APIKey) (brand.APIKey, error)
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (brand.APIKey, error)
	ListAPIKeys(ctx context.Context, brandID string) ([]brand.APIKey, error)
	RevokeAPIKey(ctx context.Context, brandID, id string, at time.Time) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// CatalogStore persists products and tags.
type CatalogStore interface {
	CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	// UpdateProduct writes every field except Stock, which only AdjustStock
	// changes. The returned product carries the stored stock.
	UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error)
	GetProducts(ctx context.Context, ids []string) ([]catalog.Product, error)
	// ListActiveProducts returns up to f.Limit+1 active products after the
	// cursor, newest first, so callers can detect another page.
	ListActiveProducts(ctx context.Context, f catalog.Filter) ([]catalog.Product, error)
	ListBrandProducts(ctx context.Context, brandID string) ([]catalog.Product, error)
	// AdjustStock applies every change or none.
	AdjustStock(ctx context.Context, changes []catalog.StockChange) error

	UpsertTag(ctx context.Context, tag catalog.Tag) (catalog.Tag, error)
	ListTags(ctx context.Context) ([]catalog.Tag, error)
}

// OrderStore persists orders.
type OrderStore interface {
	// CreateOrders inserts all orders of one checkout atomically.
	CreateOrders(ctx context.Context, orders []order.Order) ([]order.Order, error)
	// UpdateOrder writes o only while the stored order still has status
	// from, and returns ErrStale otherwise.
	UpdateOrder(ctx context.Context, o order.Order, from order.Status) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	ListOrdersByPayment(ctx context.Context, paymentOrderID string) ([]order.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]order.Order, error)
	ListOrdersByBrand(ctx context.Context, brandID string, status order.Status) ([]order.Order, error)
	ListOrdersByStatus(ctx context.Context, status order.Status, limit int) ([]order.Order, error)
	// ListCustomers returns distinct contact details of paying customers.
	ListCustomers(ctx context.Context, brandID string) ([]marketing.Recipient, error)
}

// ContentStore persists banners, legal pages and blogs.
type ContentStore interface {
	UpsertBanner(ctx context.Context, b content.Banner) (content.Banner, error)
	DeleteBanner(ctx context.Context, id string) error
	ListBanners(ctx context.Context) ([]content.Banner, error)

	GetLegalPage(ctx context.Context, kind content.LegalKind) (content.LegalPage, error)
	PutLegalPage(ctx context.Context, page content.LegalPage) (content.LegalPage, error)

	UpsertBlog(ctx context.Context, b content.Blog) (content.Blog, error)
	GetBlog(ctx context.Context, id string) (content.Blog, error)
	GetBlogBySlug(ctx context.Context, slug string) (content.Blog, error)
	ListBlogs(ctx context.Context, publishedOnly bool) ([]content.Blog, error)
}

// SupportStore persists tickets and waitlists.
type SupportStore interface {
	CreateTicket(ctx context.Context, t support.Ticket) (support.Ticket, error)
	UpdateTicket(ctx context.Context, t support.Ticket) (support.Ticket, error)
	GetTicket(ctx context.Context, id string) (support.Ticket, error)
	// ListTickets lists tickets of userID, or all tickets when userID is empty.
	ListTickets(ctx context.Context, userID string) ([]support.Ticket, error)

	AddWaitlistEntry(ctx context.Context, e support.WaitlistEntry) (support.WaitlistEntry, error)
	ListWaitlist(ctx context.Context, productID string) ([]support.WaitlistEntry, error)
}

// MarketingStore persists campaigns.
type MarketingStore interface {
	CreateCampaign(ctx context.Context, c marketing.Campaign) (marketing.Campaign, error)
	// UpdateCampaign writes c only while the stored campaign has one of the
	// from statuses, and returns ErrStale otherwise.
	UpdateCampaign(ctx context.Context, c marketing.Campaign, from ...marketing.Status) (marketing.Campaign, error)
	GetCampaign(ctx context.Context, id string) (marketing.Campaign, error)
	ListCampaigns(ctx context.Context, brandID string) ([]marketing.Campaign, error)
	// ListDueCampaigns returns scheduled campaigns whose time has come.
	ListDueCampaigns(ctx context.Context, now time.Time) ([]marketing.Campaign, error)
}
