package memory

import (
	"fmt"
	"sync"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/domain/content"
	"github.com/brandloom/storefront/internal/app/domain/marketing"
	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/app/domain/support"
	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	users     map[string]user.User
	brands    map[string]brand.Brand
	members   map[string]brand.Member
	apiKeys   map[string]brand.APIKey
	products  map[string]catalog.Product
	tags      map[string]catalog.Tag
	orders    map[string]order.Order
	banners   map[string]content.Banner
	legal     map[content.LegalKind]content.LegalPage
	blogs     map[string]content.Blog
	tickets   map[string]support.Ticket
	waitlist  map[string]support.WaitlistEntry
	campaigns map[string]marketing.Campaign
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.BrandStore = (*Store)(nil)
var _ storage.CatalogStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.ContentStore = (*Store)(nil)
var _ storage.SupportStore = (*Store)(nil)
var _ storage.MarketingStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:    1,
		users:     make(map[string]user.User),
		brands:    make(map[string]brand.Brand),
		members:   make(map[string]brand.Member),
		apiKeys:   make(map[string]brand.APIKey),
		products:  make(map[string]catalog.Product),
		tags:      make(map[string]catalog.Tag),
		orders:    make(map[string]order.Order),
		banners:   make(map[string]content.Banner),
		legal:     make(map[content.LegalKind]content.LegalPage),
		blogs:     make(map[string]content.Blog),
		tickets:   make(map[string]support.Ticket),
		waitlist:  make(map[string]support.WaitlistEntry),
		campaigns: make(map[string]marketing.Campaign),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func memberKey(brandID, userID string) string {
	return brandID + "/" + userID
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	return append([]string(nil), src...)
}

func cloneProduct(p catalog.Product) catalog.Product {
	p.Images = cloneStrings(p.Images)
	p.Tags = cloneStrings(p.Tags)
	return p
}

func cloneOrder(o order.Order) order.Order {
	o.Items = append([]order.Item(nil), o.Items...)
	return o
}

func cloneCampaign(c marketing.Campaign) marketing.Campaign {
	c.TemplateParams = cloneStrings(c.TemplateParams)
	return c
}
