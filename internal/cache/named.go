package cache

import (
	"time"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/domain/content"
	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/logging"
)

// Fixed keys of the singleton entries.
const (
	KeyAllTags  = "all"
	KeyFirst100 = "first100"
	KeyActive   = "active"
)

// TTLs configures expiry per named cache. Zero values fall back to defaults.
type TTLs struct {
	Legal    time.Duration
	User     time.Duration
	Brand    time.Duration
	Tags     time.Duration
	First100 time.Duration
	Banners  time.Duration
	Member   time.Duration
}

func (t TTLs) withDefaults() TTLs {
	def := func(v, d time.Duration) time.Duration {
		if v <= 0 {
			return d
		}
		return v
	}
	return TTLs{
		Legal:    def(t.Legal, 24*time.Hour),
		User:     def(t.User, 15*time.Minute),
		Brand:    def(t.Brand, time.Hour),
		Tags:     def(t.Tags, time.Hour),
		First100: def(t.First100, 5*time.Minute),
		Banners:  def(t.Banners, 10*time.Minute),
		Member:   def(t.Member, 5*time.Minute),
	}
}

// Caches holds the named caches shared by the services.
type Caches struct {
	Legal    *Cache[content.LegalPage]
	User     *Cache[user.User]
	Brand    *Cache[brand.Brand]
	Tags     *Cache[[]catalog.Tag]
	First100 *Cache[[]catalog.Product]
	Banners  *Cache[[]content.Banner]
	Member   *Cache[brand.Member]
}

// NewCaches builds every named cache over one KV.
func NewCaches(kv KV, ttls TTLs, log *logging.Logger) *Caches {
	if log == nil {
		log = logging.NewDefault("cache")
	}
	ttls = ttls.withDefaults()
	return &Caches{
		Legal:    New[content.LegalPage](kv, "legal", "legal:", ttls.Legal, log),
		User:     New[user.User](kv, "user", "user:", ttls.User, log),
		Brand:    New[brand.Brand](kv, "brand", "brand:", ttls.Brand, log),
		Tags:     New[[]catalog.Tag](kv, "tags", "tags:", ttls.Tags, log),
		First100: New[[]catalog.Product](kv, "first100", "products:", ttls.First100, log),
		Banners:  New[[]content.Banner](kv, "banners", "banners:", ttls.Banners, log),
		Member:   New[brand.Member](kv, "member", "member:", ttls.Member, log),
	}
}

// MemberKey is the member cache key of userID within brandID.
func MemberKey(brandID, userID string) string {
	return brandID + ":" + userID
}
