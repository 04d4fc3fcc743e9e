package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/permissions"
)

func TestNamedCacheKeys(t *testing.T) {
	c := NewCaches(NewLocalKV(0), TTLs{}, logging.NewDiscard())

	assert.Equal(t, "legal:terms", c.Legal.Key("terms"))
	assert.Equal(t, "user:u1", c.User.Key("u1"))
	assert.Equal(t, "brand:acme", c.Brand.Key("acme"))
	assert.Equal(t, "tags:all", c.Tags.Key(KeyAllTags))
	assert.Equal(t, "products:first100", c.First100.Key(KeyFirst100))
	assert.Equal(t, "banners:active", c.Banners.Key(KeyActive))
	assert.Equal(t, "member:b1:u1", c.Member.Key(MemberKey("b1", "u1")))
}

func TestNamedCachesShareKV(t *testing.T) {
	ctx := context.Background()
	kv := NewLocalKV(0)
	c := NewCaches(kv, TTLs{Tags: time.Minute}, logging.NewDiscard())

	tags, err := c.Tags.Get(ctx, KeyAllTags, func(context.Context) ([]catalog.Tag, error) {
		return []catalog.Tag{{Slug: "summer", Name: "Summer"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, tags, 1)

	member, err := c.Member.Get(ctx, MemberKey("b1", "u1"), func(context.Context) (brand.Member, error) {
		return brand.Member{BrandID: "b1", UserID: "u1", Permissions: permissions.RoleStaff}, nil
	})
	require.NoError(t, err)
	assert.True(t, member.Permissions.Has(permissions.ManageOrders))

	assert.Equal(t, 2, kv.Len())
}
