package brands

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/app/storage/memory"
	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/permissions"
)

// flakyKV is a local KV whose deletes fail while down is set.
type flakyKV struct {
	*cache.LocalKV
	down bool
}

func (f *flakyKV) Delete(ctx context.Context, keys ...string) error {
	if f.down {
		return stderrors.New("cache unreachable")
	}
	return f.LocalKV.Delete(ctx, keys...)
}

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	svc, store, _ := newServiceWithKV(t)
	return svc, store
}

func newServiceWithKV(t *testing.T) (*Service, *memory.Store, *flakyKV) {
	t.Helper()
	store := memory.New()
	kv := &flakyKV{LocalKV: cache.NewLocalKV(0)}
	caches := cache.NewCaches(kv, cache.TTLs{}, logging.NewDiscard())
	svc := New(store, store, caches, logging.NewDiscard())
	svc.hashCost = bcrypt.MinCost
	return svc, store, kv
}

func apply(t *testing.T, svc *Service, owner, slug string) brand.Brand {
	t.Helper()
	b, err := svc.Apply(context.Background(), owner, Application{
		Name: "Acme", Slug: slug, ContactEmail: "team@acme.test",
	})
	require.NoError(t, err)
	return b
}

func TestApplyCreatesPendingBrandWithOwner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	b := apply(t, svc, "u1", "Acme-Co")
	assert.Equal(t, brand.StatusPending, b.Status)
	assert.Equal(t, "acme-co", b.Slug)

	perms, err := svc.MemberPermissions(ctx, b.ID, "u1")
	require.NoError(t, err)
	assert.True(t, perms.IsOwner())

	_, err = svc.Apply(ctx, "u2", Application{Name: "Other", Slug: "acme-co", ContactEmail: "o@o.test"})
	assert.True(t, errors.IsCode(err, errors.CodeConflict), "duplicate slug: %v", err)

	_, err = svc.Apply(ctx, "u2", Application{Name: "Bad", Slug: "no", ContactEmail: "o@o.test"})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestApprovalFlow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	b := apply(t, svc, "u1", "acme")

	_, err := svc.Storefront(ctx, "acme")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound), "pending brand must be hidden")

	_, err = svc.Suspend(ctx, b.ID, "")
	assert.True(t, errors.IsCode(err, errors.CodeConflict), "cannot suspend pending brand")

	approved, err := svc.Approve(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, brand.StatusApproved, approved.Status)

	got, err := svc.Storefront(ctx, "acme")
	require.NoError(t, err, "approval must invalidate the brand cache")
	assert.Equal(t, b.ID, got.ID)

	_, err = svc.Suspend(ctx, b.ID, "chargebacks")
	require.NoError(t, err)
	_, err = svc.Storefront(ctx, "acme")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestRejectRequiresReason(t *testing.T) {
	svc, _ := newService(t)
	b := apply(t, svc, "u1", "acme")

	_, err := svc.Reject(context.Background(), b.ID, " ")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	rejected, err := svc.Reject(context.Background(), b.ID, "incomplete documents")
	require.NoError(t, err)
	assert.Equal(t, "incomplete documents", rejected.RejectReason)
}

func TestMembersKeepLastOwner(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	b := apply(t, svc, "owner", "acme")
	_, _ = store.UpsertUser(ctx, user.User{ID: "staff"})
	_, _ = store.UpsertUser(ctx, user.User{ID: "owner2"})

	_, err := svc.AddMember(ctx, b.ID, "ghost", permissions.RoleStaff)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	_, err = svc.AddMember(ctx, b.ID, "staff", permissions.RoleStaff)
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, b.ID, "staff", permissions.RoleViewer)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))

	err = svc.RemoveMember(ctx, b.ID, "owner")
	assert.True(t, errors.IsCode(err, errors.CodeConflict), "last owner must stay")
	_, err = svc.UpdateMember(ctx, b.ID, "owner", permissions.RoleManager)
	assert.True(t, errors.IsCode(err, errors.CodeConflict), "last owner cannot be downgraded")

	_, err = svc.AddMember(ctx, b.ID, "owner2", permissions.RoleOwner)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveMember(ctx, b.ID, "owner"))

	_, err = svc.MemberPermissions(ctx, b.ID, "owner")
	assert.Error(t, err, "removed member must not be served from cache")
}

func TestUpdateMemberRefreshesCache(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	b := apply(t, svc, "owner", "acme")
	_, _ = store.UpsertUser(ctx, user.User{ID: "staff"})
	_, err := svc.AddMember(ctx, b.ID, "staff", permissions.RoleViewer)
	require.NoError(t, err)

	perms, _ := svc.MemberPermissions(ctx, b.ID, "staff")
	assert.False(t, perms.Has(permissions.ManageOrders))

	_, err = svc.UpdateMember(ctx, b.ID, "staff", permissions.RoleStaff)
	require.NoError(t, err)
	perms, _ = svc.MemberPermissions(ctx, b.ID, "staff")
	assert.True(t, perms.Has(permissions.ManageOrders))
}

func TestRemoveMemberFailsWhileCacheKeepsAccess(t *testing.T) {
	svc, store, kv := newServiceWithKV(t)
	ctx := context.Background()
	b := apply(t, svc, "owner", "acme")
	_, _ = store.UpsertUser(ctx, user.User{ID: "staff"})
	_, err := svc.AddMember(ctx, b.ID, "staff", permissions.RoleStaff)
	require.NoError(t, err)
	_, err = svc.MemberPermissions(ctx, b.ID, "staff")
	require.NoError(t, err)

	kv.down = true
	err = svc.RemoveMember(ctx, b.ID, "staff")
	assert.True(t, errors.IsCode(err, errors.CodeInternal), "got %v", err)

	kv.down = false
	err = svc.RemoveMember(ctx, b.ID, "staff")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound), "retry finds the row already gone")
	_, err = svc.MemberPermissions(ctx, b.ID, "staff")
	assert.Error(t, err, "retry must clear the cached membership")
}

func TestSuspendFailsWhenBrandCacheCannotBeCleared(t *testing.T) {
	svc, _, kv := newServiceWithKV(t)
	ctx := context.Background()
	b := apply(t, svc, "owner", "acme")
	_, err := svc.Approve(ctx, b.ID)
	require.NoError(t, err)

	kv.down = true
	_, err = svc.Suspend(ctx, b.ID, "chargebacks")
	assert.True(t, errors.IsCode(err, errors.CodeInternal), "got %v", err)
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	b := apply(t, svc, "owner", "acme")

	_, _, err := svc.CreateAPIKey(ctx, b.ID, "erp", permissions.Owner)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	key, plaintext, err := svc.CreateAPIKey(ctx, b.ID, "erp", permissions.ViewOrders|permissions.ManageProducts)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, "sk_"+key.Prefix+"_"))
	assert.NotContains(t, string(key.Hash), plaintext)

	_, err = svc.VerifyAPIKey(ctx, plaintext)
	assert.True(t, errors.IsCode(err, errors.CodeForbidden), "pending brand keys are unusable")

	_, err = svc.Approve(ctx, b.ID)
	require.NoError(t, err)
	got, err := svc.VerifyAPIKey(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.BrandID)

	_, err = svc.VerifyAPIKey(ctx, plaintext+"x")
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))
	_, err = svc.VerifyAPIKey(ctx, "not-a-key")
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))

	require.NoError(t, svc.RevokeAPIKey(ctx, b.ID, key.ID))
	_, err = svc.VerifyAPIKey(ctx, plaintext)
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))

	keys, err := svc.APIKeys(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}

func TestUpdateSettings(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	b := apply(t, svc, "owner", "acme")

	pixel := "12345"
	optIn := true
	updated, err := svc.UpdateSettings(ctx, b.ID, Settings{PixelID: &pixel, WhatsAppOptIn: &optIn})
	require.NoError(t, err)
	assert.Equal(t, "12345", updated.PixelID)
	assert.True(t, updated.WhatsAppOptIn)

	bad := "px-1"
	_, err = svc.UpdateSettings(ctx, b.ID, Settings{PixelID: &bad})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}
