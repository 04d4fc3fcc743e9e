// Package brands manages brand onboarding, membership and API keys.
package brands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/services"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/permissions"
)

// Service implements brand onboarding and administration.
type Service struct {
	store    storage.BrandStore
	users    storage.UserStore
	brands   *cache.Cache[brand.Brand]
	members  *cache.Cache[brand.Member]
	first100 *cache.Cache[[]catalog.Product]
	log      *logging.Logger
	// hashCost is lowered in tests.
	hashCost int
}

// New constructs the brand service.
func New(store storage.BrandStore, users storage.UserStore, caches *cache.Caches, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("brands")
	}
	return &Service{
		store:    store,
		users:    users,
		brands:   caches.Brand,
		members:  caches.Member,
		first100: caches.First100,
		log:      log,
		hashCost: bcrypt.DefaultCost,
	}
}

// Application is a request to open a brand.
type Application struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

func (a *Application) normalize() error {
	a.Name = strings.TrimSpace(a.Name)
	a.Slug = strings.ToLower(strings.TrimSpace(a.Slug))
	a.ContactEmail = strings.ToLower(strings.TrimSpace(a.ContactEmail))
	a.ContactPhone = strings.TrimSpace(a.ContactPhone)
	if a.Name == "" {
		return errors.InvalidInput("name is required")
	}
	if !brand.ValidSlug(a.Slug) {
		return errors.InvalidInput("slug must be 3-48 characters of a-z, 0-9 and -")
	}
	if _, err := mail.ParseAddress(a.ContactEmail); err != nil {
		return errors.InvalidInput("contact_email is invalid")
	}
	return nil
}

// Apply creates a pending brand owned by ownerID.
func (s *Service) Apply(ctx context.Context, ownerID string, app Application) (brand.Brand, error) {
	if err := app.normalize(); err != nil {
		return brand.Brand{}, err
	}
	created, err := s.store.CreateBrand(ctx, brand.Brand{
		Slug:         app.Slug,
		Name:         app.Name,
		Description:  strings.TrimSpace(app.Description),
		OwnerID:      ownerID,
		ContactEmail: app.ContactEmail,
		ContactPhone: app.ContactPhone,
		Status:       brand.StatusPending,
	})
	if err != nil {
		return brand.Brand{}, services.StoreError(err, "brand", app.Slug)
	}
	if _, err := s.store.UpsertMember(ctx, brand.Member{
		BrandID:     created.ID,
		UserID:      ownerID,
		Permissions: permissions.RoleOwner,
	}); err != nil {
		return brand.Brand{}, err
	}
	s.log.WithContext(ctx).WithField("brand_id", created.ID).WithField("slug", created.Slug).Info("brand application received")
	return created, nil
}

// Approve makes a pending or suspended brand visible.
func (s *Service) Approve(ctx context.Context, id string) (brand.Brand, error) {
	return s.transition(ctx, id, brand.StatusApproved, "", brand.StatusPending, brand.StatusSuspended, brand.StatusRejected)
}

// Reject declines a pending application.
func (s *Service) Reject(ctx context.Context, id, reason string) (brand.Brand, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return brand.Brand{}, errors.InvalidInput("reason is required")
	}
	return s.transition(ctx, id, brand.StatusRejected, reason, brand.StatusPending)
}

// Suspend hides an approved brand from the storefront.
func (s *Service) Suspend(ctx context.Context, id, reason string) (brand.Brand, error) {
	return s.transition(ctx, id, brand.StatusSuspended, strings.TrimSpace(reason), brand.StatusApproved)
}

func (s *Service) transition(ctx context.Context, id string, to brand.Status, reason string, from ...brand.Status) (brand.Brand, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return brand.Brand{}, err
	}
	allowed := false
	for _, st := range from {
		if b.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return brand.Brand{}, errors.Conflict("brand cannot move from " + string(b.Status) + " to " + string(to))
	}
	b.Status = to
	b.RejectReason = reason
	updated, err := s.store.UpdateBrand(ctx, b)
	if err != nil {
		return brand.Brand{}, services.StoreError(err, "brand", id)
	}
	s.first100.Evict(ctx, cache.KeyFirst100)
	if err := s.brands.Invalidate(ctx, updated.Slug); err != nil {
		return brand.Brand{}, staleCache("brand", id, err)
	}
	s.log.WithContext(ctx).WithField("brand_id", id).WithField("status", to).Info("brand status changed")
	return updated, nil
}

// Get returns a brand by id.
func (s *Service) Get(ctx context.Context, id string) (brand.Brand, error) {
	b, err := s.store.GetBrand(ctx, id)
	if err != nil {
		return brand.Brand{}, services.StoreError(err, "brand", id)
	}
	return b, nil
}

// BySlug returns a brand through the brand cache.
func (s *Service) BySlug(ctx context.Context, slug string) (brand.Brand, error) {
	b, err := s.brands.Get(ctx, slug, func(ctx context.Context) (brand.Brand, error) {
		return s.store.GetBrandBySlug(ctx, slug)
	})
	if err != nil {
		return brand.Brand{}, services.StoreError(err, "brand", slug)
	}
	return b, nil
}

// Storefront returns a brand only when it is visible to shoppers.
func (s *Service) Storefront(ctx context.Context, slug string) (brand.Brand, error) {
	b, err := s.BySlug(ctx, slug)
	if err != nil {
		return brand.Brand{}, err
	}
	if !b.Visible() {
		return brand.Brand{}, errors.NotFound("brand", slug)
	}
	return b, nil
}

// List returns brands with status, or all brands when status is empty.
func (s *Service) List(ctx context.Context, status brand.Status) ([]brand.Brand, error) {
	return s.store.ListBrands(ctx, status)
}

// Mine returns the brands userID belongs to.
func (s *Service) Mine(ctx context.Context, userID string) ([]brand.Brand, error) {
	memberships, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]brand.Brand, 0, len(memberships))
	for _, m := range memberships {
		b, err := s.store.GetBrand(ctx, m.BrandID)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Settings are the fields a brand manages itself.
type Settings struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	ContactPhone  *string `json:"contact_phone,omitempty"`
	LogoURL       *string `json:"logo_url,omitempty"`
	PixelID       *string `json:"pixel_id,omitempty"`
	WhatsAppOptIn *bool   `json:"whatsapp_opt_in,omitempty"`
}

// UpdateSettings applies the non-nil fields of in.
func (s *Service) UpdateSettings(ctx context.Context, id string, in Settings) (brand.Brand, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return brand.Brand{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return brand.Brand{}, errors.InvalidInput("name cannot be empty")
		}
		b.Name = name
	}
	if in.Description != nil {
		b.Description = strings.TrimSpace(*in.Description)
	}
	if in.ContactPhone != nil {
		b.ContactPhone = strings.TrimSpace(*in.ContactPhone)
	}
	if in.LogoURL != nil {
		b.LogoURL = strings.TrimSpace(*in.LogoURL)
	}
	if in.PixelID != nil {
		pixelID := strings.TrimSpace(*in.PixelID)
		if strings.Trim(pixelID, "0123456789") != "" {
			return brand.Brand{}, errors.InvalidInput("pixel_id must be numeric")
		}
		b.PixelID = pixelID
	}
	if in.WhatsAppOptIn != nil {
		b.WhatsAppOptIn = *in.WhatsAppOptIn
	}
	updated, err := s.store.UpdateBrand(ctx, b)
	if err != nil {
		return brand.Brand{}, services.StoreError(err, "brand", id)
	}
	if err := s.brands.Invalidate(ctx, updated.Slug); err != nil {
		return brand.Brand{}, staleCache("brand", id, err)
	}
	s.log.WithContext(ctx).WithField("brand_id", id).Info("brand settings updated")
	return updated, nil
}

// =============================================================================
// Members
// =============================================================================

// MemberPermissions returns the permissions userID holds within brandID,
// through the member cache.
func (s *Service) MemberPermissions(ctx context.Context, brandID, userID string) (permissions.Set, error) {
	m, err := s.members.Get(ctx, cache.MemberKey(brandID, userID), func(ctx context.Context) (brand.Member, error) {
		return s.store.GetMember(ctx, brandID, userID)
	})
	if err != nil {
		return 0, err
	}
	return m.Permissions, nil
}

// Members lists the members of a brand.
func (s *Service) Members(ctx context.Context, brandID string) ([]brand.Member, error) {
	return s.store.ListMembers(ctx, brandID)
}

// AddMember grants an existing user access to a brand.
func (s *Service) AddMember(ctx context.Context, brandID, userID string, perms permissions.Set) (brand.Member, error) {
	if perms == 0 {
		return brand.Member{}, errors.InvalidInput("permissions are required")
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return brand.Member{}, services.StoreError(err, "user", userID)
	}
	if _, err := s.store.GetMember(ctx, brandID, userID); err == nil {
		return brand.Member{}, errors.Conflict("user is already a member")
	}
	return s.saveMember(ctx, brand.Member{BrandID: brandID, UserID: userID, Permissions: perms})
}

// UpdateMember replaces a member's permissions. The last owner keeps the
// owner permission.
func (s *Service) UpdateMember(ctx context.Context, brandID, userID string, perms permissions.Set) (brand.Member, error) {
	if perms == 0 {
		return brand.Member{}, errors.InvalidInput("permissions are required; remove the member instead")
	}
	m, err := s.store.GetMember(ctx, brandID, userID)
	if err != nil {
		return brand.Member{}, services.StoreError(err, "member", userID)
	}
	if m.Permissions.IsOwner() && !perms.IsOwner() {
		if err := s.ensureAnotherOwner(ctx, brandID, userID); err != nil {
			return brand.Member{}, err
		}
	}
	m.Permissions = perms
	return s.saveMember(ctx, m)
}

// RemoveMember revokes access. The last owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, brandID, userID string) error {
	m, err := s.store.GetMember(ctx, brandID, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			// A retry after a failed invalidation lands here.
			if err := s.members.Invalidate(ctx, cache.MemberKey(brandID, userID)); err != nil {
				return staleCache("member", userID, err)
			}
		}
		return services.StoreError(err, "member", userID)
	}
	if m.Permissions.IsOwner() {
		if err := s.ensureAnotherOwner(ctx, brandID, userID); err != nil {
			return err
		}
	}
	if err := s.store.DeleteMember(ctx, brandID, userID); err != nil {
		return services.StoreError(err, "member", userID)
	}
	if err := s.members.Invalidate(ctx, cache.MemberKey(brandID, userID)); err != nil {
		return staleCache("member", userID, err)
	}
	s.log.WithContext(ctx).WithField("brand_id", brandID).WithField("member", userID).Info("member removed")
	return nil
}

func (s *Service) ensureAnotherOwner(ctx context.Context, brandID, userID string) error {
	members, err := s.store.ListMembers(ctx, brandID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.UserID != userID && m.Permissions.IsOwner() {
			return nil
		}
	}
	return errors.Conflict("brand must keep at least one owner")
}

func (s *Service) saveMember(ctx context.Context, m brand.Member) (brand.Member, error) {
	saved, err := s.store.UpsertMember(ctx, m)
	if err != nil {
		return brand.Member{}, services.StoreError(err, "brand", m.BrandID)
	}
	if err := s.members.Invalidate(ctx, cache.MemberKey(m.BrandID, m.UserID)); err != nil {
		return brand.Member{}, staleCache("member", m.UserID, err)
	}
	s.log.WithContext(ctx).WithField("brand_id", m.BrandID).
		WithField("member", m.UserID).
		WithField("permissions", saved.Permissions.String()).
		Info("member saved")
	return saved, nil
}

// =============================================================================
// API keys
// =============================================================================

const apiKeyScheme = "sk"

// CreateAPIKey issues a key for brandID. The returned plaintext is not stored
// and cannot be recovered.
func (s *Service) CreateAPIKey(ctx context.Context, brandID, name string, perms permissions.Set) (brand.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return brand.APIKey{}, "", errors.InvalidInput("name is required")
	}
	if perms == 0 {
		return brand.APIKey{}, "", errors.InvalidInput("permissions are required")
	}
	if perms.Has(permissions.Owner) || perms.Has(permissions.ManageMembers) {
		return brand.APIKey{}, "", errors.InvalidInput("API keys cannot manage members or hold owner permission")
	}
	if _, err := s.Get(ctx, brandID); err != nil {
		return brand.APIKey{}, "", err
	}

	prefix, err := randomHex(4)
	if err != nil {
		return brand.APIKey{}, "", errors.Internal("generate key", err)
	}
	secret, err := randomHex(32)
	if err != nil {
		return brand.APIKey{}, "", errors.Internal("generate key", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.hashCost)
	if err != nil {
		return brand.APIKey{}, "", errors.Internal("hash key", err)
	}

	key, err := s.store.CreateAPIKey(ctx, brand.APIKey{
		BrandID:     brandID,
		Name:        name,
		Prefix:      prefix,
		Hash:        hash,
		Permissions: perms,
	})
	if err != nil {
		return brand.APIKey{}, "", services.StoreError(err, "api key", prefix)
	}
	s.log.WithContext(ctx).WithField("brand_id", brandID).WithField("key_id", key.ID).Info("api key created")
	return key, apiKeyScheme + "_" + prefix + "_" + secret, nil
}

// VerifyAPIKey resolves a plaintext key. Revoked keys and keys of brands
// that are not approved are rejected.
func (s *Service) VerifyAPIKey(ctx context.Context, raw string) (brand.APIKey, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "_", 3)
	if len(parts) != 3 || parts[0] != apiKeyScheme || parts[1] == "" || parts[2] == "" {
		return brand.APIKey{}, errors.Unauthorized("malformed API key")
	}
	key, err := s.store.GetAPIKeyByPrefix(ctx, parts[1])
	if err != nil {
		return brand.APIKey{}, errors.Unauthorized("invalid API key")
	}
	if !key.Active() {
		return brand.APIKey{}, errors.Unauthorized("API key has been revoked")
	}
	if bcrypt.CompareHashAndPassword(key.Hash, []byte(parts[2])) != nil {
		return brand.APIKey{}, errors.Unauthorized("invalid API key")
	}
	b, err := s.Get(ctx, key.BrandID)
	if err != nil || !b.Visible() {
		return brand.APIKey{}, errors.Forbidden("brand is not active")
	}
	if err := s.store.TouchAPIKey(ctx, key.ID, time.Now().UTC()); err != nil {
		s.log.WithError(err).WithField("key_id", key.ID).Warn("record api key use failed")
	}
	return key, nil
}

// APIKeys lists the keys of a brand.
func (s *Service) APIKeys(ctx context.Context, brandID string) ([]brand.APIKey, error) {
	return s.store.ListAPIKeys(ctx, brandID)
}

// RevokeAPIKey disables a key.
func (s *Service) RevokeAPIKey(ctx context.Context, brandID, keyID string) error {
	if err := s.store.RevokeAPIKey(ctx, brandID, keyID, time.Now().UTC()); err != nil {
		return services.StoreError(err, "api key", keyID)
	}
	s.log.WithContext(ctx).WithField("brand_id", brandID).WithField("key_id", keyID).Info("api key revoked")
	return nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// staleCache reports a write that was stored while its cached copy, which
// access checks read, could not be cleared. Repeating the request clears it.
func staleCache(resource, id string, err error) error {
	return errors.Internal(resource+" saved but the cached copy could not be cleared; retry", err).
		WithDetails("id", id)
}
