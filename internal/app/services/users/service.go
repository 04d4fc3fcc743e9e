// Package users keeps the local copy of identities issued by the auth
// provider.
package users

import (
	"context"
	"strings"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/app/services"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

// Service syncs users from verified tokens and resolves their role.
type Service struct {
	store  storage.UserStore
	cache  *cache.Cache[user.User]
	admins map[string]struct{}
	log    *logging.Logger
}

// New constructs the user service. adminEmails grants the admin role.
func New(store storage.UserStore, c *cache.Cache[user.User], adminEmails []string, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("users")
	}
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &Service{store: store, cache: c, admins: admins, log: log}
}

// EnsureUser returns the local user for a verified identity, creating or
// refreshing it when the token carries new details.
func (s *Service) EnsureUser(ctx context.Context, id user.Identity) (user.User, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return user.User{}, errors.InvalidToken(nil)
	}

	existing, err := s.Get(ctx, id.Subject)
	found := err == nil
	if err != nil && !errors.IsCode(err, errors.CodeNotFound) {
		return user.User{}, err
	}

	want := user.User{
		ID:    id.Subject,
		Email: strings.ToLower(strings.TrimSpace(id.Email)),
		Name:  strings.TrimSpace(id.Name),
		Phone: strings.TrimSpace(id.Phone),
		Role:  user.RoleCustomer,
	}
	if found {
		want.Role = existing.Role
		want.CreatedAt = existing.CreatedAt
		if want.Name == "" {
			want.Name = existing.Name
		}
		if want.Phone == "" {
			want.Phone = existing.Phone
		}
	}
	if s.isAdminEmail(want.Email) {
		want.Role = user.RoleAdmin
	}

	if found && sameProfile(existing, want) {
		return existing, nil
	}

	saved, err := s.store.UpsertUser(ctx, want)
	if err != nil {
		return user.User{}, err
	}
	s.cache.Set(ctx, saved.ID, saved)
	if !found {
		s.log.WithField("user_id", saved.ID).WithField("role", saved.Role).Info("user created")
	}
	return saved, nil
}

// Get returns a user through the user cache.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.cache.Get(ctx, id, func(ctx context.Context) (user.User, error) {
		return s.store.GetUser(ctx, id)
	})
	if err != nil {
		return user.User{}, services.StoreError(err, "user", id)
	}
	return u, nil
}

// List returns the most recent users.
func (s *Service) List(ctx context.Context, limit int) ([]user.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListUsers(ctx, limit)
}

// SetRole changes a user's platform role. Allowlisted admins cannot be
// demoted here since the next sign-in would restore the role.
func (s *Service) SetRole(ctx context.Context, id string, role user.Role) (user.User, error) {
	if role != user.RoleAdmin && role != user.RoleCustomer {
		return user.User{}, errors.InvalidInputf("unknown role %q", role)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if role == user.RoleCustomer && s.isAdminEmail(u.Email) {
		return user.User{}, errors.Conflict("user is on the admin allowlist")
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	saved, err := s.store.UpsertUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		return user.User{}, errors.Internal("role saved but the cached user could not be cleared; retry", err).
			WithDetails("user_id", id)
	}
	s.log.WithContext(ctx).WithField("target_user", id).WithField("role", role).Info("user role changed")
	return saved, nil
}

func (s *Service) isAdminEmail(email string) bool {
	if email == "" {
		return false
	}
	_, ok := s.admins[email]
	return ok
}

func sameProfile(a, b user.User) bool {
	return a.Email == b.Email && a.Name == b.Name && a.Phone == b.Phone && a.Role == b.Role
}
