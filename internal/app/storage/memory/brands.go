package memory

import (
	"context"
	"sort"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/storage"
)

func (s *Store) CreateBrand(_ context.Context, b brand.Brand) (brand.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.brands {
		if existing.Slug == b.Slug {
			return brand.Brand{}, storage.ErrConflict
		}
	}
	if b.ID == "" {
		b.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.brands[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBrand(_ context.Context, b brand.Brand) (brand.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.brands[b.ID]
	if !ok {
		return brand.Brand{}, storage.ErrNotFound
	}
	for id, existing := range s.brands {
		if id != b.ID && existing.Slug == b.Slug {
			return brand.Brand{}, storage.ErrConflict
		}
	}
	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.brands[b.ID] = b
	return b, nil
}

func (s *Store) GetBrand(_ context.Context, id string) (brand.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.brands[id]
	if !ok {
		return brand.Brand{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetBrandBySlug(_ context.Context, slug string) (brand.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.brands {
		if b.Slug == slug {
			return b, nil
		}
	}
	return brand.Brand{}, storage.ErrNotFound
}

func (s *Store) ListBrands(_ context.Context, status brand.Status) ([]brand.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]brand.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		if status == "" || b.Status == status {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Members ---------------------------------------------------------------------

func (s *Store) UpsertMember(_ context.Context, m brand.Member) (brand.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.brands[m.BrandID]; !ok {
		return brand.Member{}, storage.ErrNotFound
	}
	key := memberKey(m.BrandID, m.UserID)
	now := time.Now().UTC()
	if existing, ok := s.members[key]; ok {
		m.CreatedAt = existing.CreatedAt
	} else {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.members[key] = m
	return m, nil
}

func (s *Store) GetMember(_ context.Context, brandID, userID string) (brand.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberKey(brandID, userID)]
	if !ok {
		return brand.Member{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *Store) ListMembers(_ context.Context, brandID string) ([]brand.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []brand.Member
	for _, m := range s.members {
		if m.BrandID == brandID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListMemberships(_ context.Context, userID string) ([]brand.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []brand.Member
	for _, m := range s.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BrandID < out[j].BrandID })
	return out, nil
}

func (s *Store) DeleteMember(_ context.Context, brandID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey(brandID, userID)
	if _, ok := s.members[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.members, key)
	return nil
}

// API keys --------------------------------------------------------------------

func (s *Store) CreateAPIKey(_ context.Context, key brand.APIKey) (brand.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.apiKeys {
		if existing.Prefix == key.Prefix {
			return brand.APIKey{}, storage.ErrConflict
		}
	}
	if key.ID == "" {
		key.ID = s.nextIDLocked()
	}
	key.CreatedAt = time.Now().UTC()
	key.Hash = append([]byte(nil), key.Hash...)
	s.apiKeys[key.ID] = key
	return key, nil
}

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) (brand.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.apiKeys {
		if k.Prefix == prefix {
			return k, nil
		}
	}
	return brand.APIKey{}, storage.ErrNotFound
}

func (s *Store) ListAPIKeys(_ context.Context, brandID string) ([]brand.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []brand.APIKey
	for _, k := range s.apiKeys {
		if k.BrandID == brandID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, brandID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[id]
	if !ok || k.BrandID != brandID {
		return storage.ErrNotFound
	}
	k.RevokedAt = &at
	s.apiKeys[id] = k
	return nil
}

func (s *Store) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[id]
	if !ok {
		return storage.ErrNotFound
	}
	k.LastUsedAt = &at
	s.apiKeys[id] = k
	return nil
}
