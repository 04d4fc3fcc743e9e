package memory

import (
	"context"
	"sort"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/app/storage"
)

func (s *Store) UpsertUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context, limit int) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
