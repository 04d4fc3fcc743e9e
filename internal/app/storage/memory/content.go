package memory

import (
	"context"
	"sort"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/content"
	"github.com/brandloom/storefront/internal/app/storage"
)

func (s *Store) UpsertBanner(_ context.Context, b content.Banner) (content.Banner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = s.nextIDLocked()
		b.CreatedAt = now
	} else if existing, ok := s.banners[b.ID]; ok {
		b.CreatedAt = existing.CreatedAt
	} else {
		return content.Banner{}, storage.ErrNotFound
	}
	b.UpdatedAt = now
	s.banners[b.ID] = b
	return b, nil
}

func (s *Store) DeleteBanner(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.banners[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.banners, id)
	return nil
}

func (s *Store) ListBanners(_ context.Context) ([]content.Banner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]content.Banner, 0, len(s.banners))
	for _, b := range s.banners {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position == out[j].Position {
			return out[i].ID < out[j].ID
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (s *Store) GetLegalPage(_ context.Context, kind content.LegalKind) (content.LegalPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, ok := s.legal[kind]
	if !ok {
		return content.LegalPage{}, storage.ErrNotFound
	}
	return page, nil
}

func (s *Store) PutLegalPage(_ context.Context, page content.LegalPage) (content.LegalPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page.UpdatedAt = time.Now().UTC()
	s.legal[page.Kind] = page
	return page, nil
}

func (s *Store) UpsertBlog(_ context.Context, b content.Blog) (content.Blog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.blogs {
		if id != b.ID && existing.Slug == b.Slug {
			return content.Blog{}, storage.ErrConflict
		}
	}
	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = s.nextIDLocked()
		b.CreatedAt = now
	} else if existing, ok := s.blogs[b.ID]; ok {
		b.CreatedAt = existing.CreatedAt
	} else {
		return content.Blog{}, storage.ErrNotFound
	}
	b.UpdatedAt = now
	s.blogs[b.ID] = b
	return b, nil
}

func (s *Store) GetBlog(_ context.Context, id string) (content.Blog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blogs[id]
	if !ok {
		return content.Blog{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetBlogBySlug(_ context.Context, slug string) (content.Blog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.blogs {
		if b.Slug == slug {
			return b, nil
		}
	}
	return content.Blog{}, storage.ErrNotFound
}

func (s *Store) ListBlogs(_ context.Context, publishedOnly bool) ([]content.Blog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []content.Blog
	for _, b := range s.blogs {
		if publishedOnly && !b.Published {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
