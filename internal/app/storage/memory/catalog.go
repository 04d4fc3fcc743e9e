package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/storage"
)

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.Slug == p.Slug {
			return catalog.Product{}, storage.ErrConflict
		}
	}
	if p.ID == "" {
		p.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.products[p.ID]
	if !ok {
		return catalog.Product{}, storage.ErrNotFound
	}
	for id, existing := range s.products {
		if id != p.ID && existing.Slug == p.Slug {
			return catalog.Product{}, storage.ErrConflict
		}
	}
	p.Stock = original.Stock
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, storage.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *Store) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Slug == slug {
			return cloneProduct(p), nil
		}
	}
	return catalog.Product{}, storage.ErrNotFound
}

func (s *Store) GetProducts(_ context.Context, ids []string) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (s *Store) ListActiveProducts(_ context.Context, f catalog.Filter) ([]catalog.Product, error) {
	cursorTime, cursorID, err := catalog.ParseCursor(f.Cursor)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(f.Query))
	var out []catalog.Product
	for _, p := range s.products {
		if p.Status != catalog.StatusActive {
			continue
		}
		if f.BrandID != "" && p.BrandID != f.BrandID {
			continue
		}
		if b, ok := s.brands[p.BrandID]; ok && !b.Visible() {
			continue
		}
		if f.Tag != "" && !p.HasTag(f.Tag) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		if !cursorTime.IsZero() && !p.Before(cursorTime, cursorID) {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit+1 {
		out = out[:f.Limit+1]
	}
	return out, nil
}

func (s *Store) ListBrandProducts(_ context.Context, brandID string) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []catalog.Product
	for _, p := range s.products {
		if p.BrandID == brandID {
			out = append(out, cloneProduct(p))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(products []catalog.Product) {
	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID > products[j].ID
		}
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
}

func (s *Store) AdjustStock(_ context.Context, changes []catalog.StockChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]int, len(changes))
	for _, c := range changes {
		p, ok := s.products[c.ProductID]
		if !ok {
			return storage.ErrNotFound
		}
		current, seen := next[c.ProductID]
		if !seen {
			current = p.Stock
		}
		current += c.Delta
		if current < 0 {
			return storage.ErrInsufficientStock
		}
		next[c.ProductID] = current
	}

	now := time.Now().UTC()
	for id, stock := range next {
		p := s.products[id]
		p.Stock = stock
		p.UpdatedAt = now
		s.products[id] = p
	}
	return nil
}

// Tags ------------------------------------------------------------------------

func (s *Store) UpsertTag(_ context.Context, tag catalog.Tag) (catalog.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tags[tag.Slug] = tag
	return tag, nil
}

func (s *Store) ListTags(_ context.Context) ([]catalog.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}
