package memory

import (
	"context"
	"sort"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/marketing"
	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/app/storage"
)

func (s *Store) CreateOrders(_ context.Context, orders []order.Order) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]order.Order, 0, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			o.ID = s.nextIDLocked()
		} else if _, exists := s.orders[o.ID]; exists {
			return nil, storage.ErrConflict
		}
		o.CreatedAt = now
		o.UpdatedAt = now
		out = append(out, cloneOrder(o))
	}
	for _, o := range out {
		s.orders[o.ID] = cloneOrder(o)
	}
	return out, nil
}

func (s *Store) UpdateOrder(_ context.Context, o order.Order, from order.Status) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.orders[o.ID]
	if !ok {
		return order.Order{}, storage.ErrNotFound
	}
	if original.Status != from {
		return order.Order{}, storage.ErrStale
	}
	o.CreatedAt = original.CreatedAt
	o.UpdatedAt = time.Now().UTC()
	s.orders[o.ID] = cloneOrder(o)
	return cloneOrder(o), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, storage.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) filterOrders(keep func(order.Order) bool) []order.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []order.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) ListOrdersByPayment(_ context.Context, paymentOrderID string) ([]order.Order, error) {
	return s.filterOrders(func(o order.Order) bool { return o.PaymentOrderID == paymentOrderID }), nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userID string) ([]order.Order, error) {
	return s.filterOrders(func(o order.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) ListOrdersByBrand(_ context.Context, brandID string, status order.Status) ([]order.Order, error) {
	return s.filterOrders(func(o order.Order) bool {
		return o.BrandID == brandID && (status == "" || o.Status == status)
	}), nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, status order.Status, limit int) ([]order.Order, error) {
	out := s.filterOrders(func(o order.Order) bool { return o.Status == status })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListCustomers(_ context.Context, brandID string) ([]marketing.Recipient, error) {
	paid := s.filterOrders(func(o order.Order) bool {
		return o.BrandID == brandID && o.PaidAt != nil
	})

	seen := make(map[string]bool)
	var out []marketing.Recipient
	for _, o := range paid {
		key := o.Address.Email + "|" + o.Address.Phone
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, marketing.Recipient{Name: o.Address.Name, Email: o.Address.Email, Phone: o.Address.Phone})
	}
	return out, nil
}
