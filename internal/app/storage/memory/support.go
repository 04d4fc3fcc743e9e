package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/support"
	"github.com/brandloom/storefront/internal/app/storage"
)

func (s *Store) CreateTicket(_ context.Context, t support.Ticket) (support.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tickets[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTicket(_ context.Context, t support.Ticket) (support.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.tickets[t.ID]
	if !ok {
		return support.Ticket{}, storage.ErrNotFound
	}
	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.tickets[t.ID] = t
	return t, nil
}

func (s *Store) GetTicket(_ context.Context, id string) (support.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return support.Ticket{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTickets(_ context.Context, userID string) ([]support.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []support.Ticket
	for _, t := range s.tickets {
		if userID == "" || t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AddWaitlistEntry(_ context.Context, e support.WaitlistEntry) (support.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.waitlist {
		if existing.ProductID == e.ProductID && strings.EqualFold(existing.Email, e.Email) {
			return support.WaitlistEntry{}, storage.ErrConflict
		}
	}
	if e.ID == "" {
		e.ID = s.nextIDLocked()
	}
	e.CreatedAt = time.Now().UTC()
	s.waitlist[e.ID] = e
	return e, nil
}

func (s *Store) ListWaitlist(_ context.Context, productID string) ([]support.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []support.WaitlistEntry
	for _, e := range s.waitlist {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
