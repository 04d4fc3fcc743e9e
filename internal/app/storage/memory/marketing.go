package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/marketing"
	"github.com/brandloom/storefront/internal/app/storage"
)

func (s *Store) CreateCampaign(_ context.Context, c marketing.Campaign) (marketing.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.campaigns[c.ID] = cloneCampaign(c)
	return cloneCampaign(c), nil
}

func (s *Store) UpdateCampaign(_ context.Context, c marketing.Campaign, from ...marketing.Status) (marketing.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.campaigns[c.ID]
	if !ok {
		return marketing.Campaign{}, storage.ErrNotFound
	}
	if !slices.Contains(from, original.Status) {
		return marketing.Campaign{}, storage.ErrStale
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.campaigns[c.ID] = cloneCampaign(c)
	return cloneCampaign(c), nil
}

func (s *Store) GetCampaign(_ context.Context, id string) (marketing.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return marketing.Campaign{}, storage.ErrNotFound
	}
	return cloneCampaign(c), nil
}

func (s *Store) ListCampaigns(_ context.Context, brandID string) ([]marketing.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []marketing.Campaign
	for _, c := range s.campaigns {
		if c.BrandID == brandID {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListDueCampaigns(_ context.Context, now time.Time) ([]marketing.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []marketing.Campaign
	for _, c := range s.campaigns {
		if c.Status == marketing.StatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return out, nil
}
