// Package content manages banners, legal pages and blog posts.
package content

import (
	"context"
	"strings"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/content"
	"github.com/brandloom/storefront/internal/app/services"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

type Service struct {
	store   storage.ContentStore
	banners *cache.Cache[[]content.Banner]
	legal   *cache.Cache[content.LegalPage]
	log     *logging.Logger
	now     func() time.Time
}

func New(store storage.ContentStore, caches *cache.Caches, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("content")
	}
	return &Service{
		store:   store,
		banners: caches.Banners,
		legal:   caches.Legal,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------
// Banners

// SaveBanner creates a banner, or updates it when ID is set.
func (s *Service) SaveBanner(ctx context.Context, b content.Banner) (content.Banner, error) {
	b.Title = strings.TrimSpace(b.Title)
	b.ImageURL = strings.TrimSpace(b.ImageURL)
	if b.ImageURL == "" {
		return content.Banner{}, errors.InvalidInput("image_url is required")
	}
	if b.StartsAt != nil && b.EndsAt != nil && !b.EndsAt.After(*b.StartsAt) {
		return content.Banner{}, errors.InvalidInput("ends_at must be after starts_at")
	}
	saved, err := s.store.UpsertBanner(ctx, b)
	if err != nil {
		return content.Banner{}, services.StoreError(err, "banner", b.ID)
	}
	s.banners.Evict(ctx, cache.KeyActive)
	s.log.WithContext(ctx).WithField("banner_id", saved.ID).Info("banner saved")
	return saved, nil
}

func (s *Service) DeleteBanner(ctx context.Context, id string) error {
	if err := s.store.DeleteBanner(ctx, id); err != nil {
		return services.StoreError(err, "banner", id)
	}
	s.banners.Evict(ctx, cache.KeyActive)
	return nil
}

// AllBanners lists every banner for the admin screens.
func (s *Service) AllBanners(ctx context.Context) ([]content.Banner, error) {
	return s.store.ListBanners(ctx)
}

// ActiveBanners returns banners live now, in position order. The cached
// list holds every active banner; the display window is applied per call.
func (s *Service) ActiveBanners(ctx context.Context) ([]content.Banner, error) {
	all, err := s.banners.Get(ctx, cache.KeyActive, func(ctx context.Context) ([]content.Banner, error) {
		banners, err := s.store.ListBanners(ctx)
		if err != nil {
			return nil, err
		}
		active := make([]content.Banner, 0, len(banners))
		for _, b := range banners {
			if b.Active {
				active = append(active, b)
			}
		}
		return active, nil
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	live := make([]content.Banner, 0, len(all))
	for _, b := range all {
		if b.LiveAt(now) {
			live = append(live, b)
		}
	}
	return live, nil
}

// -----------------------------------------------------------------------------
// Legal pages

// LegalPage returns a legal page through the legal cache.
func (s *Service) LegalPage(ctx context.Context, kind content.LegalKind) (content.LegalPage, error) {
	if !kind.Valid() {
		return content.LegalPage{}, errors.NotFound("legal page", string(kind))
	}
	page, err := s.legal.Get(ctx, string(kind), func(ctx context.Context) (content.LegalPage, error) {
		return s.store.GetLegalPage(ctx, kind)
	})
	if err != nil {
		return content.LegalPage{}, services.StoreError(err, "legal page", string(kind))
	}
	return page, nil
}

// PutLegalPage replaces the text of a legal page.
func (s *Service) PutLegalPage(ctx context.Context, editorID string, page content.LegalPage) (content.LegalPage, error) {
	if !page.Kind.Valid() {
		return content.LegalPage{}, errors.InvalidInputf("unknown legal page %q", page.Kind)
	}
	page.Title = strings.TrimSpace(page.Title)
	if page.Title == "" || strings.TrimSpace(page.Body) == "" {
		return content.LegalPage{}, errors.InvalidInput("title and body are required")
	}
	page.UpdatedBy = editorID
	saved, err := s.store.PutLegalPage(ctx, page)
	if err != nil {
		return content.LegalPage{}, err
	}
	s.legal.Set(ctx, string(saved.Kind), saved)
	s.log.WithContext(ctx).WithField("kind", saved.Kind).Info("legal page updated")
	return saved, nil
}

// -----------------------------------------------------------------------------
// Blogs

// BlogInput carries the editable fields of a post.
type BlogInput struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Body     string `json:"body"`
	CoverURL string `json:"cover_url"`
}

// SaveBlog creates a draft post, or updates the post with id.
func (s *Service) SaveBlog(ctx context.Context, authorID, id string, in BlogInput) (content.Blog, error) {
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Title = strings.TrimSpace(in.Title)
	if !brand.ValidSlug(in.Slug) {
		return content.Blog{}, errors.InvalidInput("slug must be 3-48 characters of a-z, 0-9 and -")
	}
	if in.Title == "" || strings.TrimSpace(in.Body) == "" {
		return content.Blog{}, errors.InvalidInput("title and body are required")
	}

	post := content.Blog{AuthorID: authorID}
	if id != "" {
		existing, err := s.store.GetBlog(ctx, id)
		if err != nil {
			return content.Blog{}, services.StoreError(err, "blog", id)
		}
		post = existing
	}
	post.Slug = in.Slug
	post.Title = in.Title
	post.Summary = strings.TrimSpace(in.Summary)
	post.Body = in.Body
	post.CoverURL = strings.TrimSpace(in.CoverURL)

	saved, err := s.store.UpsertBlog(ctx, post)
	if err != nil {
		return content.Blog{}, services.StoreError(err, "blog", in.Slug)
	}
	return saved, nil
}

// SetPublished publishes or unpublishes a post.
func (s *Service) SetPublished(ctx context.Context, id string, published bool) (content.Blog, error) {
	post, err := s.store.GetBlog(ctx, id)
	if err != nil {
		return content.Blog{}, services.StoreError(err, "blog", id)
	}
	post.Published = published
	if published && post.PublishedAt == nil {
		at := s.now()
		post.PublishedAt = &at
	}
	saved, err := s.store.UpsertBlog(ctx, post)
	if err != nil {
		return content.Blog{}, services.StoreError(err, "blog", id)
	}
	s.log.WithContext(ctx).WithField("blog_id", id).WithField("published", published).Info("blog visibility changed")
	return saved, nil
}

// Blogs lists posts; drafts are included only when all is true.
func (s *Service) Blogs(ctx context.Context, all bool) ([]content.Blog, error) {
	return s.store.ListBlogs(ctx, !all)
}

// PublishedBlog returns a published post by slug.
func (s *Service) PublishedBlog(ctx context.Context, slug string) (content.Blog, error) {
	post, err := s.store.GetBlogBySlug(ctx, slug)
	if err != nil {
		return content.Blog{}, services.StoreError(err, "blog", slug)
	}
	if !post.Published {
		return content.Blog{}, errors.NotFound("blog", slug)
	}
	return post, nil
}
