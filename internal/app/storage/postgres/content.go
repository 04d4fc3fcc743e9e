package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brandloom/storefront/internal/app/domain/content"
)

type bannerRow struct {
	ID        string     `db:"id"`
	Title     string     `db:"title"`
	ImageURL  string     `db:"image_url"`
	LinkURL   string     `db:"link_url"`
	Position  int        `db:"position"`
	Active    bool       `db:"active"`
	StartsAt  *time.Time `db:"starts_at"`
	EndsAt    *time.Time `db:"ends_at"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

const bannerColumns = `id, title, image_url, link_url, position, active, starts_at, ends_at, created_at, updated_at`

func (s *Store) UpsertBanner(ctx context.Context, b content.Banner) (content.Banner, error) {
	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.NewString()
		b.CreatedAt = now
	} else {
		existing, err := s.getBanner(ctx, b.ID)
		if err != nil {
			return content.Banner{}, err
		}
		b.CreatedAt = existing.CreatedAt
	}
	b.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO banners (`+bannerColumns+`)
		VALUES (:id, :title, :image_url, :link_url, :position, :active, :starts_at, :ends_at, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, image_url = EXCLUDED.image_url, link_url = EXCLUDED.link_url,
		    position = EXCLUDED.position, active = EXCLUDED.active, starts_at = EXCLUDED.starts_at,
		    ends_at = EXCLUDED.ends_at, updated_at = EXCLUDED.updated_at
	`, bannerRow(b))
	if err != nil {
		return content.Banner{}, mapError(err)
	}
	return b, nil
}

func (s *Store) getBanner(ctx context.Context, id string) (content.Banner, error) {
	var row bannerRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+bannerColumns+` FROM banners WHERE id = $1`, id); err != nil {
		return content.Banner{}, mapError(err)
	}
	return content.Banner(row), nil
}

func (s *Store) DeleteBanner(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM banners WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListBanners(ctx context.Context) ([]content.Banner, error) {
	var rows []bannerRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+bannerColumns+` FROM banners ORDER BY position, id`); err != nil {
		return nil, err
	}
	out := make([]content.Banner, 0, len(rows))
	for _, r := range rows {
		out = append(out, content.Banner(r))
	}
	return out, nil
}

// Legal pages -----------------------------------------------------------------

type legalRow struct {
	Kind      string    `db:"kind"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	UpdatedBy string    `db:"updated_by"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *Store) GetLegalPage(ctx context.Context, kind content.LegalKind) (content.LegalPage, error) {
	var row legalRow
	err := s.db.GetContext(ctx, &row, `SELECT kind, title, body, updated_by, updated_at FROM legal_pages WHERE kind = $1`, string(kind))
	if err != nil {
		return content.LegalPage{}, mapError(err)
	}
	return content.LegalPage{
		Kind: content.LegalKind(row.Kind), Title: row.Title, Body: row.Body,
		UpdatedBy: row.UpdatedBy, UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *Store) PutLegalPage(ctx context.Context, page content.LegalPage) (content.LegalPage, error) {
	page.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO legal_pages (kind, title, body, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind) DO UPDATE
		SET title = EXCLUDED.title, body = EXCLUDED.body, updated_by = EXCLUDED.updated_by,
		    updated_at = EXCLUDED.updated_at
	`, string(page.Kind), page.Title, page.Body, page.UpdatedBy, page.UpdatedAt)
	if err != nil {
		return content.LegalPage{}, mapError(err)
	}
	return page, nil
}

// Blogs -----------------------------------------------------------------------

type blogRow struct {
	ID          string     `db:"id"`
	Slug        string     `db:"slug"`
	Title       string     `db:"title"`
	Summary     string     `db:"summary"`
	Body        string     `db:"body"`
	CoverURL    string     `db:"cover_url"`
	AuthorID    string     `db:"author_id"`
	Published   bool       `db:"published"`
	PublishedAt *time.Time `db:"published_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

const blogColumns = `id, slug, title, summary, body, cover_url, author_id, published, published_at, created_at, updated_at`

func (s *Store) UpsertBlog(ctx context.Context, b content.Blog) (content.Blog, error) {
	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.NewString()
		b.CreatedAt = now
	} else {
		existing, err := s.GetBlog(ctx, b.ID)
		if err != nil {
			return content.Blog{}, err
		}
		b.CreatedAt = existing.CreatedAt
	}
	b.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO blogs (`+blogColumns+`)
		VALUES (:id, :slug, :title, :summary, :body, :cover_url, :author_id, :published, :published_at, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET slug = EXCLUDED.slug, title = EXCLUDED.title, summary = EXCLUDED.summary, body = EXCLUDED.body,
		    cover_url = EXCLUDED.cover_url, published = EXCLUDED.published,
		    published_at = EXCLUDED.published_at, updated_at = EXCLUDED.updated_at
	`, blogRow(b))
	if err != nil {
		return content.Blog{}, mapError(err)
	}
	return b, nil
}

func (s *Store) GetBlog(ctx context.Context, id string) (content.Blog, error) {
	var row blogRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+blogColumns+` FROM blogs WHERE id = $1`, id); err != nil {
		return content.Blog{}, mapError(err)
	}
	return content.Blog(row), nil
}

func (s *Store) GetBlogBySlug(ctx context.Context, slug string) (content.Blog, error) {
	var row blogRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+blogColumns+` FROM blogs WHERE slug = $1`, slug); err != nil {
		return content.Blog{}, mapError(err)
	}
	return content.Blog(row), nil
}

func (s *Store) ListBlogs(ctx context.Context, publishedOnly bool) ([]content.Blog, error) {
	var rows []blogRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+blogColumns+` FROM blogs
		WHERE ($1 = FALSE OR published)
		ORDER BY created_at DESC
	`, publishedOnly)
	if err != nil {
		return nil, err
	}
	out := make([]content.Blog, 0, len(rows))
	for _, r := range rows {
		out = append(out, content.Blog(r))
	}
	return out, nil
}
