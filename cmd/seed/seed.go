package main

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	app "github.com/brandloom/storefront/internal/app"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/domain/content"
	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/app/services/brands"
	catalogsvc "github.com/brandloom/storefront/internal/app/services/catalog"
	contentsvc "github.com/brandloom/storefront/internal/app/services/content"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

type seedUser struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
}

func (u seedUser) identity() user.Identity {
	return user.Identity{Subject: u.ID, Email: u.Email, Name: u.Name}
}

type seedProduct struct {
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	PriceMinor  int64    `yaml:"price_minor"`
	Currency    string   `yaml:"currency"`
	Stock       int      `yaml:"stock"`
	Status      string   `yaml:"status"`
	Images      []string `yaml:"images"`
	Tags        []string `yaml:"tags"`
}

type seedBrand struct {
	Owner        seedUser      `yaml:"owner"`
	Name         string        `yaml:"name"`
	Slug         string        `yaml:"slug"`
	Description  string        `yaml:"description"`
	ContactEmail string        `yaml:"contact_email"`
	ContactPhone string        `yaml:"contact_phone"`
	Approve      bool          `yaml:"approve"`
	Products     []seedProduct `yaml:"products"`
}

type seedBlog struct {
	Slug    string `yaml:"slug"`
	Title   string `yaml:"title"`
	Summary string `yaml:"summary"`
	Body    string `yaml:"body"`
	Cover   string `yaml:"cover_url"`
	Publish bool   `yaml:"publish"`
}

// seedFile is the YAML document accepted by -file.
type seedFile struct {
	Admin   *seedUser     `yaml:"admin"`
	Tags    []catalog.Tag `yaml:"tags"`
	Brands  []seedBrand   `yaml:"brands"`
	Legal   []struct {
		Kind  content.LegalKind `yaml:"kind"`
		Title string            `yaml:"title"`
		Body  string            `yaml:"body"`
	} `yaml:"legal"`
	Banners []struct {
		Title    string `yaml:"title"`
		ImageURL string `yaml:"image_url"`
		LinkURL  string `yaml:"link_url"`
		Position int    `yaml:"position"`
	} `yaml:"banners"`
	Blogs []seedBlog `yaml:"blogs"`
}

func parseSeed(r io.Reader) (*seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// summary counts what a run created and what already existed.
type summary struct {
	Created int
	Skipped int
}

func (s *summary) record(err error) error {
	switch {
	case err == nil:
		s.Created++
		return nil
	case errors.IsCode(err, errors.CodeConflict):
		s.Skipped++
		return nil
	default:
		return err
	}
}

// seed loads f through the application services. Records that already
// exist are left untouched, so running it twice is harmless.
func seed(ctx context.Context, a *app.Application, f *seedFile, log *logging.Logger) (summary, error) {
	var sum summary
	adminID := ""

	if f.Admin != nil {
		u, err := a.Users.EnsureUser(ctx, f.Admin.identity())
		if err != nil {
			return sum, fmt.Errorf("admin %s: %w", f.Admin.ID, err)
		}
		if !u.IsAdmin() {
			if _, err := a.Users.SetRole(ctx, u.ID, user.RoleAdmin); err != nil {
				return sum, fmt.Errorf("promote admin: %w", err)
			}
		}
		adminID = u.ID
	}

	for _, tag := range f.Tags {
		if err := sum.record(saveTag(ctx, a, tag)); err != nil {
			return sum, fmt.Errorf("tag %s: %w", tag.Slug, err)
		}
	}

	for _, sb := range f.Brands {
		if err := seedBrandEntry(ctx, a, sb, &sum, log); err != nil {
			return sum, fmt.Errorf("brand %s: %w", sb.Slug, err)
		}
	}

	for _, page := range f.Legal {
		_, err := a.Content.PutLegalPage(ctx, adminID, content.LegalPage{Kind: page.Kind, Title: page.Title, Body: page.Body})
		if err := sum.record(err); err != nil {
			return sum, fmt.Errorf("legal %s: %w", page.Kind, err)
		}
	}

	if len(f.Banners) > 0 {
		existing, err := a.Content.AllBanners(ctx)
		if err != nil {
			return sum, err
		}
		have := make(map[string]bool, len(existing))
		for _, b := range existing {
			have[b.ImageURL] = true
		}
		for _, b := range f.Banners {
			if have[b.ImageURL] {
				sum.Skipped++
				continue
			}
			_, err := a.Content.SaveBanner(ctx, content.Banner{
				Title:    b.Title,
				ImageURL: b.ImageURL,
				LinkURL:  b.LinkURL,
				Position: b.Position,
				Active:   true,
			})
			if err := sum.record(err); err != nil {
				return sum, fmt.Errorf("banner %s: %w", b.Title, err)
			}
		}
	}

	for _, post := range f.Blogs {
		saved, err := a.Content.SaveBlog(ctx, adminID, "", contentsvc.BlogInput{
			Slug:     post.Slug,
			Title:    post.Title,
			Summary:  post.Summary,
			Body:     post.Body,
			CoverURL: post.Cover,
		})
		if err := sum.record(err); err != nil {
			return sum, fmt.Errorf("blog %s: %w", post.Slug, err)
		}
		if err == nil && post.Publish {
			if _, err := a.Content.SetPublished(ctx, saved.ID, true); err != nil {
				return sum, fmt.Errorf("publish %s: %w", post.Slug, err)
			}
		}
	}
	return sum, nil
}

// saveTag reports an existing tag as a conflict so reruns count it skipped.
func saveTag(ctx context.Context, a *app.Application, tag catalog.Tag) error {
	tags, err := a.Catalog.Tags(ctx)
	if err != nil {
		return err
	}
	for _, t := range tags {
		if t.Slug == tag.Slug {
			return errors.Conflict("tag already exists")
		}
	}
	_, err = a.Catalog.SaveTag(ctx, tag)
	return err
}

func seedBrandEntry(ctx context.Context, a *app.Application, sb seedBrand, sum *summary, log *logging.Logger) error {
	owner, err := a.Users.EnsureUser(ctx, sb.Owner.identity())
	if err != nil {
		return fmt.Errorf("owner %s: %w", sb.Owner.ID, err)
	}

	b, err := a.Brands.Apply(ctx, owner.ID, brands.Application{
		Name:         sb.Name,
		Slug:         sb.Slug,
		Description:  sb.Description,
		ContactEmail: sb.ContactEmail,
		ContactPhone: sb.ContactPhone,
	})
	if errors.IsCode(err, errors.CodeConflict) {
		sum.Skipped++
		if b, err = a.Brands.BySlug(ctx, sb.Slug); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		sum.Created++
	}

	if sb.Approve {
		if _, err := a.Brands.Approve(ctx, b.ID); err != nil && !errors.IsCode(err, errors.CodeConflict) {
			return fmt.Errorf("approve: %w", err)
		}
	}

	for _, p := range sb.Products {
		_, err := a.Catalog.CreateProduct(ctx, b.ID, catalogsvc.ProductInput{
			Slug:        p.Slug,
			Name:        p.Name,
			Description: p.Description,
			PriceMinor:  p.PriceMinor,
			Currency:    p.Currency,
			Stock:       p.Stock,
			Status:      catalog.Status(p.Status),
			Images:      p.Images,
			Tags:        p.Tags,
		})
		if err := sum.record(err); err != nil {
			return fmt.Errorf("product %s: %w", p.Slug, err)
		}
	}
	log.WithContext(ctx).WithField("brand_id", b.ID).WithField("products", len(sb.Products)).Info("brand seeded")
	return nil
}
