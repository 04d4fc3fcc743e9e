package httpapi

import (
	"context"
	"strings"

	"github.com/brandloom/storefront/internal/app/domain/content"
	"github.com/brandloom/storefront/internal/app/domain/support"
	contentsvc "github.com/brandloom/storefront/internal/app/services/content"
	supportsvc "github.com/brandloom/storefront/internal/app/services/support"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/permissions"
	"github.com/brandloom/storefront/internal/rpc"
)

type legalInput struct {
	Kind content.LegalKind `json:"kind"`
}

type blogSaveInput struct {
	// ID is empty when creating.
	ID string `json:"id,omitempty"`
	contentsvc.BlogInput
}

type publishInput struct {
	ID        string `json:"id"`
	Published bool   `json:"published"`
}

func (s *Server) contentProcedures() []rpc.Procedure {
	c := s.app.Content
	return []rpc.Procedure{
		rpc.Query("banner.active", rpc.Public(), func(ctx context.Context, _ rpc.Empty) ([]content.Banner, error) {
			return c.ActiveBanners(ctx)
		}),
		rpc.Query("legal.get", rpc.Public(), func(ctx context.Context, in legalInput) (content.LegalPage, error) {
			return c.LegalPage(ctx, in.Kind)
		}),
		rpc.Query("blog.list", rpc.Public(), func(ctx context.Context, _ rpc.Empty) ([]content.Blog, error) {
			return c.Blogs(ctx, false)
		}),
		rpc.Query("blog.get", rpc.Public(), func(ctx context.Context, in slugInput) (content.Blog, error) {
			return c.PublishedBlog(ctx, in.Slug)
		}),

		rpc.Query("admin.banners.list", rpc.Admin(), func(ctx context.Context, _ rpc.Empty) ([]content.Banner, error) {
			return c.AllBanners(ctx)
		}),
		rpc.Mutation("admin.banners.save", rpc.Admin(), func(ctx context.Context, in content.Banner) (content.Banner, error) {
			return c.SaveBanner(ctx, in)
		}),
		rpc.Mutation("admin.banners.delete", rpc.Admin(), func(ctx context.Context, in idInput) (rpc.OK, error) {
			if err := c.DeleteBanner(ctx, in.ID); err != nil {
				return rpc.OK{}, err
			}
			return rpc.OK{OK: true}, nil
		}),
		rpc.Mutation("admin.legal.put", rpc.Admin(), func(ctx context.Context, in content.LegalPage) (content.LegalPage, error) {
			return c.PutLegalPage(ctx, callerID(ctx), in)
		}),
		rpc.Query("admin.blogs.list", rpc.Admin(), func(ctx context.Context, _ rpc.Empty) ([]content.Blog, error) {
			return c.Blogs(ctx, true)
		}),
		rpc.Mutation("admin.blogs.save", rpc.Admin(), func(ctx context.Context, in blogSaveInput) (content.Blog, error) {
			return c.SaveBlog(ctx, callerID(ctx), in.ID, in.BlogInput)
		}),
		rpc.Mutation("admin.blogs.publish", rpc.Admin(), func(ctx context.Context, in publishInput) (content.Blog, error) {
			if in.ID == "" {
				return content.Blog{}, errors.InvalidInput("id is required")
			}
			return c.SetPublished(ctx, in.ID, in.Published)
		}),
	}
}

// =============================================================================
// Support
// =============================================================================

type ticketsInput struct {
	Status support.TicketStatus `json:"status,omitempty"`
}

type resolveInput struct {
	ID         string `json:"id"`
	Resolution string `json:"resolution"`
}

func (in *resolveInput) Validate() error {
	if strings.TrimSpace(in.ID) == "" {
		return errors.InvalidInput("id is required")
	}
	return nil
}

type waitlistInput struct {
	brandRef
	ProductID string `json:"product_id"`
}

func (s *Server) supportProcedures() []rpc.Procedure {
	sp := s.app.Support
	return []rpc.Procedure{
		rpc.Mutation("ticket.open", rpc.Authed(), func(ctx context.Context, in supportsvc.TicketInput) (support.Ticket, error) {
			u, err := s.caller(ctx)
			if err != nil {
				return support.Ticket{}, err
			}
			return sp.OpenTicket(ctx, u, in)
		}),
		rpc.Query("ticket.mine", rpc.Authed(), func(ctx context.Context, _ rpc.Empty) ([]support.Ticket, error) {
			return sp.MyTickets(ctx, callerID(ctx))
		}),
		rpc.Query("admin.tickets.list", rpc.Admin(), func(ctx context.Context, in ticketsInput) ([]support.Ticket, error) {
			return sp.AllTickets(ctx, in.Status)
		}),
		rpc.Mutation("admin.tickets.resolve", rpc.Admin(), func(ctx context.Context, in resolveInput) (support.Ticket, error) {
			return sp.Resolve(ctx, in.ID, in.Resolution)
		}),
		rpc.Mutation("admin.tickets.close", rpc.Admin(), func(ctx context.Context, in idInput) (support.Ticket, error) {
			return sp.Close(ctx, in.ID)
		}),

		rpc.Mutation("waitlist.join", rpc.Public(), func(ctx context.Context, in supportsvc.WaitlistInput) (support.WaitlistEntry, error) {
			return sp.JoinWaitlist(ctx, in)
		}),
		rpc.Query("brand.waitlist.list", rpc.Brand(permissions.ViewAnalytics), func(ctx context.Context, in waitlistInput) ([]support.WaitlistEntry, error) {
			if in.ProductID == "" {
				return nil, errors.InvalidInput("product_id is required")
			}
			return sp.Waitlist(ctx, in.BrandID, in.ProductID)
		}),
	}
}
