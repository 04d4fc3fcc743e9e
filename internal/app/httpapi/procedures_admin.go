package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/domain/marketing"
	"github.com/brandloom/storefront/internal/app/domain/user"
	marketingsvc "github.com/brandloom/storefront/internal/app/services/marketing"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/permissions"
	"github.com/brandloom/storefront/internal/rpc"
)

type campaignInput struct {
	brandRef
	marketingsvc.CampaignInput
}

type scheduleInput struct {
	brandRef
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

func (in *scheduleInput) Validate() error {
	if in.ID == "" {
		return errors.InvalidInput("id is required")
	}
	if in.At.IsZero() {
		return errors.InvalidInput("at is required")
	}
	return nil
}

func (s *Server) marketingProcedures() []rpc.Procedure {
	m := s.app.Marketing
	send := rpc.Brand(permissions.SendMarketing)
	return []rpc.Procedure{
		rpc.Query("brand.campaigns.list", send, func(ctx context.Context, in brandRef) ([]marketing.Campaign, error) {
			return m.List(ctx, in.BrandID)
		}),
		rpc.Query("brand.campaigns.get", send, func(ctx context.Context, in brandIDInput) (marketing.Campaign, error) {
			return m.Get(ctx, in.BrandID, in.ID)
		}),
		rpc.Mutation("brand.campaigns.create", send, func(ctx context.Context, in campaignInput) (marketing.Campaign, error) {
			return m.Create(ctx, in.BrandID, callerID(ctx), in.CampaignInput)
		}),
		rpc.Mutation("brand.campaigns.schedule", send, func(ctx context.Context, in scheduleInput) (marketing.Campaign, error) {
			return m.Schedule(ctx, in.BrandID, in.ID, in.At)
		}),
		rpc.Mutation("brand.campaigns.unschedule", send, func(ctx context.Context, in brandIDInput) (marketing.Campaign, error) {
			return m.Unschedule(ctx, in.BrandID, in.ID)
		}),
		rpc.Mutation("brand.campaigns.sendNow", send, func(ctx context.Context, in brandIDInput) (marketing.Campaign, error) {
			return m.SendNow(ctx, in.BrandID, in.ID)
		}),
	}
}

// =============================================================================
// Platform administration
// =============================================================================

type limitInput struct {
	Limit int `json:"limit,omitempty"`
}

type roleInput struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

type brandStatusInput struct {
	Status brand.Status `json:"status,omitempty"`
}

type reasonInput struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (in *reasonInput) Validate() error {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.ID == "" {
		return errors.InvalidInput("id is required")
	}
	return nil
}

type jobInput struct {
	Name string `json:"name"`
}

func (s *Server) adminProcedures() []rpc.Procedure {
	admin := rpc.Admin()
	return []rpc.Procedure{
		rpc.Query("admin.users.list", admin, func(ctx context.Context, in limitInput) ([]user.User, error) {
			return s.app.Users.List(ctx, in.Limit)
		}),
		rpc.Mutation("admin.users.setRole", admin, func(ctx context.Context, in roleInput) (user.User, error) {
			if in.UserID == "" {
				return user.User{}, errors.InvalidInput("user_id is required")
			}
			return s.app.Users.SetRole(ctx, in.UserID, in.Role)
		}),

		rpc.Query("admin.brands.list", admin, func(ctx context.Context, in brandStatusInput) ([]brand.Brand, error) {
			return s.app.Brands.List(ctx, in.Status)
		}),
		rpc.Mutation("admin.brands.approve", admin, func(ctx context.Context, in idInput) (brand.Brand, error) {
			return s.app.Brands.Approve(ctx, in.ID)
		}),
		rpc.Mutation("admin.brands.reject", admin, func(ctx context.Context, in reasonInput) (brand.Brand, error) {
			return s.app.Brands.Reject(ctx, in.ID, in.Reason)
		}),
		rpc.Mutation("admin.brands.suspend", admin, func(ctx context.Context, in reasonInput) (brand.Brand, error) {
			return s.app.Brands.Suspend(ctx, in.ID, in.Reason)
		}),

		rpc.Mutation("admin.tags.save", admin, func(ctx context.Context, in catalog.Tag) (catalog.Tag, error) {
			return s.app.Catalog.SaveTag(ctx, in)
		}),

		rpc.Query("admin.jobs.list", admin, func(context.Context, rpc.Empty) ([]string, error) {
			return s.app.Jobs(), nil
		}),
		rpc.Mutation("admin.jobs.run", admin, func(_ context.Context, in jobInput) (rpc.OK, error) {
			if err := s.app.RunJob(in.Name); err != nil {
				return rpc.OK{}, err
			}
			return rpc.OK{OK: true}, nil
		}),
		rpc.Query("admin.audit.list", admin, func(_ context.Context, in limitInput) ([]auditEntry, error) {
			return s.audit.listLimit(in.Limit), nil
		}),
	}
}
