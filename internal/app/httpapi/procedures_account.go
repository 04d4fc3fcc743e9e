package httpapi

import (
	"context"
	"strings"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/app/services/brands"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/permissions"
	"github.com/brandloom/storefront/internal/rpc"
)

func (s *Server) accountProcedures() []rpc.Procedure {
	return []rpc.Procedure{
		rpc.Query("user.me", rpc.Authed(), func(ctx context.Context, _ rpc.Empty) (user.User, error) {
			return s.caller(ctx)
		}),
	}
}

// =============================================================================
// Brands
// =============================================================================

type brandAccessResult struct {
	BrandID     string   `json:"brand_id"`
	Permissions []string `json:"permissions"`
	Admin       bool     `json:"admin"`
}

type settingsInput struct {
	brandRef
	brands.Settings
}

type memberInput struct {
	brandRef
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions,omitempty"`
}

func (in *memberInput) Validate() error {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return errors.InvalidInput("user_id is required")
	}
	return nil
}

type apiKeyInput struct {
	brandRef
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type apiKeyResult struct {
	Key brand.APIKey `json:"key"`
	// Secret is returned once and never stored in plaintext.
	Secret string `json:"secret"`
}

func (s *Server) brandProcedures() []rpc.Procedure {
	b := s.app.Brands
	return []rpc.Procedure{
		rpc.Mutation("brand.apply", rpc.Authed(), func(ctx context.Context, in brands.Application) (brand.Brand, error) {
			return b.Apply(ctx, callerID(ctx), in)
		}),
		rpc.Query("brand.mine", rpc.Authed(), func(ctx context.Context, _ rpc.Empty) ([]brand.Brand, error) {
			return b.Mine(ctx, callerID(ctx))
		}),
		rpc.Query("brand.list", rpc.Public(), func(ctx context.Context, _ rpc.Empty) ([]brand.Brand, error) {
			return b.List(ctx, brand.StatusApproved)
		}),
		rpc.Query("brand.get", rpc.Public(), func(ctx context.Context, in slugInput) (brand.Brand, error) {
			return b.Storefront(ctx, in.Slug)
		}),

		rpc.Query("brand.access", rpc.Brand(0), func(ctx context.Context, in brandRef) (brandAccessResult, error) {
			access, _ := rpc.BrandAccessFrom(ctx)
			return brandAccessResult{
				BrandID:     access.BrandID,
				Permissions: access.Permissions.Names(),
				Admin:       access.Admin,
			}, nil
		}),
		rpc.Query("brand.settings.get", rpc.Brand(0), func(ctx context.Context, in brandRef) (brand.Brand, error) {
			return b.Get(ctx, in.BrandID)
		}),
		rpc.Mutation("brand.settings.update", rpc.Brand(permissions.ManageBrand), func(ctx context.Context, in settingsInput) (brand.Brand, error) {
			return b.UpdateSettings(ctx, in.BrandID, in.Settings)
		}),

		rpc.Query("brand.members.list", rpc.Brand(permissions.ManageMembers), func(ctx context.Context, in brandRef) ([]brand.Member, error) {
			return b.Members(ctx, in.BrandID)
		}),
		rpc.Mutation("brand.members.add", rpc.Brand(permissions.ManageMembers), func(ctx context.Context, in memberInput) (brand.Member, error) {
			perms, err := grantable(ctx, in.Permissions)
			if err != nil {
				return brand.Member{}, err
			}
			return b.AddMember(ctx, in.BrandID, in.UserID, perms)
		}),
		rpc.Mutation("brand.members.update", rpc.Brand(permissions.ManageMembers), func(ctx context.Context, in memberInput) (brand.Member, error) {
			perms, err := grantable(ctx, in.Permissions)
			if err != nil {
				return brand.Member{}, err
			}
			return b.UpdateMember(ctx, in.BrandID, in.UserID, perms)
		}),
		rpc.Mutation("brand.members.remove", rpc.Brand(permissions.ManageMembers), func(ctx context.Context, in memberInput) (rpc.OK, error) {
			if err := b.RemoveMember(ctx, in.BrandID, in.UserID); err != nil {
				return rpc.OK{}, err
			}
			return rpc.OK{OK: true}, nil
		}),

		rpc.Query("brand.apiKeys.list", rpc.Brand(permissions.ManageBrand), func(ctx context.Context, in brandRef) ([]brand.APIKey, error) {
			return b.APIKeys(ctx, in.BrandID)
		}),
		rpc.Mutation("brand.apiKeys.create", rpc.Brand(permissions.ManageBrand), func(ctx context.Context, in apiKeyInput) (apiKeyResult, error) {
			perms, err := grantable(ctx, in.Permissions)
			if err != nil {
				return apiKeyResult{}, err
			}
			key, secret, err := b.CreateAPIKey(ctx, in.BrandID, in.Name, perms)
			if err != nil {
				return apiKeyResult{}, err
			}
			return apiKeyResult{Key: key, Secret: secret}, nil
		}),
		rpc.Mutation("brand.apiKeys.revoke", rpc.Brand(permissions.ManageBrand), func(ctx context.Context, in brandIDInput) (rpc.OK, error) {
			if err := b.RevokeAPIKey(ctx, in.BrandID, in.ID); err != nil {
				return rpc.OK{}, err
			}
			return rpc.OK{OK: true}, nil
		}),
	}
}
