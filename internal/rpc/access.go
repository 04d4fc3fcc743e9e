package rpc

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/middleware"
	"github.com/brandloom/storefront/internal/permissions"
)

// Middleware wraps a procedure handler.
type Middleware func(p Procedure, next Handler) Handler

// MemberResolver returns the permissions userID holds within brandID.
type MemberResolver interface {
	MemberPermissions(ctx context.Context, brandID, userID string) (permissions.Set, error)
}

// BrandAccess is the caller's resolved standing within a brand.
type BrandAccess struct {
	BrandID     string
	Permissions permissions.Set
	Admin       bool
}

type brandAccessKey struct{}

// BrandAccessFrom returns the access resolved for a Brand procedure.
func BrandAccessFrom(ctx context.Context) (BrandAccess, bool) {
	a, ok := ctx.Value(brandAccessKey{}).(BrandAccess)
	return a, ok
}

func withBrandAccess(ctx context.Context, a BrandAccess) context.Context {
	return context.WithValue(ctx, brandAccessKey{}, a)
}

// authenticate requires a caller. API keys only reach Brand procedures.
func authenticate(p Procedure, next Handler) Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		principal := middleware.PrincipalFrom(ctx)
		if principal == nil {
			return nil, errors.Unauthorized("")
		}
		if principal.IsAPIKey() && p.Access.level != levelBrand {
			return nil, errors.Forbidden("API keys may only call brand procedures")
		}
		return next(ctx, input)
	}
}

func requireAdmin(_ Procedure, next Handler) Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		if !middleware.PrincipalFrom(ctx).IsAdmin() {
			return nil, errors.Forbidden("Admin access required")
		}
		return next(ctx, input)
	}
}

func requireBrand(members MemberResolver) Middleware {
	return func(p Procedure, next Handler) Handler {
		return func(ctx context.Context, input json.RawMessage) (any, error) {
			brandID, err := p.scope(input)
			if err != nil {
				return nil, err
			}
			if brandID == "" {
				return nil, errors.InvalidInput("brand_id is required")
			}

			principal := middleware.PrincipalFrom(ctx)
			access := BrandAccess{BrandID: brandID}
			switch {
			case principal.IsAdmin():
				access.Admin = true
				access.Permissions = permissions.RoleOwner
			case principal.IsAPIKey():
				if principal.BrandID != brandID {
					return nil, errors.Forbidden("API key is not valid for this brand")
				}
				access.Permissions = principal.Permissions
			default:
				if members == nil {
					return nil, errors.Forbidden("")
				}
				perms, err := members.MemberPermissions(ctx, brandID, principal.UserID)
				if stderrors.Is(err, storage.ErrNotFound) || errors.IsCode(err, errors.CodeNotFound) {
					return nil, errors.Forbidden("Not a member of this brand")
				}
				if err != nil {
					return nil, err
				}
				access.Permissions = perms
			}

			if !access.Permissions.Has(p.Access.perm) {
				missing := p.Access.perm.Remove(access.Permissions)
				return nil, errors.Forbidden("").WithDetails("missing", missing.Names())
			}
			return next(withBrandAccess(ctx, access), input)
		}
	}
}
