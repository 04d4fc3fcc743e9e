package httpapi

import (
	"context"
	"strings"

	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/middleware"
	"github.com/brandloom/storefront/internal/permissions"
	"github.com/brandloom/storefront/internal/rpc"
)

func (s *Server) registerProcedures() {
	s.rpc.Register(s.accountProcedures()...)
	s.rpc.Register(s.brandProcedures()...)
	s.rpc.Register(s.catalogProcedures()...)
	s.rpc.Register(s.orderProcedures()...)
	s.rpc.Register(s.contentProcedures()...)
	s.rpc.Register(s.supportProcedures()...)
	s.rpc.Register(s.marketingProcedures()...)
	s.rpc.Register(s.adminProcedures()...)
	s.rpc.Register(rpc.Query("rpc.procedures", rpc.Public(), s.listProcedures))
}

type procedureInfo struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Access string `json:"access"`
}

func (s *Server) listProcedures(context.Context, rpc.Empty) ([]procedureInfo, error) {
	procs := s.rpc.Procedures()
	out := make([]procedureInfo, 0, len(procs))
	for _, p := range procs {
		out = append(out, procedureInfo{Name: p.Name, Kind: p.Kind.String(), Access: p.Access.String()})
	}
	return out, nil
}

// Inputs shared across procedure groups.

// brandRef scopes a Brand procedure. Embed it in inputs.
type brandRef struct {
	BrandID string `json:"brand_id"`
}

func (b brandRef) BrandScope() string { return b.BrandID }

type idInput struct {
	ID string `json:"id"`
}

func (in *idInput) Validate() error {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return errors.InvalidInput("id is required")
	}
	return nil
}

type slugInput struct {
	Slug string `json:"slug"`
}

func (in *slugInput) Validate() error {
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if in.Slug == "" {
		return errors.InvalidInput("slug is required")
	}
	return nil
}

type brandIDInput struct {
	brandRef
	ID string `json:"id"`
}

func (in *brandIDInput) Validate() error {
	if strings.TrimSpace(in.ID) == "" {
		return errors.InvalidInput("id is required")
	}
	return nil
}

// callerID is the user id of an authenticated caller.
func callerID(ctx context.Context) string {
	return middleware.PrincipalFrom(ctx).UserID
}

// caller loads the signed-in user record.
func (s *Server) caller(ctx context.Context) (user.User, error) {
	return s.app.Users.Get(ctx, callerID(ctx))
}

// grantable parses requested permission names and refuses to grant bits the
// caller does not hold within the brand.
func grantable(ctx context.Context, names []string) (permissions.Set, error) {
	perms, err := permissions.Parse(names)
	if err != nil {
		return 0, errors.InvalidInput(err.Error())
	}
	if perms == 0 {
		return 0, errors.InvalidInput("at least one permission is required")
	}
	access, ok := rpc.BrandAccessFrom(ctx)
	if !ok {
		return 0, errors.Forbidden("")
	}
	if !access.Admin && !access.Permissions.Has(perms) {
		return 0, errors.Forbidden("cannot grant permissions you do not hold").
			WithDetails("missing", perms.Remove(access.Permissions).Names())
	}
	return perms, nil
}
