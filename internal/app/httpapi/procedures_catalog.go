package httpapi

import (
	"context"

	"github.com/brandloom/storefront/internal/app/domain/catalog"
	catalogsvc "github.com/brandloom/storefront/internal/app/services/catalog"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/permissions"
	"github.com/brandloom/storefront/internal/rpc"
)

type listProductsInput struct {
	// Brand is a brand slug.
	Brand  string `json:"brand,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Query  string `json:"q,omitempty"`
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type productInput struct {
	brandRef
	catalogsvc.ProductInput
}

type productUpdateInput struct {
	brandRef
	ID string `json:"id"`
	catalogsvc.ProductInput
}

type restockInput struct {
	brandRef
	ID    string `json:"id"`
	Delta int    `json:"delta"`
}

func (in *restockInput) Validate() error {
	if in.ID == "" {
		return errors.InvalidInput("id is required")
	}
	if in.Delta == 0 {
		return errors.InvalidInput("delta must not be zero")
	}
	return nil
}

func (s *Server) catalogProcedures() []rpc.Procedure {
	c := s.app.Catalog
	return []rpc.Procedure{
		rpc.Query("product.list", rpc.Public(), func(ctx context.Context, in listProductsInput) (catalog.Page, error) {
			f := catalog.Filter{Tag: in.Tag, Query: in.Query, Cursor: in.Cursor, Limit: in.Limit}
			if in.Brand != "" {
				b, err := s.app.Brands.Storefront(ctx, in.Brand)
				if err != nil {
					return catalog.Page{}, err
				}
				f.BrandID = b.ID
			}
			return c.ListActive(ctx, f)
		}),
		rpc.Query("product.get", rpc.Public(), func(ctx context.Context, in slugInput) (catalog.Product, error) {
			return c.Storefront(ctx, in.Slug)
		}),
		rpc.Query("product.first100", rpc.Public(), func(ctx context.Context, _ rpc.Empty) ([]catalog.Product, error) {
			return c.First100(ctx)
		}),
		rpc.Query("tag.list", rpc.Public(), func(ctx context.Context, _ rpc.Empty) ([]catalog.Tag, error) {
			return c.Tags(ctx)
		}),

		rpc.Query("brand.products.list", rpc.Brand(permissions.ManageProducts), func(ctx context.Context, in brandRef) ([]catalog.Product, error) {
			return c.BrandProducts(ctx, in.BrandID)
		}),
		rpc.Mutation("brand.products.create", rpc.Brand(permissions.ManageProducts), func(ctx context.Context, in productInput) (catalog.Product, error) {
			return c.CreateProduct(ctx, in.BrandID, in.ProductInput)
		}),
		rpc.Mutation("brand.products.update", rpc.Brand(permissions.ManageProducts), func(ctx context.Context, in productUpdateInput) (catalog.Product, error) {
			if in.ID == "" {
				return catalog.Product{}, errors.InvalidInput("id is required")
			}
			return c.UpdateProduct(ctx, in.BrandID, in.ID, in.ProductInput)
		}),
		rpc.Mutation("brand.products.archive", rpc.Brand(permissions.ManageProducts), func(ctx context.Context, in brandIDInput) (catalog.Product, error) {
			return c.Archive(ctx, in.BrandID, in.ID)
		}),
		rpc.Mutation("brand.products.restock", rpc.Brand(permissions.ManageProducts), func(ctx context.Context, in restockInput) (catalog.Product, error) {
			return c.Restock(ctx, in.BrandID, in.ID, in.Delta)
		}),
	}
}
