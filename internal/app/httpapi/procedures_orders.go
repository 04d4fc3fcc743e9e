package httpapi

import (
	"context"
	"strings"

	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/app/services/fulfillment"
	"github.com/brandloom/storefront/internal/app/services/orders"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/permissions"
	"github.com/brandloom/storefront/internal/rpc"
)

type returnInput struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (in *returnInput) Validate() error {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.ID == "" || in.Reason == "" {
		return errors.InvalidInput("id and reason are required")
	}
	return nil
}

type brandOrdersInput struct {
	brandRef
	Status order.Status `json:"status,omitempty"`
}

func (in *brandOrdersInput) Validate() error {
	if in.Status != "" && !in.Status.Valid() {
		return errors.InvalidInputf("unknown status %q", in.Status)
	}
	return nil
}

type statusInput struct {
	brandRef
	ID     string       `json:"id"`
	Status order.Status `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

func (in *statusInput) Validate() error {
	if in.ID == "" {
		return errors.InvalidInput("id is required")
	}
	if !in.Status.Valid() {
		return errors.InvalidInputf("unknown status %q", in.Status)
	}
	return nil
}

type shipInput struct {
	brandRef
	ID string `json:"id"`
	fulfillment.ShipInput
}

func (s *Server) orderProcedures() []rpc.Procedure {
	o := s.app.Orders
	f := s.app.Fulfillment
	return []rpc.Procedure{
		rpc.Mutation("checkout.create", rpc.Authed(), func(ctx context.Context, in orders.CheckoutInput) (orders.CheckoutResult, error) {
			buyer, err := s.caller(ctx)
			if err != nil {
				return orders.CheckoutResult{}, err
			}
			return o.Checkout(ctx, buyer, in)
		}),
		rpc.Mutation("checkout.verify", rpc.Authed(), func(ctx context.Context, in orders.VerifyInput) ([]order.Order, error) {
			return o.VerifyPayment(ctx, callerID(ctx), in)
		}),

		rpc.Query("order.mine", rpc.Authed(), func(ctx context.Context, _ rpc.Empty) ([]order.Order, error) {
			return o.ListMine(ctx, callerID(ctx))
		}),
		rpc.Query("order.get", rpc.Authed(), func(ctx context.Context, in idInput) (order.Order, error) {
			return o.ForUser(ctx, callerID(ctx), in.ID)
		}),
		rpc.Mutation("order.cancel", rpc.Authed(), func(ctx context.Context, in idInput) (order.Order, error) {
			return o.CancelMine(ctx, callerID(ctx), in.ID)
		}),
		rpc.Mutation("order.return", rpc.Authed(), func(ctx context.Context, in returnInput) (order.Order, error) {
			return f.RequestReturn(ctx, callerID(ctx), in.ID, in.Reason)
		}),

		rpc.Query("brand.orders.list", rpc.Brand(permissions.ViewOrders), func(ctx context.Context, in brandOrdersInput) ([]order.Order, error) {
			return o.ListBrand(ctx, in.BrandID, in.Status)
		}),
		rpc.Query("brand.orders.get", rpc.Brand(permissions.ViewOrders), func(ctx context.Context, in brandIDInput) (order.Order, error) {
			return o.ForBrand(ctx, in.BrandID, in.ID)
		}),
		rpc.Mutation("brand.orders.updateStatus", rpc.Brand(permissions.ManageOrders), func(ctx context.Context, in statusInput) (order.Order, error) {
			return o.UpdateStatus(ctx, in.BrandID, in.ID, in.Status, in.Reason)
		}),
		rpc.Mutation("brand.orders.ship", rpc.Brand(permissions.ManageOrders|permissions.ManageShipping), func(ctx context.Context, in shipInput) (order.Order, error) {
			if in.ID == "" {
				return order.Order{}, errors.InvalidInput("id is required")
			}
			return f.Ship(ctx, in.BrandID, in.ID, in.ShipInput)
		}),
	}
}
