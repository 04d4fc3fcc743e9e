// Package fulfillment drives shipments, returns and tracking through the
// shipping aggregator.
package fulfillment

import (
	"context"
	"strings"

	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/app/services"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/shipping"
)

// SyncBatch bounds the shipped orders checked per tracking sync.
const SyncBatch = 200

// Orders is the part of the order service fulfillment needs.
type Orders interface {
	ForBrand(ctx context.Context, brandID, id string) (order.Order, error)
	ForUser(ctx context.Context, userID, id string) (order.Order, error)
	Get(ctx context.Context, id string) (order.Order, error)
	Transition(ctx context.Context, o order.Order, to order.Status, mutate func(*order.Order)) (order.Order, error)
}

// Service ships orders and follows them to delivery.
type Service struct {
	orders   Orders
	store    storage.OrderStore
	provider shipping.Provider
	log      *logging.Logger
}

// New constructs the fulfillment service.
func New(orders Orders, store storage.OrderStore, provider shipping.Provider, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("fulfillment")
	}
	return &Service{orders: orders, store: store, provider: provider, log: log}
}

// ShipInput optionally overrides the parcel weight.
type ShipInput struct {
	WeightKG float64 `json:"weight_kg"`
}

// Ship books a shipment for a paid or processing order. Progress is saved
// after each aggregator step so a failed attempt resumes where it stopped.
func (s *Service) Ship(ctx context.Context, brandID, orderID string, in ShipInput) (order.Order, error) {
	o, err := s.orders.ForBrand(ctx, brandID, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status == order.StatusPaid {
		if o, err = s.orders.Transition(ctx, o, order.StatusProcessing, nil); err != nil {
			return order.Order{}, err
		}
	}
	if o.Status != order.StatusProcessing {
		return order.Order{}, errors.Conflict("only paid orders can be shipped").WithDetails("status", o.Status)
	}
	log := s.log.WithContext(ctx).WithField("order_id", o.ID)

	if o.ShipmentID == "" {
		sh, err := s.provider.CreateShipment(ctx, shipmentRequest(o, in.WeightKG))
		if err != nil {
			return order.Order{}, errors.Upstream("shipping", err)
		}
		o.ShipmentID = sh.ShipmentID
		if o, err = s.save(ctx, o); err != nil {
			return order.Order{}, err
		}
		log.WithField("shipment_id", o.ShipmentID).Info("shipment created")
	}

	if o.AWB == "" {
		awb, err := s.provider.AssignAWB(ctx, o.ShipmentID)
		if err != nil {
			return order.Order{}, errors.Upstream("shipping", err)
		}
		o.AWB = awb.Code
		o.Courier = awb.Courier
		if o, err = s.save(ctx, o); err != nil {
			return order.Order{}, err
		}
	}

	if o.LabelURL == "" {
		label, err := s.provider.GenerateLabel(ctx, o.ShipmentID)
		if err != nil {
			return order.Order{}, errors.Upstream("shipping", err)
		}
		o.LabelURL = label
		if o, err = s.save(ctx, o); err != nil {
			return order.Order{}, err
		}
	}

	if err := s.provider.SchedulePickup(ctx, o.ShipmentID); err != nil {
		return order.Order{}, errors.Upstream("shipping", err)
	}

	shipped, err := s.orders.Transition(ctx, o, order.StatusShipped, func(o *order.Order) {
		o.TrackingStatus = "PICKUP SCHEDULED"
	})
	if err != nil {
		return order.Order{}, err
	}
	log.WithField("awb", shipped.AWB).WithField("courier", shipped.Courier).Info("order shipped")
	return shipped, nil
}

// RequestReturn books a return pickup for a delivered order of userID.
func (s *Service) RequestReturn(ctx context.Context, userID, orderID, reason string) (order.Order, error) {
	o, err := s.orders.ForUser(ctx, userID, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status != order.StatusDelivered {
		return order.Order{}, errors.Conflict("only delivered orders can be returned")
	}
	ret, err := s.provider.CreateReturn(ctx, shipmentRequest(o, 0))
	if err != nil {
		return order.Order{}, errors.Upstream("shipping", err)
	}
	updated, err := s.orders.Transition(ctx, o, order.StatusReturnRequested, func(o *order.Order) {
		o.ReturnShipmentID = ret.ShipmentID
	})
	if err != nil {
		return order.Order{}, err
	}
	s.log.WithContext(ctx).
		WithField("order_id", o.ID).
		WithField("return_shipment_id", ret.ShipmentID).
		WithField("reason", strings.TrimSpace(reason)).
		Info("return requested")
	return updated, nil
}

// SyncTracking polls the aggregator for shipped orders and marks delivered
// ones. It returns the number of orders delivered.
func (s *Service) SyncTracking(ctx context.Context) (int, error) {
	shipped, err := s.store.ListOrdersByStatus(ctx, order.StatusShipped, SyncBatch)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, o := range shipped {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if o.AWB == "" {
			continue
		}
		tr, err := s.provider.Track(ctx, o.AWB)
		if err != nil {
			s.log.WithError(err).WithField("order_id", o.ID).Warn("tracking lookup failed")
			continue
		}
		ok, err := s.applyTracking(ctx, o, tr.Status, tr.Delivered)
		if err != nil {
			s.log.WithError(err).WithField("order_id", o.ID).Warn("apply tracking failed")
			continue
		}
		if ok {
			delivered++
		}
	}
	if len(shipped) > 0 {
		s.log.WithField("checked", len(shipped)).WithField("delivered", delivered).Info("tracking sync finished")
	}
	return delivered, nil
}

// HandleWebhook applies a tracking push from the aggregator.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) error {
	ev, err := shipping.ParseWebhook(body)
	if err != nil {
		return errors.InvalidInputf("invalid webhook: %v", err)
	}
	if ev.OrderID == "" {
		s.log.WithContext(ctx).WithField("awb", ev.AWB).Warn("tracking webhook without order id")
		return nil
	}
	o, err := s.orders.Get(ctx, ev.OrderID)
	if errors.IsCode(err, errors.CodeNotFound) {
		s.log.WithContext(ctx).WithField("order_id", ev.OrderID).Warn("tracking webhook for unknown order")
		return nil
	}
	if err != nil {
		return err
	}
	if o.AWB != "" && ev.AWB != "" && o.AWB != ev.AWB {
		return errors.InvalidInput("awb does not match order")
	}
	_, err = s.applyTracking(ctx, o, ev.Status, ev.Delivered)
	return err
}

// applyTracking records status and delivers the order when the courier says
// so. It reports whether the order moved to delivered.
func (s *Service) applyTracking(ctx context.Context, o order.Order, status string, delivered bool) (bool, error) {
	if o.Status != order.StatusShipped {
		return false, nil
	}
	if delivered {
		_, err := s.orders.Transition(ctx, o, order.StatusDelivered, func(o *order.Order) {
			o.TrackingStatus = status
		})
		return err == nil, err
	}
	if status == "" || status == o.TrackingStatus {
		return false, nil
	}
	o.TrackingStatus = status
	_, err := s.save(ctx, o)
	return false, err
}

// save writes shipment fields without changing status. It fails if the
// status moved since o was read.
func (s *Service) save(ctx context.Context, o order.Order) (order.Order, error) {
	updated, err := s.store.UpdateOrder(ctx, o, o.Status)
	if err != nil {
		return order.Order{}, services.StoreError(err, "order", o.ID)
	}
	return updated, nil
}

func shipmentRequest(o order.Order, weightKG float64) shipping.ShipmentRequest {
	if weightKG <= 0 {
		weightKG = 0.5 * float64(o.Units())
	}
	items := make([]shipping.Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, shipping.Item{
			Name:       it.Name,
			SKU:        it.ProductID,
			Units:      it.Quantity,
			PriceMinor: it.PriceMinor,
		})
	}
	a := o.Address
	return shipping.ShipmentRequest{
		OrderID:   o.ID,
		OrderDate: o.CreatedAt,
		Customer: shipping.Address{
			Name: a.Name, Phone: a.Phone, Email: a.Email,
			Line1: a.Line1, Line2: a.Line2, City: a.City,
			State: a.State, PostalCode: a.PostalCode, Country: a.Country,
		},
		Items:         items,
		SubtotalMinor: o.SubtotalMinor,
		WeightKG:      weightKG,
	}
}
