// Package orders implements checkout, payment confirmation and the order
// status machine.
package orders

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/app/services"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/messaging"
	"github.com/brandloom/storefront/internal/payment"
	"github.com/brandloom/storefront/internal/pixel"
)

// MaxCheckoutLines bounds the distinct products in one checkout.
const MaxCheckoutLines = 50

// Publisher receives order events for a brand.
type Publisher interface {
	Publish(brandID string, ev order.Event)
}

// ListingInvalidator drops cached listings after stock changes.
type ListingInvalidator interface {
	InvalidateListings(ctx context.Context)
}

// Config holds the pricing and notification settings of the shop.
type Config struct {
	ShopName          string
	Currency          string
	ShippingFeeMinor  int64
	FreeShippingMinor int64
	WhatsAppTemplate  string
	PhoneRegion       string
	// PlatformPixelID receives every purchase in addition to brand pixels.
	PlatformPixelID string
	BaseURL         string
}

// Deps are the collaborators of the order service. Events, Pixel, WhatsApp,
// Email and Listings may be nil.
type Deps struct {
	Orders   storage.OrderStore
	Catalog  storage.CatalogStore
	Brands   storage.BrandStore
	Gateway  payment.Gateway
	Events   Publisher
	Pixel    pixel.Tracker
	WhatsApp messaging.WhatsAppSender
	Email    messaging.EmailSender
	Listings ListingInvalidator
}

// Service implements the order lifecycle.
type Service struct {
	Deps
	cfg Config
	log *logging.Logger
	now func() time.Time
}

// New constructs the order service.
func New(deps Deps, cfg Config, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("orders")
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = "91"
	}
	if cfg.ShopName == "" {
		cfg.ShopName = "Storefront"
	}
	return &Service{Deps: deps, cfg: cfg, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// =============================================================================
// Checkout
// =============================================================================

// CheckoutItem is one requested cart line.
type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CheckoutInput is a cart submitted for payment.
type CheckoutInput struct {
	Items   []CheckoutItem `json:"items"`
	Address order.Address  `json:"address"`
}

// Validate checks the cart shape and the required address fields.
func (in *CheckoutInput) Validate() error {
	if len(in.Items) == 0 {
		return errors.InvalidInput("cart is empty")
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return errors.InvalidInput("product_id is required")
		}
		if it.Quantity <= 0 {
			return errors.InvalidInput("quantity must be positive").WithDetails("product_id", it.ProductID)
		}
	}
	a := &in.Address
	required := []struct{ field, value string }{
		{"name", a.Name}, {"phone", a.Phone}, {"line1", a.Line1},
		{"city", a.City}, {"state", a.State}, {"postal_code", a.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.InvalidInput("address " + r.field + " is required")
		}
	}
	return nil
}

// CheckoutResult is what the client needs to open the payment widget.
type CheckoutResult struct {
	PaymentOrderID string        `json:"payment_order_id"`
	KeyID          string        `json:"key_id"`
	AmountMinor    int64         `json:"amount_minor"`
	Currency       string        `json:"currency"`
	Orders         []order.Order `json:"orders"`
}

// Checkout prices the cart, reserves stock, opens one payment order for the
// grand total and records one pending order per brand.
func (s *Service) Checkout(ctx context.Context, buyer user.User, in CheckoutInput) (CheckoutResult, error) {
	if err := in.Validate(); err != nil {
		return CheckoutResult{}, err
	}
	quantities := mergeItems(in.Items)
	if len(quantities) > MaxCheckoutLines {
		return CheckoutResult{}, errors.InvalidInputf("at most %d products per checkout", MaxCheckoutLines)
	}

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	products, err := s.Catalog.GetProducts(ctx, ids)
	if err != nil {
		return CheckoutResult{}, err
	}
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	drafts, err := s.priceOrders(ctx, ids, quantities, byID)
	if err != nil {
		return CheckoutResult{}, err
	}

	address := in.Address
	if address.Email == "" {
		address.Email = buyer.Email
	}
	if address.Country == "" {
		address.Country = "IN"
	}

	reserve := make([]catalog.StockChange, 0, len(ids))
	for _, id := range ids {
		reserve = append(reserve, catalog.StockChange{ProductID: id, Delta: -quantities[id]})
	}
	if err := s.Catalog.AdjustStock(ctx, reserve); err != nil {
		return CheckoutResult{}, services.StoreError(err, "product", "")
	}
	s.invalidateListings(ctx)

	var total int64
	for _, o := range drafts {
		total += o.TotalMinor
	}
	receipt := uuid.NewString()
	gwOrder, err := s.Gateway.CreateOrder(ctx, payment.CreateOrderRequest{
		AmountMinor: total,
		Currency:    s.cfg.Currency,
		Receipt:     receipt,
		Notes:       map[string]string{"user_id": buyer.ID},
	})
	if err != nil {
		s.restoreStock(ctx, reserve)
		return CheckoutResult{}, errors.Upstream("payment", err)
	}

	for i := range drafts {
		drafts[i].UserID = buyer.ID
		drafts[i].Address = address
		drafts[i].PaymentOrderID = gwOrder.ID
		drafts[i].Status = order.StatusPending
	}
	created, err := s.Orders.CreateOrders(ctx, drafts)
	if err != nil {
		s.restoreStock(ctx, reserve)
		return CheckoutResult{}, err
	}

	metrics.RecordOrderStatus(string(order.StatusPending), len(created))
	for _, o := range created {
		s.publish(order.EventCreated, o)
	}
	s.log.WithContext(ctx).
		WithField("payment_order_id", gwOrder.ID).
		WithField("orders", len(created)).
		WithField("total_minor", total).
		Info("checkout created")

	return CheckoutResult{
		PaymentOrderID: gwOrder.ID,
		KeyID:          s.Gateway.KeyID(),
		AmountMinor:    total,
		Currency:       s.cfg.Currency,
		Orders:         created,
	}, nil
}

func mergeItems(items []CheckoutItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[strings.TrimSpace(it.ProductID)] += it.Quantity
	}
	return out
}

// priceOrders groups purchasable lines by brand and prices each group.
func (s *Service) priceOrders(ctx context.Context, ids []string, qty map[string]int, products map[string]catalog.Product) ([]order.Order, error) {
	byBrand := make(map[string]*order.Order)
	var brandOrder []string
	visible := make(map[string]bool)

	for _, id := range ids {
		p, ok := products[id]
		if !ok || p.Status != catalog.StatusActive {
			return nil, errors.NotFound("product", id)
		}
		if !p.Purchasable(qty[id]) {
			return nil, errors.Conflict("Insufficient stock").
				WithDetails("product_id", id).
				WithDetails("available", p.Stock)
		}
		if p.Currency != s.cfg.Currency {
			return nil, errors.InvalidInputf("product %s is priced in %s", id, p.Currency)
		}
		ok, seen := visible[p.BrandID]
		if !seen {
			b, err := s.Brands.GetBrand(ctx, p.BrandID)
			ok = err == nil && b.Visible()
			visible[p.BrandID] = ok
		}
		if !ok {
			return nil, errors.NotFound("product", id)
		}

		o, exists := byBrand[p.BrandID]
		if !exists {
			o = &order.Order{BrandID: p.BrandID, Currency: s.cfg.Currency}
			byBrand[p.BrandID] = o
			brandOrder = append(brandOrder, p.BrandID)
		}
		o.Items = append(o.Items, order.Item{
			ProductID:  p.ID,
			Name:       p.Name,
			PriceMinor: p.PriceMinor,
			Quantity:   qty[id],
		})
		o.SubtotalMinor += p.PriceMinor * int64(qty[id])
	}

	out := make([]order.Order, 0, len(brandOrder))
	for _, id := range brandOrder {
		o := byBrand[id]
		o.ShippingMinor = s.shippingFee(o.SubtotalMinor)
		o.TotalMinor = o.SubtotalMinor + o.ShippingMinor
		out = append(out, *o)
	}
	return out, nil
}

func (s *Service) shippingFee(subtotal int64) int64 {
	if s.cfg.FreeShippingMinor > 0 && subtotal >= s.cfg.FreeShippingMinor {
		return 0
	}
	return s.cfg.ShippingFeeMinor
}

// =============================================================================
// Payment
// =============================================================================

// VerifyInput is the payment widget's success callback.
type VerifyInput struct {
	PaymentOrderID string `json:"payment_order_id"`
	PaymentID      string `json:"payment_id"`
	Signature      string `json:"signature"`
}

func (in *VerifyInput) Validate() error {
	if in.PaymentOrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return errors.InvalidInput("payment_order_id, payment_id and signature are required")
	}
	return nil
}

// VerifyPayment checks the client-reported payment and marks the buyer's
// orders paid.
func (s *Service) VerifyPayment(ctx context.Context, userID string, in VerifyInput) ([]order.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	orders, err := s.Orders.ListOrdersByPayment(ctx, in.PaymentOrderID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 || orders[0].UserID != userID {
		return nil, errors.NotFound("payment", in.PaymentOrderID)
	}
	if !s.Gateway.VerifyPayment(in.PaymentOrderID, in.PaymentID, in.Signature) {
		s.log.LogSecurityEvent(ctx, "payment_signature_mismatch", map[string]interface{}{
			"payment_order_id": in.PaymentOrderID,
		})
		return nil, errors.InvalidInput("payment signature mismatch")
	}
	return s.markPaid(ctx, in.PaymentOrderID, in.PaymentID)
}

// HandlePaymentWebhook applies a signed gateway notification. Unknown
// events and unknown orders are acknowledged without changes.
func (s *Service) HandlePaymentWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.Gateway.VerifyWebhook(body, signature) {
		s.log.LogSecurityEvent(ctx, "payment_webhook_rejected", nil)
		return errors.Unauthorized("invalid webhook signature")
	}
	ev, err := payment.ParseWebhook(body)
	if err != nil {
		return errors.InvalidInputf("invalid webhook: %v", err)
	}
	entry := s.log.WithContext(ctx).WithField("event", ev.Event).WithField("payment_order_id", ev.OrderID)

	switch ev.Event {
	case payment.EventPaymentCaptured:
		orders, err := s.markPaid(ctx, ev.OrderID, ev.PaymentID)
		if errors.IsCode(err, errors.CodeNotFound) {
			entry.Warn("webhook for unknown payment order")
			return nil
		}
		if err == nil {
			entry.WithField("orders", len(orders)).Info("payment captured")
		}
		return err
	case payment.EventPaymentFailed:
		reason := ev.Reason
		if reason == "" {
			reason = "payment failed"
		}
		return s.cancelPayment(ctx, ev.OrderID, reason)
	default:
		entry.Debug("ignoring payment webhook")
		return nil
	}
}

// markPaid moves every pending order of a payment to paid. Orders already
// paid are left alone so retries are harmless.
func (s *Service) markPaid(ctx context.Context, paymentOrderID, paymentID string) ([]order.Order, error) {
	orders, err := s.Orders.ListOrdersByPayment(ctx, paymentOrderID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, errors.NotFound("payment", paymentOrderID)
	}

	paidAt := s.now()
	var newlyPaid []order.Order
	for i, o := range orders {
		switch o.Status {
		case order.StatusPending:
		case order.StatusCancelled:
			s.log.WithContext(ctx).WithField("order_id", o.ID).Warn("payment captured for cancelled order; refund required")
			continue
		default:
			continue
		}
		updated, err := s.Transition(ctx, o, order.StatusPaid, func(o *order.Order) {
			o.PaymentID = paymentID
			o.PaidAt = &paidAt
		})
		if errors.IsCode(err, errors.CodeConflict) {
			// Another request moved the order first: a concurrent capture,
			// an expiry or a buyer cancel.
			current, getErr := s.Orders.GetOrder(ctx, o.ID)
			if getErr != nil {
				return nil, services.StoreError(getErr, "order", o.ID)
			}
			if current.Status == order.StatusCancelled {
				s.log.WithContext(ctx).WithField("order_id", o.ID).Warn("payment captured for cancelled order; refund required")
			}
			orders[i] = current
			continue
		}
		if err != nil {
			return nil, err
		}
		orders[i] = updated
		newlyPaid = append(newlyPaid, updated)
	}

	if len(newlyPaid) > 0 {
		s.trackPurchase(ctx, newlyPaid)
		s.sendConfirmation(ctx, newlyPaid)
	}
	return orders, nil
}

// cancelPayment cancels the pending orders of a failed payment and returns
// their stock.
func (s *Service) cancelPayment(ctx context.Context, paymentOrderID, reason string) error {
	orders, err := s.Orders.ListOrdersByPayment(ctx, paymentOrderID)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.Status != order.StatusPending {
			continue
		}
		if _, err := s.cancel(ctx, o, reason); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Status machine
// =============================================================================

// Transition moves o to status to after applying mutate, then records and
// publishes the change.
func (s *Service) Transition(ctx context.Context, o order.Order, to order.Status, mutate func(*order.Order)) (order.Order, error) {
	if !order.CanTransition(o.Status, to) {
		return order.Order{}, errors.Conflict("order cannot move from " + string(o.Status) + " to " + string(to)).
			WithDetails("order_id", o.ID)
	}
	from := o.Status
	o.Status = to
	if mutate != nil {
		mutate(&o)
	}
	updated, err := s.Orders.UpdateOrder(ctx, o, from)
	if err != nil {
		return order.Order{}, services.StoreError(err, "order", o.ID)
	}
	metrics.RecordOrderStatus(string(to), 1)

	evType := order.EventStatus
	if to == order.StatusPaid {
		evType = order.EventPaid
	}
	s.publish(evType, updated)
	s.log.WithContext(ctx).
		WithField("order_id", o.ID).
		WithField("from", from).
		WithField("to", to).
		Info("order status changed")
	return updated, nil
}

// UpdateStatus is the brand-side status change. Shipping states are driven
// by fulfillment and cannot be set here.
func (s *Service) UpdateStatus(ctx context.Context, brandID, orderID string, to order.Status, reason string) (order.Order, error) {
	switch to {
	case order.StatusProcessing, order.StatusCancelled, order.StatusDelivered, order.StatusReturned:
	case order.StatusShipped, order.StatusReturnRequested:
		return order.Order{}, errors.InvalidInput("use the fulfillment operations for " + string(to))
	default:
		return order.Order{}, errors.InvalidInputf("unknown status %q", to)
	}
	o, err := s.ForBrand(ctx, brandID, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if to == order.StatusCancelled {
		if strings.TrimSpace(reason) == "" {
			reason = "cancelled by brand"
		}
		return s.cancel(ctx, o, reason)
	}
	return s.Transition(ctx, o, to, nil)
}

// CancelMine lets a buyer cancel an order that has not been paid.
func (s *Service) CancelMine(ctx context.Context, userID, orderID string) (order.Order, error) {
	o, err := s.ForUser(ctx, userID, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status != order.StatusPending {
		return order.Order{}, errors.Conflict("only unpaid orders can be cancelled; contact support")
	}
	return s.cancel(ctx, o, "cancelled by customer")
}

// ExpireBatch bounds the pending orders examined per ExpirePending run.
const ExpireBatch = 500

// ExpirePending cancels orders left unpaid for longer than maxAge, releasing
// their reserved stock. It returns how many were cancelled.
func (s *Service) ExpirePending(ctx context.Context, maxAge time.Duration) (int, error) {
	pending, err := s.Orders.ListOrdersByStatus(ctx, order.StatusPending, ExpireBatch)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-maxAge)
	n := 0
	for _, o := range pending {
		if o.CreatedAt.After(cutoff) {
			continue
		}
		if _, err := s.cancel(ctx, o, "payment not completed"); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("order_id", o.ID).Warn("expire pending order failed")
			continue
		}
		n++
	}
	if n > 0 {
		s.log.WithContext(ctx).WithField("count", n).Info("expired unpaid orders")
	}
	return n, nil
}

func (s *Service) cancel(ctx context.Context, o order.Order, reason string) (order.Order, error) {
	updated, err := s.Transition(ctx, o, order.StatusCancelled, func(o *order.Order) {
		o.CancelReason = reason
	})
	if err != nil {
		return order.Order{}, err
	}
	changes := make([]catalog.StockChange, 0, len(o.Items))
	for _, it := range o.Items {
		changes = append(changes, catalog.StockChange{ProductID: it.ProductID, Delta: it.Quantity})
	}
	s.restoreStock(ctx, changes)
	return updated, nil
}

func (s *Service) restoreStock(ctx context.Context, reserved []catalog.StockChange) {
	back := make([]catalog.StockChange, 0, len(reserved))
	for _, c := range reserved {
		delta := c.Delta
		if delta < 0 {
			delta = -delta
		}
		back = append(back, catalog.StockChange{ProductID: c.ProductID, Delta: delta})
	}
	if err := s.Catalog.AdjustStock(ctx, back); err != nil {
		s.log.WithContext(ctx).WithError(err).Error("restore stock failed")
		return
	}
	s.invalidateListings(ctx)
}

// =============================================================================
// Queries
// =============================================================================

// Get returns any order.
func (s *Service) Get(ctx context.Context, id string) (order.Order, error) {
	o, err := s.Orders.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, services.StoreError(err, "order", id)
	}
	return o, nil
}

// ForUser returns an order placed by userID.
func (s *Service) ForUser(ctx context.Context, userID, id string) (order.Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if o.UserID != userID {
		return order.Order{}, errors.NotFound("order", id)
	}
	return o, nil
}

// ForBrand returns an order fulfilled by brandID.
func (s *Service) ForBrand(ctx context.Context, brandID, id string) (order.Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if o.BrandID != brandID {
		return order.Order{}, errors.NotFound("order", id)
	}
	return o, nil
}

// ListMine returns the buyer's orders.
func (s *Service) ListMine(ctx context.Context, userID string) ([]order.Order, error) {
	return s.Orders.ListOrdersByUser(ctx, userID)
}

// ListBrand returns a brand's orders, optionally filtered by status.
func (s *Service) ListBrand(ctx context.Context, brandID string, status order.Status) ([]order.Order, error) {
	if status != "" && !status.Valid() {
		return nil, errors.InvalidInputf("unknown status %q", status)
	}
	return s.Orders.ListOrdersByBrand(ctx, brandID, status)
}

// =============================================================================
// Side effects
// =============================================================================

func (s *Service) publish(t order.EventType, o order.Order) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(o.BrandID, order.Event{Type: t, Order: o, At: s.now()})
}

func (s *Service) invalidateListings(ctx context.Context) {
	if s.Listings != nil {
		s.Listings.InvalidateListings(ctx)
	}
}

func (s *Service) trackPurchase(ctx context.Context, paid []order.Order) {
	if s.Pixel == nil {
		return
	}
	brands := make(map[string]brand.Brand)
	for _, o := range paid {
		b, seen := brands[o.BrandID]
		if !seen {
			b, _ = s.Brands.GetBrand(ctx, o.BrandID)
			brands[o.BrandID] = b
		}
		var pixels []string
		if s.cfg.PlatformPixelID != "" {
			pixels = append(pixels, s.cfg.PlatformPixelID)
		}
		if b.PixelID != "" {
			pixels = append(pixels, b.PixelID)
		}
		if len(pixels) == 0 {
			continue
		}
		ids := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			ids = append(ids, it.ProductID)
		}
		err := s.Pixel.Track(ctx, pixels, pixel.Event{
			Name:       pixel.EventPurchase,
			ID:         o.ID,
			Time:       s.now(),
			SourceURL:  s.cfg.BaseURL,
			Email:      o.Address.Email,
			Phone:      o.Address.Phone,
			Currency:   o.Currency,
			ValueMinor: o.TotalMinor,
			ContentIDs: ids,
			NumItems:   o.Units(),
		})
		if err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("order_id", o.ID).Warn("pixel purchase failed")
		}
	}
}
