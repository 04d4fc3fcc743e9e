package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brandloom/storefront/internal/app/domain/marketing"
	"github.com/brandloom/storefront/internal/app/domain/order"
)

type orderRow struct {
	ID               string     `db:"id"`
	UserID           string     `db:"user_id"`
	BrandID          string     `db:"brand_id"`
	Items            []byte     `db:"items"`
	SubtotalMinor    int64      `db:"subtotal_minor"`
	ShippingMinor    int64      `db:"shipping_minor"`
	TotalMinor       int64      `db:"total_minor"`
	Currency         string     `db:"currency"`
	Status           string     `db:"status"`
	Address          []byte     `db:"address"`
	PaymentOrderID   string     `db:"payment_order_id"`
	PaymentID        string     `db:"payment_id"`
	ShipmentID       string     `db:"shipment_id"`
	AWB              string     `db:"awb"`
	Courier          string     `db:"courier"`
	LabelURL         string     `db:"label_url"`
	TrackingStatus   string     `db:"tracking_status"`
	ReturnShipmentID string     `db:"return_shipment_id"`
	CancelReason     string     `db:"cancel_reason"`
	PaidAt           *time.Time `db:"paid_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func newOrderRow(o order.Order) (orderRow, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return orderRow{}, fmt.Errorf("encode items: %w", err)
	}
	addr, err := json.Marshal(o.Address)
	if err != nil {
		return orderRow{}, fmt.Errorf("encode address: %w", err)
	}
	return orderRow{
		ID: o.ID, UserID: o.UserID, BrandID: o.BrandID, Items: items,
		SubtotalMinor: o.SubtotalMinor, ShippingMinor: o.ShippingMinor, TotalMinor: o.TotalMinor,
		Currency: o.Currency, Status: string(o.Status), Address: addr,
		PaymentOrderID: o.PaymentOrderID, PaymentID: o.PaymentID, ShipmentID: o.ShipmentID,
		AWB: o.AWB, Courier: o.Courier, LabelURL: o.LabelURL, TrackingStatus: o.TrackingStatus,
		ReturnShipmentID: o.ReturnShipmentID, CancelReason: o.CancelReason, PaidAt: o.PaidAt,
		CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}, nil
}

func (r orderRow) toDomain() (order.Order, error) {
	o := order.Order{
		ID: r.ID, UserID: r.UserID, BrandID: r.BrandID,
		SubtotalMinor: r.SubtotalMinor, ShippingMinor: r.ShippingMinor, TotalMinor: r.TotalMinor,
		Currency: r.Currency, Status: order.Status(r.Status),
		PaymentOrderID: r.PaymentOrderID, PaymentID: r.PaymentID, ShipmentID: r.ShipmentID,
		AWB: r.AWB, Courier: r.Courier, LabelURL: r.LabelURL, TrackingStatus: r.TrackingStatus,
		ReturnShipmentID: r.ReturnShipmentID, CancelReason: r.CancelReason, PaidAt: r.PaidAt,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if len(r.Items) > 0 {
		if err := json.Unmarshal(r.Items, &o.Items); err != nil {
			return order.Order{}, fmt.Errorf("decode items of order %s: %w", r.ID, err)
		}
	}
	if len(r.Address) > 0 {
		if err := json.Unmarshal(r.Address, &o.Address); err != nil {
			return order.Order{}, fmt.Errorf("decode address of order %s: %w", r.ID, err)
		}
	}
	return o, nil
}

const orderColumns = `id, user_id, brand_id, items, subtotal_minor, shipping_minor, total_minor, currency,
	status, address, payment_order_id, payment_id, shipment_id, awb, courier, label_url, tracking_status,
	return_shipment_id, cancel_reason, paid_at, created_at, updated_at`

func (s *Store) CreateOrders(ctx context.Context, orders []order.Order) ([]order.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	out := make([]order.Order, 0, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		o.CreatedAt = now
		o.UpdatedAt = now

		row, err := newOrderRow(o)
		if err != nil {
			return nil, err
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES (:id, :user_id, :brand_id, :items, :subtotal_minor, :shipping_minor, :total_minor, :currency,
				:status, :address, :payment_order_id, :payment_id, :shipment_id, :awb, :courier, :label_url,
				:tracking_status, :return_shipment_id, :cancel_reason, :paid_at, :created_at, :updated_at)
		`, row)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, o)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// orderUpdate binds the status the caller read alongside the new row.
type orderUpdate struct {
	orderRow
	From string `db:"from_status"`
}

func (s *Store) UpdateOrder(ctx context.Context, o order.Order, from order.Status) (order.Order, error) {
	existing, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		return order.Order{}, err
	}
	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = time.Now().UTC()

	row, err := newOrderRow(o)
	if err != nil {
		return order.Order{}, err
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE orders
		SET status = :status, payment_id = :payment_id, shipment_id = :shipment_id, awb = :awb,
		    courier = :courier, label_url = :label_url, tracking_status = :tracking_status,
		    return_shipment_id = :return_shipment_id, cancel_reason = :cancel_reason,
		    paid_at = :paid_at, updated_at = :updated_at
		WHERE id = :id AND status = :from_status
	`, orderUpdate{orderRow: row, From: string(from)})
	if err != nil {
		return order.Order{}, mapError(err)
	}
	if err := requireChanged(res); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var row orderRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id); err != nil {
		return order.Order{}, mapError(err)
	}
	return row.toDomain()
}

func (s *Store) selectOrders(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]order.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) ListOrdersByPayment(ctx context.Context, paymentOrderID string) ([]order.Order, error) {
	return s.selectOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_order_id = $1 ORDER BY created_at DESC, id`, paymentOrderID)
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return s.selectOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
}

func (s *Store) ListOrdersByBrand(ctx context.Context, brandID string, status order.Status) ([]order.Order, error) {
	return s.selectOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE brand_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
	`, brandID, string(status))
}

func (s *Store) ListOrdersByStatus(ctx context.Context, status order.Status, limit int) ([]order.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.selectOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1
		ORDER BY updated_at
		LIMIT $2
	`, string(status), limit)
}

func (s *Store) ListCustomers(ctx context.Context, brandID string) ([]marketing.Recipient, error) {
	var rows []struct {
		Name  string `db:"name"`
		Email string `db:"email"`
		Phone string `db:"phone"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (address->>'email', address->>'phone')
		       COALESCE(address->>'name', '') AS name,
		       COALESCE(address->>'email', '') AS email,
		       COALESCE(address->>'phone', '') AS phone
		FROM orders
		WHERE brand_id = $1 AND paid_at IS NOT NULL
		ORDER BY address->>'email', address->>'phone', created_at DESC
	`, brandID)
	if err != nil {
		return nil, err
	}
	out := make([]marketing.Recipient, 0, len(rows))
	for _, r := range rows {
		out = append(out, marketing.Recipient{Name: r.Name, Email: r.Email, Phone: r.Phone})
	}
	return out, nil
}
