package order

import "time"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPaid            Status = "paid"
	StatusProcessing      Status = "processing"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
	StatusReturnRequested Status = "return_requested"
	StatusReturned        Status = "returned"
)

var transitions = map[Status][]Status{
	StatusPending:         {StatusPaid, StatusCancelled},
	StatusPaid:            {StatusProcessing, StatusCancelled},
	StatusProcessing:      {StatusShipped, StatusCancelled},
	StatusShipped:         {StatusDelivered},
	StatusDelivered:       {StatusReturnRequested},
	StatusReturnRequested: {StatusReturned},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok || s == StatusCancelled || s == StatusReturned
}

// Item is one order line, priced at checkout time.
type Item struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Quantity   int    `json:"quantity"`
}

// Address is the delivery address captured at checkout.
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is the part of a checkout fulfilled by one brand. Orders created by
// the same checkout share PaymentOrderID.
type Order struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	BrandID          string     `json:"brand_id"`
	Items            []Item     `json:"items"`
	SubtotalMinor    int64      `json:"subtotal_minor"`
	ShippingMinor    int64      `json:"shipping_minor"`
	TotalMinor       int64      `json:"total_minor"`
	Currency         string     `json:"currency"`
	Status           Status     `json:"status"`
	Address          Address    `json:"address"`
	PaymentOrderID   string     `json:"payment_order_id"`
	PaymentID        string     `json:"payment_id,omitempty"`
	ShipmentID       string     `json:"shipment_id,omitempty"`
	AWB              string     `json:"awb,omitempty"`
	Courier          string     `json:"courier,omitempty"`
	LabelURL         string     `json:"label_url,omitempty"`
	TrackingStatus   string     `json:"tracking_status,omitempty"`
	ReturnShipmentID string     `json:"return_shipment_id,omitempty"`
	CancelReason     string     `json:"cancel_reason,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Units returns the total quantity across items.
func (o Order) Units() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// EventType names order notifications.
type EventType string

const (
	EventCreated EventType = "order.created"
	EventPaid    EventType = "order.paid"
	EventStatus  EventType = "order.status"
)

// Event is published to brand subscribers when an order changes.
type Event struct {
	Type  EventType `json:"type"`
	Order Order     `json:"order"`
	At    time.Time `json:"at"`
}
