// Package shipping integrates the shipping aggregator: shipment creation,
// AWB assignment, labels, pickups, returns and tracking.
package shipping

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Provider is the shipping aggregator contract.
type Provider interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error)
	AssignAWB(ctx context.Context, shipmentID string) (AWB, error)
	GenerateLabel(ctx context.Context, shipmentID string) (string, error)
	SchedulePickup(ctx context.Context, shipmentID string) error
	CreateReturn(ctx context.Context, req ShipmentRequest) (Shipment, error)
	Track(ctx context.Context, awb string) (Tracking, error)
}

// Item is one line of a shipment.
type Item struct {
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	Units      int    `json:"units"`
	PriceMinor int64  `json:"-"`
}

// Address is a pickup or delivery address.
type Address struct {
	Name       string
	Phone      string
	Email      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// ShipmentRequest describes a forward or return shipment. OrderID is the
// storefront order id and comes back in webhooks.
type ShipmentRequest struct {
	OrderID       string
	OrderDate     time.Time
	Customer      Address
	Items         []Item
	SubtotalMinor int64
	WeightKG      float64
}

// Shipment identifies the aggregator's records for an order.
type Shipment struct {
	OrderID    string
	ShipmentID string
	Status     string
}

// AWB is an assigned air waybill.
type AWB struct {
	Code    string
	Courier string
}

// Tracking is the latest known delivery state.
type Tracking struct {
	AWB       string
	Status    string
	Delivered bool
	UpdatedAt time.Time
}

// WebhookEvent is a tracking push from the aggregator.
type WebhookEvent struct {
	AWB       string
	OrderID   string
	Status    string
	Delivered bool
}

// ParseWebhook extracts the tracking update from a webhook body.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	if !gjson.ValidBytes(body) {
		return WebhookEvent{}, fmt.Errorf("webhook body is not valid JSON")
	}
	res := gjson.GetManyBytes(body, "awb", "order_id", "current_status", "shipment_status")
	ev := WebhookEvent{
		AWB:     res[0].String(),
		OrderID: res[1].String(),
		Status:  res[2].String(),
	}
	if ev.Status == "" {
		ev.Status = res[3].String()
	}
	if ev.AWB == "" && ev.OrderID == "" {
		return WebhookEvent{}, fmt.Errorf("webhook has neither awb nor order_id")
	}
	ev.Delivered = IsDelivered(ev.Status)
	return ev, nil
}

// IsDelivered reports whether a courier status means delivered.
func IsDelivered(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "delivered")
}
