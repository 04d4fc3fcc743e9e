// Package payment talks to the card/UPI payment gateway: it creates gateway
// orders for checkouts and verifies payment and webhook signatures.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/httputil"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "X-Razorpay-Signature"

// Webhook event names handled by the storefront.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Order is a gateway-side order the client pays against.
type Order struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// CreateOrderRequest describes a new gateway order.
type CreateOrderRequest struct {
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// WebhookEvent is the part of a webhook payload the storefront uses.
type WebhookEvent struct {
	Event     string
	PaymentID string
	OrderID   string
	Status    string
	Reason    string
}

// Gateway is the payment provider contract.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
	// VerifyPayment checks the signature returned to the client after
	// checkout.
	VerifyPayment(orderID, paymentID, signature string) bool
	// VerifyWebhook checks the signature over the raw webhook body.
	VerifyWebhook(body []byte, signature string) bool
	// KeyID is the public key the client-side checkout needs.
	KeyID() string
}

// Config configures the Razorpay client.
type Config struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	HTTPClient    *http.Client
}

// Razorpay is the production gateway.
type Razorpay struct {
	client        *httputil.Client
	keyID         string
	keySecret     string
	webhookSecret string
}

// NewRazorpay creates a gateway client authenticated with basic auth.
func NewRazorpay(cfg Config) *Razorpay {
	return &Razorpay{
		client: httputil.NewClient(httputil.ClientConfig{
			Provider:   "razorpay",
			BaseURL:    cfg.BaseURL,
			Auth:       httputil.Basic(cfg.KeyID, cfg.KeySecret),
			HTTPClient: cfg.HTTPClient,
			Observe:    metrics.RecordUpstream,
		}),
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (r *Razorpay) KeyID() string { return r.keyID }

func (r *Razorpay) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if req.AmountMinor <= 0 {
		return Order{}, fmt.Errorf("amount must be positive")
	}
	var out Order
	if err := r.client.DoJSON(ctx, http.MethodPost, "/v1/orders", req, &out); err != nil {
		return Order{}, fmt.Errorf("create gateway order: %w", err)
	}
	return out, nil
}

func (r *Razorpay) VerifyPayment(orderID, paymentID, signature string) bool {
	return verify(r.keySecret, []byte(orderID+"|"+paymentID), signature)
}

func (r *Razorpay) VerifyWebhook(body []byte, signature string) bool {
	return verify(r.webhookSecret, body, signature)
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook extracts the payment entity from a webhook body.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	if !gjson.ValidBytes(body) {
		return WebhookEvent{}, fmt.Errorf("webhook body is not valid JSON")
	}
	res := gjson.GetManyBytes(body,
		"event",
		"payload.payment.entity.id",
		"payload.payment.entity.order_id",
		"payload.payment.entity.status",
		"payload.payment.entity.error_description",
	)
	ev := WebhookEvent{
		Event:     res[0].String(),
		PaymentID: res[1].String(),
		OrderID:   res[2].String(),
		Status:    res[3].String(),
		Reason:    res[4].String(),
	}
	if ev.Event == "" {
		return WebhookEvent{}, fmt.Errorf("webhook event missing")
	}
	return ev, nil
}

// Fake is an in-process gateway for development and tests. It signs with
// its own secrets, so Sign can produce valid client signatures.
type Fake struct {
	Secret        string
	WebhookSecret string

	mu     sync.Mutex
	orders map[string]Order
}

// NewFake creates a fake gateway.
func NewFake(secret, webhookSecret string) *Fake {
	return &Fake{Secret: secret, WebhookSecret: webhookSecret, orders: make(map[string]Order)}
}

func (f *Fake) KeyID() string { return "rzp_test_fake" }

func (f *Fake) CreateOrder(_ context.Context, req CreateOrderRequest) (Order, error) {
	if req.AmountMinor <= 0 {
		return Order{}, fmt.Errorf("amount must be positive")
	}
	o := Order{
		ID:          "order_" + uuid.NewString()[:14],
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Receipt:     req.Receipt,
		Status:      "created",
	}
	f.mu.Lock()
	f.orders[o.ID] = o
	f.mu.Unlock()
	return o, nil
}

// Orders returns the orders created so far.
func (f *Fake) Orders() []Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out
}

func (f *Fake) VerifyPayment(orderID, paymentID, signature string) bool {
	return verify(f.Secret, []byte(orderID+"|"+paymentID), signature)
}

func (f *Fake) VerifyWebhook(body []byte, signature string) bool {
	return verify(f.WebhookSecret, body, signature)
}
