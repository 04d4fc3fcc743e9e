package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v1/orders" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req CreateOrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(Order{ID: "order_1", AmountMinor: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt, Status: "created"})
	}))
	defer srv.Close()

	gw := NewRazorpay(Config{BaseURL: srv.URL, KeyID: "key", KeySecret: "secret"})
	o, err := gw.CreateOrder(context.Background(), CreateOrderRequest{AmountMinor: 12300, Currency: "INR", Receipt: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "order_1", o.ID)
	assert.Equal(t, int64(12300), o.AmountMinor)

	_, err = gw.CreateOrder(context.Background(), CreateOrderRequest{AmountMinor: 0})
	assert.Error(t, err)
}

func TestRazorpayUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"description":"amount too small"}}`))
	}))
	defer srv.Close()

	gw := NewRazorpay(Config{BaseURL: srv.URL, KeyID: "key", KeySecret: "secret"})
	_, err := gw.CreateOrder(context.Background(), CreateOrderRequest{AmountMinor: 1, Currency: "INR"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")
}

func TestVerifyPaymentSignature(t *testing.T) {
	gw := NewRazorpay(Config{KeySecret: "secret", WebhookSecret: "whsec"})
	sig := Sign("secret", []byte("order_1|pay_1"))

	assert.True(t, gw.VerifyPayment("order_1", "pay_1", sig))
	assert.False(t, gw.VerifyPayment("order_1", "pay_2", sig))
	assert.False(t, gw.VerifyPayment("order_1", "pay_1", ""))

	body := []byte(`{"event":"payment.captured"}`)
	assert.True(t, gw.VerifyWebhook(body, Sign("whsec", body)))
	assert.False(t, gw.VerifyWebhook(body, Sign("secret", body)))
}

func TestVerifyRejectsWithoutSecret(t *testing.T) {
	gw := NewRazorpay(Config{})
	assert.False(t, gw.VerifyWebhook([]byte("{}"), Sign("", []byte("{}"))))
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"event": "payment.failed",
		"payload": {"payment": {"entity": {
			"id": "pay_9", "order_id": "order_9", "status": "failed",
			"error_description": "card declined"
		}}}
	}`)
	ev, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, WebhookEvent{Event: EventPaymentFailed, PaymentID: "pay_9", OrderID: "order_9", Status: "failed", Reason: "card declined"}, ev)

	_, err = ParseWebhook([]byte(`{"payload":{}}`))
	assert.Error(t, err)
	_, err = ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
}

func TestFakeGateway(t *testing.T) {
	f := NewFake("s", "w")
	o, err := f.CreateOrder(context.Background(), CreateOrderRequest{AmountMinor: 500, Currency: "INR"})
	require.NoError(t, err)
	assert.Len(t, f.Orders(), 1)
	assert.True(t, f.VerifyPayment(o.ID, "pay_1", Sign("s", []byte(o.ID+"|pay_1"))))
}
