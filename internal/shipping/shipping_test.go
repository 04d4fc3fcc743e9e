package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/logging"
)

type fakeAggregator struct {
	logins int32
	valid  atomic.Value
}

func (f *fakeAggregator) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.logins, 1)
		token := "tok-" + string(rune('0'+n))
		f.valid.Store(token)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			want, _ := f.valid.Load().(string)
			if r.Header.Get("Authorization") != "Bearer "+want {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/v1/external/orders/create/adhoc", authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"order_id": 991, "shipment_id": 1234, "status": "NEW", "channel_order_id": "` + body["order_id"].(string) + `"}`))
	}))
	mux.HandleFunc("/v1/external/courier/assign/awb", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"awb_assign_status":1,"response":{"data":{"awb_code":"AWB42","courier_name":"BlueDart"}}}`))
	}))
	mux.HandleFunc("/v1/external/courier/generate/label", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"label_created":1,"label_url":"https://labels/1.pdf"}`))
	}))
	mux.HandleFunc("/v1/external/courier/track/awb/AWB42", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tracking_data":{"shipment_track":[{"current_status":"Delivered","updated_time_stamp":"2024-05-01 10:00:00"}]}}`))
	}))
	return mux
}

func newTestClient(t *testing.T, kv cache.KV) (*Shiprocket, *fakeAggregator) {
	t.Helper()
	agg := &fakeAggregator{}
	srv := httptest.NewServer(agg.handler(t))
	t.Cleanup(srv.Close)
	return NewShiprocket(Config{BaseURL: srv.URL, Email: "ops@example.com", Password: "pw", PickupLocation: "Primary"}, kv, logging.NewDiscard()), agg
}

func TestShipmentFlow(t *testing.T) {
	ctx := context.Background()
	kv := cache.NewLocalKV(0)
	client, agg := newTestClient(t, kv)

	sh, err := client.CreateShipment(ctx, ShipmentRequest{OrderID: "o1", OrderDate: time.Now(), Items: []Item{{Name: "Tee", SKU: "p1", Units: 1, PriceMinor: 49900}}})
	require.NoError(t, err)
	assert.Equal(t, "1234", sh.ShipmentID)

	awb, err := client.AssignAWB(ctx, sh.ShipmentID)
	require.NoError(t, err)
	assert.Equal(t, AWB{Code: "AWB42", Courier: "BlueDart"}, awb)

	label, err := client.GenerateLabel(ctx, sh.ShipmentID)
	require.NoError(t, err)
	assert.Equal(t, "https://labels/1.pdf", label)

	tr, err := client.Track(ctx, "AWB42")
	require.NoError(t, err)
	assert.True(t, tr.Delivered)
	assert.Equal(t, 2024, tr.UpdatedAt.Year())

	assert.Equal(t, int32(1), atomic.LoadInt32(&agg.logins), "token should be reused")
	cached, err := kv.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", string(cached))
}

func TestTokenReusedFromKV(t *testing.T) {
	ctx := context.Background()
	kv := cache.NewLocalKV(0)
	client, agg := newTestClient(t, kv)
	agg.valid.Store("shared")
	require.NoError(t, kv.Set(ctx, TokenKey, []byte("shared"), time.Hour))

	_, err := client.AssignAWB(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&agg.logins))
}

func TestTokenRefreshOnUnauthorized(t *testing.T) {
	ctx := context.Background()
	kv := cache.NewLocalKV(0)
	client, agg := newTestClient(t, kv)
	require.NoError(t, kv.Set(ctx, TokenKey, []byte("stale"), time.Hour))
	agg.valid.Store("nothing-matches")

	_, err := client.AssignAWB(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&agg.logins))

	cached, _ := kv.Get(ctx, TokenKey)
	assert.Equal(t, "tok-1", string(cached))
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"awb":"AWB42","order_id":"o1","current_status":"DELIVERED","shipment_status":"7"}`))
	require.NoError(t, err)
	assert.Equal(t, WebhookEvent{AWB: "AWB42", OrderID: "o1", Status: "DELIVERED", Delivered: true}, ev)

	ev, err = ParseWebhook([]byte(`{"awb":"AWB1","shipment_status":"In Transit"}`))
	require.NoError(t, err)
	assert.False(t, ev.Delivered)
	assert.Equal(t, "In Transit", ev.Status)

	_, err = ParseWebhook([]byte(`{"current_status":"x"}`))
	assert.Error(t, err)
}

func TestFakeProvider(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	sh, err := f.CreateShipment(ctx, ShipmentRequest{OrderID: "o1"})
	require.NoError(t, err)
	awb, err := f.AssignAWB(ctx, sh.ShipmentID)
	require.NoError(t, err)

	tr, _ := f.Track(ctx, awb.Code)
	assert.False(t, tr.Delivered)
	f.SetStatus(awb.Code, "Delivered")
	tr, _ = f.Track(ctx, awb.Code)
	assert.True(t, tr.Delivered)
}
