package pixel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackPostsToEachPixel(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"events_received":1}`))
	}))
	defer srv.Close()

	c := NewConversions(Config{BaseURL: srv.URL, AccessToken: "tok", TestEventCode: "TEST1"})
	err := c.Track(context.Background(), []string{"111", "", "222", "111"}, Event{
		Name:       EventPurchase,
		ID:         "order_1",
		Time:       time.Unix(1700000000, 0),
		Email:      " Buyer@Example.com ",
		Currency:   "INR",
		ValueMinor: 129900,
		ContentIDs: []string{"p1"},
		NumItems:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/111/events?access_token=tok", "/222/events?access_token=tok"}, paths)

	assert.Equal(t, "TEST1", body["test_event_code"])
	ev := body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Purchase", ev["event_name"])
	assert.Equal(t, float64(1700000000), ev["event_time"])
	user := ev["user_data"].(map[string]interface{})
	assert.Equal(t, []interface{}{Hash("buyer@example.com")}, user["em"])
	custom := ev["custom_data"].(map[string]interface{})
	assert.Equal(t, 1299.0, custom["value"])
}

func TestTrackReturnsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewConversions(Config{BaseURL: srv.URL, AccessToken: "tok"})
	err := c.Track(context.Background(), []string{"111"}, Event{Name: EventPurchase})
	assert.Error(t, err)
}

func TestHashNormalises(t *testing.T) {
	assert.Equal(t, Hash("a@b.co"), Hash("  A@B.CO"))
	assert.Len(t, Hash("x"), 64)
}
