// Package pixel reports storefront events to the Facebook Conversions API.
package pixel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/logging"
)

// Standard event names.
const (
	EventViewContent      = "ViewContent"
	EventAddToCart        = "AddToCart"
	EventInitiateCheckout = "InitiateCheckout"
	EventPurchase         = "Purchase"
)

// Event is one server-side conversion event.
type Event struct {
	Name       string
	ID         string // deduplicates against the browser pixel
	Time       time.Time
	SourceURL  string
	Email      string
	Phone      string
	ClientIP   string
	UserAgent  string
	Currency   string
	ValueMinor int64
	ContentIDs []string
	NumItems   int
}

// Tracker sends events to one or more pixels.
type Tracker interface {
	Track(ctx context.Context, pixelIDs []string, ev Event) error
}

// Config configures the Conversions API client.
type Config struct {
	BaseURL       string
	AccessToken   string
	TestEventCode string
	HTTPClient    *http.Client
}

// Conversions is the Conversions API tracker.
type Conversions struct {
	client   *httputil.Client
	token    string
	testCode string
}

func NewConversions(cfg Config) *Conversions {
	return &Conversions{
		client: httputil.NewClient(httputil.ClientConfig{
			Provider:   "facebook_pixel",
			BaseURL:    cfg.BaseURL,
			Timeout:    10 * time.Second,
			HTTPClient: cfg.HTTPClient,
			Observe:    metrics.RecordUpstream,
		}),
		token:    cfg.AccessToken,
		testCode: cfg.TestEventCode,
	}
}

// Track posts ev to every distinct non-empty pixel id. All pixels are tried;
// the first error is returned.
func (c *Conversions) Track(ctx context.Context, pixelIDs []string, ev Event) error {
	payload := map[string]interface{}{"data": []interface{}{eventPayload(ev)}}
	if c.testCode != "" {
		payload["test_event_code"] = c.testCode
	}

	var firstErr error
	seen := make(map[string]bool, len(pixelIDs))
	for _, id := range pixelIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		path := "/" + url.PathEscape(id) + "/events?access_token=" + url.QueryEscape(c.token)
		if err := c.client.DoJSON(ctx, http.MethodPost, path, payload, nil); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pixel %s: %w", id, err)
		}
	}
	return firstErr
}

func eventPayload(ev Event) map[string]interface{} {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	user := map[string]interface{}{}
	if ev.Email != "" {
		user["em"] = []string{Hash(ev.Email)}
	}
	if ev.Phone != "" {
		user["ph"] = []string{Hash(digits(ev.Phone))}
	}
	if ev.ClientIP != "" {
		user["client_ip_address"] = ev.ClientIP
	}
	if ev.UserAgent != "" {
		user["client_user_agent"] = ev.UserAgent
	}

	out := map[string]interface{}{
		"event_name":    ev.Name,
		"event_time":    ev.Time.Unix(),
		"action_source": "website",
		"user_data":     user,
	}
	if ev.ID != "" {
		out["event_id"] = ev.ID
	}
	if ev.SourceURL != "" {
		out["event_source_url"] = ev.SourceURL
	}
	if ev.Currency != "" || len(ev.ContentIDs) > 0 {
		out["custom_data"] = map[string]interface{}{
			"currency":     ev.Currency,
			"value":        float64(ev.ValueMinor) / 100,
			"content_ids":  ev.ContentIDs,
			"content_type": "product",
			"num_items":    ev.NumItems,
		}
	}
	return out
}

// Hash normalises and SHA-256 hashes a user identifier as the API requires.
func Hash(v string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
	return hex.EncodeToString(sum[:])
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Noop logs events at debug level and sends nothing.
type Noop struct {
	Log *logging.Logger
}

func (n Noop) Track(ctx context.Context, pixelIDs []string, ev Event) error {
	if n.Log != nil {
		n.Log.WithContext(ctx).WithField("event", ev.Name).WithField("pixels", pixelIDs).Debug("pixel disabled; event dropped")
	}
	return nil
}
