package shipping

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/logging"
)

// TokenKey is the KV key of the cached API token.
const TokenKey = "shiprocket:token"

// Config configures the Shiprocket client.
type Config struct {
	BaseURL        string
	Email          string
	Password       string
	PickupLocation string
	TokenTTL       time.Duration
	HTTPClient     *http.Client
}

// Shiprocket implements Provider.
type Shiprocket struct {
	client *httputil.Client
	auth   *tokenAuth
	pickup string
}

// NewShiprocket creates a client. The login token is shared through kv so all
// instances reuse it until it expires.
func NewShiprocket(cfg Config, kv cache.KV, log *logging.Logger) *Shiprocket {
	if log == nil {
		log = logging.NewDefault("shipping")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 9 * 24 * time.Hour
	}
	auth := &tokenAuth{
		login: httputil.NewClient(httputil.ClientConfig{
			Provider:   "shiprocket",
			BaseURL:    cfg.BaseURL,
			HTTPClient: cfg.HTTPClient,
			Observe:    metrics.RecordUpstream,
		}),
		email:    cfg.Email,
		password: cfg.Password,
		kv:       kv,
		ttl:      cfg.TokenTTL,
		log:      log,
	}
	return &Shiprocket{
		client: httputil.NewClient(httputil.ClientConfig{
			Provider:   "shiprocket",
			BaseURL:    cfg.BaseURL,
			Auth:       auth,
			HTTPClient: cfg.HTTPClient,
			Observe:    metrics.RecordUpstream,
		}),
		auth:   auth,
		pickup: cfg.PickupLocation,
	}
}

// tokenAuth logs in lazily, caches the token in KV and logs in again when
// the API answers 401.
type tokenAuth struct {
	login    *httputil.Client
	email    string
	password string
	kv       cache.KV
	ttl      time.Duration
	log      *logging.Logger

	mu    sync.Mutex
	token string
}

func (a *tokenAuth) Authorize(ctx context.Context, req *http.Request) error {
	token, err := a.current(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (a *tokenAuth) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.loginLocked(ctx)
	return err
}

func (a *tokenAuth) current(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" {
		return a.token, nil
	}
	if a.kv != nil {
		data, err := a.kv.Get(ctx, TokenKey)
		switch {
		case err == nil && len(data) > 0:
			a.token = string(data)
			return a.token, nil
		case err != nil && !errors.Is(err, cache.ErrMiss):
			a.log.WithError(err).Warn("read cached shipping token failed")
		}
	}
	return a.loginLocked(ctx)
}

func (a *tokenAuth) loginLocked(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": a.email, "password": a.password}
	// Logging in twice only issues another token.
	if err := a.login.DoJSON(httputil.AllowRetry(ctx), http.MethodPost, "/v1/external/auth/login", body, &out); err != nil {
		return "", fmt.Errorf("shipping login: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("shipping login: empty token")
	}
	a.token = out.Token
	if a.kv != nil {
		if err := a.kv.Set(ctx, TokenKey, []byte(out.Token), a.ttl); err != nil {
			a.log.WithError(err).Warn("cache shipping token failed")
		}
	}
	a.log.Info("shipping token refreshed")
	return out.Token, nil
}

// raw performs a call and returns the response body for gjson parsing.
func (s *Shiprocket) raw(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	resp, err := s.client.Do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, httputil.DecodeResponse(resp, nil)
	}
	defer resp.Body.Close()
	return httputil.ReadAllStrict(resp.Body, 1<<20)
}

func (s *Shiprocket) orderPayload(req ShipmentRequest) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, map[string]interface{}{
			"name":          it.Name,
			"sku":           it.SKU,
			"units":         it.Units,
			"selling_price": minorToMajor(it.PriceMinor),
		})
	}
	weight := req.WeightKG
	if weight <= 0 {
		weight = 0.5
	}
	c := req.Customer
	return map[string]interface{}{
		"order_id":              req.OrderID,
		"order_date":            req.OrderDate.Format("2006-01-02 15:04"),
		"pickup_location":       s.pickup,
		"billing_customer_name": c.Name,
		"billing_last_name":     "",
		"billing_address":       c.Line1,
		"billing_address_2":     c.Line2,
		"billing_city":          c.City,
		"billing_state":         c.State,
		"billing_pincode":       c.PostalCode,
		"billing_country":       c.Country,
		"billing_email":         c.Email,
		"billing_phone":         c.Phone,
		"shipping_is_billing":   true,
		"order_items":           items,
		"payment_method":        "Prepaid",
		"sub_total":             minorToMajor(req.SubtotalMinor),
		"length":                10,
		"breadth":               10,
		"height":                10,
		"weight":                weight,
	}
}

func (s *Shiprocket) CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error) {
	data, err := s.raw(ctx, http.MethodPost, "/v1/external/orders/create/adhoc", s.orderPayload(req))
	if err != nil {
		return Shipment{}, fmt.Errorf("create shipment: %w", err)
	}
	return parseShipment(data)
}

func (s *Shiprocket) CreateReturn(ctx context.Context, req ShipmentRequest) (Shipment, error) {
	payload := s.orderPayload(req)
	payload["order_id"] = req.OrderID + "-R"
	c := req.Customer
	for k, v := range map[string]interface{}{
		"pickup_customer_name": c.Name,
		"pickup_address":       c.Line1,
		"pickup_city":          c.City,
		"pickup_state":         c.State,
		"pickup_pincode":       c.PostalCode,
		"pickup_country":       c.Country,
		"pickup_phone":         c.Phone,
		"pickup_email":         c.Email,
	} {
		payload[k] = v
	}
	data, err := s.raw(ctx, http.MethodPost, "/v1/external/orders/create/return", payload)
	if err != nil {
		return Shipment{}, fmt.Errorf("create return: %w", err)
	}
	return parseShipment(data)
}

func parseShipment(data []byte) (Shipment, error) {
	res := gjson.GetManyBytes(data, "order_id", "shipment_id", "status")
	sh := Shipment{OrderID: res[0].String(), ShipmentID: res[1].String(), Status: res[2].String()}
	if sh.ShipmentID == "" || sh.ShipmentID == "0" {
		return Shipment{}, fmt.Errorf("aggregator returned no shipment id")
	}
	return sh, nil
}

func (s *Shiprocket) AssignAWB(ctx context.Context, shipmentID string) (AWB, error) {
	data, err := s.raw(ctx, http.MethodPost, "/v1/external/courier/assign/awb", map[string]interface{}{"shipment_id": shipmentID})
	if err != nil {
		return AWB{}, fmt.Errorf("assign awb: %w", err)
	}
	awb := AWB{
		Code:    gjson.GetBytes(data, "response.data.awb_code").String(),
		Courier: gjson.GetBytes(data, "response.data.courier_name").String(),
	}
	if awb.Code == "" {
		return AWB{}, fmt.Errorf("assign awb: %s", gjson.GetBytes(data, "message").String())
	}
	return awb, nil
}

func (s *Shiprocket) GenerateLabel(ctx context.Context, shipmentID string) (string, error) {
	data, err := s.raw(ctx, http.MethodPost, "/v1/external/courier/generate/label", map[string]interface{}{"shipment_id": []string{shipmentID}})
	if err != nil {
		return "", fmt.Errorf("generate label: %w", err)
	}
	url := gjson.GetBytes(data, "label_url").String()
	if url == "" {
		return "", fmt.Errorf("generate label: no label url")
	}
	return url, nil
}

func (s *Shiprocket) SchedulePickup(ctx context.Context, shipmentID string) error {
	if _, err := s.raw(ctx, http.MethodPost, "/v1/external/courier/generate/pickup", map[string]interface{}{"shipment_id": []string{shipmentID}}); err != nil {
		return fmt.Errorf("schedule pickup: %w", err)
	}
	return nil
}

func (s *Shiprocket) Track(ctx context.Context, awb string) (Tracking, error) {
	data, err := s.raw(ctx, http.MethodGet, "/v1/external/courier/track/awb/"+awb, nil)
	if err != nil {
		return Tracking{}, fmt.Errorf("track %s: %w", awb, err)
	}
	track := gjson.GetBytes(data, "tracking_data.shipment_track.0")
	status := track.Get("current_status").String()
	t := Tracking{AWB: awb, Status: status, Delivered: IsDelivered(status)}
	if ts := track.Get("updated_time_stamp").String(); ts != "" {
		if parsed, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
			t.UpdatedAt = parsed
		}
	}
	return t, nil
}

func minorToMajor(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', 2, 64)
}
