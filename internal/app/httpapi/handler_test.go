package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/brandloom/storefront/internal/app"
	"github.com/brandloom/storefront/internal/config"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/middleware"
)

const (
	testSecret     = "http-test-secret"
	adminEmail     = "admin@example.com"
	shippingToken  = "ship-token"
	webhookSecret  = "whsec-test"
	testShopName   = "Loom Test"
	pngSignature   = "\x89PNG\r\n\x1a\n"
	rpcContentType = "application/json"
)

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.JWTPublicKey = ""
	cfg.Auth.JWTIssuer = ""
	cfg.Auth.AdminEmails = adminEmail
	cfg.Shipping.WebhookToken = shippingToken
	cfg.Payment.KeyID = ""
	cfg.Payment.WebhookSecret = webhookSecret
	cfg.Shop.Name = testShopName
	cfg.HTTP.AuditLogPath = ""
	cfg.HTTP.RatePerMinute = 6000
	cfg.HTTP.RateBurst = 1000

	application, err := app.New(app.Options{Config: cfg}, logging.NewDiscard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	srv, err := NewServer(application, logging.NewDiscard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() {
		_ = application.Stop(context.Background())
		_ = srv.Close()
	})
	return srv
}

func token(t *testing.T, sub, email string) string {
	t.Helper()
	claims := &middleware.Claims{
		Email: email,
		Name:  sub,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func call(t *testing.T, h http.Handler, bearer, procedure string, input any) (int, envelope) {
	t.Helper()
	var body []byte
	if input != nil {
		body = marshal(t, input)
	}
	req := httptest.NewRequest(http.MethodPost, RPCPrefix+"/"+procedure, bytes.NewReader(body))
	req.Header.Set("Content-Type", rpcContentType)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	var env envelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s: decode envelope %q: %v", procedure, resp.Body.String(), err)
	}
	return resp.Code, env
}

func mustCall(t *testing.T, h http.Handler, bearer, procedure string, input any, out any) {
	t.Helper()
	code, env := call(t, h, bearer, procedure, input)
	if code != http.StatusOK || env.Error != nil {
		t.Fatalf("%s: expected 200, got %d %+v", procedure, code, env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			t.Fatalf("%s: decode result: %v", procedure, err)
		}
	}
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// approvedBrand onboards a brand owned by owner and approves it.
func approvedBrand(t *testing.T, h http.Handler, owner, slug string) string {
	t.Helper()
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	mustCall(t, h, owner, "brand.apply", map[string]any{
		"name":          "Brand " + slug,
		"slug":          slug,
		"contact_email": "owner@" + slug + ".test",
	}, &created)
	if created.Status != "pending" {
		t.Fatalf("expected pending brand, got %s", created.Status)
	}
	admin := token(t, "admin-1", adminEmail)
	mustCall(t, h, admin, "admin.brands.approve", map[string]any{"id": created.ID}, nil)
	return created.ID
}

func TestHealthAndProcedureListing(t *testing.T) {
	srv := newTestServer(t)

	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 healthz, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, RPCPrefix+"/rpc.procedures", nil)
	resp = httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 listing, got %d: %s", resp.Code, resp.Body.String())
	}
	var env struct {
		Result []procedureInfo `json:"result"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	access := map[string]string{}
	for _, p := range env.Result {
		access[p.Name] = p.Access
	}
	checks := map[string]string{
		"brand.apply":           "authed",
		"product.first100":      "public",
		"admin.brands.approve":  "admin",
		"brand.products.create": "brand(manage_products)",
	}
	for name, want := range checks {
		if access[name] != want {
			t.Fatalf("procedure %s: expected access %q, got %q", name, want, access[name])
		}
	}
}

func TestAnonymousAndInvalidCredentials(t *testing.T) {
	srv := newTestServer(t)

	code, env := call(t, srv, "", "user.me", nil)
	if code != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected 401 for anonymous user.me, got %d %+v", code, env.Error)
	}

	req := httptest.NewRequest(http.MethodPost, RPCPrefix+"/user.me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", resp.Code)
	}

	var me struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	mustCall(t, srv, token(t, "admin-1", adminEmail), "user.me", nil, &me)
	if me.ID != "admin-1" || me.Role != "admin" {
		t.Fatalf("expected allowlisted admin, got %+v", me)
	}
}

func TestBrandOnboardingVisibility(t *testing.T) {
	srv := newTestServer(t)
	owner := token(t, "owner-1", "owner@example.com")

	var created struct {
		ID string `json:"id"`
	}
	mustCall(t, srv, owner, "brand.apply", map[string]any{
		"name": "Indigo Looms", "slug": "indigo-looms", "contact_email": "hi@indigo.test",
	}, &created)

	code, _ := call(t, srv, "", "brand.get", map[string]any{"slug": "indigo-looms"})
	if code != http.StatusNotFound {
		t.Fatalf("expected pending brand hidden, got %d", code)
	}

	code, env := call(t, srv, owner, "admin.brands.approve", map[string]any{"id": created.ID})
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin approve, got %d %+v", code, env.Error)
	}

	mustCall(t, srv, token(t, "admin-1", adminEmail), "admin.brands.approve", map[string]any{"id": created.ID}, nil)

	var visible struct {
		Status string `json:"status"`
	}
	mustCall(t, srv, "", "brand.get", map[string]any{"slug": "indigo-looms"}, &visible)
	if visible.Status != "approved" {
		t.Fatalf("expected approved brand, got %s", visible.Status)
	}
}

func TestBrandPermissionsEnforced(t *testing.T) {
	srv := newTestServer(t)
	owner := token(t, "owner-1", "owner@example.com")
	stranger := token(t, "stranger", "stranger@example.com")
	brandID := approvedBrand(t, srv, owner, "khadi-co")

	product := map[string]any{
		"brand_id": brandID, "slug": "handloom-scarf", "name": "Handloom Scarf",
		"price_minor": 129900, "stock": 5, "status": "active", "tags": []string{"Scarves"},
	}

	code, env := call(t, srv, stranger, "brand.products.create", product)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d %+v", code, env.Error)
	}

	mustCall(t, srv, owner, "brand.products.create", product, nil)

	var got struct {
		Name  string   `json:"name"`
		Tags  []string `json:"tags"`
		Stock int      `json:"stock"`
	}
	mustCall(t, srv, "", "product.get", map[string]any{"slug": "handloom-scarf"}, &got)
	if got.Name != "Handloom Scarf" || got.Stock != 5 || len(got.Tags) != 1 || got.Tags[0] != "scarves" {
		t.Fatalf("unexpected product %+v", got)
	}

	// A viewer cannot be granted more than the granter holds, and cannot
	// manage products.
	mustCall(t, srv, token(t, "viewer-1", "viewer@example.com"), "user.me", nil, nil)
	mustCall(t, srv, owner, "brand.members.add", map[string]any{
		"brand_id": brandID, "user_id": "viewer-1", "permissions": []string{"viewer"},
	}, nil)
	viewer := token(t, "viewer-1", "viewer@example.com")
	code, env = call(t, srv, viewer, "brand.products.create", product)
	if code != http.StatusForbidden || env.Error == nil {
		t.Fatalf("expected 403 for viewer, got %d", code)
	}
	if missing, _ := env.Error.Details["missing"].([]any); len(missing) != 1 || missing[0] != "manage_products" {
		t.Fatalf("expected missing manage_products, got %v", env.Error.Details)
	}

	var access brandAccessResult
	mustCall(t, srv, viewer, "brand.access", map[string]any{"brand_id": brandID}, &access)
	if strings.Join(access.Permissions, ",") != "view_analytics,view_orders" {
		t.Fatalf("unexpected viewer permissions %v", access.Permissions)
	}
}

func TestAuditRecordsMutations(t *testing.T) {
	srv := newTestServer(t)
	owner := token(t, "owner-1", "owner@example.com")
	approvedBrand(t, srv, owner, "audit-brand")

	var entries []auditEntry
	mustCall(t, srv, token(t, "admin-1", adminEmail), "admin.audit.list", map[string]any{"limit": 10}, &entries)
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Procedure != "admin.brands.approve" || entries[0].User != "admin-1" {
		t.Fatalf("expected newest entry to be the approval, got %+v", entries[0])
	}
	if entries[1].Procedure != "brand.apply" || entries[1].Code != "OK" {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
}

func TestWebhooksAuthenticate(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shipping", strings.NewReader(`{"awb":"1"}`))
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without shipping token, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{"event":"payment.captured"}`))
	req.Header.Set("X-Razorpay-Signature", "deadbeef")
	resp = httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad payment signature, got %d", resp.Code)
	}
}

func TestUploadAndServe(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "logo.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(pngSignature + strings.Repeat("\x00", 64)))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader(body.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous upload, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader(body.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, "user-9", "u9@example.com"))
	resp = httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 upload, got %d: %s", resp.Code, resp.Body.String())
	}
	var res struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if !strings.HasPrefix(res.Key, "uploads/user-9/") || !strings.HasSuffix(res.Key, ".png") {
		t.Fatalf("unexpected key %s", res.Key)
	}

	u, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	resp = httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, u.Path, nil))
	if resp.Code != http.StatusOK || resp.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected stored png, got %d %s", resp.Code, resp.Header().Get("Content-Type"))
	}
}

func TestOrderFeedRequiresViewOrders(t *testing.T) {
	srv := newTestServer(t)
	brandID := approvedBrand(t, srv, token(t, "owner-1", "owner@example.com"), "feed-brand")

	req := httptest.NewRequest(http.MethodGet, "/ws/brands/"+brandID+"/orders?access_token="+token(t, "stranger", "s@example.com"), nil)
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member feed, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ws/brands/"+brandID+"/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous feed, got %d", resp.Code)
	}
}

func TestPages(t *testing.T) {
	srv := newTestServer(t)

	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), testShopName) {
		t.Fatalf("expected home page, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/legal/terms", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before terms exist, got %d", resp.Code)
	}

	mustCall(t, srv, token(t, "admin-1", adminEmail), "admin.legal.put", map[string]any{
		"kind": "terms", "title": "Terms of Service", "body": "First clause.\n\nSecond <clause>.",
	}, nil)

	resp = httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/legal/terms", nil))
	page := resp.Body.String()
	if resp.Code != http.StatusOK || !strings.Contains(page, "Terms of Service") {
		t.Fatalf("expected terms page, got %d", resp.Code)
	}
	if !strings.Contains(page, "<p>Second &lt;clause&gt;.</p>") {
		t.Fatalf("expected escaped paragraphs, got %s", page)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[int64]string{
		0:         "INR 0.00",
		129900:    "INR 1,299.00",
		123456789: "INR 1,234,567.89",
		-5:        "INR -0.05",
	}
	for minor, want := range cases {
		if got := formatPrice(minor, "INR"); got != want {
			t.Fatalf("formatPrice(%d) = %q, want %q", minor, got, want)
		}
	}
}
