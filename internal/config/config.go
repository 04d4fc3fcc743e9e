// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	Env     string `env:"APP_ENV,default=development"`
	Addr    string `env:"HTTP_ADDR,default=:8080"`
	BaseURL string `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	Database Database
	Redis    Redis
	Auth     Auth
	HTTP     HTTP
	Shop     Shop
	Payment  Payment
	Shipping Shipping
	WhatsApp WhatsApp
	Email    Email
	Pixel    Pixel
	Upload   Upload
	Jobs     Jobs
}

type Database struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE,default=true"`
}

type Redis struct {
	URL           string `env:"REDIS_URL"`
	LocalCapacity uint64 `env:"LOCAL_CACHE_CAPACITY,default=10000"`
}

type Auth struct {
	// JWTSecret verifies HS256 tokens; JWTPublicKey (PEM) verifies RS256.
	JWTSecret    string `env:"AUTH_JWT_SECRET"`
	JWTPublicKey string `env:"AUTH_JWT_PUBLIC_KEY"`
	JWTIssuer    string `env:"AUTH_JWT_ISSUER"`
	// AdminEmails is a comma separated allowlist of admin accounts.
	AdminEmails string `env:"ADMIN_EMAILS"`
}

type HTTP struct {
	CORSOrigins     string        `env:"CORS_ALLOWED_ORIGINS"`
	RatePerMinute   int           `env:"RATE_LIMIT_PER_MINUTE,default=300"`
	RateBurst       int           `env:"RATE_LIMIT_BURST,default=60"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=20s"`
	// AuditLogPath appends every RPC mutation as JSONL when set.
	AuditLogPath    string        `env:"AUDIT_LOG_PATH"`
	AuditCapacity   int           `env:"AUDIT_CAPACITY,default=500"`

	// Rejected credentials allowed per client IP.
	AuthFailuresPerMinute int `env:"AUTH_FAILURES_PER_MINUTE,default=20"`
	AuthFailureBurst      int `env:"AUTH_FAILURE_BURST,default=10"`
}

type Shop struct {
	Currency          string `env:"SHOP_CURRENCY,default=INR"`
	ShippingFeeMinor  int64  `env:"SHIPPING_FEE_MINOR,default=4900"`
	FreeShippingMinor int64  `env:"FREE_SHIPPING_THRESHOLD_MINOR,default=99900"`
	Name              string `env:"SHOP_NAME,default=Storefront"`
}

type Payment struct {
	BaseURL       string `env:"RAZORPAY_BASE_URL,default=https://api.razorpay.com"`
	KeyID         string `env:"RAZORPAY_KEY_ID"`
	KeySecret     string `env:"RAZORPAY_KEY_SECRET"`
	WebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`
}

type Shipping struct {
	BaseURL        string        `env:"SHIPROCKET_BASE_URL,default=https://apiv2.shiprocket.in"`
	Email          string        `env:"SHIPROCKET_EMAIL"`
	Password       string        `env:"SHIPROCKET_PASSWORD"`
	PickupLocation string        `env:"SHIPROCKET_PICKUP_LOCATION,default=Primary"`
	WebhookToken   string        `env:"SHIPROCKET_WEBHOOK_TOKEN"`
	TokenTTL       time.Duration `env:"SHIPROCKET_TOKEN_TTL,default=216h"`
}

type WhatsApp struct {
	BaseURL       string `env:"WHATSAPP_BASE_URL,default=https://graph.facebook.com/v19.0"`
	Token         string `env:"WHATSAPP_TOKEN"`
	PhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	OrderTemplate string `env:"WHATSAPP_ORDER_TEMPLATE,default=order_confirmation"`
	Language      string `env:"WHATSAPP_TEMPLATE_LANGUAGE,default=en"`
}

type Email struct {
	BaseURL string `env:"EMAIL_BASE_URL,default=https://api.resend.com"`
	APIKey  string `env:"EMAIL_API_KEY"`
	From    string `env:"EMAIL_FROM,default=orders@example.com"`
}

type Pixel struct {
	BaseURL       string `env:"FB_GRAPH_URL,default=https://graph.facebook.com/v19.0"`
	PixelID       string `env:"FB_PIXEL_ID"`
	AccessToken   string `env:"FB_ACCESS_TOKEN"`
	TestEventCode string `env:"FB_TEST_EVENT_CODE"`
}

type Upload struct {
	Bucket    string `env:"S3_BUCKET"`
	Region    string `env:"S3_REGION,default=ap-south-1"`
	Endpoint  string `env:"S3_ENDPOINT"`
	PublicURL string `env:"S3_PUBLIC_URL"`
	AccessKey string `env:"S3_ACCESS_KEY_ID"`
	SecretKey string `env:"S3_SECRET_ACCESS_KEY"`
	MaxBytes  int64  `env:"UPLOAD_MAX_BYTES,default=5242880"`
}

type Jobs struct {
	JobTimeout       time.Duration `env:"JOB_TIMEOUT,default=2m"`
	TrackingSync     string        `env:"JOB_TRACKING_SYNC,default=@every 30m"`
	CampaignDispatch string        `env:"JOB_CAMPAIGN_DISPATCH,default=@every 1m"`
	PendingExpiry    string        `env:"JOB_PENDING_EXPIRY,default=@every 10m"`
	PendingOrderTTL  time.Duration `env:"PENDING_ORDER_TTL,default=2h"`
	BulkConcurrency  int           `env:"BULK_SEND_CONCURRENCY,default=5"`
	BulkRatePerSec   float64       `env:"BULK_SEND_RATE_PER_SEC,default=10"`
}

// Load reads an optional .env file then decodes the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv decodes the process environment without touching .env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AdminEmails returns the normalised admin allowlist.
func (c *Config) AdminEmails() []string {
	return SplitList(strings.ToLower(c.Auth.AdminEmails))
}

// CORSOrigins returns the allowed origins.
func (c *Config) CORSOrigins() []string {
	return SplitList(c.HTTP.CORSOrigins)
}

// Validate checks settings that must be present outside development.
func (c *Config) Validate() error {
	var missing []string
	if c.Auth.JWTSecret == "" && c.Auth.JWTPublicKey == "" {
		missing = append(missing, "AUTH_JWT_SECRET or AUTH_JWT_PUBLIC_KEY")
	}
	if c.IsProduction() {
		if c.Database.URL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if c.Redis.URL == "" {
			missing = append(missing, "REDIS_URL")
		}
		if c.Payment.KeyID == "" || c.Payment.KeySecret == "" {
			missing = append(missing, "RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET")
		}
		if c.Payment.WebhookSecret == "" {
			missing = append(missing, "RAZORPAY_WEBHOOK_SECRET")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("UPLOAD_MAX_BYTES must be positive")
	}
	if c.Shop.ShippingFeeMinor < 0 || c.Shop.FreeShippingMinor < 0 {
		return errors.New("shipping amounts must not be negative")
	}
	return nil
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
