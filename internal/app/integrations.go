package app

import (
	"context"

	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/config"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/messaging"
	"github.com/brandloom/storefront/internal/payment"
	"github.com/brandloom/storefront/internal/pixel"
	"github.com/brandloom/storefront/internal/shipping"
	"github.com/brandloom/storefront/internal/upload"
)

// Integrations are the third-party providers the services call. Nil fields
// fall back to in-process stand-ins suitable for development.
type Integrations struct {
	Gateway  payment.Gateway
	Shipping shipping.Provider
	Pixel    pixel.Tracker
	WhatsApp messaging.WhatsAppSender
	Email    messaging.EmailSender
	Objects  upload.Store
}

// BuildIntegrations creates provider clients for every integration with
// credentials in cfg.
func BuildIntegrations(ctx context.Context, cfg *config.Config, kv cache.KV, log *logging.Logger) (Integrations, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}
	var in Integrations

	if cfg.Payment.KeyID != "" && cfg.Payment.KeySecret != "" {
		in.Gateway = payment.NewRazorpay(payment.Config{
			BaseURL:       cfg.Payment.BaseURL,
			KeyID:         cfg.Payment.KeyID,
			KeySecret:     cfg.Payment.KeySecret,
			WebhookSecret: cfg.Payment.WebhookSecret,
		})
	}
	if cfg.Shipping.Email != "" && cfg.Shipping.Password != "" {
		in.Shipping = shipping.NewShiprocket(shipping.Config{
			BaseURL:        cfg.Shipping.BaseURL,
			Email:          cfg.Shipping.Email,
			Password:       cfg.Shipping.Password,
			PickupLocation: cfg.Shipping.PickupLocation,
			TokenTTL:       cfg.Shipping.TokenTTL,
		}, kv, log.Named("shipping"))
	}
	if cfg.Pixel.AccessToken != "" {
		in.Pixel = pixel.NewConversions(pixel.Config{
			BaseURL:       cfg.Pixel.BaseURL,
			AccessToken:   cfg.Pixel.AccessToken,
			TestEventCode: cfg.Pixel.TestEventCode,
		})
	}
	if cfg.WhatsApp.Token != "" && cfg.WhatsApp.PhoneNumberID != "" {
		in.WhatsApp = messaging.NewWhatsApp(messaging.WhatsAppConfig{
			BaseURL:       cfg.WhatsApp.BaseURL,
			Token:         cfg.WhatsApp.Token,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			Language:      cfg.WhatsApp.Language,
		})
	}
	if cfg.Email.APIKey != "" {
		in.Email = messaging.NewEmailAPI(messaging.EmailConfig{
			BaseURL: cfg.Email.BaseURL,
			APIKey:  cfg.Email.APIKey,
			From:    cfg.Email.From,
		})
	}
	if cfg.Upload.Bucket != "" {
		store, err := upload.NewS3Store(ctx, upload.S3Config{
			Bucket:    cfg.Upload.Bucket,
			Region:    cfg.Upload.Region,
			Endpoint:  cfg.Upload.Endpoint,
			PublicURL: cfg.Upload.PublicURL,
			AccessKey: cfg.Upload.AccessKey,
			SecretKey: cfg.Upload.SecretKey,
		})
		if err != nil {
			return Integrations{}, err
		}
		in.Objects = store
	}

	in.defaults(cfg, log)
	return in, nil
}

func (in *Integrations) defaults(cfg *config.Config, log *logging.Logger) {
	if in.Gateway == nil {
		log.Warn("RAZORPAY_KEY_ID not set; using the fake payment gateway")
		secret := cfg.Payment.KeySecret
		if secret == "" {
			secret = "dev-secret"
		}
		in.Gateway = payment.NewFake(secret, cfg.Payment.WebhookSecret)
	}
	if in.Shipping == nil {
		log.Warn("SHIPROCKET_EMAIL not set; using the fake shipping provider")
		in.Shipping = shipping.NewFake()
	}
	if in.Pixel == nil {
		in.Pixel = pixel.Noop{Log: log.Named("pixel")}
	}
	if in.WhatsApp == nil || in.Email == nil {
		sender := messaging.LogSender{Log: log.Named("messaging")}
		if in.WhatsApp == nil {
			log.Warn("WHATSAPP_TOKEN not set; WhatsApp messages are logged only")
			in.WhatsApp = sender
		}
		if in.Email == nil {
			log.Warn("EMAIL_API_KEY not set; emails are logged only")
			in.Email = sender
		}
	}
	if in.Objects == nil {
		log.Warn("S3_BUCKET not set; uploads are kept in memory")
		in.Objects = upload.NewMemoryStore(cfg.BaseURL)
	}
}
