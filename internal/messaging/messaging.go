// Package messaging sends transactional and marketing messages over WhatsApp
// templates and email.
package messaging

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/logging"
)

// Channel names used in metrics.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// WhatsAppSender sends approved template messages.
type WhatsAppSender interface {
	SendTemplate(ctx context.Context, to, template string, params []string) (string, error)
}

// Email is one outgoing email.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// EmailSender sends HTML email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Email) (string, error)
}

// WhatsAppConfig configures the WhatsApp Cloud API client.
type WhatsAppConfig struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	Language      string
	DefaultRegion string
	HTTPClient    *http.Client
}

// WhatsApp sends through the WhatsApp Cloud API.
type WhatsApp struct {
	client   *httputil.Client
	phoneID  string
	language string
	region   string
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = "91"
	}
	return &WhatsApp{
		client: httputil.NewClient(httputil.ClientConfig{
			Provider:   ChannelWhatsApp,
			BaseURL:    cfg.BaseURL,
			Auth:       httputil.Bearer(cfg.Token),
			HTTPClient: cfg.HTTPClient,
			Observe:    metrics.RecordUpstream,
		}),
		phoneID:  cfg.PhoneNumberID,
		language: cfg.Language,
		region:   cfg.DefaultRegion,
	}
}

func (w *WhatsApp) SendTemplate(ctx context.Context, to, template string, params []string) (string, error) {
	phone, err := NormalizePhone(to, w.region)
	if err != nil {
		metrics.RecordMessage(ChannelWhatsApp, false)
		return "", err
	}

	parameters := make([]map[string]string, 0, len(params))
	for _, p := range params {
		parameters = append(parameters, map[string]string{"type": "text", "text": p})
	}
	tpl := map[string]interface{}{
		"name":     template,
		"language": map[string]string{"code": w.language},
	}
	if len(parameters) > 0 {
		tpl["components"] = []map[string]interface{}{{"type": "body", "parameters": parameters}}
	}
	body := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "template",
		"template":          tpl,
	}

	var raw []byte
	resp, err := w.client.Do(ctx, http.MethodPost, "/"+w.phoneID+"/messages", body)
	if err == nil {
		if resp.StatusCode >= 400 {
			err = httputil.DecodeResponse(resp, nil)
		} else {
			raw, err = httputil.ReadAllStrict(resp.Body, 64<<10)
			resp.Body.Close()
		}
	}
	metrics.RecordMessage(ChannelWhatsApp, err == nil)
	if err != nil {
		return "", fmt.Errorf("send whatsapp template %s: %w", template, err)
	}
	return gjson.GetBytes(raw, "messages.0.id").String(), nil
}

// EmailConfig configures the transactional email API client.
type EmailConfig struct {
	BaseURL    string
	APIKey     string
	From       string
	HTTPClient *http.Client
}

// EmailAPI sends through a transactional email HTTP API.
type EmailAPI struct {
	client *httputil.Client
	from   string
}

func NewEmailAPI(cfg EmailConfig) *EmailAPI {
	return &EmailAPI{
		client: httputil.NewClient(httputil.ClientConfig{
			Provider:   ChannelEmail,
			BaseURL:    cfg.BaseURL,
			Auth:       httputil.Bearer(cfg.APIKey),
			HTTPClient: cfg.HTTPClient,
			Observe:    metrics.RecordUpstream,
		}),
		from: cfg.From,
	}
}

func (e *EmailAPI) SendEmail(ctx context.Context, msg Email) (string, error) {
	if !strings.Contains(msg.To, "@") {
		metrics.RecordMessage(ChannelEmail, false)
		return "", fmt.Errorf("invalid email address %q", msg.To)
	}
	var out struct {
		ID string `json:"id"`
	}
	err := e.client.DoJSON(ctx, http.MethodPost, "/emails", map[string]interface{}{
		"from":    e.from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	}, &out)
	metrics.RecordMessage(ChannelEmail, err == nil)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return out.ID, nil
}

// LogSender records messages in the log instead of sending them. It is used
// when a channel has no credentials.
type LogSender struct {
	Log *logging.Logger
}

func (l LogSender) SendTemplate(ctx context.Context, to, template string, params []string) (string, error) {
	l.Log.WithContext(ctx).WithFields(map[string]interface{}{
		"to": to, "template": template, "params": params,
	}).Info("whatsapp disabled; message logged")
	metrics.RecordMessage(ChannelWhatsApp, true)
	return "logged", nil
}

func (l LogSender) SendEmail(ctx context.Context, msg Email) (string, error) {
	l.Log.WithContext(ctx).WithFields(map[string]interface{}{
		"to": msg.To, "subject": msg.Subject,
	}).Info("email disabled; message logged")
	metrics.RecordMessage(ChannelEmail, true)
	return "logged", nil
}

// NormalizePhone returns digits only with a country code. Ten digit numbers
// get region prepended.
func NormalizePhone(raw, region string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	switch {
	case len(digits) == 10:
		return region + digits, nil
	case len(digits) >= 11 && len(digits) <= 15:
		return digits, nil
	default:
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
}
