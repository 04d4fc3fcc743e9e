package marketing

import "time"

// Channel is the delivery medium of a campaign.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// Audience selects campaign recipients.
type Audience string

const (
	AudienceWaitlist  Audience = "waitlist"
	AudienceCustomers Audience = "customers"
)

// Status is the state of a campaign.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

// Campaign is a bulk message sent on behalf of a brand.
type Campaign struct {
	ID             string     `json:"id"`
	BrandID        string     `json:"brand_id"`
	Name           string     `json:"name"`
	Channel        Channel    `json:"channel"`
	Audience       Audience   `json:"audience"`
	ProductID      string     `json:"product_id,omitempty"`
	TemplateName   string     `json:"template_name,omitempty"`
	TemplateParams []string   `json:"template_params,omitempty"`
	Subject        string     `json:"subject,omitempty"`
	HTMLBody       string     `json:"html_body,omitempty"`
	Status         Status     `json:"status"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	Recipients     int        `json:"recipients"`
	Delivered      int        `json:"delivered"`
	Failed         int        `json:"failed"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Recipient is one addressee of a campaign.
type Recipient struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
