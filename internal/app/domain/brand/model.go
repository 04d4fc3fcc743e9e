package brand

import (
	"regexp"
	"time"

	"github.com/brandloom/storefront/internal/permissions"
)

// Status tracks the onboarding state of a brand.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{3,48}$`)

// ValidSlug reports whether s is a usable brand or product slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// Brand is a seller on the storefront.
type Brand struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	OwnerID       string    `json:"owner_id"`
	ContactEmail  string    `json:"contact_email"`
	ContactPhone  string    `json:"contact_phone,omitempty"`
	Status        Status    `json:"status"`
	RejectReason  string    `json:"reject_reason,omitempty"`
	LogoURL       string    `json:"logo_url,omitempty"`
	PixelID       string    `json:"pixel_id,omitempty"`
	WhatsAppOptIn bool      `json:"whatsapp_opt_in"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Visible reports whether the brand is shown on the storefront.
func (b Brand) Visible() bool {
	return b.Status == StatusApproved
}

// Member grants a user permissions on a brand.
type Member struct {
	BrandID     string          `json:"brand_id"`
	UserID      string          `json:"user_id"`
	Permissions permissions.Set `json:"permissions"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// APIKey authenticates server-to-server calls on behalf of a brand. Hash is
// the bcrypt hash of the secret part; the plaintext is shown once.
type APIKey struct {
	ID          string          `json:"id"`
	BrandID     string          `json:"brand_id"`
	Name        string          `json:"name"`
	Prefix      string          `json:"prefix"`
	Hash        []byte          `json:"-"`
	Permissions permissions.Set `json:"permissions"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUsedAt  *time.Time      `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time      `json:"revoked_at,omitempty"`
}

// Active reports whether the key can still be used.
func (k APIKey) Active() bool {
	return k.RevokedAt == nil
}
