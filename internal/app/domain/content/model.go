package content

import "time"

// Banner is a home page promotion shown in position order.
type Banner struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	ImageURL  string     `json:"image_url"`
	LinkURL   string     `json:"link_url,omitempty"`
	Position  int        `json:"position"`
	Active    bool       `json:"active"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LiveAt reports whether the banner should be displayed at t.
func (b Banner) LiveAt(t time.Time) bool {
	if !b.Active {
		return false
	}
	if b.StartsAt != nil && t.Before(*b.StartsAt) {
		return false
	}
	if b.EndsAt != nil && !t.Before(*b.EndsAt) {
		return false
	}
	return true
}

// LegalKind identifies a legal page.
type LegalKind string

const (
	LegalTerms    LegalKind = "terms"
	LegalPrivacy  LegalKind = "privacy"
	LegalRefund   LegalKind = "refund"
	LegalShipping LegalKind = "shipping"
	LegalCookies  LegalKind = "cookies"
)

// LegalKinds lists every supported legal page.
var LegalKinds = []LegalKind{LegalTerms, LegalPrivacy, LegalRefund, LegalShipping, LegalCookies}

// Valid reports whether k is a known legal page.
func (k LegalKind) Valid() bool {
	for _, known := range LegalKinds {
		if k == known {
			return true
		}
	}
	return false
}

// LegalPage is the current text of a legal page.
type LegalPage struct {
	Kind      LegalKind `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blog is an editorial post.
type Blog struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	Body        string     `json:"body"`
	CoverURL    string     `json:"cover_url,omitempty"`
	AuthorID    string     `json:"author_id"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
