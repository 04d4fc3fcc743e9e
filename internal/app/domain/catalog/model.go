package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the publication state of a product.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// Product is a sellable item owned by a brand. Prices are in minor units.
type Product struct {
	ID          string    `json:"id"`
	BrandID     string    `json:"brand_id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceMinor  int64     `json:"price_minor"`
	Currency    string    `json:"currency"`
	Stock       int       `json:"stock"`
	Status      Status    `json:"status"`
	Images      []string  `json:"images"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Purchasable reports whether qty units can be ordered.
func (p Product) Purchasable(qty int) bool {
	return p.Status == StatusActive && qty > 0 && p.Stock >= qty
}

// HasTag reports whether the product carries tag.
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Tag groups products for browsing.
type Tag struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Filter selects active products for listing. Results are ordered newest
// first; Cursor continues after the last item of the previous page.
type Filter struct {
	BrandID string
	Tag     string
	Query   string
	Cursor  string
	Limit   int
}

// Page is one page of a listing.
type Page struct {
	Items      []Product `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// StockChange adjusts the stock of one product by Delta.
type StockChange struct {
	ProductID string
	Delta     int
}

// ErrInvalidCursor is returned for a malformed pagination cursor.
var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor builds the keyset cursor for an item.
func EncodeCursor(createdAt time.Time, id string) string {
	return fmt.Sprintf("%d:%s", createdAt.UTC().UnixNano(), id)
}

// ParseCursor decodes a cursor. An empty cursor yields a zero time.
func ParseCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", ErrInvalidCursor
	}
	n, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	return time.Unix(0, n).UTC(), parts[1], nil
}

// Before reports whether p sorts after the cursor position in a newest-first
// listing.
func (p Product) Before(ts time.Time, id string) bool {
	if p.CreatedAt.Equal(ts) {
		return p.ID < id
	}
	return p.CreatedAt.Before(ts)
}
