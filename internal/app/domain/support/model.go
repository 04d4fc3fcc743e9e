package support

import "time"

// TicketStatus is the state of a support ticket.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketResolved TicketStatus = "resolved"
	TicketClosed   TicketStatus = "closed"
)

// Ticket is a customer support request.
type Ticket struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Email      string       `json:"email"`
	Subject    string       `json:"subject"`
	Message    string       `json:"message"`
	OrderID    string       `json:"order_id,omitempty"`
	Status     TicketStatus `json:"status"`
	Resolution string       `json:"resolution,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// WaitlistEntry records interest in an out-of-stock or upcoming product.
// (Email, ProductID) is unique.
type WaitlistEntry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	BrandID   string    `json:"brand_id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
