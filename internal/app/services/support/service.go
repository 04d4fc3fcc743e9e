// Package support handles customer tickets and product waitlists.
package support

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/brandloom/storefront/internal/app/domain/support"
	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/app/services"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/messaging"
)

const (
	maxSubject = 140
	maxMessage = 5000
)

type Service struct {
	store    storage.SupportStore
	catalog  storage.CatalogStore
	email    messaging.EmailSender
	shopName string
	log      *logging.Logger
}

// New creates the service. email may be nil, in which case tickets are not
// acknowledged by mail.
func New(store storage.SupportStore, catalog storage.CatalogStore, email messaging.EmailSender, shopName string, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("support")
	}
	return &Service{store: store, catalog: catalog, email: email, shopName: shopName, log: log}
}

// TicketInput is what a customer submits.
type TicketInput struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// OpenTicket records a ticket for u and acknowledges it by email.
func (s *Service) OpenTicket(ctx context.Context, u user.User, in TicketInput) (support.Ticket, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	switch {
	case in.Subject == "" || in.Message == "":
		return support.Ticket{}, errors.InvalidInput("subject and message are required")
	case len(in.Subject) > maxSubject:
		return support.Ticket{}, errors.InvalidInputf("subject exceeds %d characters", maxSubject)
	case len(in.Message) > maxMessage:
		return support.Ticket{}, errors.InvalidInputf("message exceeds %d characters", maxMessage)
	}

	ticket, err := s.store.CreateTicket(ctx, support.Ticket{
		UserID:  u.ID,
		Email:   u.Email,
		Subject: in.Subject,
		Message: in.Message,
		OrderID: strings.TrimSpace(in.OrderID),
		Status:  support.TicketOpen,
	})
	if err != nil {
		return support.Ticket{}, err
	}
	s.log.WithContext(ctx).WithField("ticket_id", ticket.ID).WithField("user_id", u.ID).Info("support ticket opened")

	if s.email != nil && u.Email != "" {
		msg := messaging.Email{
			To:      u.Email,
			Subject: fmt.Sprintf("[%s] We received your request: %s", s.shopName, ticket.Subject),
			HTML:    fmt.Sprintf("<p>Thanks for contacting %s. Your ticket reference is <b>%s</b>.</p>", s.shopName, ticket.ID),
		}
		if _, err := s.email.SendEmail(ctx, msg); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("ticket_id", ticket.ID).Warn("ticket acknowledgement failed")
		}
	}
	return ticket, nil
}

func (s *Service) MyTickets(ctx context.Context, userID string) ([]support.Ticket, error) {
	return s.store.ListTickets(ctx, userID)
}

// AllTickets lists every ticket, optionally filtered by status.
func (s *Service) AllTickets(ctx context.Context, status support.TicketStatus) ([]support.Ticket, error) {
	tickets, err := s.store.ListTickets(ctx, "")
	if err != nil || status == "" {
		return tickets, err
	}
	out := tickets[:0]
	for _, t := range tickets {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// Resolve marks an open ticket resolved with a note.
func (s *Service) Resolve(ctx context.Context, id, resolution string) (support.Ticket, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return support.Ticket{}, errors.InvalidInput("resolution is required")
	}
	return s.setStatus(ctx, id, support.TicketResolved, resolution)
}

// Close closes a ticket in any state.
func (s *Service) Close(ctx context.Context, id string) (support.Ticket, error) {
	return s.setStatus(ctx, id, support.TicketClosed, "")
}

func (s *Service) setStatus(ctx context.Context, id string, to support.TicketStatus, resolution string) (support.Ticket, error) {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return support.Ticket{}, services.StoreError(err, "ticket", id)
	}
	if t.Status == support.TicketClosed {
		return support.Ticket{}, errors.Conflict("ticket is closed")
	}
	t.Status = to
	if resolution != "" {
		t.Resolution = resolution
	}
	updated, err := s.store.UpdateTicket(ctx, t)
	if err != nil {
		return support.Ticket{}, services.StoreError(err, "ticket", id)
	}
	s.log.WithContext(ctx).WithField("ticket_id", id).WithField("status", to).Info("support ticket updated")
	return updated, nil
}

// WaitlistInput registers interest in a product.
type WaitlistInput struct {
	ProductID string `json:"product_id"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// JoinWaitlist adds an email to a product's waitlist. Joining twice is a
// conflict.
func (s *Service) JoinWaitlist(ctx context.Context, in WaitlistInput) (support.WaitlistEntry, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(in.Email); err != nil || in.Email == "" {
		return support.WaitlistEntry{}, errors.InvalidInput("a valid email is required")
	}
	product, err := s.catalog.GetProduct(ctx, in.ProductID)
	if err != nil {
		return support.WaitlistEntry{}, services.StoreError(err, "product", in.ProductID)
	}
	entry, err := s.store.AddWaitlistEntry(ctx, support.WaitlistEntry{
		ProductID: product.ID,
		BrandID:   product.BrandID,
		Email:     in.Email,
		Phone:     strings.TrimSpace(in.Phone),
	})
	if err != nil {
		return support.WaitlistEntry{}, services.StoreError(err, "waitlist entry", in.Email)
	}
	s.log.WithContext(ctx).WithField("product_id", product.ID).Info("waitlist joined")
	return entry, nil
}

// Waitlist lists entries for a product owned by brandID.
func (s *Service) Waitlist(ctx context.Context, brandID, productID string) ([]support.WaitlistEntry, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, services.StoreError(err, "product", productID)
	}
	if product.BrandID != brandID {
		return nil, errors.NotFound("product", productID)
	}
	return s.store.ListWaitlist(ctx, productID)
}
