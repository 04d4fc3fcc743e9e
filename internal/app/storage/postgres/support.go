package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brandloom/storefront/internal/app/domain/support"
)

type ticketRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Email      string    `db:"email"`
	Subject    string    `db:"subject"`
	Message    string    `db:"message"`
	OrderID    string    `db:"order_id"`
	Status     string    `db:"status"`
	Resolution string    `db:"resolution"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r ticketRow) toDomain() support.Ticket {
	return support.Ticket{
		ID: r.ID, UserID: r.UserID, Email: r.Email, Subject: r.Subject, Message: r.Message,
		OrderID: r.OrderID, Status: support.TicketStatus(r.Status), Resolution: r.Resolution,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const ticketColumns = `id, user_id, email, subject, message, order_id, status, resolution, created_at, updated_at`

func (s *Store) CreateTicket(ctx context.Context, t support.Ticket) (support.Ticket, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.UserID, t.Email, t.Subject, t.Message, t.OrderID, string(t.Status), t.Resolution, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return support.Ticket{}, mapError(err)
	}
	return t, nil
}

func (s *Store) UpdateTicket(ctx context.Context, t support.Ticket) (support.Ticket, error) {
	existing, err := s.GetTicket(ctx, t.ID)
	if err != nil {
		return support.Ticket{}, err
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = $2, resolution = $3, updated_at = $4 WHERE id = $1
	`, t.ID, string(t.Status), t.Resolution, t.UpdatedAt)
	if err != nil {
		return support.Ticket{}, err
	}
	if err := requireAffected(res); err != nil {
		return support.Ticket{}, err
	}
	return t, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (support.Ticket, error) {
	var row ticketRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id); err != nil {
		return support.Ticket{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListTickets(ctx context.Context, userID string) ([]support.Ticket, error) {
	var rows []ticketRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]support.Ticket, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Waitlist --------------------------------------------------------------------

type waitlistRow struct {
	ID        string    `db:"id"`
	ProductID string    `db:"product_id"`
	BrandID   string    `db:"brand_id"`
	Email     string    `db:"email"`
	Phone     string    `db:"phone"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) AddWaitlistEntry(ctx context.Context, e support.WaitlistEntry) (support.WaitlistEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO waitlist_entries (id, product_id, brand_id, email, phone, created_at)
		VALUES (:id, :product_id, :brand_id, :email, :phone, :created_at)
	`, waitlistRow(e))
	if err != nil {
		return support.WaitlistEntry{}, mapError(err)
	}
	return e, nil
}

func (s *Store) ListWaitlist(ctx context.Context, productID string) ([]support.WaitlistEntry, error) {
	var rows []waitlistRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, product_id, brand_id, email, phone, created_at
		FROM waitlist_entries WHERE product_id = $1 ORDER BY created_at
	`, productID)
	if err != nil {
		return nil, err
	}
	out := make([]support.WaitlistEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, support.WaitlistEntry(r))
	}
	return out, nil
}
