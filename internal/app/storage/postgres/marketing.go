package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/brandloom/storefront/internal/app/domain/marketing"
)

type campaignRow struct {
	ID             string         `db:"id"`
	BrandID        string         `db:"brand_id"`
	Name           string         `db:"name"`
	Channel        string         `db:"channel"`
	Audience       string         `db:"audience"`
	ProductID      string         `db:"product_id"`
	TemplateName   string         `db:"template_name"`
	TemplateParams pq.StringArray `db:"template_params"`
	Subject        string         `db:"subject"`
	HTMLBody       string         `db:"html_body"`
	Status         string         `db:"status"`
	ScheduledAt    *time.Time     `db:"scheduled_at"`
	SentAt         *time.Time     `db:"sent_at"`
	Recipients     int            `db:"recipients"`
	Delivered      int            `db:"delivered"`
	Failed         int            `db:"failed"`
	CreatedBy      string         `db:"created_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func newCampaignRow(c marketing.Campaign) campaignRow {
	return campaignRow{
		ID: c.ID, BrandID: c.BrandID, Name: c.Name, Channel: string(c.Channel), Audience: string(c.Audience),
		ProductID: c.ProductID, TemplateName: c.TemplateName, TemplateParams: pq.StringArray(nonNil(c.TemplateParams)),
		Subject: c.Subject, HTMLBody: c.HTMLBody, Status: string(c.Status), ScheduledAt: c.ScheduledAt,
		SentAt: c.SentAt, Recipients: c.Recipients, Delivered: c.Delivered, Failed: c.Failed,
		CreatedBy: c.CreatedBy, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (r campaignRow) toDomain() marketing.Campaign {
	return marketing.Campaign{
		ID: r.ID, BrandID: r.BrandID, Name: r.Name, Channel: marketing.Channel(r.Channel),
		Audience: marketing.Audience(r.Audience), ProductID: r.ProductID, TemplateName: r.TemplateName,
		TemplateParams: []string(r.TemplateParams), Subject: r.Subject, HTMLBody: r.HTMLBody,
		Status: marketing.Status(r.Status), ScheduledAt: r.ScheduledAt, SentAt: r.SentAt,
		Recipients: r.Recipients, Delivered: r.Delivered, Failed: r.Failed,
		CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const campaignColumns = `id, brand_id, name, channel, audience, product_id, template_name, template_params,
	subject, html_body, status, scheduled_at, sent_at, recipients, delivered, failed, created_by,
	created_at, updated_at`

func (s *Store) CreateCampaign(ctx context.Context, c marketing.Campaign) (marketing.Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES (:id, :brand_id, :name, :channel, :audience, :product_id, :template_name, :template_params,
			:subject, :html_body, :status, :scheduled_at, :sent_at, :recipients, :delivered, :failed,
			:created_by, :created_at, :updated_at)
	`, newCampaignRow(c))
	if err != nil {
		return marketing.Campaign{}, mapError(err)
	}
	return c, nil
}

// campaignUpdate binds the statuses the update may start from.
type campaignUpdate struct {
	campaignRow
	From pq.StringArray `db:"from_statuses"`
}

func (s *Store) UpdateCampaign(ctx context.Context, c marketing.Campaign, from ...marketing.Status) (marketing.Campaign, error) {
	existing, err := s.GetCampaign(ctx, c.ID)
	if err != nil {
		return marketing.Campaign{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	statuses := make(pq.StringArray, 0, len(from))
	for _, st := range from {
		statuses = append(statuses, string(st))
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE campaigns
		SET name = :name, channel = :channel, audience = :audience, product_id = :product_id,
		    template_name = :template_name, template_params = :template_params, subject = :subject,
		    html_body = :html_body, status = :status, scheduled_at = :scheduled_at, sent_at = :sent_at,
		    recipients = :recipients, delivered = :delivered, failed = :failed, updated_at = :updated_at
		WHERE id = :id AND status = ANY(:from_statuses)
	`, campaignUpdate{campaignRow: newCampaignRow(c), From: statuses})
	if err != nil {
		return marketing.Campaign{}, mapError(err)
	}
	if err := requireChanged(res); err != nil {
		return marketing.Campaign{}, err
	}
	return c, nil
}

func (s *Store) GetCampaign(ctx context.Context, id string) (marketing.Campaign, error) {
	var row campaignRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id); err != nil {
		return marketing.Campaign{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) selectCampaigns(ctx context.Context, query string, args ...any) ([]marketing.Campaign, error) {
	var rows []campaignRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]marketing.Campaign, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ListCampaigns(ctx context.Context, brandID string) ([]marketing.Campaign, error) {
	return s.selectCampaigns(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE brand_id = $1 ORDER BY created_at DESC`, brandID)
}

func (s *Store) ListDueCampaigns(ctx context.Context, now time.Time) ([]marketing.Campaign, error) {
	return s.selectCampaigns(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at
	`, now)
}
