// Package marketing runs brand campaigns over WhatsApp and email.
package marketing

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/brandloom/storefront/internal/app/domain/marketing"
	"github.com/brandloom/storefront/internal/app/services"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/messaging"
)

// NamePlaceholder in template params or email bodies is replaced with the
// recipient's name.
const NamePlaceholder = "{name}"

// Deps are the collaborators of the service.
type Deps struct {
	Campaigns storage.MarketingStore
	Support   storage.SupportStore
	Orders    storage.OrderStore
	Catalog   storage.CatalogStore
	WhatsApp  messaging.WhatsAppSender
	Email     messaging.EmailSender
	Bulk      *messaging.Bulk
	// PhoneRegion is prepended to ten digit phone numbers.
	PhoneRegion string
}

type Service struct {
	Deps
	log *logging.Logger
	now func() time.Time
}

func New(deps Deps, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("marketing")
	}
	if deps.Bulk == nil {
		deps.Bulk = messaging.NewBulk(4, 10)
	}
	if deps.PhoneRegion == "" {
		deps.PhoneRegion = "91"
	}
	return &Service{Deps: deps, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// CampaignInput describes a campaign draft.
type CampaignInput struct {
	Name           string             `json:"name"`
	Channel        marketing.Channel  `json:"channel"`
	Audience       marketing.Audience `json:"audience"`
	ProductID      string             `json:"product_id,omitempty"`
	TemplateName   string             `json:"template_name,omitempty"`
	TemplateParams []string           `json:"template_params,omitempty"`
	Subject        string             `json:"subject,omitempty"`
	HTMLBody       string             `json:"html_body,omitempty"`
}

func (s *Service) validate(ctx context.Context, brandID string, in *CampaignInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return errors.InvalidInput("name is required")
	}
	switch in.Channel {
	case marketing.ChannelWhatsApp:
		if strings.TrimSpace(in.TemplateName) == "" {
			return errors.InvalidInput("template_name is required for whatsapp campaigns")
		}
	case marketing.ChannelEmail:
		if strings.TrimSpace(in.Subject) == "" || strings.TrimSpace(in.HTMLBody) == "" {
			return errors.InvalidInput("subject and html_body are required for email campaigns")
		}
	default:
		return errors.InvalidInputf("unknown channel %q", in.Channel)
	}
	switch in.Audience {
	case marketing.AudienceWaitlist:
		if in.ProductID == "" {
			return errors.InvalidInput("product_id is required for waitlist campaigns")
		}
		p, err := s.Catalog.GetProduct(ctx, in.ProductID)
		if err != nil {
			return services.StoreError(err, "product", in.ProductID)
		}
		if p.BrandID != brandID {
			return errors.NotFound("product", in.ProductID)
		}
	case marketing.AudienceCustomers:
		in.ProductID = ""
	default:
		return errors.InvalidInputf("unknown audience %q", in.Audience)
	}
	return nil
}

// Create stores a draft campaign.
func (s *Service) Create(ctx context.Context, brandID, userID string, in CampaignInput) (marketing.Campaign, error) {
	if err := s.validate(ctx, brandID, &in); err != nil {
		return marketing.Campaign{}, err
	}
	c, err := s.Campaigns.CreateCampaign(ctx, marketing.Campaign{
		BrandID:        brandID,
		Name:           in.Name,
		Channel:        in.Channel,
		Audience:       in.Audience,
		ProductID:      in.ProductID,
		TemplateName:   strings.TrimSpace(in.TemplateName),
		TemplateParams: in.TemplateParams,
		Subject:        strings.TrimSpace(in.Subject),
		HTMLBody:       in.HTMLBody,
		Status:         marketing.StatusDraft,
		CreatedBy:      userID,
	})
	if err != nil {
		return marketing.Campaign{}, err
	}
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"campaign_id": c.ID,
		"brand_id":    brandID,
		"channel":     c.Channel,
	}).Info("campaign created")
	return c, nil
}

func (s *Service) List(ctx context.Context, brandID string) ([]marketing.Campaign, error) {
	return s.Campaigns.ListCampaigns(ctx, brandID)
}

// Get returns a campaign of brandID.
func (s *Service) Get(ctx context.Context, brandID, id string) (marketing.Campaign, error) {
	c, err := s.Campaigns.GetCampaign(ctx, id)
	if err != nil {
		return marketing.Campaign{}, services.StoreError(err, "campaign", id)
	}
	if c.BrandID != brandID {
		return marketing.Campaign{}, errors.NotFound("campaign", id)
	}
	return c, nil
}

// Schedule queues a draft for dispatch at at. Rescheduling is allowed until
// sending starts.
func (s *Service) Schedule(ctx context.Context, brandID, id string, at time.Time) (marketing.Campaign, error) {
	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return marketing.Campaign{}, err
	}
	if c.Status != marketing.StatusDraft && c.Status != marketing.StatusScheduled {
		return marketing.Campaign{}, errors.Conflict("campaign already sent").WithDetails("status", c.Status)
	}
	if !at.After(s.now()) {
		return marketing.Campaign{}, errors.InvalidInput("scheduled_at must be in the future")
	}
	at = at.UTC()
	c.Status = marketing.StatusScheduled
	c.ScheduledAt = &at
	updated, err := s.Campaigns.UpdateCampaign(ctx, c, marketing.StatusDraft, marketing.StatusScheduled)
	return updated, services.StoreError(err, "campaign", id)
}

// Unschedule returns a scheduled campaign to draft.
func (s *Service) Unschedule(ctx context.Context, brandID, id string) (marketing.Campaign, error) {
	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return marketing.Campaign{}, err
	}
	if c.Status != marketing.StatusScheduled {
		return marketing.Campaign{}, errors.Conflict("campaign is not scheduled")
	}
	c.Status = marketing.StatusDraft
	c.ScheduledAt = nil
	updated, err := s.Campaigns.UpdateCampaign(ctx, c, marketing.StatusScheduled)
	return updated, services.StoreError(err, "campaign", id)
}

// SendNow dispatches a draft or scheduled campaign and waits for the bulk send
// to finish.
func (s *Service) SendNow(ctx context.Context, brandID, id string) (marketing.Campaign, error) {
	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return marketing.Campaign{}, err
	}
	if c.Status != marketing.StatusDraft && c.Status != marketing.StatusScheduled {
		return marketing.Campaign{}, errors.Conflict("campaign already sent").WithDetails("status", c.Status)
	}
	return s.dispatch(ctx, c)
}

// DispatchDue sends every scheduled campaign whose time has come and returns
// how many were dispatched.
func (s *Service) DispatchDue(ctx context.Context) (int, error) {
	due, err := s.Campaigns.ListDueCampaigns(ctx, s.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range due {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		_, err := s.dispatch(ctx, c)
		if stderrors.Is(err, errAlreadyClaimed) {
			s.log.WithContext(ctx).WithField("campaign_id", c.ID).Debug("campaign claimed by another sender")
			continue
		}
		if err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("campaign_id", c.ID).Error("campaign dispatch failed")
			continue
		}
		n++
	}
	return n, nil
}

// errAlreadyClaimed reports that another sender moved the campaign out of
// draft or scheduled first.
var errAlreadyClaimed = errors.Conflict("campaign already sent")

// dispatch claims c by moving it from draft or scheduled to sending. Only the
// caller that wins the claim sends.
func (s *Service) dispatch(ctx context.Context, c marketing.Campaign) (marketing.Campaign, error) {
	log := s.log.WithContext(ctx).WithField("campaign_id", c.ID).WithField("brand_id", c.BrandID)

	c.Status = marketing.StatusSending
	c, err := s.Campaigns.UpdateCampaign(ctx, c, marketing.StatusDraft, marketing.StatusScheduled)
	if stderrors.Is(err, storage.ErrStale) {
		return marketing.Campaign{}, errAlreadyClaimed
	}
	if err != nil {
		return marketing.Campaign{}, services.StoreError(err, "campaign", c.ID)
	}

	recipients, err := s.recipients(ctx, c)
	if err != nil {
		c.Status = marketing.StatusFailed
		if _, updErr := s.Campaigns.UpdateCampaign(ctx, c, marketing.StatusSending); updErr != nil {
			log.WithError(updErr).Warn("record campaign failure")
		}
		return marketing.Campaign{}, err
	}

	result := s.Bulk.Run(ctx, len(recipients), func(ctx context.Context, i int) error {
		return s.send(ctx, c, recipients[i])
	})

	sentAt := s.now()
	c.SentAt = &sentAt
	c.Recipients = len(recipients)
	c.Delivered = result.Sent
	c.Failed = result.Failed
	if result.Sent == 0 {
		c.Status = marketing.StatusFailed
	} else {
		c.Status = marketing.StatusSent
	}
	// The send already happened; record the outcome even if ctx was cancelled.
	updated, err := s.Campaigns.UpdateCampaign(context.WithoutCancel(ctx), c, marketing.StatusSending)
	if err != nil {
		return marketing.Campaign{}, err
	}

	entry := log.WithFields(map[string]interface{}{
		"recipients": c.Recipients,
		"delivered":  c.Delivered,
		"failed":     c.Failed,
		"status":     c.Status,
	})
	if len(result.Errors) > 0 {
		entry = entry.WithField("errors", result.Errors)
	}
	entry.Info("campaign dispatched")
	return updated, nil
}

// recipients resolves the audience and keeps the addressable, unique
// recipients for the campaign channel.
func (s *Service) recipients(ctx context.Context, c marketing.Campaign) ([]marketing.Recipient, error) {
	var all []marketing.Recipient
	switch c.Audience {
	case marketing.AudienceWaitlist:
		entries, err := s.Support.ListWaitlist(ctx, c.ProductID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			all = append(all, marketing.Recipient{Email: e.Email, Phone: e.Phone})
		}
	case marketing.AudienceCustomers:
		customers, err := s.Orders.ListCustomers(ctx, c.BrandID)
		if err != nil {
			return nil, err
		}
		all = customers
	}

	seen := make(map[string]bool, len(all))
	out := make([]marketing.Recipient, 0, len(all))
	for _, r := range all {
		var key string
		switch c.Channel {
		case marketing.ChannelWhatsApp:
			phone, err := messaging.NormalizePhone(r.Phone, s.PhoneRegion)
			if err != nil {
				continue
			}
			r.Phone = phone
			key = phone
		case marketing.ChannelEmail:
			r.Email = strings.ToLower(strings.TrimSpace(r.Email))
			key = r.Email
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) send(ctx context.Context, c marketing.Campaign, r marketing.Recipient) error {
	name := r.Name
	if name == "" {
		name = "there"
	}
	switch c.Channel {
	case marketing.ChannelWhatsApp:
		params := make([]string, len(c.TemplateParams))
		for i, p := range c.TemplateParams {
			params[i] = strings.ReplaceAll(p, NamePlaceholder, name)
		}
		_, err := s.WhatsApp.SendTemplate(ctx, r.Phone, c.TemplateName, params)
		return err
	default:
		_, err := s.Email.SendEmail(ctx, messaging.Email{
			To:      r.Email,
			Subject: c.Subject,
			HTML:    strings.ReplaceAll(c.HTMLBody, NamePlaceholder, name),
		})
		return err
	}
}
