package marketing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/domain/marketing"
	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/app/domain/support"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/app/storage/memory"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/messaging"
)

// outbox records sends and fails for addresses listed in fail.
type outbox struct {
	mu       sync.Mutex
	whatsapp map[string][]string
	email    map[string]string
	sends    map[string]int
	fail     map[string]bool
}

func newOutbox(fail ...string) *outbox {
	o := &outbox{whatsapp: map[string][]string{}, email: map[string]string{}, sends: map[string]int{}, fail: map[string]bool{}}
	for _, f := range fail {
		o.fail[f] = true
	}
	return o
}

func (o *outbox) SendTemplate(_ context.Context, to, _ string, params []string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[to] {
		return "", fmt.Errorf("rejected %s", to)
	}
	o.whatsapp[to] = params
	return "wamid", nil
}

func (o *outbox) SendEmail(_ context.Context, msg messaging.Email) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[msg.To] {
		return "", fmt.Errorf("bounced %s", msg.To)
	}
	o.email[msg.To] = msg.HTML
	o.sends[msg.To]++
	return "msg", nil
}

type fixture struct {
	svc     *Service
	store   *memory.Store
	box     *outbox
	product catalog.Product
}

func newFixture(t *testing.T, box *outbox) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	p, err := store.CreateProduct(ctx, catalog.Product{BrandID: "b1", Slug: "tee", Name: "Tee", PriceMinor: 100, Currency: "INR", Status: catalog.StatusActive})
	require.NoError(t, err)
	svc := New(Deps{
		Campaigns: store,
		Support:   store,
		Orders:    store,
		Catalog:   store,
		WhatsApp:  box,
		Email:     box,
		Bulk:      messaging.NewBulk(2, 0),
	}, logging.NewDiscard())
	return fixture{svc: svc, store: store, box: box, product: p}
}

func (f fixture) join(t *testing.T, email, phone string) {
	t.Helper()
	_, err := f.store.AddWaitlistEntry(context.Background(), support.WaitlistEntry{ProductID: f.product.ID, BrandID: "b1", Email: email, Phone: phone})
	require.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, newOutbox())
	ctx := context.Background()

	cases := []CampaignInput{
		{Channel: marketing.ChannelEmail, Audience: marketing.AudienceCustomers, Subject: "s", HTMLBody: "b"},
		{Name: "n", Channel: "sms", Audience: marketing.AudienceCustomers},
		{Name: "n", Channel: marketing.ChannelWhatsApp, Audience: marketing.AudienceCustomers},
		{Name: "n", Channel: marketing.ChannelEmail, Audience: marketing.AudienceCustomers, Subject: "s"},
		{Name: "n", Channel: marketing.ChannelEmail, Audience: marketing.AudienceWaitlist, Subject: "s", HTMLBody: "b"},
		{Name: "n", Channel: marketing.ChannelEmail, Audience: "everyone", Subject: "s", HTMLBody: "b"},
	}
	for i, in := range cases {
		_, err := f.svc.Create(ctx, "b1", "u1", in)
		assert.Truef(t, errors.IsCode(err, errors.CodeInvalidInput), "case %d: %v", i, err)
	}

	_, err := f.svc.Create(ctx, "b2", "u1", CampaignInput{Name: "n", Channel: marketing.ChannelWhatsApp, Audience: marketing.AudienceWaitlist, ProductID: f.product.ID, TemplateName: "back_in_stock"})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound), "product of another brand")

	c, err := f.svc.Create(ctx, "b1", "u1", CampaignInput{Name: " Restock ", Channel: marketing.ChannelWhatsApp, Audience: marketing.AudienceWaitlist, ProductID: f.product.ID, TemplateName: "back_in_stock"})
	require.NoError(t, err)
	assert.Equal(t, marketing.StatusDraft, c.Status)
	assert.Equal(t, "Restock", c.Name)
}

func TestSendNowWhatsAppWaitlist(t *testing.T) {
	box := newOutbox("919000000002")
	f := newFixture(t, box)
	ctx := context.Background()
	f.join(t, "a@example.com", "90000 00001")
	f.join(t, "b@example.com", "+91 9000000002")
	f.join(t, "c@example.com", "")
	f.join(t, "d@example.com", "9000000001")

	c, err := f.svc.Create(ctx, "b1", "u1", CampaignInput{
		Name:           "Restock",
		Channel:        marketing.ChannelWhatsApp,
		Audience:       marketing.AudienceWaitlist,
		ProductID:      f.product.ID,
		TemplateName:   "back_in_stock",
		TemplateParams: []string{"Hi {name}", "Tee"},
	})
	require.NoError(t, err)

	sent, err := f.svc.SendNow(ctx, "b1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, marketing.StatusSent, sent.Status)
	assert.Equal(t, 2, sent.Recipients, "missing and duplicate phones dropped")
	assert.Equal(t, 1, sent.Delivered)
	assert.Equal(t, 1, sent.Failed)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, []string{"Hi there", "Tee"}, box.whatsapp["919000000001"])

	_, err = f.svc.SendNow(ctx, "b1", c.ID)
	assert.True(t, errors.IsCode(err, errors.CodeConflict), "cannot send twice")
}

func TestSendNowAllFailed(t *testing.T) {
	f := newFixture(t, newOutbox("x@example.com"))
	ctx := context.Background()
	_, err := f.store.CreateOrders(ctx, []order.Order{paidOrder("b1", "X", "x@example.com")})
	require.NoError(t, err)

	c, err := f.svc.Create(ctx, "b1", "u1", CampaignInput{Name: "Sale", Channel: marketing.ChannelEmail, Audience: marketing.AudienceCustomers, Subject: "Sale", HTMLBody: "<p>Hi {name}</p>"})
	require.NoError(t, err)

	sent, err := f.svc.SendNow(ctx, "b1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, marketing.StatusFailed, sent.Status)
	assert.Equal(t, 1, sent.Failed)
}

func TestEmailCustomersPersonalised(t *testing.T) {
	box := newOutbox()
	f := newFixture(t, box)
	ctx := context.Background()
	_, err := f.store.CreateOrders(ctx, []order.Order{paidOrder("b1", "Asha", "asha@example.com"), paidOrder("b2", "Ravi", "ravi@example.com")})
	require.NoError(t, err)

	c, err := f.svc.Create(ctx, "b1", "u1", CampaignInput{Name: "Sale", Channel: marketing.ChannelEmail, Audience: marketing.AudienceCustomers, Subject: "Sale", HTMLBody: "<p>Hi {name}</p>"})
	require.NoError(t, err)
	sent, err := f.svc.SendNow(ctx, "b1", c.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, sent.Delivered)
	assert.Equal(t, "<p>Hi Asha</p>", box.email["asha@example.com"])
	_, other := box.email["ravi@example.com"]
	assert.False(t, other, "customers of other brands are excluded")
}

func TestScheduleAndDispatchDue(t *testing.T) {
	box := newOutbox()
	f := newFixture(t, box)
	ctx := context.Background()
	f.join(t, "a@example.com", "")

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	c, err := f.svc.Create(ctx, "b1", "u1", CampaignInput{Name: "Drop", Channel: marketing.ChannelEmail, Audience: marketing.AudienceWaitlist, ProductID: f.product.ID, Subject: "Back", HTMLBody: "<p>Back</p>"})
	require.NoError(t, err)

	_, err = f.svc.Schedule(ctx, "b1", c.ID, now.Add(-time.Minute))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	scheduled, err := f.svc.Schedule(ctx, "b1", c.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, marketing.StatusScheduled, scheduled.Status)

	n, err := f.svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "not due yet")

	now = now.Add(2 * time.Hour)
	n, err = f.svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, box.email, "a@example.com")

	got, err := f.svc.Get(ctx, "b1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, marketing.StatusSent, got.Status)

	n, _ = f.svc.DispatchDue(ctx)
	assert.Equal(t, 0, n, "sent campaigns are not picked again")
}

// sendBeforeDispatch sends the campaign directly right after the scheduler
// has listed it as due.
type sendBeforeDispatch struct {
	storage.MarketingStore
	send func()
}

func (s sendBeforeDispatch) ListDueCampaigns(ctx context.Context, now time.Time) ([]marketing.Campaign, error) {
	due, err := s.MarketingStore.ListDueCampaigns(ctx, now)
	s.send()
	return due, err
}

func TestSendNowAndDispatchDueSendOnce(t *testing.T) {
	box := newOutbox()
	f := newFixture(t, box)
	ctx := context.Background()
	f.join(t, "a@example.com", "")

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	c, err := f.svc.Create(ctx, "b1", "u1", CampaignInput{Name: "Drop", Channel: marketing.ChannelEmail, Audience: marketing.AudienceWaitlist, ProductID: f.product.ID, Subject: "Back", HTMLBody: "<p>Back</p>"})
	require.NoError(t, err)
	_, err = f.svc.Schedule(ctx, "b1", c.ID, now.Add(time.Minute))
	require.NoError(t, err)
	now = now.Add(time.Hour)

	f.svc.Campaigns = sendBeforeDispatch{MarketingStore: f.store, send: func() {
		sent, err := f.svc.SendNow(ctx, "b1", c.ID)
		require.NoError(t, err)
		assert.Equal(t, marketing.StatusSent, sent.Status)
	}}

	n, err := f.svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "campaign claimed by the direct send")
	assert.Equal(t, 1, box.sends["a@example.com"])

	_, err = f.svc.SendNow(ctx, "b1", c.ID)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
	assert.Equal(t, 1, box.sends["a@example.com"])
}

func TestUnschedule(t *testing.T) {
	f := newFixture(t, newOutbox())
	ctx := context.Background()
	c, err := f.svc.Create(ctx, "b1", "u1", CampaignInput{Name: "Sale", Channel: marketing.ChannelEmail, Audience: marketing.AudienceCustomers, Subject: "s", HTMLBody: "b"})
	require.NoError(t, err)

	_, err = f.svc.Unschedule(ctx, "b1", c.ID)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))

	_, err = f.svc.Schedule(ctx, "b1", c.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	draft, err := f.svc.Unschedule(ctx, "b1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, marketing.StatusDraft, draft.Status)
	assert.Nil(t, draft.ScheduledAt)

	_, err = f.svc.Get(ctx, "b2", c.ID)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func paidOrder(brandID, name, email string) order.Order {
	paid := time.Now().UTC()
	return order.Order{
		BrandID: brandID,
		UserID:  "u-" + strings.ToLower(name),
		Status:  order.StatusPaid,
		Address: order.Address{Name: name, Email: email},
		PaidAt:  &paid,
	}
}
