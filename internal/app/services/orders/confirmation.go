package orders

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/messaging"
)

var confirmationTmpl = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": formatMinor,
}).Parse(`<h2>Thank you, {{.Name}}!</h2>
<p>Your payment for order {{.Reference}} has been received.</p>
{{range .Orders}}<table>
{{range .Items}}<tr><td>{{.Name}} &times; {{.Quantity}}</td><td>{{money .PriceMinor $.Currency}}</td></tr>
{{end}}<tr><td>Shipping</td><td>{{money .ShippingMinor $.Currency}}</td></tr>
</table>
{{end}}<p><strong>Total: {{money .TotalMinor .Currency}}</strong></p>
<p>{{.Shop}}</p>
`))

type confirmationData struct {
	Name       string
	Reference  string
	Orders     []order.Order
	TotalMinor int64
	Currency   string
	Shop       string
}

func formatMinor(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}

// sendConfirmation emails and, when a phone is known, messages the buyer.
// Delivery failures are logged only.
func (s *Service) sendConfirmation(ctx context.Context, paid []order.Order) {
	first := paid[0]
	var total int64
	for _, o := range paid {
		total += o.TotalMinor
	}
	reference := first.PaymentOrderID
	log := s.log.WithContext(ctx).WithField("payment_order_id", reference)

	if s.Email != nil && first.Address.Email != "" {
		var body bytes.Buffer
		err := confirmationTmpl.Execute(&body, confirmationData{
			Name:       first.Address.Name,
			Reference:  reference,
			Orders:     paid,
			TotalMinor: total,
			Currency:   first.Currency,
			Shop:       s.cfg.ShopName,
		})
		if err == nil {
			_, err = s.Email.SendEmail(ctx, messaging.Email{
				To:      first.Address.Email,
				Subject: fmt.Sprintf("%s: order confirmed", s.cfg.ShopName),
				HTML:    body.String(),
			})
		}
		if err != nil {
			log.WithError(err).Warn("order confirmation email failed")
		}
	}

	if s.WhatsApp != nil && s.cfg.WhatsAppTemplate != "" && first.Address.Phone != "" {
		phone, err := messaging.NormalizePhone(first.Address.Phone, s.cfg.PhoneRegion)
		if err == nil {
			_, err = s.WhatsApp.SendTemplate(ctx, phone, s.cfg.WhatsAppTemplate, []string{
				first.Address.Name, reference, formatMinor(total, first.Currency),
			})
		}
		if err != nil {
			log.WithError(err).Warn("order confirmation whatsapp failed")
		}
	}
}
