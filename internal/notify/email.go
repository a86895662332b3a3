package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/events"
)

var confirmationTemplate = template.Must(template.New("order_confirmation").Parse(`<div style="font-family: Arial, sans-serif; font-size: 14px; color: #222;">
  <h2>Thank you for your order</h2>
  <p>Order ID: <strong>{{.OrderID}}</strong></p>
  <p>Order total: <strong>£{{.Total}}</strong></p>
  {{- if eq .DeliveryMethod "PICKUP"}}
  <p>We will let you know when your order is ready for collection.</p>
  {{- end}}
  <p>A copy of your order is available on the website in your account or from the printable order page.</p>
</div>
`))

// OrderConfirmationEmail renders the confirmation message for a placed order.
func OrderConfirmationEmail(from string, o events.OrderCreated) (common.Email, error) {
	var buf bytes.Buffer
	err := confirmationTemplate.Execute(&buf, map[string]string{
		"OrderID":        o.OrderID,
		"Total":          fmt.Sprintf("%.2f", o.Total),
		"DeliveryMethod": o.DeliveryMethod,
	})
	if err != nil {
		return common.Email{}, fmt.Errorf("render order confirmation: %w", err)
	}
	return common.Email{
		From:    from,
		To:      o.Email,
		Subject: "Order confirmation – " + o.OrderID,
		HTML:    buf.String(),
	}, nil
}
