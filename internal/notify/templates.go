package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/vaidashi/gallery-api/internal/models"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family: Georgia, serif; color: #222;">
{{template "body" .}}
<p style="color:#888;font-size:12px;">{{.Gallery}}</p>
</body></html>{{end}}`

var bodies = map[string]string{
	"order_received": `{{define "body"}}<h2>Thank you, {{.Name}}</h2>
<p>We have received order <strong>{{.Order.OrderNumber}}</strong>. The pieces below are reserved for you until payment completes.</p>
<ul>{{range .Order.Items}}<li>{{.Title}} ({{.Price}})</li>{{end}}</ul>
<p>Total: {{.Order.Total}} {{upper .Order.Currency}}</p>
<p><a href="{{.Link}}">View your order</a></p>{{end}}`,

	"order_confirmed": `{{define "body"}}<h2>Payment received</h2>
<p>Order <strong>{{.Order.OrderNumber}}</strong> is confirmed. We will let you know when it ships.</p>
<ul>{{range .Order.Items}}<li>{{.Title}}</li>{{end}}</ul>
<p>Total paid: {{.Order.Total}} {{upper .Order.Currency}}</p>{{end}}`,

	"order_status": `{{define "body"}}<h2>Order {{.Order.OrderNumber}}: {{.Order.Status}}</h2>
{{if .Order.TrackingNumber}}<p>Tracking number: {{.Order.TrackingNumber}}</p>{{end}}
<p><a href="{{.Link}}">View your order</a></p>{{end}}`,

	"admin_order": `{{define "body"}}<h2>New order {{.Order.OrderNumber}}</h2>
<p>{{.Order.CustomerName}} &lt;{{.Order.CustomerEmail}}&gt; ordered {{len .Order.Items}} piece(s), total {{.Order.Total}} {{upper .Order.Currency}}.</p>{{end}}`,

	"commission_received": `{{define "body"}}<h2>Thank you, {{.Name}}</h2>
<p>Your commission request <strong>{{.Commission.CommissionNumber}}</strong> ({{.Commission.Style}}, {{.Commission.Size}}) has been received.</p>
<p>Estimated price: {{.Commission.Price}}. We will review it and get back to you.</p>{{end}}`,

	"commission_accepted": `{{define "body"}}<h2>Your commission has been accepted</h2>
<p>Commission <strong>{{.Commission.CommissionNumber}}</strong> is accepted at a price of {{.Commission.Price}}.</p>
<p><a href="{{.Link}}">Pay the deposit to get started</a></p>{{end}}`,

	"commission_status": `{{define "body"}}<h2>Commission {{.Commission.CommissionNumber}}: {{.Commission.Status}}</h2>
<p><a href="{{.Link}}">See the latest updates</a></p>{{end}}`,

	"commission_progress": `{{define "body"}}<h2>New progress on {{.Commission.CommissionNumber}}</h2>
<p><img src="{{.Commission.ImageURL}}" alt="progress" style="max-width:480px;"></p>
{{if .Commission.ImageDescription}}<p>{{.Commission.ImageDescription}}</p>{{end}}{{end}}`,

	"commission_paid": `{{define "body"}}<h2>Payment received</h2>
<p>We received {{.Commission.AmountPaid}} for commission <strong>{{.Commission.CommissionNumber}}</strong> ({{.Commission.PaymentType}} payment).</p>{{end}}`,

	"admin_commission": `{{define "body"}}<h2>New commission {{.Commission.CommissionNumber}}</h2>
<p>{{.Commission.CustomerName}} &lt;{{.Commission.CustomerEmail}}&gt; requested a {{.Commission.Size}} {{.Commission.Style}} piece. Estimate {{.Commission.Price}}.</p>{{end}}`,
}

var subjects = map[string]string{
	"order_received":      "Order %s received",
	"order_confirmed":     "Order %s confirmed",
	"order_status":        "Update on order %s",
	"admin_order":         "New order %s",
	"commission_received": "Commission request %s received",
	"commission_accepted": "Commission %s accepted",
	"commission_status":   "Update on commission %s",
	"commission_progress": "Progress on commission %s",
	"commission_paid":     "Payment received for commission %s",
	"admin_commission":    "New commission request %s",
}

type templateData struct {
	Gallery    string
	Name       string
	Link       string
	Order      *models.OrderEventData
	Commission *models.CommissionEventData
}

// Templates renders the transactional emails
type Templates struct {
	set map[string]*template.Template
}

// NewTemplates parses every email template
func NewTemplates() (*Templates, error) {
	funcs := template.FuncMap{"upper": strings.ToUpper}
	set := make(map[string]*template.Template, len(bodies))

	for name, body := range bodies {
		t, err := template.New(name).Funcs(funcs).Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("parse layout: %w", err)
		}

		if _, err := t.Parse(body); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}

		set[name] = t
	}

	return &Templates{set: set}, nil
}

// Render produces the subject and HTML body for a template
func (t *Templates) Render(name, reference string, data templateData) (string, string, error) {
	tmpl, ok := t.set[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}

	return fmt.Sprintf(subjects[name], reference), buf.String(), nil
}
