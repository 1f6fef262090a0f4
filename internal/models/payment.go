package models

// Metadata keys attached to payment intents and read back from webhooks
const (
	MetadataKind         = "kind"
	MetadataOrderID      = "orderId"
	MetadataCommissionID = "commissionId"
	MetadataPaymentType  = "paymentType"

	KindOrder      = "order"
	KindCommission = "commission"
)

// Gateway event types the reconciler acts on
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// PaymentEvent is a verified gateway webhook reduced to what reconciliation needs
type PaymentEvent struct {
	EventID        string
	Type           string
	IntentID       string
	AmountReceived int64
	Metadata       map[string]string
}

// Intent statuses in which the customer can still complete payment
const (
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresConfirmation  = "requires_confirmation"
	IntentRequiresAction        = "requires_action"
)

// PaymentIntent is a gateway intent as the storefront and reconciler see it
type PaymentIntent struct {
	IntentID     string            `json:"intentId"`
	ClientSecret string            `json:"clientSecret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status,omitempty"`
	Metadata     map[string]string `json:"-"`
}

// Open reports whether the intent can still be paid
func (p *PaymentIntent) Open() bool {
	switch p.Status {
	case IntentRequiresPaymentMethod, IntentRequiresConfirmation, IntentRequiresAction:
		return true
	}
	return false
}
