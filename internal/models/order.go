package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the fulfilment status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// orderTransitions lists the statuses an admin may move an order to.
// Every status is reachable from every other so that mistakes can be corrected by hand.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusCancelled:  {OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted},
}

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionTo reports whether an admin may move an order from s to next.
// Staying in the same status is always allowed and treated as a no-op.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return next.Valid()
	}

	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus tracks how much of an order or commission has been paid
type PaymentStatus string

const (
	PaymentStatusUnpaid      PaymentStatus = "UNPAID"
	PaymentStatusDepositPaid PaymentStatus = "DEPOSIT_PAID"
	PaymentStatusFullyPaid   PaymentStatus = "FULLY_PAID"
)

var paymentRank = map[PaymentStatus]int{
	PaymentStatusUnpaid:      0,
	PaymentStatusDepositPaid: 1,
	PaymentStatusFullyPaid:   2,
}

// Before reports whether s is strictly earlier in the payment progression than other
func (s PaymentStatus) Before(other PaymentStatus) bool {
	return paymentRank[s] < paymentRank[other]
}

// Order represents a checkout of one or more artworks
type Order struct {
	ID                string          `db:"id" json:"id"`
	OrderNumber       string          `db:"order_number" json:"orderNumber"`
	CustomerID        string          `db:"customer_id" json:"customerId"`
	ShippingAddressID string          `db:"shipping_address_id" json:"-"`
	Status            OrderStatus     `db:"status" json:"status"`
	PaymentStatus     PaymentStatus   `db:"payment_status" json:"paymentStatus"`
	Subtotal          decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingCost      decimal.Decimal `db:"shipping_cost" json:"shippingCost"`
	Tax               decimal.Decimal `db:"tax" json:"tax"`
	Total             decimal.Decimal `db:"total" json:"total"`
	Currency          string          `db:"currency" json:"currency"`
	PaymentIntentID   *string         `db:"payment_intent_id" json:"paymentIntentId,omitempty"`
	TrackingNumber    string          `db:"tracking_number" json:"trackingNumber,omitempty"`
	InternalNotes     string          `db:"internal_notes" json:"internalNotes,omitempty"`
	PaidAt            *time.Time      `db:"paid_at" json:"paidAt,omitempty"`
	CancelledAt       *time.Time      `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`

	Items           []OrderItem `db:"-" json:"items"`
	ShippingAddress *Address    `db:"-" json:"shippingAddress,omitempty"`
	Customer        *Customer   `db:"-" json:"customer,omitempty"`
}

// OrderItem snapshots an artwork's title and price at purchase time
type OrderItem struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"-"`
	ArtworkID string          `db:"artwork_id" json:"artworkId"`
	Title     string          `db:"title" json:"title"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Position  int             `db:"position" json:"position"`
}

// NewOrder builds a PENDING, UNPAID order from the locked artworks in the requested order.
// Shipping and tax are zero under the current policy.
func NewOrder(customerID, addressID, currency string, artworks []Artwork) *Order {
	now := GetCurrentTime()
	order := &Order{
		ID:                GenerateID(),
		OrderNumber:       GenerateNumber(OrderNumberPrefix, now),
		CustomerID:        customerID,
		ShippingAddressID: addressID,
		Status:            OrderStatusPending,
		PaymentStatus:     PaymentStatusUnpaid,
		ShippingCost:      decimal.Zero,
		Tax:               decimal.Zero,
		Currency:          currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	subtotal := decimal.Zero
	for i, a := range artworks {
		order.Items = append(order.Items, OrderItem{
			ID:        GenerateID(),
			OrderID:   order.ID,
			ArtworkID: a.ID,
			Title:     a.Title,
			Price:     a.Price,
			Position:  i,
		})
		subtotal = subtotal.Add(a.Price)
	}

	order.Subtotal = subtotal
	order.Total = subtotal.Add(order.ShippingCost).Add(order.Tax)
	return order
}

// ArtworkIDs returns the artwork IDs captured on the order's line items
func (o *Order) ArtworkIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ArtworkID)
	}
	return ids
}

// OrderFilter narrows an order listing
type OrderFilter struct {
	Status        OrderStatus
	CustomerEmail string
	Page          int
	Limit         int
}

// Normalize clamps pagination to sane bounds
func (f *OrderFilter) Normalize() {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
