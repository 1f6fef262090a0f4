package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Aggregate types
const (
	AggregateOrder      = "order"
	AggregateCommission = "commission"
)

// Event types written to the outbox
const (
	EventOrderCreated            = "order_created"
	EventOrderStatusChanged      = "order_status_changed"
	EventOrderPaid               = "order_paid"
	EventCommissionCreated       = "commission_created"
	EventCommissionAccepted      = "commission_accepted"
	EventCommissionStatusChanged = "commission_status_changed"
	EventCommissionProgress      = "commission_progress"
	EventCommissionPaid          = "commission_paid"
)

// OutboxMessage represents a message to be published from the outbox table
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ClaimedAt          *time.Time   `db:"claimed_at" json:"claimed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxMessageEvent represents the event data in the outbox message
type OutboxMessageEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// Decode unmarshals the event's data into v
func (e *OutboxMessageEvent) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// ParseOutboxEvent decodes an outbox payload
func ParseOutboxEvent(payload []byte) (*OutboxMessageEvent, error) {
	var event OutboxMessageEvent

	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	return &event, nil
}

// OrderEventData carries what customer emails about an order need
type OrderEventData struct {
	OrderID        string          `json:"orderId"`
	OrderNumber    string          `json:"orderNumber"`
	CustomerEmail  string          `json:"customerEmail"`
	CustomerName   string          `json:"customerName"`
	Status         OrderStatus     `json:"status"`
	OldStatus      OrderStatus     `json:"oldStatus,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	Items          []OrderItem     `json:"items,omitempty"`
}

// CommissionEventData carries what customer emails about a commission need
type CommissionEventData struct {
	CommissionID     string           `json:"commissionId"`
	CommissionNumber string           `json:"commissionNumber"`
	CustomerEmail    string           `json:"customerEmail"`
	CustomerName     string           `json:"customerName"`
	Style            string           `json:"style"`
	Size             string           `json:"size"`
	Status           CommissionStatus `json:"status"`
	OldStatus        CommissionStatus `json:"oldStatus,omitempty"`
	Price            decimal.Decimal  `json:"price"`
	PaymentStatus    PaymentStatus    `json:"paymentStatus,omitempty"`
	PaymentType      PaymentType      `json:"paymentType,omitempty"`
	AmountPaid       decimal.Decimal  `json:"amountPaid,omitempty"`
	ImageURL         string           `json:"imageUrl,omitempty"`
	ImageDescription string           `json:"imageDescription,omitempty"`
}

// NewOrderEventData snapshots an order for an outbox event
func NewOrderEventData(order *Order, customer *Customer) OrderEventData {
	data := OrderEventData{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		Total:          order.Total,
		Currency:       order.Currency,
		TrackingNumber: order.TrackingNumber,
		Items:          order.Items,
	}

	if customer != nil {
		data.CustomerEmail = customer.Email
		data.CustomerName = customer.FullName()
	}

	return data
}

// NewCommissionEventData snapshots a commission for an outbox event
func NewCommissionEventData(c *Commission, customer *Customer) CommissionEventData {
	data := CommissionEventData{
		CommissionID:     c.ID,
		CommissionNumber: c.CommissionNumber,
		Style:            c.Style,
		Size:             c.Size,
		Status:           c.Status,
		Price:            c.Price(),
		PaymentStatus:    c.PaymentStatus,
	}

	if customer != nil {
		data.CustomerEmail = customer.Email
		data.CustomerName = customer.FullName()
	}

	return data
}

// NewOutboxEvent wraps data in an event envelope ready for the outbox table
func NewOutboxEvent(aggregateType, aggregateID, eventType string, data interface{}) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)

	if err != nil {
		return nil, err
	}

	event := OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateEventID(),
		AggregateID: aggregateID,
		OccurredAt:  GetCurrentTime(),
		Data:        raw,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		EventType:          eventType,
		Payload:            payload,
		AggregateType:      aggregateType,
		AggregateID:        aggregateID,
		CreatedAt:          GetCurrentTime(),
		ProcessingAttempts: 0,
		Status:             OutboxStatusPending,
	}, nil
}

// NewOrderEvent creates an outbox message about an order
func NewOrderEvent(eventType string, data OrderEventData) (*OutboxMessage, error) {
	return NewOutboxEvent(AggregateOrder, data.OrderID, eventType, data)
}

// NewCommissionEvent creates an outbox message about a commission
func NewCommissionEvent(eventType string, data CommissionEventData) (*OutboxMessage, error) {
	return NewOutboxEvent(AggregateCommission, data.CommissionID, eventType, data)
}
