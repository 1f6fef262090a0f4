package models

import "time"

// NotificationType categorises admin inbox entries
type NotificationType string

const (
	NotificationNewOrder        NotificationType = "new_order"
	NotificationNewCommission   NotificationType = "new_commission"
	NotificationPaymentReceived NotificationType = "payment_received"
	NotificationRefundRequired  NotificationType = "refund_required"
)

// Notification is an admin-facing inbox entry
type Notification struct {
	ID        string           `db:"id" json:"id"`
	Type      NotificationType `db:"type" json:"type"`
	Message   string           `db:"message" json:"message"`
	Link      string           `db:"link" json:"link,omitempty"`
	IsRead    bool             `db:"is_read" json:"isRead"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// NewNotification creates an unread inbox entry
func NewNotification(kind NotificationType, message, link string) *Notification {
	return &Notification{
		ID:        GenerateID(),
		Type:      kind,
		Message:   message,
		Link:      link,
		CreatedAt: GetCurrentTime(),
	}
}
