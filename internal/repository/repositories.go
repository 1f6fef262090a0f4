package repository

import (
	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// Repositories groups every repository so services can bind them to one transaction
type Repositories struct {
	Artworks      *ArtworkRepository
	Customers     *CustomerRepository
	Orders        *OrderRepository
	Commissions   *CommissionRepository
	Notifications *NotificationRepository
	WebhookEvents *WebhookEventRepository
	Outbox        *OutboxRepository
	DeadLetters   *DeadLetterRepository
	Settings      *SettingsRepository
}

// NewRepositories creates all repositories over db
func NewRepositories(db *database.Database, logger logger.Logger) *Repositories {
	return &Repositories{
		Artworks:      NewArtworkRepository(db, logger),
		Customers:     NewCustomerRepository(db, logger),
		Orders:        NewOrderRepository(db, logger),
		Commissions:   NewCommissionRepository(db, logger),
		Notifications: NewNotificationRepository(db, logger),
		WebhookEvents: NewWebhookEventRepository(db, logger),
		Outbox:        NewOutboxRepository(db, logger),
		DeadLetters:   NewDeadLetterRepository(db, logger),
		Settings:      NewSettingsRepository(db, logger),
	}
}

// WithTx returns the transactional repositories bound to tx.
// Dead letters and settings are written outside domain transactions and stay unbound.
func (r *Repositories) WithTx(tx *sqlx.Tx) *Repositories {
	return &Repositories{
		Artworks:      r.Artworks.WithTx(tx),
		Customers:     r.Customers.WithTx(tx),
		Orders:        r.Orders.WithTx(tx),
		Commissions:   r.Commissions.WithTx(tx),
		Notifications: r.Notifications.WithTx(tx),
		WebhookEvents: r.WebhookEvents.WithTx(tx),
		Outbox:        r.Outbox.WithTx(tx),
		DeadLetters:   r.DeadLetters,
		Settings:      r.Settings,
	}
}
