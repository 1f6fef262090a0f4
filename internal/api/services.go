package api

import (
	"context"

	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/service"
)

// OrderManager is the order lifecycle as seen by the HTTP layer
type OrderManager interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id string, identity *auth.Identity) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter, identity *auth.Identity) ([]*models.Order, int, error)
	UpdateOrderStatus(ctx context.Context, id string, in service.UpdateOrderStatusInput) (*models.Order, error)
}

// CommissionManager is the commission lifecycle as seen by the HTTP layer
type CommissionManager interface {
	CreateCommission(ctx context.Context, in service.CreateCommissionInput) (*models.Commission, error)
	UpdateStatus(ctx context.Context, id string, in service.UpdateCommissionStatusInput) (*models.Commission, error)
	AddProgressImage(ctx context.Context, id string, file service.ImageFile, description string) (*models.CommissionImage, error)
	GetCommission(ctx context.Context, id string) (*models.Commission, error)
	ListCommissions(ctx context.Context, filter models.CommissionFilter) ([]*models.Commission, int, error)
	ListCustomerCommissions(ctx context.Context, identity *auth.Identity, page, limit int) ([]*models.Commission, int, error)
}

// PaymentManager creates intents and accepts gateway webhooks
type PaymentManager interface {
	CreateOrderIntent(ctx context.Context, orderID string) (*service.IntentResult, error)
	CreateCommissionIntent(ctx context.Context, commissionID string, paymentType models.PaymentType) (*service.IntentResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// SettingsManager reads and replaces the site settings record
type SettingsManager interface {
	Get(ctx context.Context) (*models.SiteSettings, error)
	Update(ctx context.Context, settings *models.SiteSettings) (*models.SiteSettings, error)
}

// Authenticator registers customers and exchanges credentials for tokens
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
}

// TokenParser turns a bearer token into an identity
type TokenParser interface {
	Parse(raw string) (*auth.Identity, error)
}

// ArtworkCatalog serves catalog reads
type ArtworkCatalog interface {
	List(ctx context.Context, status models.ArtworkStatus, limit, offset int) ([]*models.Artwork, error)
	GetByID(ctx context.Context, id string) (*models.Artwork, error)
}

// NotificationInbox is the admin notification store
type NotificationInbox interface {
	List(ctx context.Context, unreadOnly bool, limit int) ([]*models.Notification, error)
	CountUnread(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
}

// DeadLetterQueue is the admin view of messages the outbox gave up on
type DeadLetterQueue interface {
	List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error)
	GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error)
	ResetToPending(ctx context.Context, id int64) error
	MarkAsDiscarded(ctx context.Context, id int64, reason string) error
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}
