package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// Config controls addressing and links in outgoing email
type Config struct {
	GalleryName string
	AdminEmail  string
	SiteURL     string
}

// Notifier turns gallery events into customer and admin email
type Notifier struct {
	mailer    Mailer
	templates *Templates
	cfg       Config
	logger    logger.Logger
}

// NewNotifier creates a Notifier
func NewNotifier(mailer Mailer, cfg Config, logger logger.Logger) (*Notifier, error) {
	templates, err := NewTemplates()

	if err != nil {
		return nil, err
	}

	if cfg.GalleryName == "" {
		cfg.GalleryName = "Gallery"
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")

	return &Notifier{
		mailer:    mailer,
		templates: templates,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// HandleMessage lets the notifier consume outbox messages directly
func (n *Notifier) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	return n.Deliver(ctx, message.EventType, message.Payload)
}

// Deliver sends the email(s) for one event envelope. Event types without email are ignored.
func (n *Notifier) Deliver(ctx context.Context, eventType string, payload []byte) error {
	event, err := models.ParseOutboxEvent(payload)

	if err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	switch eventType {
	case models.EventOrderCreated, models.EventOrderPaid, models.EventOrderStatusChanged:
		var data models.OrderEventData
		if err := event.Decode(&data); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		return n.orderEmails(ctx, eventType, &data)

	case models.EventCommissionCreated, models.EventCommissionAccepted, models.EventCommissionStatusChanged,
		models.EventCommissionProgress, models.EventCommissionPaid:
		var data models.CommissionEventData
		if err := event.Decode(&data); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		return n.commissionEmails(ctx, eventType, &data)
	}

	n.logger.Debug("No email for event", "eventType", eventType, "eventID", event.EventID)
	return nil
}

func (n *Notifier) orderEmails(ctx context.Context, eventType string, data *models.OrderEventData) error {
	td := templateData{
		Gallery: n.cfg.GalleryName,
		Name:    data.CustomerName,
		Link:    fmt.Sprintf("%s/orders/%s", n.cfg.SiteURL, data.OrderID),
		Order:   data,
	}

	switch eventType {
	case models.EventOrderCreated:
		if err := n.send(ctx, "order_received", data.CustomerEmail, data.OrderNumber, td); err != nil {
			return err
		}
		return n.send(ctx, "admin_order", n.cfg.AdminEmail, data.OrderNumber, td)
	case models.EventOrderPaid:
		return n.send(ctx, "order_confirmed", data.CustomerEmail, data.OrderNumber, td)
	default:
		if !customerFacingOrderStatus(data.Status) {
			return nil
		}
		return n.send(ctx, "order_status", data.CustomerEmail, data.OrderNumber, td)
	}
}

func (n *Notifier) commissionEmails(ctx context.Context, eventType string, data *models.CommissionEventData) error {
	td := templateData{
		Gallery:    n.cfg.GalleryName,
		Name:       data.CustomerName,
		Link:       fmt.Sprintf("%s/commissions/%s", n.cfg.SiteURL, data.CommissionID),
		Commission: data,
	}

	switch eventType {
	case models.EventCommissionCreated:
		if err := n.send(ctx, "commission_received", data.CustomerEmail, data.CommissionNumber, td); err != nil {
			return err
		}
		return n.send(ctx, "admin_commission", n.cfg.AdminEmail, data.CommissionNumber, td)
	case models.EventCommissionAccepted:
		return n.send(ctx, "commission_accepted", data.CustomerEmail, data.CommissionNumber, td)
	case models.EventCommissionProgress:
		return n.send(ctx, "commission_progress", data.CustomerEmail, data.CommissionNumber, td)
	case models.EventCommissionPaid:
		return n.send(ctx, "commission_paid", data.CustomerEmail, data.CommissionNumber, td)
	default:
		return n.send(ctx, "commission_status", data.CustomerEmail, data.CommissionNumber, td)
	}
}

func (n *Notifier) send(ctx context.Context, template, to, reference string, data templateData) error {
	if to == "" {
		return nil
	}

	subject, html, err := n.templates.Render(template, reference, data)

	if err != nil {
		return err
	}

	return n.mailer.Send(ctx, Email{To: to, Subject: subject, HTML: html})
}

func customerFacingOrderStatus(s models.OrderStatus) bool {
	switch s {
	case models.OrderStatusShipped, models.OrderStatusCompleted, models.OrderStatusCancelled:
		return true
	}
	return false
}
