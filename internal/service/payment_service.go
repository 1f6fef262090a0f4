package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/gallery-api/internal/metrics"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/payment"
	"github.com/vaidashi/gallery-api/internal/repository"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// IntentResult is what the storefront needs to confirm a payment
type IntentResult struct {
	ClientSecret string          `json:"clientSecret"`
	IntentID     string          `json:"intentId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// PaymentService creates payment intents and dispatches verified gateway webhooks
type PaymentService struct {
	repos       *repository.Repositories
	gateway     payment.Gateway
	orders      *OrderService
	commissions *CommissionService
	currency    string
	metrics     *metrics.Metrics
	logger      logger.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	repos *repository.Repositories,
	gateway payment.Gateway,
	orders *OrderService,
	commissions *CommissionService,
	currency string,
	m *metrics.Metrics,
	logger logger.Logger,
) *PaymentService {
	return &PaymentService{
		repos:       repos,
		gateway:     gateway,
		orders:      orders,
		commissions: commissions,
		currency:    currency,
		metrics:     m,
		logger:      logger,
	}
}

// CreateOrderIntent starts a payment for the stored order total
func (s *PaymentService) CreateOrderIntent(ctx context.Context, orderID string) (*IntentResult, error) {
	if !validID(orderID) {
		return nil, apperrors.NewNotFoundError("order not found")
	}

	order, err := s.repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, translate(err, "order")
	}

	if order.PaymentStatus == models.PaymentStatusFullyPaid {
		return nil, apperrors.NewConflictError("order is already paid")
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, apperrors.NewConflictError("order has been cancelled")
	}

	minor := models.ToMinorUnits(order.Total)
	metadata := map[string]string{
		models.MetadataKind:    models.KindOrder,
		models.MetadataOrderID: order.ID,
	}

	intent, err := s.openIntent(ctx, order.PaymentIntentID, minor, order.Currency, metadata)
	if err != nil {
		return nil, err
	}

	if intent == nil {
		intent, err = s.gateway.CreateIntent(ctx, minor, order.Currency, metadata)
		if err != nil {
			return nil, err
		}

		if err := s.repos.Orders.SetPaymentIntent(ctx, order.ID, intent.IntentID); err != nil {
			return nil, translate(err, "order")
		}

		s.logger.Info("Payment intent created", "orderID", order.ID, "intentID", intent.IntentID, "amount", intent.Amount)
	}

	return &IntentResult{
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.IntentID,
		Amount:       order.Total,
		Currency:     order.Currency,
	}, nil
}

// CreateCommissionIntent starts a deposit or balance payment for a commission.
// The deposit is half the current price; the full payment is whatever remains after any deposit.
func (s *PaymentService) CreateCommissionIntent(ctx context.Context, commissionID string, paymentType models.PaymentType) (*IntentResult, error) {
	if !paymentType.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid payment type %q", paymentType))
	}

	if !validID(commissionID) {
		return nil, apperrors.NewNotFoundError("commission not found")
	}

	c, err := s.repos.Commissions.GetByID(ctx, commissionID)
	if err != nil {
		return nil, translate(err, "commission")
	}

	if c.Status == models.CommissionStatusCancelled {
		return nil, apperrors.NewConflictError("commission has been cancelled")
	}
	if c.PaymentStatus == models.PaymentStatusFullyPaid {
		return nil, apperrors.NewConflictError("commission is already paid")
	}

	var amount decimal.Decimal

	switch paymentType {
	case models.PaymentTypeDeposit:
		if c.PaymentStatus != models.PaymentStatusUnpaid {
			return nil, apperrors.NewConflictError("deposit has already been paid")
		}
		amount = c.DepositDue()
	case models.PaymentTypeFull:
		amount = c.BalanceDue()
	}

	if !amount.IsPositive() {
		return nil, apperrors.NewConflictError("nothing is due on this commission")
	}

	minor := models.ToMinorUnits(amount)
	metadata := map[string]string{
		models.MetadataKind:         models.KindCommission,
		models.MetadataCommissionID: c.ID,
		models.MetadataPaymentType:  string(paymentType),
	}

	intent, err := s.openIntent(ctx, c.PaymentIntentID, minor, s.currency, metadata)
	if err != nil {
		return nil, err
	}

	if intent == nil {
		intent, err = s.gateway.CreateIntent(ctx, minor, s.currency, metadata)
		if err != nil {
			return nil, err
		}

		if err := s.repos.Commissions.SetPaymentIntent(ctx, c.ID, intent.IntentID); err != nil {
			return nil, translate(err, "commission")
		}

		s.logger.Info("Commission payment intent created", "commissionID", c.ID, "intentID", intent.IntentID,
			"paymentType", paymentType, "amount", intent.Amount)
	}

	return &IntentResult{
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.IntentID,
		Amount:       amount,
		Currency:     s.currency,
	}, nil
}

// openIntent returns the stored intent when it can still collect exactly this payment.
// An open intent for a different amount or payment type is cancelled so only one can succeed.
func (s *PaymentService) openIntent(ctx context.Context, storedID *string, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	if storedID == nil || *storedID == "" {
		return nil, nil
	}

	intent, err := s.gateway.GetIntent(ctx, *storedID)
	if err != nil {
		s.logger.Warn("Could not load stored payment intent", "error", err, "intentID", *storedID)
		return nil, nil
	}

	if !intent.Open() {
		return nil, nil
	}

	if intent.Amount == amount && strings.EqualFold(intent.Currency, currency) && sameMetadata(intent.Metadata, metadata) {
		s.logger.Info("Reusing open payment intent", "intentID", intent.IntentID, "amount", intent.Amount)
		return intent, nil
	}

	if err := s.gateway.CancelIntent(ctx, intent.IntentID); err != nil {
		return nil, err
	}
	return nil, nil
}

func sameMetadata(got, want map[string]string) bool {
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// HandleWebhook verifies a gateway delivery and routes it to the owning lifecycle manager.
// Any returned error leaves the event unprocessed so the gateway retries it.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		s.metrics.ObserveWebhook("unverified", "rejected")
		return err
	}

	err = s.dispatch(ctx, event)

	result := "processed"
	if err != nil {
		result = "error"
		s.logger.Error("Failed to reconcile payment event", "error", err, "eventID", event.EventID, "type", event.Type)
	}
	s.metrics.ObserveWebhook(event.Type, result)

	return err
}

func (s *PaymentService) dispatch(ctx context.Context, event *models.PaymentEvent) error {
	kind := event.Metadata[models.MetadataKind]
	if kind == "" {
		switch {
		case event.Metadata[models.MetadataOrderID] != "":
			kind = models.KindOrder
		case event.Metadata[models.MetadataCommissionID] != "":
			kind = models.KindCommission
		}
	}

	switch event.Type {
	case models.EventPaymentSucceeded:
		switch kind {
		case models.KindOrder:
			return s.orders.HandlePaymentSucceeded(ctx, event)
		case models.KindCommission:
			return s.commissions.HandlePaymentSucceeded(ctx, event)
		}
	case models.EventPaymentFailed:
		switch kind {
		case models.KindOrder:
			return s.orders.HandlePaymentFailed(ctx, event)
		case models.KindCommission:
			return s.commissions.HandlePaymentFailed(ctx, event)
		}
	default:
		s.logger.Debug("Ignoring payment event type", "eventID", event.EventID, "type", event.Type)
		return nil
	}

	s.logger.Warn("Payment event without gallery metadata", "eventID", event.EventID, "type", event.Type, "intentID", event.IntentID)
	return nil
}
