package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/metrics"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/repository"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// staleReservationBatch bounds how many orders one sweep cancels
const staleReservationBatch = 100

// CreateOrderInput is a checkout submission
type CreateOrderInput struct {
	Identity        *auth.Identity
	Customer        models.CustomerDetails
	ItemIDs         []string
	ShippingAddress models.Address
}

// UpdateOrderStatusInput carries the admin-editable order fields; nil fields are left alone
type UpdateOrderStatusInput struct {
	Status         *models.OrderStatus
	TrackingNumber *string
	InternalNotes  *string
}

// OrderService handles order creation, admin updates and payment reconciliation
type OrderService struct {
	db        *database.Database
	repos     *repository.Repositories
	metrics   *metrics.Metrics
	currency  string
	newNumber func(prefix string, at time.Time) string
	logger    logger.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(
	db *database.Database,
	repos *repository.Repositories,
	m *metrics.Metrics,
	currency string,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		db:        db,
		repos:     repos,
		metrics:   m,
		currency:  currency,
		newNumber: models.GenerateNumber,
		logger:    logger,
	}
}

func (in *CreateOrderInput) validate() error {
	if len(in.ItemIDs) == 0 {
		return apperrors.NewValidationError("at least one item is required")
	}

	seen := make(map[string]struct{}, len(in.ItemIDs))
	for _, id := range in.ItemIDs {
		if !validID(id) {
			return apperrors.NewValidationError(fmt.Sprintf("invalid item id %q", id))
		}
		if _, dup := seen[id]; dup {
			return apperrors.NewValidationError(fmt.Sprintf("item %s listed more than once", id))
		}
		seen[id] = struct{}{}
	}

	if in.Identity == nil {
		if err := validateCustomerDetails(in.Customer); err != nil {
			return err
		}
	}

	if field := in.ShippingAddress.MissingField(); field != "" {
		return apperrors.NewValidationError("shipping address " + field + " is required")
	}

	return nil
}

// CreateOrder reserves every requested artwork and records the order in one transaction.
// If any artwork is no longer AVAILABLE nothing is written and ItemsUnavailable is returned.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var (
		order    *models.Order
		customer *models.Customer
	)

	err := retryNumber(func() error {
		return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			order, customer, err = s.reserveOrder(ctx, s.repos.WithTx(tx), in)
			return err
		})
	})

	if err != nil {
		if apperrors.Is(err, apperrors.ErrItemsUnavailable) {
			s.metrics.OrderConflicts.Inc()
			s.logger.Info("Order rejected, items unavailable", "items", in.ItemIDs)
		}
		return nil, translate(err, "order")
	}

	s.metrics.OrdersCreated.Inc()
	s.logger.Info("Order created", "orderID", order.ID, "orderNumber", order.OrderNumber, "total", order.Total.String())

	order.Customer = customer
	return order, nil
}

// reserveOrder is the CreateOrder transaction body
func (s *OrderService) reserveOrder(ctx context.Context, repos *repository.Repositories, in CreateOrderInput) (*models.Order, *models.Customer, error) {
	customer, err := resolveBuyer(ctx, repos, in.Identity, in.Customer)
	if err != nil {
		return nil, nil, err
	}

	address := in.ShippingAddress
	address.ID = models.GenerateID()
	address.CustomerID = customer.ID
	address.CreatedAt = models.GetCurrentTime()

	if err := repos.Customers.CreateAddress(ctx, &address); err != nil {
		return nil, nil, err
	}

	locked, err := repos.Artworks.LockAvailable(ctx, in.ItemIDs)
	if err != nil {
		return nil, nil, err
	}

	if len(locked) != len(in.ItemIDs) {
		return nil, nil, apperrors.NewItemsUnavailableError("one or more items are no longer available, please refresh your cart")
	}

	// line items follow the order the buyer added them in
	byID := make(map[string]models.Artwork, len(locked))
	for _, a := range locked {
		byID[a.ID] = a
	}
	ordered := make([]models.Artwork, 0, len(in.ItemIDs))
	for _, id := range in.ItemIDs {
		ordered = append(ordered, byID[id])
	}

	order := models.NewOrder(customer.ID, address.ID, s.currency, ordered)
	order.OrderNumber = s.newNumber(models.OrderNumberPrefix, order.CreatedAt)
	order.ShippingAddress = &address

	if err := repos.Orders.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Warn("Order number collision, regenerating", "orderNumber", order.OrderNumber)
			return nil, nil, errNumberTaken
		}
		return nil, nil, err
	}

	reserved, err := repos.Artworks.Reserve(ctx, in.ItemIDs, order.ID)
	if err != nil {
		return nil, nil, err
	}

	if reserved != int64(len(in.ItemIDs)) {
		return nil, nil, apperrors.NewItemsUnavailableError("one or more items are no longer available, please refresh your cart")
	}

	notification := models.NewNotification(
		models.NotificationNewOrder,
		fmt.Sprintf("New order %s from %s (%s %s)", order.OrderNumber, customer.FullName(), order.Total.StringFixed(2), strings.ToUpper(order.Currency)),
		"/admin/orders/"+order.ID,
	)
	if err := repos.Notifications.Create(ctx, notification); err != nil {
		return nil, nil, err
	}

	event, err := models.NewOrderEvent(models.EventOrderCreated, models.NewOrderEventData(order, customer))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create outbox message: %w", err)
	}

	if err := repos.Outbox.Create(ctx, event); err != nil {
		return nil, nil, err
	}

	return order, customer, nil
}

// GetOrder returns one order. The UUID acts as a capability, so anonymous callers may read it;
// internal notes are only shown to admins.
func (s *OrderService) GetOrder(ctx context.Context, id string, identity *auth.Identity) (*models.Order, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFoundError("order not found")
	}

	order, err := s.repos.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "order")
	}

	if order.ShippingAddress, err = s.repos.Customers.GetAddress(ctx, order.ShippingAddressID); err != nil {
		return nil, translate(err, "shipping address")
	}

	if order.Customer, err = s.repos.Customers.GetByID(ctx, order.CustomerID); err != nil {
		return nil, translate(err, "customer")
	}

	if !identity.IsAdmin() {
		order.InternalNotes = ""
	}

	return order, nil
}

// ListOrders returns a page of orders. Non-admin callers only ever see their own orders.
func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter, identity *auth.Identity) ([]*models.Order, int, error) {
	if identity == nil {
		return nil, 0, apperrors.NewUnauthorizedError("sign in to view orders")
	}

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperrors.NewValidationError(fmt.Sprintf("invalid status %q", filter.Status))
	}

	if !identity.IsAdmin() {
		if filter.CustomerEmail != "" && models.NormalizeEmail(filter.CustomerEmail) != models.NormalizeEmail(identity.Email) {
			return nil, 0, apperrors.NewForbiddenError("you may only view your own orders")
		}
		filter.CustomerEmail = identity.Email
	}

	orders, total, err := s.repos.Orders.List(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "orders")
	}

	if !identity.IsAdmin() {
		for _, o := range orders {
			o.InternalNotes = ""
		}
	}

	return orders, total, nil
}

// UpdateOrderStatus applies an admin edit. Cancelling releases the artworks this order still holds.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, in UpdateOrderStatusInput) (*models.Order, error) {
	if in.Status == nil && in.TrackingNumber == nil && in.InternalNotes == nil {
		return nil, apperrors.NewValidationError("nothing to update")
	}

	if in.Status != nil && !in.Status.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid status %q", *in.Status))
	}

	if !validID(id) {
		return nil, apperrors.NewNotFoundError("order not found")
	}

	var order *models.Order

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repos := s.repos.WithTx(tx)

		var err error
		order, err = repos.Orders.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		oldStatus := order.Status

		if in.TrackingNumber != nil {
			order.TrackingNumber = strings.TrimSpace(*in.TrackingNumber)
		}
		if in.InternalNotes != nil {
			order.InternalNotes = *in.InternalNotes
		}

		statusChanged := in.Status != nil && *in.Status != oldStatus

		if statusChanged {
			if !oldStatus.CanTransitionTo(*in.Status) {
				return apperrors.NewConflictError(fmt.Sprintf("cannot move order from %s to %s", oldStatus, *in.Status))
			}

			if *in.Status == models.OrderStatusCancelled {
				if err := s.cancel(ctx, repos, order); err != nil {
					return err
				}
			} else {
				order.Status = *in.Status
			}
		}

		if err := repos.Orders.Update(ctx, order); err != nil {
			return err
		}

		if !statusChanged {
			return nil
		}

		return s.emitStatusChanged(ctx, repos, order, oldStatus)
	})

	if err != nil {
		return nil, translate(err, "order")
	}

	s.logger.Info("Order updated", "orderID", order.ID, "status", order.Status)
	return order, nil
}

// cancel moves order to CANCELLED and returns its held artworks to the catalog.
// Artworks that have since been reserved by another order are not touched.
func (s *OrderService) cancel(ctx context.Context, repos *repository.Repositories, order *models.Order) error {
	now := models.GetCurrentTime()
	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now

	released, err := repos.Artworks.ReleaseHeldBy(ctx, order.ID, order.ArtworkIDs())
	if err != nil {
		return err
	}

	s.logger.Info("Released reserved artworks", "orderID", order.ID, "released", released)
	return nil
}

func (s *OrderService) emitStatusChanged(ctx context.Context, repos *repository.Repositories, order *models.Order, oldStatus models.OrderStatus) error {
	customer, err := repos.Customers.GetByID(ctx, order.CustomerID)
	if err != nil {
		return err
	}

	data := models.NewOrderEventData(order, customer)
	data.OldStatus = oldStatus

	event, err := models.NewOrderEvent(models.EventOrderStatusChanged, data)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	return repos.Outbox.Create(ctx, event)
}

// HandlePaymentSucceeded settles the order named in the intent metadata. Replays of the same
// gateway event are skipped through the processed-event ledger, and an order that is already
// FULLY_PAID is left as it is.
func (s *OrderService) HandlePaymentSucceeded(ctx context.Context, event *models.PaymentEvent) error {
	orderID := event.Metadata[models.MetadataOrderID]

	if !validID(orderID) {
		return apperrors.NewNotFoundError(fmt.Sprintf("order %q from payment metadata not found", orderID))
	}

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repos := s.repos.WithTx(tx)

		fresh, err := repos.WebhookEvents.Record(ctx, event.EventID, event.Type)
		if err != nil {
			return err
		}
		if !fresh {
			s.logger.Info("Skipping already processed payment event", "eventID", event.EventID, "orderID", orderID)
			return nil
		}

		order, err := repos.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return translate(err, "order")
		}

		if order.PaymentStatus == models.PaymentStatusFullyPaid {
			if !secondCharge(order.PaymentIntentID, event.IntentID) {
				s.logger.Info("Order already paid", "eventID", event.EventID, "orderID", orderID)
				return nil
			}

			s.logger.Warn("Second payment received for paid order", "eventID", event.EventID,
				"orderID", orderID, "intentID", event.IntentID)

			return repos.Notifications.Create(ctx, models.NewNotification(
				models.NotificationRefundRequired,
				fmt.Sprintf("Second payment %s received for paid order %s, a refund is required", event.IntentID, order.OrderNumber),
				"/admin/orders/"+order.ID,
			))
		}

		now := models.GetCurrentTime()
		order.PaymentStatus = models.PaymentStatusFullyPaid
		order.PaidAt = &now
		if event.IntentID != "" {
			order.PaymentIntentID = &event.IntentID
		}

		if order.Status == models.OrderStatusCancelled {
			s.logger.Warn("Payment received for cancelled order", "eventID", event.EventID, "orderID", orderID)

			if err := repos.Orders.Update(ctx, order); err != nil {
				return err
			}

			return repos.Notifications.Create(ctx, models.NewNotification(
				models.NotificationRefundRequired,
				fmt.Sprintf("Payment received for cancelled order %s, a refund is required", order.OrderNumber),
				"/admin/orders/"+order.ID,
			))
		}

		order.Status = models.OrderStatusConfirmed

		if err := repos.Orders.Update(ctx, order); err != nil {
			return err
		}

		ids := order.ArtworkIDs()
		sold, err := repos.Artworks.MarkSoldHeldBy(ctx, order.ID, ids)
		if err != nil {
			return err
		}
		if sold != int64(len(ids)) {
			s.logger.Warn("Not every artwork on the paid order was still held by it",
				"orderID", order.ID, "items", len(ids), "sold", sold)
		}

		if err := repos.Notifications.Create(ctx, models.NewNotification(
			models.NotificationPaymentReceived,
			fmt.Sprintf("Payment received for order %s", order.OrderNumber),
			"/admin/orders/"+order.ID,
		)); err != nil {
			return err
		}

		customer, err := repos.Customers.GetByID(ctx, order.CustomerID)
		if err != nil {
			return err
		}

		paid, err := models.NewOrderEvent(models.EventOrderPaid, models.NewOrderEventData(order, customer))
		if err != nil {
			return fmt.Errorf("failed to create outbox message: %w", err)
		}

		if err := repos.Outbox.Create(ctx, paid); err != nil {
			return err
		}

		s.logger.Info("Order payment reconciled", "eventID", event.EventID, "orderID", order.ID, "sold", sold)
		return nil
	})
}

// secondCharge reports whether a succeeded intent differs from the one that already settled the record
func secondCharge(settled *string, intentID string) bool {
	return intentID != "" && (settled == nil || *settled != intentID)
}

// HandlePaymentFailed records the event and leaves the reservation in place
func (s *OrderService) HandlePaymentFailed(ctx context.Context, event *models.PaymentEvent) error {
	return recordFailedPayment(ctx, s.db, s.repos, event, s.logger)
}

// ReleaseExpiredReservations cancels PENDING, UNPAID orders older than ttl and releases their artworks
func (s *OrderService) ReleaseExpiredReservations(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := models.GetCurrentTime().Add(-ttl)

	ids, err := s.repos.Orders.ListStaleReservations(ctx, cutoff, staleReservationBatch)
	if err != nil {
		return 0, err
	}

	cancelled := 0

	for _, id := range ids {
		err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			repos := s.repos.WithTx(tx)

			order, err := repos.Orders.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}

			// paid or edited since the listing
			if order.Status != models.OrderStatusPending || order.PaymentStatus != models.PaymentStatusUnpaid {
				return nil
			}

			oldStatus := order.Status
			if err := s.cancel(ctx, repos, order); err != nil {
				return err
			}
			order.InternalNotes = strings.TrimSpace(order.InternalNotes + "\nReservation expired after " + ttl.String())

			if err := repos.Orders.Update(ctx, order); err != nil {
				return err
			}

			cancelled++
			return s.emitStatusChanged(ctx, repos, order, oldStatus)
		})

		if err != nil {
			s.logger.Error("Failed to expire reservation", "error", err, "orderID", id)
			return cancelled, err
		}
	}

	if cancelled > 0 {
		s.logger.Info("Expired stale reservations", "cancelled", cancelled, "cutoff", cutoff)
	}

	return cancelled, nil
}

// resolveBuyer returns the signed-in customer or finds-or-creates a guest by email
func resolveBuyer(ctx context.Context, repos *repository.Repositories, identity *auth.Identity, details models.CustomerDetails) (*models.Customer, error) {
	if identity != nil {
		customer, err := repos.Customers.GetByID(ctx, identity.CustomerID)
		if err != nil {
			if apperrors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewUnauthorizedError("account no longer exists")
			}
			return nil, err
		}
		return customer, nil
	}

	return repos.Customers.FindOrCreate(ctx, models.NewGuestCustomer(details))
}

// recordFailedPayment writes the event to the ledger and logs it. Reservations are kept;
// releasing them is left to an admin cancellation or the reservation sweep.
func recordFailedPayment(ctx context.Context, db *database.Database, repos *repository.Repositories, event *models.PaymentEvent, log logger.Logger) error {
	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		fresh, err := repos.WithTx(tx).WebhookEvents.Record(ctx, event.EventID, event.Type)
		if err != nil {
			return err
		}

		if fresh {
			log.Warn("Payment failed",
				"eventID", event.EventID,
				"intentID", event.IntentID,
				"kind", event.Metadata[models.MetadataKind],
				"orderID", event.Metadata[models.MetadataOrderID],
				"commissionID", event.Metadata[models.MetadataCommissionID],
			)
		}

		return nil
	})
}
