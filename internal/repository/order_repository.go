package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

const orderColumns = `o.id, o.order_number, o.customer_id, o.shipping_address_id, o.status, o.payment_status,
	o.subtotal, o.shipping_cost, o.tax, o.total, o.currency, o.payment_intent_id, o.tracking_number,
	o.internal_notes, o.paid_at, o.cancelled_at, o.created_at, o.updated_at`

// OrderRepository handles database operations for orders and their line items
type OrderRepository struct {
	q      database.Querier
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		q:      db.DB,
		logger: logger,
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *OrderRepository) WithTx(tx *sqlx.Tx) *OrderRepository {
	return &OrderRepository{q: tx, logger: r.logger}
}

// Create inserts an order and its line items
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			id, order_number, customer_id, shipping_address_id, status, payment_status,
			subtotal, shipping_cost, tax, total, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.q.ExecContext(
		ctx,
		query,
		order.ID,
		order.OrderNumber,
		order.CustomerID,
		order.ShippingAddressID,
		order.Status,
		order.PaymentStatus,
		order.Subtotal,
		order.ShippingCost,
		order.Tax,
		order.Total,
		order.Currency,
		order.CreatedAt,
		order.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, artwork_id, title, price, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, itemQuery, item.ID, order.ID, item.ArtworkID, item.Title, item.Price, item.Position); err != nil {
			r.logger.Error("Failed to create order item", "error", err, "orderID", order.ID, "artworkID", item.ArtworkID)
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}
	}

	return nil
}

// GetByID retrieves an order with its items
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
}

// GetByIDForUpdate retrieves an order with its items and locks the order row
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, id)
}

func (r *OrderRepository) get(ctx context.Context, query, id string) (*models.Order, error) {
	var order models.Order
	err := r.q.GetContext(ctx, &order, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := r.attachItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}

	return &order, nil
}

// List returns a page of orders matching filter and the total match count
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]*models.Order, int, error) {
	filter.Normalize()

	where := `
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE ($1::text = '' OR o.status = $1)
		  AND ($2::text = '' OR c.email = $2)
	`
	email := models.NormalizeEmail(filter.CustomerEmail)

	var total int
	if err := r.q.GetContext(ctx, &total, `SELECT COUNT(*) `+where, string(filter.Status), email); err != nil {
		r.logger.Error("Failed to count orders", "error", err)
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	query := `SELECT ` + orderColumns + where + ` ORDER BY o.created_at DESC LIMIT $3 OFFSET $4`

	var orders []*models.Order
	err := r.q.SelectContext(ctx, &orders, query, string(filter.Status), email, filter.Limit, (filter.Page-1)*filter.Limit)

	if err != nil {
		r.logger.Error("Failed to list orders", "error", err, "status", filter.Status)
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
	}

	query := `
		SELECT id, order_id, artwork_id, title, price, position
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`

	var items []models.OrderItem
	if err := r.q.SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		r.logger.Error("Failed to load order items", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	return nil
}

// Update writes the admin-editable fields and lifecycle timestamps of an order
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, tracking_number = $3, internal_notes = $4,
			payment_intent_id = $5, paid_at = $6, cancelled_at = $7, updated_at = $8
		WHERE id = $9
	`

	order.UpdatedAt = models.GetCurrentTime()

	result, err := r.q.ExecContext(
		ctx,
		query,
		order.Status,
		order.PaymentStatus,
		order.TrackingNumber,
		order.InternalNotes,
		order.PaymentIntentID,
		order.PaidAt,
		order.CancelledAt,
		order.UpdatedAt,
		order.ID,
	)

	if err != nil {
		r.logger.Error("Failed to update order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return requireAffected(result)
}

// ListStaleReservations returns PENDING, UNPAID orders created before cutoff
func (r *OrderRepository) ListStaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT id
		FROM orders
		WHERE status = $1 AND payment_status = $2 AND created_at < $3
		ORDER BY created_at
		LIMIT $4
	`

	var ids []string
	err := r.q.SelectContext(ctx, &ids, query, models.OrderStatusPending, models.PaymentStatusUnpaid, cutoff, limit)

	if err != nil {
		r.logger.Error("Failed to list stale reservations", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return ids, nil
}

// SetPaymentIntent records the latest gateway intent created for an order
func (r *OrderRepository) SetPaymentIntent(ctx context.Context, id, intentID string) error {
	query := `UPDATE orders SET payment_intent_id = $1, updated_at = $2 WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, intentID, models.GetCurrentTime(), id)

	if err != nil {
		r.logger.Error("Failed to set order payment intent", "error", err, "orderID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return requireAffected(result)
}
