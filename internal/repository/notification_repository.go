package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// NotificationRepository stores the admin inbox
type NotificationRepository struct {
	q      database.Querier
	logger logger.Logger
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *database.Database, logger logger.Logger) *NotificationRepository {
	return &NotificationRepository{
		q:      db.DB,
		logger: logger,
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *NotificationRepository) WithTx(tx *sqlx.Tx) *NotificationRepository {
	return &NotificationRepository{q: tx, logger: r.logger}
}

// Create inserts a notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, type, message, link, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.ExecContext(ctx, query, n.ID, n.Type, n.Message, n.Link, n.IsRead, n.CreatedAt)

	if err != nil {
		r.logger.Error("Failed to create notification", "error", err, "type", n.Type)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// List returns the newest notifications, optionally only unread ones
func (r *NotificationRepository) List(ctx context.Context, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, type, message, link, is_read, created_at
		FROM notifications
		WHERE ($1 = FALSE OR is_read = FALSE)
		ORDER BY created_at DESC
		LIMIT $2
	`

	var notifications []*models.Notification
	err := r.q.SelectContext(ctx, &notifications, query, unreadOnly, limit)

	if err != nil {
		r.logger.Error("Failed to list notifications", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return notifications, nil
}

// CountUnread returns the number of unread notifications
func (r *NotificationRepository) CountUnread(ctx context.Context) (int, error) {
	var count int

	if err := r.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE is_read = FALSE`); err != nil {
		r.logger.Error("Failed to count unread notifications", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}

// MarkRead flags one notification as read
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)

	if err != nil {
		r.logger.Error("Failed to mark notification read", "error", err, "notificationID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return requireAffected(result)
}

// MarkAllRead flags every unread notification as read and returns how many changed
func (r *NotificationRepository) MarkAllRead(ctx context.Context) (int64, error) {
	result, err := r.q.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE is_read = FALSE`)

	if err != nil {
		r.logger.Error("Failed to mark all notifications read", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rows, err := result.RowsAffected()

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return rows, nil
}
