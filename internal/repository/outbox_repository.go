package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload,
	created_at, processed_at, claimed_at, processing_attempts, last_error, status`

// DefaultProcessingLease is how long a claimed message may stay processing before another worker reclaims it
const DefaultProcessingLease = 5 * time.Minute

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	q      database.Querier
	lease  time.Duration
	logger logger.Logger
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		q:      db.DB,
		lease:  DefaultProcessingLease,
		logger: logger,
	}
}

// WithTx returns a copy of the repository bound to tx, so events commit with the state change they describe
func (r *OutboxRepository) WithTx(tx *sqlx.Tx) *OutboxRepository {
	return &OutboxRepository{q: tx, lease: r.lease, logger: r.logger}
}

// SetLease changes the processing lease; non-positive values are ignored
func (r *OutboxRepository) SetLease(lease time.Duration) {
	if lease > 0 {
		r.lease = lease
	}
}

// staleBefore is the claim time older than which a processing message is considered abandoned
func (r *OutboxRepository) staleBefore() time.Time {
	return models.GetCurrentTime().Add(-r.lease)
}

// Create inserts a new outbox message into the database
func (r *OutboxRepository) Create(ctx context.Context, message *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (
			aggregate_type, aggregate_id, event_type, payload, created_at, status
		) VALUES (
			$1, $2, $3, $4, $5, $6
		) RETURNING id
	`

	var id int64

	err := r.q.QueryRowxContext(
		ctx,
		query,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.CreatedAt,
		message.Status,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to create outbox message", "error", err, "eventType", message.EventType)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves pending outbox messages, oldest first. Messages left
// processing past the lease by a worker that died are returned as well.
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = $1
			OR (status = $2 AND (claimed_at IS NULL OR claimed_at < $3))
		ORDER BY created_at ASC, id ASC
		LIMIT $4
	`

	var messages []*models.OutboxMessage

	err := r.q.SelectContext(ctx, &messages, query,
		models.OutboxStatusPending, models.OutboxStatusProcessing, r.staleBefore(), limit)

	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// MarkAsProcessing claims a pending or abandoned message and bumps its attempt counter.
// It returns false if another worker holds a live claim on it.
func (r *OutboxRepository) MarkAsProcessing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE outbox_messages
		SET status = $1, claimed_at = $2, processing_attempts = processing_attempts + 1
		WHERE id = $3
			AND (status = $4 OR (status = $1 AND (claimed_at IS NULL OR claimed_at < $5)))
	`

	result, err := r.q.ExecContext(ctx, query,
		models.OutboxStatusProcessing, models.GetCurrentTime(), id, models.OutboxStatusPending, r.staleBefore())

	if err != nil {
		r.logger.Error("Failed to mark outbox message as processing", "error", err, "messageID", id)
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rows, err := result.RowsAffected()

	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return rows == 1, nil
}

// MarkAsCompleted updates the status of an outbox message to completed
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, processed_at = $2, last_error = NULL
		WHERE id = $3
	`

	return r.exec(ctx, "completed", id, query, models.OutboxStatusCompleted, models.GetCurrentTime(), id)
}

// MarkForRetry returns a message to pending so the next poll picks it up again
func (r *OutboxRepository) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`

	return r.exec(ctx, "retry", id, query, models.OutboxStatusPending, errorMessage, id)
}

// MarkAsFailed updates the status of an outbox message to failed
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`

	return r.exec(ctx, "failed", id, query, models.OutboxStatusFailed, errorMessage, id)
}

func (r *OutboxRepository) exec(ctx context.Context, op string, id int64, query string, args ...interface{}) error {
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to update outbox message", "error", err, "messageID", id, "op", op)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetMessage retrieves an outbox message by ID
func (r *OutboxRepository) GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE id = $1`

	var message models.OutboxMessage

	err := r.q.GetContext(ctx, &message, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get outbox message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}

// ListByAggregate returns the events recorded for one aggregate, oldest first
func (r *OutboxRepository) ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*models.OutboxMessage, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY id
	`

	var messages []*models.OutboxMessage

	if err := r.q.SelectContext(ctx, &messages, query, aggregateType, aggregateID); err != nil {
		r.logger.Error("Failed to list outbox messages", "error", err, "aggregateID", aggregateID)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// CountByStatus returns how many messages are in each status
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	var rows []struct {
		Status models.OutboxStatus `db:"status"`
		Count  int                 `db:"count"`
	}

	if err := r.q.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM outbox_messages GROUP BY status`); err != nil {
		r.logger.Error("Failed to count outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	counts := make(map[models.OutboxStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}
