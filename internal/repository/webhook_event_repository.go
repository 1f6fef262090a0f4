package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// WebhookEventRepository is the ledger of gateway events that have been applied
type WebhookEventRepository struct {
	q      database.Querier
	logger logger.Logger
}

// NewWebhookEventRepository creates a new WebhookEventRepository
func NewWebhookEventRepository(db *database.Database, logger logger.Logger) *WebhookEventRepository {
	return &WebhookEventRepository{
		q:      db.DB,
		logger: logger,
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *WebhookEventRepository) WithTx(tx *sqlx.Tx) *WebhookEventRepository {
	return &WebhookEventRepository{q: tx, logger: r.logger}
}

// Record claims eventID. It returns false when the event was already recorded.
// Inside a transaction the claim is released again if the transaction rolls back.
func (r *WebhookEventRepository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `
		INSERT INTO processed_webhook_events (event_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query, eventID, eventType, models.GetCurrentTime())

	if err != nil {
		r.logger.Error("Failed to record webhook event", "error", err, "eventID", eventID)
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rows, err := result.RowsAffected()

	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return rows == 1, nil
}

// Exists reports whether eventID has been recorded
func (r *WebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool

	err := r.q.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM processed_webhook_events WHERE event_id = $1)`, eventID)

	if err != nil {
		r.logger.Error("Failed to look up webhook event", "error", err, "eventID", eventID)
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return exists, nil
}
