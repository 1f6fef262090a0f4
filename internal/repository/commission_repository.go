package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

const commissionColumns = `m.id, m.commission_number, m.customer_id, m.style, m.size, m.description, m.deadline,
	m.status, m.estimated_price, m.final_price, m.payment_status, m.deposit_amount, m.payment_intent_id,
	m.started_at, m.completed_at, m.created_at, m.updated_at`

// CommissionRepository handles database operations for commissions, their images and notes
type CommissionRepository struct {
	q      database.Querier
	logger logger.Logger
}

// NewCommissionRepository creates a new CommissionRepository
func NewCommissionRepository(db *database.Database, logger logger.Logger) *CommissionRepository {
	return &CommissionRepository{
		q:      db.DB,
		logger: logger,
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *CommissionRepository) WithTx(tx *sqlx.Tx) *CommissionRepository {
	return &CommissionRepository{q: tx, logger: r.logger}
}

// Create inserts a commission
func (r *CommissionRepository) Create(ctx context.Context, c *models.Commission) error {
	query := `
		INSERT INTO commissions (
			id, commission_number, customer_id, style, size, description, deadline, status,
			estimated_price, final_price, payment_status, deposit_amount, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.q.ExecContext(
		ctx,
		query,
		c.ID,
		c.CommissionNumber,
		c.CustomerID,
		c.Style,
		c.Size,
		c.Description,
		c.Deadline,
		c.Status,
		c.EstimatedPrice,
		c.FinalPrice,
		c.PaymentStatus,
		c.DepositAmount,
		c.CreatedAt,
		c.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to create commission", "error", err, "commissionID", c.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves a commission with its images and notes
func (r *CommissionRepository) GetByID(ctx context.Context, id string) (*models.Commission, error) {
	return r.get(ctx, `SELECT `+commissionColumns+` FROM commissions m WHERE m.id = $1`, id)
}

// GetByIDForUpdate retrieves a commission and locks its row
func (r *CommissionRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Commission, error) {
	return r.get(ctx, `SELECT `+commissionColumns+` FROM commissions m WHERE m.id = $1 FOR UPDATE`, id)
}

func (r *CommissionRepository) get(ctx context.Context, query, id string) (*models.Commission, error) {
	var c models.Commission
	err := r.q.GetContext(ctx, &c, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get commission by ID", "error", err, "commissionID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := r.attachTimeline(ctx, &c); err != nil {
		return nil, err
	}

	return &c, nil
}

func (r *CommissionRepository) attachTimeline(ctx context.Context, c *models.Commission) error {
	imageQuery := `
		SELECT id, commission_id, kind, url, public_id, description, position, created_at
		FROM commission_images
		WHERE commission_id = $1
		ORDER BY kind, position
	`

	var images []models.CommissionImage
	if err := r.q.SelectContext(ctx, &images, imageQuery, c.ID); err != nil {
		r.logger.Error("Failed to load commission images", "error", err, "commissionID", c.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	c.ReferenceImages = []models.CommissionImage{}
	c.ProgressImages = []models.CommissionImage{}
	for _, img := range images {
		if img.Kind == models.ImageKindReference {
			c.ReferenceImages = append(c.ReferenceImages, img)
		} else {
			c.ProgressImages = append(c.ProgressImages, img)
		}
	}

	noteQuery := `
		SELECT id, commission_id, body, is_system, created_at
		FROM commission_notes
		WHERE commission_id = $1
		ORDER BY created_at, id
	`

	c.Notes = []models.CommissionNote{}
	if err := r.q.SelectContext(ctx, &c.Notes, noteQuery, c.ID); err != nil {
		r.logger.Error("Failed to load commission notes", "error", err, "commissionID", c.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// List returns a page of commissions matching filter and the total match count.
// Timelines are not loaded for list results.
func (r *CommissionRepository) List(ctx context.Context, filter models.CommissionFilter) ([]*models.Commission, int, error) {
	filter.Normalize()

	where := `
		FROM commissions m
		JOIN customers c ON c.id = m.customer_id
		WHERE ($1::text = '' OR m.status = $1)
		  AND ($2::text = '' OR c.email = $2)
	`
	email := models.NormalizeEmail(filter.CustomerEmail)

	var total int
	if err := r.q.GetContext(ctx, &total, `SELECT COUNT(*) `+where, string(filter.Status), email); err != nil {
		r.logger.Error("Failed to count commissions", "error", err)
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	query := `SELECT ` + commissionColumns + where + ` ORDER BY m.created_at DESC LIMIT $3 OFFSET $4`

	var commissions []*models.Commission
	err := r.q.SelectContext(ctx, &commissions, query, string(filter.Status), email, filter.Limit, (filter.Page-1)*filter.Limit)

	if err != nil {
		r.logger.Error("Failed to list commissions", "error", err, "status", filter.Status)
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return commissions, total, nil
}

// Update writes status, pricing, payment and lifecycle timestamps
func (r *CommissionRepository) Update(ctx context.Context, c *models.Commission) error {
	query := `
		UPDATE commissions
		SET status = $1, final_price = $2, payment_status = $3, deposit_amount = $4,
			payment_intent_id = $5, started_at = $6, completed_at = $7, updated_at = $8
		WHERE id = $9
	`

	c.UpdatedAt = models.GetCurrentTime()

	result, err := r.q.ExecContext(
		ctx,
		query,
		c.Status,
		c.FinalPrice,
		c.PaymentStatus,
		c.DepositAmount,
		c.PaymentIntentID,
		c.StartedAt,
		c.CompletedAt,
		c.UpdatedAt,
		c.ID,
	)

	if err != nil {
		r.logger.Error("Failed to update commission", "error", err, "commissionID", c.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return requireAffected(result)
}

// AddImage appends an image at the next position for its kind
func (r *CommissionRepository) AddImage(ctx context.Context, img *models.CommissionImage) error {
	query := `
		INSERT INTO commission_images (id, commission_id, kind, url, public_id, description, position, created_at)
		SELECT $1, $2, $3, $4, $5, $6, COALESCE(MAX(position) + 1, 0), $7::timestamptz
		FROM commission_images
		WHERE commission_id = $2 AND kind = $3
		RETURNING position
	`

	err := r.q.QueryRowxContext(
		ctx,
		query,
		img.ID,
		img.CommissionID,
		img.Kind,
		img.URL,
		img.PublicID,
		img.Description,
		img.CreatedAt,
	).Scan(&img.Position)

	if err != nil {
		r.logger.Error("Failed to add commission image", "error", err, "commissionID", img.CommissionID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// AddNote appends a timeline entry
func (r *CommissionRepository) AddNote(ctx context.Context, note *models.CommissionNote) error {
	query := `
		INSERT INTO commission_notes (id, commission_id, body, is_system, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.ExecContext(ctx, query, note.ID, note.CommissionID, note.Body, note.IsSystem, note.CreatedAt)

	if err != nil {
		r.logger.Error("Failed to add commission note", "error", err, "commissionID", note.CommissionID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// SetPaymentIntent records the latest gateway intent created for a commission
func (r *CommissionRepository) SetPaymentIntent(ctx context.Context, id, intentID string) error {
	query := `UPDATE commissions SET payment_intent_id = $1, updated_at = $2 WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, intentID, models.GetCurrentTime(), id)

	if err != nil {
		r.logger.Error("Failed to set commission payment intent", "error", err, "commissionID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return requireAffected(result)
}
