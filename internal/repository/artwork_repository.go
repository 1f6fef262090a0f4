package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

const artworkColumns = `id, title, slug, description, medium, dimensions, image_url, price,
	status, held_by_order_id, reserved_at, created_at, updated_at`

// ArtworkRepository is the catalog store. Status changes are only made by order operations.
type ArtworkRepository struct {
	q      database.Querier
	logger logger.Logger
}

// NewArtworkRepository creates a new ArtworkRepository
func NewArtworkRepository(db *database.Database, logger logger.Logger) *ArtworkRepository {
	return &ArtworkRepository{
		q:      db.DB,
		logger: logger,
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *ArtworkRepository) WithTx(tx *sqlx.Tx) *ArtworkRepository {
	return &ArtworkRepository{q: tx, logger: r.logger}
}

// Create inserts a new artwork
func (r *ArtworkRepository) Create(ctx context.Context, artwork *models.Artwork) error {
	query := `
		INSERT INTO artworks (id, title, slug, description, medium, dimensions, image_url, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.ExecContext(
		ctx,
		query,
		artwork.ID,
		artwork.Title,
		artwork.Slug,
		artwork.Description,
		artwork.Medium,
		artwork.Dimensions,
		artwork.ImageURL,
		artwork.Price,
		artwork.Status,
		artwork.CreatedAt,
		artwork.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to create artwork", "error", err, "artworkID", artwork.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves an artwork by its ID
func (r *ArtworkRepository) GetByID(ctx context.Context, id string) (*models.Artwork, error) {
	query := `SELECT ` + artworkColumns + ` FROM artworks WHERE id = $1`

	var artwork models.Artwork
	err := r.q.GetContext(ctx, &artwork, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get artwork by ID", "error", err, "artworkID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &artwork, nil
}

// List returns artworks, optionally filtered by status, newest first
func (r *ArtworkRepository) List(ctx context.Context, status models.ArtworkStatus, limit, offset int) ([]*models.Artwork, error) {
	query := `
		SELECT ` + artworkColumns + `
		FROM artworks
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var artworks []*models.Artwork
	err := r.q.SelectContext(ctx, &artworks, query, string(status), limit, offset)

	if err != nil {
		r.logger.Error("Failed to list artworks", "error", err, "status", status)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return artworks, nil
}

// LockAvailable selects the AVAILABLE artworks among ids and holds row locks on them
// until the surrounding transaction ends. Rows are locked in id order so that
// concurrent checkouts over overlapping carts cannot deadlock.
func (r *ArtworkRepository) LockAvailable(ctx context.Context, ids []string) ([]models.Artwork, error) {
	query := `
		SELECT ` + artworkColumns + `
		FROM artworks
		WHERE id = ANY($1) AND status = $2
		ORDER BY id
		FOR UPDATE
	`

	var artworks []models.Artwork
	err := r.q.SelectContext(ctx, &artworks, query, pq.Array(ids), models.ArtworkStatusAvailable)

	if err != nil {
		r.logger.Error("Failed to lock available artworks", "error", err, "count", len(ids))
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return artworks, nil
}

// Reserve moves AVAILABLE artworks to RESERVED for orderID and returns how many changed
func (r *ArtworkRepository) Reserve(ctx context.Context, ids []string, orderID string) (int64, error) {
	query := `
		UPDATE artworks
		SET status = $1, held_by_order_id = $2, reserved_at = $3, updated_at = $3
		WHERE id = ANY($4) AND status = $5
	`

	return r.exec(ctx, "reserve", query,
		models.ArtworkStatusReserved, orderID, models.GetCurrentTime(), pq.Array(ids), models.ArtworkStatusAvailable)
}

// ReleaseHeldBy returns the RESERVED artworks held by orderID to AVAILABLE.
// Artworks since re-reserved by another order are left alone.
func (r *ArtworkRepository) ReleaseHeldBy(ctx context.Context, orderID string, ids []string) (int64, error) {
	query := `
		UPDATE artworks
		SET status = $1, held_by_order_id = NULL, reserved_at = NULL, updated_at = $2
		WHERE id = ANY($3) AND held_by_order_id = $4 AND status = $5
	`

	return r.exec(ctx, "release", query,
		models.ArtworkStatusAvailable, models.GetCurrentTime(), pq.Array(ids), orderID, models.ArtworkStatusReserved)
}

// MarkSoldHeldBy moves the artworks held by orderID to SOLD. Only ids taken from the
// order's own line items are touched, and only while this order still holds them.
func (r *ArtworkRepository) MarkSoldHeldBy(ctx context.Context, orderID string, ids []string) (int64, error) {
	query := `
		UPDATE artworks
		SET status = $1, reserved_at = NULL, updated_at = $2
		WHERE id = ANY($3) AND held_by_order_id = $4 AND status IN ($5, $1)
	`

	return r.exec(ctx, "mark sold", query,
		models.ArtworkStatusSold, models.GetCurrentTime(), pq.Array(ids), orderID, models.ArtworkStatusReserved)
}

func (r *ArtworkRepository) exec(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	result, err := r.q.ExecContext(ctx, query, args...)

	if err != nil {
		r.logger.Error("Failed to update artworks", "error", err, "op", op)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rows, err := result.RowsAffected()

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return rows, nil
}
