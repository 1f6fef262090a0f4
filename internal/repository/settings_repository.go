package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// SettingsRepository persists the single site settings record
type SettingsRepository struct {
	q      database.Querier
	logger logger.Logger
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(db *database.Database, logger logger.Logger) *SettingsRepository {
	return &SettingsRepository{
		q:      db.DB,
		logger: logger,
	}
}

// Get returns the stored settings, or the defaults when nothing has been saved yet
func (r *SettingsRepository) Get(ctx context.Context) (*models.SiteSettings, error) {
	var row struct {
		Data      []byte    `db:"data"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	err := r.q.GetContext(ctx, &row, `SELECT data, updated_at FROM site_settings WHERE id = 1`)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			defaults := models.DefaultSiteSettings()
			return &defaults, nil
		}
		r.logger.Error("Failed to get site settings", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	settings := models.DefaultSiteSettings()
	if err := json.Unmarshal(row.Data, &settings); err != nil {
		return nil, fmt.Errorf("%w: decode settings: %v", ErrDatabase, err)
	}
	settings.UpdatedAt = row.UpdatedAt

	return &settings, nil
}

// Save replaces the settings record
func (r *SettingsRepository) Save(ctx context.Context, settings *models.SiteSettings) error {
	settings.UpdatedAt = models.GetCurrentTime()

	data, err := json.Marshal(settings)

	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	query := `
		INSERT INTO site_settings (id, data, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.q.ExecContext(ctx, query, data, settings.UpdatedAt); err != nil {
		r.logger.Error("Failed to save site settings", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}
