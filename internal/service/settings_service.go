package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/vaidashi/gallery-api/internal/cache"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/repository"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
	"github.com/vaidashi/gallery-api/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// SettingsCache is the read-through cache in front of the settings record
type SettingsCache interface {
	Get(ctx context.Context) (*models.SiteSettings, error)
	Set(ctx context.Context, settings *models.SiteSettings) error
	Invalidate(ctx context.Context) error
}

// SettingsService serves the site settings record: many readers, one admin writer
type SettingsService struct {
	repo   *repository.SettingsRepository
	cache  SettingsCache
	group  singleflight.Group
	logger logger.Logger
}

// NewSettingsService creates a SettingsService. A nil cache reads straight from the database.
func NewSettingsService(repo *repository.SettingsRepository, c SettingsCache, logger logger.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		cache:  c,
		logger: logger,
	}
}

// Get returns the current settings, collapsing concurrent cache misses into one database read
func (s *SettingsService) Get(ctx context.Context) (*models.SiteSettings, error) {
	if s.cache != nil {
		settings, err := s.cache.Get(ctx)
		if err == nil {
			return settings, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Settings cache read failed", "error", err)
		}
	}

	v, err, _ := s.group.Do("settings", func() (interface{}, error) {
		settings, err := s.repo.Get(ctx)
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			if err := s.cache.Set(ctx, settings); err != nil {
				s.logger.Warn("Settings cache write failed", "error", err)
			}
		}

		return settings, nil
	})

	if err != nil {
		return nil, translate(err, "settings")
	}

	copied := *v.(*models.SiteSettings)
	return &copied, nil
}

// Update replaces the settings record and drops the cached copy
func (s *SettingsService) Update(ctx context.Context, settings *models.SiteSettings) (*models.SiteSettings, error) {
	settings.GalleryName = strings.TrimSpace(settings.GalleryName)
	settings.ContactEmail = strings.TrimSpace(settings.ContactEmail)

	if settings.GalleryName == "" {
		return nil, apperrors.NewValidationError("gallery name is required")
	}

	if settings.ContactEmail != "" {
		if _, err := mail.ParseAddress(settings.ContactEmail); err != nil {
			return nil, apperrors.NewValidationError("contact email is invalid")
		}
	}

	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, translate(err, "settings")
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("Settings cache invalidation failed", "error", err)
		}
	}

	s.logger.Info("Site settings updated", "commissionsOpen", settings.CommissionsOpen)
	return settings, nil
}
