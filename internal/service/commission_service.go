package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/media"
	"github.com/vaidashi/gallery-api/internal/metrics"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/repository"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
	"github.com/vaidashi/gallery-api/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxReferenceImages caps the reference files accepted with one request
	MaxReferenceImages = 10
	uploadConcurrency  = 3
)

// ImageFile is an uploaded file waiting to be sent to the image host
type ImageFile struct {
	Filename string
	Content  io.Reader
}

// CreateCommissionInput is a commission request submission
type CreateCommissionInput struct {
	Identity       *auth.Identity
	Customer       models.CustomerDetails
	Style          string
	Size           string
	Description    string
	Deadline       *time.Time
	ReferenceFiles []ImageFile
}

// UpdateCommissionStatusInput is an admin status change with optional price and note
type UpdateCommissionStatusInput struct {
	Status     models.CommissionStatus
	FinalPrice *decimal.Decimal
	Note       string
}

// SettingsReader is the part of the settings service commissions depend on
type SettingsReader interface {
	Get(ctx context.Context) (*models.SiteSettings, error)
}

// CommissionService handles commission requests, the admin workflow and commission payments
type CommissionService struct {
	db        *database.Database
	repos     *repository.Repositories
	images    media.ImageHost
	settings  SettingsReader
	metrics   *metrics.Metrics
	newNumber func(prefix string, at time.Time) string
	logger    logger.Logger
}

// NewCommissionService creates a new CommissionService
func NewCommissionService(
	db *database.Database,
	repos *repository.Repositories,
	images media.ImageHost,
	settings SettingsReader,
	m *metrics.Metrics,
	logger logger.Logger,
) *CommissionService {
	return &CommissionService{
		db:        db,
		repos:     repos,
		images:    images,
		settings:  settings,
		metrics:   m,
		newNumber: models.GenerateNumber,
		logger:    logger,
	}
}

func (in *CreateCommissionInput) validate() (decimal.Decimal, error) {
	if in.Identity == nil {
		if err := validateCustomerDetails(in.Customer); err != nil {
			return decimal.Zero, err
		}
	}

	in.Style = strings.ToLower(strings.TrimSpace(in.Style))
	in.Size = strings.ToLower(strings.TrimSpace(in.Size))

	estimate, err := models.EstimateCommissionPrice(in.Style, in.Size)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError(err.Error())
	}

	if strings.TrimSpace(in.Description) == "" {
		return decimal.Zero, apperrors.NewValidationError("description is required")
	}

	if in.Deadline != nil && in.Deadline.Before(models.GetCurrentTime()) {
		return decimal.Zero, apperrors.NewValidationError("deadline must be in the future")
	}

	if len(in.ReferenceFiles) > MaxReferenceImages {
		return decimal.Zero, apperrors.NewValidationError(fmt.Sprintf("at most %d reference images are accepted", MaxReferenceImages))
	}

	return estimate, nil
}

// CreateCommission uploads the reference images, prices the request from the fixed table
// and stores it as PENDING together with its first timeline entry.
func (s *CommissionService) CreateCommission(ctx context.Context, in CreateCommissionInput) (*models.Commission, error) {
	estimate, err := in.validate()
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.CommissionsOpen {
		return nil, apperrors.NewConflictError("commissions are currently closed")
	}

	uploaded, err := s.uploadAll(ctx, in.ReferenceFiles)
	if err != nil {
		return nil, err
	}

	now := models.GetCurrentTime()
	commission := &models.Commission{
		ID:              models.GenerateID(),
		Style:           in.Style,
		Size:            in.Size,
		Description:     strings.TrimSpace(in.Description),
		Deadline:        in.Deadline,
		Status:          models.CommissionStatusPending,
		EstimatedPrice:  estimate,
		PaymentStatus:   models.PaymentStatusUnpaid,
		DepositAmount:   decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
		ReferenceImages: []models.CommissionImage{},
		ProgressImages:  []models.CommissionImage{},
	}

	err = retryNumber(func() error {
		return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.storeCommission(ctx, s.repos.WithTx(tx), in, commission, uploaded)
		})
	})

	if err != nil {
		if len(uploaded) > 0 {
			s.logger.Warn("Commission not saved, uploaded reference images are orphaned", "count", len(uploaded))
		}
		return nil, translate(err, "commission")
	}

	s.metrics.CommissionsOpened.Inc()
	s.logger.Info("Commission created", "commissionID", commission.ID, "commissionNumber", commission.CommissionNumber,
		"estimate", estimate.String())

	return commission, nil
}

// storeCommission is the CreateCommission transaction body
func (s *CommissionService) storeCommission(ctx context.Context, repos *repository.Repositories, in CreateCommissionInput, commission *models.Commission, uploaded []*media.UploadedImage) error {
	customer, err := resolveBuyer(ctx, repos, in.Identity, in.Customer)
	if err != nil {
		return err
	}
	commission.CustomerID = customer.ID
	commission.Customer = customer
	commission.CommissionNumber = s.newNumber(models.CommissionNumberPrefix, commission.CreatedAt)
	commission.ReferenceImages = []models.CommissionImage{}

	if err := repos.Commissions.Create(ctx, commission); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Warn("Commission number collision, regenerating", "commissionNumber", commission.CommissionNumber)
			return errNumberTaken
		}
		return err
	}

	for _, img := range uploaded {
		image := models.CommissionImage{
			ID:           models.GenerateID(),
			CommissionID: commission.ID,
			Kind:         models.ImageKindReference,
			URL:          img.URL,
			PublicID:     img.PublicID,
			CreatedAt:    commission.CreatedAt,
		}
		if err := repos.Commissions.AddImage(ctx, &image); err != nil {
			return err
		}
		commission.ReferenceImages = append(commission.ReferenceImages, image)
	}

	note := models.NewCommissionNote(commission.ID, "Commission request submitted", true)
	if err := repos.Commissions.AddNote(ctx, note); err != nil {
		return err
	}
	commission.Notes = []models.CommissionNote{*note}

	if err := repos.Notifications.Create(ctx, models.NewNotification(
		models.NotificationNewCommission,
		fmt.Sprintf("New %s %s commission %s from %s", in.Size, in.Style, commission.CommissionNumber, customer.FullName()),
		"/admin/commissions/"+commission.ID,
	)); err != nil {
		return err
	}

	event, err := models.NewCommissionEvent(models.EventCommissionCreated, models.NewCommissionEventData(commission, customer))
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	return repos.Outbox.Create(ctx, event)
}

// uploadAll sends files to the image host in parallel and returns the results in input order
func (s *CommissionService) uploadAll(ctx context.Context, files []ImageFile) ([]*media.UploadedImage, error) {
	results := make([]*media.UploadedImage, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			img, err := s.images.Upload(gctx, f.Filename, f.Content)
			if err != nil {
				return err
			}
			results[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, apperrors.NewTemporaryError("image upload failed, please try again")
	}

	return results, nil
}

// UpdateStatus applies an admin status change. IN_PROGRESS stamps startedAt once and COMPLETED
// stamps completedAt. A final price replaces the estimate as the price charged.
func (s *CommissionService) UpdateStatus(ctx context.Context, id string, in UpdateCommissionStatusInput) (*models.Commission, error) {
	if !in.Status.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid status %q", in.Status))
	}

	if in.FinalPrice != nil && !in.FinalPrice.IsPositive() {
		return nil, apperrors.NewValidationError("final price must be positive")
	}

	if !validID(id) {
		return nil, apperrors.NewNotFoundError("commission not found")
	}

	var commission *models.Commission

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repos := s.repos.WithTx(tx)

		c, err := repos.Commissions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		oldStatus := c.Status
		changed := in.Status != oldStatus

		if changed && !oldStatus.CanTransitionTo(in.Status) {
			return apperrors.NewConflictError(fmt.Sprintf("cannot move commission from %s to %s", oldStatus, in.Status))
		}

		now := models.GetCurrentTime()
		c.Status = in.Status

		if changed && in.Status == models.CommissionStatusInProgress && c.StartedAt == nil {
			c.StartedAt = &now
		}
		if changed && in.Status == models.CommissionStatusCompleted {
			c.CompletedAt = &now
		}
		if in.FinalPrice != nil {
			c.FinalPrice = decimal.NewNullDecimal(in.FinalPrice.Round(2))
		}

		if err := repos.Commissions.Update(ctx, c); err != nil {
			return err
		}

		if changed {
			body := fmt.Sprintf("Status changed from %s to %s", oldStatus, in.Status)
			if err := repos.Commissions.AddNote(ctx, models.NewCommissionNote(c.ID, body, true)); err != nil {
				return err
			}
		}

		if note := strings.TrimSpace(in.Note); note != "" {
			if err := repos.Commissions.AddNote(ctx, models.NewCommissionNote(c.ID, note, false)); err != nil {
				return err
			}
		}

		if changed {
			customer, err := repos.Customers.GetByID(ctx, c.CustomerID)
			if err != nil {
				return err
			}

			data := models.NewCommissionEventData(c, customer)
			data.OldStatus = oldStatus

			eventType := models.EventCommissionStatusChanged
			if in.Status == models.CommissionStatusAccepted {
				eventType = models.EventCommissionAccepted
			}

			event, err := models.NewCommissionEvent(eventType, data)
			if err != nil {
				return fmt.Errorf("failed to create outbox message: %w", err)
			}

			if err := repos.Outbox.Create(ctx, event); err != nil {
				return err
			}
		}

		commission, err = repos.Commissions.GetByID(ctx, c.ID)
		return err
	})

	if err != nil {
		return nil, translate(err, "commission")
	}

	s.logger.Info("Commission updated", "commissionID", commission.ID, "status", commission.Status)
	return commission, nil
}

// AddProgressImage uploads a work-in-progress image, appends it to the timeline and
// queues the customer email that carries it.
func (s *CommissionService) AddProgressImage(ctx context.Context, id string, file ImageFile, description string) (*models.CommissionImage, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFoundError("commission not found")
	}

	if _, err := s.repos.Commissions.GetByID(ctx, id); err != nil {
		return nil, translate(err, "commission")
	}

	uploaded, err := s.images.Upload(ctx, file.Filename, file.Content)
	if err != nil {
		return nil, apperrors.NewTemporaryError("image upload failed, please try again")
	}

	image := &models.CommissionImage{
		ID:           models.GenerateID(),
		CommissionID: id,
		Kind:         models.ImageKindProgress,
		URL:          uploaded.URL,
		PublicID:     uploaded.PublicID,
		Description:  strings.TrimSpace(description),
		CreatedAt:    models.GetCurrentTime(),
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repos := s.repos.WithTx(tx)

		c, err := repos.Commissions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if err := repos.Commissions.AddImage(ctx, image); err != nil {
			return err
		}

		customer, err := repos.Customers.GetByID(ctx, c.CustomerID)
		if err != nil {
			return err
		}

		data := models.NewCommissionEventData(c, customer)
		data.ImageURL = image.URL
		data.ImageDescription = image.Description

		event, err := models.NewCommissionEvent(models.EventCommissionProgress, data)
		if err != nil {
			return fmt.Errorf("failed to create outbox message: %w", err)
		}

		return repos.Outbox.Create(ctx, event)
	})

	if err != nil {
		return nil, translate(err, "commission")
	}

	s.logger.Info("Progress image added", "commissionID", id, "position", image.Position)
	return image, nil
}

// GetCommission returns one commission with its timeline
func (s *CommissionService) GetCommission(ctx context.Context, id string) (*models.Commission, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFoundError("commission not found")
	}

	c, err := s.repos.Commissions.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "commission")
	}

	if c.Customer, err = s.repos.Customers.GetByID(ctx, c.CustomerID); err != nil {
		return nil, translate(err, "customer")
	}

	return c, nil
}

// ListCommissions returns a page of commissions for the admin console
func (s *CommissionService) ListCommissions(ctx context.Context, filter models.CommissionFilter) ([]*models.Commission, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperrors.NewValidationError(fmt.Sprintf("invalid status %q", filter.Status))
	}

	commissions, total, err := s.repos.Commissions.List(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "commissions")
	}

	return commissions, total, nil
}

// ListCustomerCommissions returns the caller's own commissions
func (s *CommissionService) ListCustomerCommissions(ctx context.Context, identity *auth.Identity, page, limit int) ([]*models.Commission, int, error) {
	if identity == nil {
		return nil, 0, apperrors.NewUnauthorizedError("sign in to view your commissions")
	}

	return s.ListCommissions(ctx, models.CommissionFilter{
		CustomerEmail: identity.Email,
		Page:          page,
		Limit:         limit,
	})
}

// HandlePaymentSucceeded applies a commission payment. A deposit moves UNPAID to DEPOSIT_PAID and
// records the amount received; a full payment moves to FULLY_PAID. Payment status never moves back.
func (s *CommissionService) HandlePaymentSucceeded(ctx context.Context, event *models.PaymentEvent) error {
	commissionID := event.Metadata[models.MetadataCommissionID]
	paymentType := models.PaymentType(event.Metadata[models.MetadataPaymentType])

	if !validID(commissionID) {
		return apperrors.NewNotFoundError(fmt.Sprintf("commission %q from payment metadata not found", commissionID))
	}

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repos := s.repos.WithTx(tx)

		fresh, err := repos.WebhookEvents.Record(ctx, event.EventID, event.Type)
		if err != nil {
			return err
		}
		if !fresh {
			s.logger.Info("Skipping already processed payment event", "eventID", event.EventID, "commissionID", commissionID)
			return nil
		}

		if !paymentType.Valid() {
			s.logger.Warn("Commission payment without a known payment type", "eventID", event.EventID,
				"commissionID", commissionID, "paymentType", paymentType)
			return nil
		}

		c, err := repos.Commissions.GetByIDForUpdate(ctx, commissionID)
		if err != nil {
			return translate(err, "commission")
		}

		target := models.PaymentStatusFullyPaid
		if paymentType == models.PaymentTypeDeposit {
			target = models.PaymentStatusDepositPaid
		}

		if !c.PaymentStatus.Before(target) {
			if !secondCharge(c.PaymentIntentID, event.IntentID) {
				s.logger.Info("Commission payment already applied", "eventID", event.EventID,
					"commissionID", c.ID, "paymentStatus", c.PaymentStatus, "paymentType", paymentType)
				return nil
			}

			s.logger.Warn("Second payment received for commission", "eventID", event.EventID,
				"commissionID", c.ID, "intentID", event.IntentID, "paymentType", paymentType)

			return repos.Notifications.Create(ctx, models.NewNotification(
				models.NotificationRefundRequired,
				fmt.Sprintf("Second %s payment %s received for commission %s, a refund is required",
					paymentType, event.IntentID, c.CommissionNumber),
				"/admin/commissions/"+c.ID,
			))
		}

		received := models.FromMinorUnits(event.AmountReceived)
		c.PaymentStatus = target
		if paymentType == models.PaymentTypeDeposit {
			c.DepositAmount = received
		}
		if event.IntentID != "" {
			c.PaymentIntentID = &event.IntentID
		}

		if err := repos.Commissions.Update(ctx, c); err != nil {
			return err
		}

		if c.Status == models.CommissionStatusCancelled {
			s.logger.Warn("Payment received for cancelled commission", "eventID", event.EventID,
				"commissionID", c.ID, "paymentType", paymentType)

			return repos.Notifications.Create(ctx, models.NewNotification(
				models.NotificationRefundRequired,
				fmt.Sprintf("Payment of %s received for cancelled commission %s, a refund is required",
					received.StringFixed(2), c.CommissionNumber),
				"/admin/commissions/"+c.ID,
			))
		}

		body := fmt.Sprintf("Payment in full of %s received", received.StringFixed(2))
		if paymentType == models.PaymentTypeDeposit {
			body = fmt.Sprintf("Deposit of %s received", received.StringFixed(2))
		}
		if err := repos.Commissions.AddNote(ctx, models.NewCommissionNote(c.ID, body, true)); err != nil {
			return err
		}

		if err := repos.Notifications.Create(ctx, models.NewNotification(
			models.NotificationPaymentReceived,
			fmt.Sprintf("%s for commission %s", body, c.CommissionNumber),
			"/admin/commissions/"+c.ID,
		)); err != nil {
			return err
		}

		customer, err := repos.Customers.GetByID(ctx, c.CustomerID)
		if err != nil {
			return err
		}

		data := models.NewCommissionEventData(c, customer)
		data.PaymentType = paymentType
		data.AmountPaid = received

		paid, err := models.NewCommissionEvent(models.EventCommissionPaid, data)
		if err != nil {
			return fmt.Errorf("failed to create outbox message: %w", err)
		}

		if err := repos.Outbox.Create(ctx, paid); err != nil {
			return err
		}

		s.logger.Info("Commission payment reconciled", "eventID", event.EventID, "commissionID", c.ID,
			"paymentType", paymentType, "paymentStatus", c.PaymentStatus)
		return nil
	})
}

// HandlePaymentFailed records the event and logs it
func (s *CommissionService) HandlePaymentFailed(ctx context.Context, event *models.PaymentEvent) error {
	return recordFailedPayment(ctx, s.db, s.repos, event, s.logger)
}
