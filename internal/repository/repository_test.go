package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/gallery-api/internal/database/dbtest"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

func newArtwork(t *testing.T, repo *ArtworkRepository, price string) *models.Artwork {
	t.Helper()

	now := models.GetCurrentTime()
	a := &models.Artwork{
		ID:        models.GenerateID(),
		Title:     "Untitled",
		Slug:      models.GenerateID(),
		Price:     decimal.RequireFromString(price),
		Status:    models.ArtworkStatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), a))

	return a
}

func TestArtworkRepository_ReservationLifecycle(t *testing.T) {
	db := dbtest.New(t)
	repo := NewArtworkRepository(db, logger.NewNop())
	ctx := context.Background()

	a := newArtwork(t, repo, "120")
	b := newArtwork(t, repo, "80")
	ids := []string{a.ID, b.ID}

	locked, err := repo.LockAvailable(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, locked, 2)

	n, err := repo.Reserve(ctx, []string{a.ID}, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	locked, err = repo.LockAvailable(ctx, ids)
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, b.ID, locked[0].ID)

	n, err = repo.Reserve(ctx, ids, "order-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "an already reserved artwork is not taken over")

	n, err = repo.ReleaseHeldBy(ctx, "order-2", ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	held, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArtworkStatusReserved, held.Status)
	require.NotNil(t, held.HeldByOrderID)
	assert.Equal(t, "order-1", *held.HeldByOrderID)

	n, err = repo.MarkSoldHeldBy(ctx, "order-2", ids)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.MarkSoldHeldBy(ctx, "order-1", ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.MarkSoldHeldBy(ctx, "order-1", ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "marking sold again is idempotent")

	sold, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArtworkStatusSold, sold.Status)

	_, err = repo.GetByID(ctx, models.GenerateID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWebhookEventRepository_RecordOnce(t *testing.T) {
	db := dbtest.New(t)
	repo := NewWebhookEventRepository(db, logger.NewNop())
	ctx := context.Background()

	fresh, err := repo.Record(ctx, "evt_1", models.EventPaymentSucceeded)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = repo.Record(ctx, "evt_1", models.EventPaymentSucceeded)
	require.NoError(t, err)
	assert.False(t, fresh)

	exists, err := repo.Exists(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWebhookEventRepository_RolledBackClaimIsReleased(t *testing.T) {
	db := dbtest.New(t)
	repo := NewWebhookEventRepository(db, logger.NewNop())
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		fresh, err := repo.WithTx(tx).Record(ctx, "evt_rollback", models.EventPaymentSucceeded)
		require.NoError(t, err)
		assert.True(t, fresh)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	exists, err := repo.Exists(ctx, "evt_rollback")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOutboxRepository_ClaimAndComplete(t *testing.T) {
	db := dbtest.New(t)
	repo := NewOutboxRepository(db, logger.NewNop())
	ctx := context.Background()

	msg, err := models.NewOutboxEvent(models.AggregateOrder, "order-1", models.EventOrderCreated, map[string]string{"orderId": "order-1"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, msg))

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	claimed, err := repo.MarkAsProcessing(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.MarkAsProcessing(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "a second worker cannot claim the same message")

	require.NoError(t, repo.MarkAsCompleted(ctx, msg.ID))

	stored, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.ProcessingAttempts)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.OutboxStatusCompleted])
}

func TestOutboxRepository_ReclaimsExpiredProcessingLease(t *testing.T) {
	db := dbtest.New(t)
	repo := NewOutboxRepository(db, logger.NewNop())
	repo.SetLease(time.Minute)
	ctx := context.Background()

	msg, err := models.NewOutboxEvent(models.AggregateOrder, "order-1", models.EventOrderPaid, map[string]string{"orderId": "order-1"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, msg))

	claimed, err := repo.MarkAsProcessing(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "a live claim is not handed out again")

	_, err = db.DB.ExecContext(ctx, `UPDATE outbox_messages SET claimed_at = $1 WHERE id = $2`,
		models.GetCurrentTime().Add(-2*time.Minute), msg.ID)
	require.NoError(t, err)

	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, msg.ID, pending[0].ID)

	claimed, err = repo.MarkAsProcessing(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.MarkAsProcessing(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	stored, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ProcessingAttempts)
	require.NotNil(t, stored.ClaimedAt)
}

func TestNotificationRepository_ReadFlags(t *testing.T) {
	db := dbtest.New(t)
	repo := NewNotificationRepository(db, logger.NewNop())
	ctx := context.Background()

	first := models.NewNotification(models.NotificationNewOrder, "New order", "/admin/orders/1")
	second := models.NewNotification(models.NotificationNewCommission, "New commission", "/admin/commissions/1")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	unread, err := repo.CountUnread(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	require.NoError(t, repo.MarkRead(ctx, first.ID))
	assert.ErrorIs(t, repo.MarkRead(ctx, models.GenerateID()), ErrNotFound)

	list, err := repo.List(ctx, true, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	n, err := repo.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCustomerRepository_FindOrCreateIsCaseInsensitive(t *testing.T) {
	db := dbtest.New(t)
	repo := NewCustomerRepository(db, logger.NewNop())
	ctx := context.Background()

	first, err := repo.FindOrCreate(ctx, models.NewGuestCustomer(models.CustomerDetails{
		FirstName: "Ada", LastName: "Lovelace", Email: "Ada@Example.com",
	}))
	require.NoError(t, err)

	second, err := repo.FindOrCreate(ctx, models.NewGuestCustomer(models.CustomerDetails{
		FirstName: "Someone", LastName: "Else", Email: "ada@example.com",
	}))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ada", second.FirstName)

	byEmail, err := repo.GetByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byEmail.ID)
}
