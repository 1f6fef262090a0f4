package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/gallery-api/internal/models"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
)

func TestWebhook_OrderPaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedArtwork(t, "Harbour at Dusk", "2500")
	b := f.seedArtwork(t, "Quiet Orchard", "1800")
	order, err := f.orders.CreateOrder(ctx, guestOrder(a.ID, b.ID))
	require.NoError(t, err)

	event := paidEvent("evt_1", order.ID)
	require.NoError(t, f.deliver(t, event))
	require.NoError(t, f.deliver(t, event))

	paid, err := f.repos.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFullyPaid, paid.PaymentStatus)
	assert.Equal(t, models.OrderStatusConfirmed, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	assert.Equal(t, models.ArtworkStatusSold, f.artworkStatus(t, a.ID))
	assert.Equal(t, models.ArtworkStatusSold, f.artworkStatus(t, b.ID))
	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderPaid}, f.outboxEvents(t, models.AggregateOrder, order.ID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM processed_webhook_events`))
}

func TestWebhook_SecondEventForPaidOrderIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, guestOrder(f.seedArtwork(t, "Piece", "40").ID))
	require.NoError(t, err)

	require.NoError(t, f.deliver(t, paidEvent("evt_1", order.ID)))
	require.NoError(t, f.deliver(t, paidEvent("evt_2", order.ID)))

	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderPaid}, f.outboxEvents(t, models.AggregateOrder, order.ID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE type = 'payment_received'`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM notifications WHERE type = 'refund_required'`))
}

func TestWebhook_SecondIntentForPaidOrderRaisesRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, guestOrder(f.seedArtwork(t, "Piece", "40").ID))
	require.NoError(t, err)

	require.NoError(t, f.deliver(t, paidEvent("evt_1", order.ID)))

	second := paidEvent("evt_2", order.ID)
	second.IntentID = "pi_second_tab"
	require.NoError(t, f.deliver(t, second))

	stored, err := f.repos.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFullyPaid, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentIntentID)
	assert.Equal(t, "pi_test", *stored.PaymentIntentID)

	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderPaid}, f.outboxEvents(t, models.AggregateOrder, order.ID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE type = 'payment_received'`))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE type = 'refund_required'`))
}

func TestWebhook_BadSignatureMutatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedArtwork(t, "Guarded", "10")
	order, err := f.orders.CreateOrder(ctx, guestOrder(a.ID))
	require.NoError(t, err)

	err = f.payments.HandleWebhook(ctx, []byte(`{"EventID":"evt_1"}`), "t=1,v1=forged")
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureInvalid))

	stored, err := f.repos.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusUnpaid, stored.PaymentStatus)
	assert.Equal(t, models.ArtworkStatusReserved, f.artworkStatus(t, a.ID))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM processed_webhook_events`))
}

func TestWebhook_CancelledOrderDoesNotSellReReservedArtwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedArtwork(t, "Contested", "700")
	first, err := f.orders.CreateOrder(ctx, guestOrder(a.ID))
	require.NoError(t, err)

	cancelled := models.OrderStatusCancelled
	_, err = f.orders.UpdateOrderStatus(ctx, first.ID, UpdateOrderStatusInput{Status: &cancelled})
	require.NoError(t, err)

	secondIn := guestOrder(a.ID)
	secondIn.Customer.Email = "grace@example.com"
	second, err := f.orders.CreateOrder(ctx, secondIn)
	require.NoError(t, err)

	require.NoError(t, f.deliver(t, paidEvent("evt_late", first.ID)))

	stale, err := f.repos.Orders.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stale.Status)
	assert.Equal(t, models.PaymentStatusFullyPaid, stale.PaymentStatus)

	artwork, err := f.repos.Artworks.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArtworkStatusReserved, artwork.Status)
	require.NotNil(t, artwork.HeldByOrderID)
	assert.Equal(t, second.ID, *artwork.HeldByOrderID)

	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE type = 'refund_required'`))
}

func TestWebhook_UnknownOrderIsRetried(t *testing.T) {
	f := newFixture(t)

	err := f.deliver(t, paidEvent("evt_missing", models.GenerateID()))
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM processed_webhook_events`))
}

func TestWebhook_FailedPaymentKeepsReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedArtwork(t, "Declined", "10")
	order, err := f.orders.CreateOrder(ctx, guestOrder(a.ID))
	require.NoError(t, err)

	event := paidEvent("evt_fail", order.ID)
	event.Type = models.EventPaymentFailed
	require.NoError(t, f.deliver(t, event))

	assert.Equal(t, models.ArtworkStatusReserved, f.artworkStatus(t, a.ID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM processed_webhook_events WHERE event_id = 'evt_fail'`))
}

func TestWebhook_IgnoresOtherEventTypes(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.deliver(t, models.PaymentEvent{EventID: "evt_x", Type: "charge.refunded"}))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM processed_webhook_events`))
}

func TestCreateOrderIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, guestOrder(f.seedArtwork(t, "A", "2500").ID, f.seedArtwork(t, "B", "1800.50").ID))
	require.NoError(t, err)

	result, err := f.payments.CreateOrderIntent(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", result.ClientSecret)
	assert.Equal(t, "4300.5", result.Amount.String())

	intent := f.gateway.last()
	assert.Equal(t, int64(430050), intent.Amount)
	assert.Equal(t, order.ID, intent.Metadata[models.MetadataOrderID])
	assert.Equal(t, models.KindOrder, intent.Metadata[models.MetadataKind])

	stored, err := f.repos.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentIntentID)
	assert.Equal(t, "pi_1", *stored.PaymentIntentID)

	require.NoError(t, f.deliver(t, paidEvent("evt_1", order.ID)))
	_, err = f.payments.CreateOrderIntent(ctx, order.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestCreateOrderIntent_ReusesOpenIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, guestOrder(f.seedArtwork(t, "A", "90").ID))
	require.NoError(t, err)

	first, err := f.payments.CreateOrderIntent(ctx, order.ID)
	require.NoError(t, err)
	second, err := f.payments.CreateOrderIntent(ctx, order.ID)
	require.NoError(t, err)

	assert.Equal(t, first.IntentID, second.IntentID)
	assert.Equal(t, first.ClientSecret, second.ClientSecret)
	assert.Len(t, f.gateway.intents, 1)
	assert.Empty(t, f.gateway.cancelled)
}

func TestCreateOrderIntent_ReplacesSettledIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, guestOrder(f.seedArtwork(t, "A", "90").ID))
	require.NoError(t, err)

	first, err := f.payments.CreateOrderIntent(ctx, order.ID)
	require.NoError(t, err)
	f.gateway.settle(first.IntentID)

	second, err := f.payments.CreateOrderIntent(ctx, order.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.IntentID, second.IntentID)
	assert.Empty(t, f.gateway.cancelled)

	stored, err := f.repos.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentIntentID)
	assert.Equal(t, second.IntentID, *stored.PaymentIntentID)
}

func TestCreateCommissionIntent_CancelsIntentForOtherPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.commissions.CreateCommission(ctx, commissionRequest("realistic", "medium"))
	require.NoError(t, err)

	deposit, err := f.payments.CreateCommissionIntent(ctx, c.ID, models.PaymentTypeDeposit)
	require.NoError(t, err)

	again, err := f.payments.CreateCommissionIntent(ctx, c.ID, models.PaymentTypeDeposit)
	require.NoError(t, err)
	assert.Equal(t, deposit.IntentID, again.IntentID)

	full, err := f.payments.CreateCommissionIntent(ctx, c.ID, models.PaymentTypeFull)
	require.NoError(t, err)
	assert.NotEqual(t, deposit.IntentID, full.IntentID)
	assert.Equal(t, []string{deposit.IntentID}, f.gateway.cancelled)
	assert.Len(t, f.gateway.intents, 2)
}

func TestCreateOrderIntent_GatewayFailureLeavesOrderUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, guestOrder(f.seedArtwork(t, "A", "10").ID))
	require.NoError(t, err)

	f.gateway.err = apperrors.NewUpstreamGatewayError("payment processor unavailable", true)
	_, err = f.payments.CreateOrderIntent(ctx, order.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrUpstreamGateway))

	stored, err := f.repos.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PaymentIntentID)
	assert.Equal(t, models.PaymentStatusUnpaid, stored.PaymentStatus)
}

func TestCreateCommissionIntent_DepositThenBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.commissions.CreateCommission(ctx, commissionRequest("realistic", "medium"))
	require.NoError(t, err)

	deposit, err := f.payments.CreateCommissionIntent(ctx, c.ID, models.PaymentTypeDeposit)
	require.NoError(t, err)
	assert.Equal(t, "450", deposit.Amount.String())
	assert.Equal(t, int64(45000), f.gateway.last().Amount)
	assert.Equal(t, "deposit", f.gateway.last().Metadata[models.MetadataPaymentType])

	require.NoError(t, f.deliver(t, commissionPaidEvent("evt_dep", c.ID, models.PaymentTypeDeposit, 45000)))

	_, err = f.payments.CreateCommissionIntent(ctx, c.ID, models.PaymentTypeDeposit)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	balance, err := f.payments.CreateCommissionIntent(ctx, c.ID, models.PaymentTypeFull)
	require.NoError(t, err)
	assert.Equal(t, "450", balance.Amount.String())

	_, err = f.payments.CreateCommissionIntent(ctx, c.ID, models.PaymentType("tip"))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
}

func TestHandleWebhook_PropagatesReconcileErrors(t *testing.T) {
	f := newFixture(t)

	err := f.deliver(t, commissionPaidEvent("evt_c", models.GenerateID(), models.PaymentTypeFull, 100))
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
