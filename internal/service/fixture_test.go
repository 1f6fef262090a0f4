package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/database/dbtest"
	"github.com/vaidashi/gallery-api/internal/metrics"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/repository"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

type fixture struct {
	db          *database.Database
	repos       *repository.Repositories
	metrics     *metrics.Metrics
	gateway     *fakeGateway
	images      *fakeImageHost
	settings    *staticSettings
	orders      *OrderService
	commissions *CommissionService
	payments    *PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.New(t)
	log := logger.NewNop()
	repos := repository.NewRepositories(db, log)
	m := metrics.New()

	f := &fixture{
		db:       db,
		repos:    repos,
		metrics:  m,
		gateway:  &fakeGateway{},
		images:   &fakeImageHost{},
		settings: &staticSettings{settings: models.DefaultSiteSettings()},
	}

	f.orders = NewOrderService(db, repos, m, "usd", log)
	f.commissions = NewCommissionService(db, repos, f.images, f.settings, m, log)
	f.payments = NewPaymentService(repos, f.gateway, f.orders, f.commissions, "usd", m, log)

	return f
}

func (f *fixture) seedArtwork(t *testing.T, title, price string) *models.Artwork {
	t.Helper()

	now := models.GetCurrentTime()
	a := &models.Artwork{
		ID:        models.GenerateID(),
		Title:     title,
		Slug:      models.GenerateID(),
		Price:     decimal.RequireFromString(price),
		Status:    models.ArtworkStatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.repos.Artworks.Create(context.Background(), a))

	return a
}

func (f *fixture) artworkStatus(t *testing.T, id string) models.ArtworkStatus {
	t.Helper()

	a, err := f.repos.Artworks.GetByID(context.Background(), id)
	require.NoError(t, err)

	return a.Status
}

func (f *fixture) count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()

	var n int
	require.NoError(t, f.db.DB.Get(&n, query, args...))

	return n
}

func (f *fixture) outboxEvents(t *testing.T, aggregateType, aggregateID string) []string {
	t.Helper()

	msgs, err := f.repos.Outbox.ListByAggregate(context.Background(), aggregateType, aggregateID)
	require.NoError(t, err)

	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.EventType)
	}

	return types
}

func (f *fixture) deliver(t *testing.T, event models.PaymentEvent) error {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	return f.payments.HandleWebhook(context.Background(), payload, validSignature)
}

func guestOrder(ids ...string) CreateOrderInput {
	return CreateOrderInput{
		Customer: models.CustomerDetails{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
		},
		ItemIDs: ids,
		ShippingAddress: models.Address{
			Line1:      "12 Analytical Way",
			City:       "London",
			PostalCode: "N1 9GU",
			Country:    "GB",
		},
	}
}

func paidEvent(eventID, orderID string) models.PaymentEvent {
	return models.PaymentEvent{
		EventID:  eventID,
		Type:     models.EventPaymentSucceeded,
		IntentID: "pi_test",
		Metadata: map[string]string{
			models.MetadataKind:    models.KindOrder,
			models.MetadataOrderID: orderID,
		},
	}
}

func identityFor(email string) *auth.Identity {
	return &auth.Identity{Email: email, Role: models.RoleCustomer}
}

// fixedNumbers hands out the given numbers in turn, then falls back to generated ones
func fixedNumbers(numbers ...string) func(prefix string, at time.Time) string {
	var mu sync.Mutex
	return func(prefix string, at time.Time) string {
		mu.Lock()
		defer mu.Unlock()

		if len(numbers) == 0 {
			return models.GenerateNumber(prefix, at)
		}
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}
}
