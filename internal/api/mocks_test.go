package api

import (
	"context"
	"io"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/repository"
	"github.com/vaidashi/gallery-api/internal/service"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
)

type fakeOrders struct {
	mu          sync.Mutex
	created     []service.CreateOrderInput
	listed      []*auth.Identity
	updated     []service.UpdateOrderStatusInput
	createErr   error
	getErr      error
	orderResult *models.Order
}

func (f *fakeOrders) CreateOrder(_ context.Context, in service.CreateOrderInput) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.Order{ID: models.GenerateID(), Total: decimal.NewFromInt(4300)}, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id string, _ *auth.Identity) (*models.Order, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.Order{ID: id}, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, _ models.OrderFilter, identity *auth.Identity) ([]*models.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listed = append(f.listed, identity)
	if identity == nil {
		return nil, 0, apperrors.NewUnauthorizedError("sign in to view orders")
	}
	return []*models.Order{{ID: "o-1"}}, 1, nil
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, id string, in service.UpdateOrderStatusInput) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updated = append(f.updated, in)
	return &models.Order{ID: id}, nil
}

type receivedUpload struct {
	Filename string
	Body     string
}

type fakeCommissions struct {
	mu       sync.Mutex
	created  []service.CreateCommissionInput
	uploads  []receivedUpload
	progress []string
}

func (f *fakeCommissions) CreateCommission(_ context.Context, in service.CreateCommissionInput) (*models.Commission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, file := range in.ReferenceFiles {
		body, err := io.ReadAll(file.Content)
		if err != nil {
			return nil, err
		}
		f.uploads = append(f.uploads, receivedUpload{Filename: file.Filename, Body: string(body)})
	}
	in.ReferenceFiles = nil
	f.created = append(f.created, in)

	return &models.Commission{ID: models.GenerateID(), Style: in.Style, Size: in.Size}, nil
}

func (f *fakeCommissions) UpdateStatus(_ context.Context, id string, in service.UpdateCommissionStatusInput) (*models.Commission, error) {
	return &models.Commission{ID: id, Status: in.Status}, nil
}

func (f *fakeCommissions) AddProgressImage(_ context.Context, id string, file service.ImageFile, description string) (*models.CommissionImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.progress = append(f.progress, file.Filename+":"+description)
	return &models.CommissionImage{CommissionID: id, Kind: models.ImageKindProgress, Description: description}, nil
}

func (f *fakeCommissions) GetCommission(_ context.Context, id string) (*models.Commission, error) {
	return &models.Commission{ID: id}, nil
}

func (f *fakeCommissions) ListCommissions(_ context.Context, _ models.CommissionFilter) ([]*models.Commission, int, error) {
	return []*models.Commission{}, 0, nil
}

func (f *fakeCommissions) ListCustomerCommissions(_ context.Context, identity *auth.Identity, _, _ int) ([]*models.Commission, int, error) {
	return []*models.Commission{{ID: "c-1", CustomerID: identity.CustomerID}}, 1, nil
}

type fakePayments struct {
	webhookErr error
	payloads   []string
	signatures []string
}

func (f *fakePayments) CreateOrderIntent(_ context.Context, orderID string) (*service.IntentResult, error) {
	if orderID == "" {
		return nil, apperrors.NewNotFoundError("order not found")
	}
	return &service.IntentResult{ClientSecret: "pi_1_secret", IntentID: "pi_1", Amount: decimal.NewFromInt(4300), Currency: "usd"}, nil
}

func (f *fakePayments) CreateCommissionIntent(_ context.Context, _ string, paymentType models.PaymentType) (*service.IntentResult, error) {
	if !paymentType.Valid() {
		return nil, apperrors.NewValidationError("invalid payment type")
	}
	return &service.IntentResult{ClientSecret: "pi_2_secret", IntentID: "pi_2", Amount: decimal.NewFromInt(450), Currency: "usd"}, nil
}

func (f *fakePayments) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	f.payloads = append(f.payloads, string(payload))
	f.signatures = append(f.signatures, signature)
	return f.webhookErr
}

type fakeNotifications struct {
	read []string
}

func (f *fakeNotifications) List(context.Context, bool, int) ([]*models.Notification, error) {
	return []*models.Notification{{ID: "n-1", Type: models.NotificationNewOrder}}, nil
}

func (f *fakeNotifications) CountUnread(context.Context) (int, error) { return 1, nil }

func (f *fakeNotifications) MarkRead(_ context.Context, id string) error {
	if id == "missing" {
		return repository.ErrNotFound
	}
	f.read = append(f.read, id)
	return nil
}

func (f *fakeNotifications) MarkAllRead(context.Context) (int64, error) { return 3, nil }

type fakeDeadLetters struct {
	messages  map[int64]*models.DeadLetterMessage
	requeued  []int64
	discarded map[int64]string
}

func (f *fakeDeadLetters) List(context.Context, models.DeadLetterStatus, int, int) ([]*models.DeadLetterMessage, error) {
	out := make([]*models.DeadLetterMessage, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeDeadLetters) GetMessage(_ context.Context, id int64) (*models.DeadLetterMessage, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m, nil
}

func (f *fakeDeadLetters) ResetToPending(_ context.Context, id int64) error {
	f.requeued = append(f.requeued, id)
	return nil
}

func (f *fakeDeadLetters) MarkAsDiscarded(_ context.Context, id int64, reason string) error {
	if f.discarded == nil {
		f.discarded = map[int64]string{}
	}
	f.discarded[id] = reason
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }
