package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/vaidashi/gallery-api/internal/media"
	"github.com/vaidashi/gallery-api/internal/models"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
)

const validSignature = "t=1,v1=ok"

type fakeGateway struct {
	mu        sync.Mutex
	intents   []fakeIntent
	cancelled []string
	err       error
}

type fakeIntent struct {
	ID       string
	Amount   int64
	Currency string
	Metadata map[string]string
	Status   string
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}

	id := fmt.Sprintf("pi_%d", len(g.intents)+1)
	g.intents = append(g.intents, fakeIntent{
		ID:       id,
		Amount:   amount,
		Currency: currency,
		Metadata: metadata,
		Status:   models.IntentRequiresPaymentMethod,
	})

	return g.intents[len(g.intents)-1].toModel(), nil
}

func (g *fakeGateway) GetIntent(_ context.Context, intentID string) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}

	for _, in := range g.intents {
		if in.ID == intentID {
			return in.toModel(), nil
		}
	}
	return nil, apperrors.NewUpstreamGatewayError("no such payment intent", false)
}

func (g *fakeGateway) CancelIntent(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return g.err
	}

	g.cancelled = append(g.cancelled, intentID)
	g.setStatus(intentID, "canceled")
	return nil
}

// settle marks an intent as paid on the gateway side
func (g *fakeGateway) settle(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setStatus(intentID, "succeeded")
}

func (g *fakeGateway) setStatus(intentID, status string) {
	for i := range g.intents {
		if g.intents[i].ID == intentID {
			g.intents[i].Status = status
		}
	}
}

func (in fakeIntent) toModel() *models.PaymentIntent {
	return &models.PaymentIntent{
		IntentID:     in.ID,
		ClientSecret: in.ID + "_secret",
		Amount:       in.Amount,
		Currency:     in.Currency,
		Status:       in.Status,
		Metadata:     in.Metadata,
	}
}

func (g *fakeGateway) VerifyWebhook(payload []byte, signature string) (*models.PaymentEvent, error) {
	if signature != validSignature {
		return nil, apperrors.NewSignatureInvalidError("webhook signature verification failed")
	}

	var event models.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apperrors.NewSignatureInvalidError("malformed payload")
	}

	return &event, nil
}

func (g *fakeGateway) last() fakeIntent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intents[len(g.intents)-1]
}

type fakeImageHost struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (h *fakeImageHost) Upload(_ context.Context, filename string, r io.Reader) (*media.UploadedImage, error) {
	if h.err != nil {
		return nil, h.err
	}

	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.names = append(h.names, filename)
	h.mu.Unlock()

	return &media.UploadedImage{
		URL:      "https://img.example.com/" + filename,
		PublicID: "gallery/" + filename,
	}, nil
}

type staticSettings struct {
	settings models.SiteSettings
}

func (s *staticSettings) Get(context.Context) (*models.SiteSettings, error) {
	copied := s.settings
	return &copied, nil
}
