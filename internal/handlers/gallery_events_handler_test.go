package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

type fakeDeliverer struct {
	types []string
	err   error
}

func (f *fakeDeliverer) Deliver(_ context.Context, eventType string, _ []byte) error {
	f.types = append(f.types, eventType)
	return f.err
}

type memoryDeduper struct {
	seen map[string]bool
}

func (d *memoryDeduper) Claim(_ context.Context, id string) (bool, error) {
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memoryDeduper) Release(_ context.Context, id string) error {
	delete(d.seen, id)
	return nil
}

func record(t *testing.T, eventType string) *sarama.ConsumerMessage {
	t.Helper()

	msg, err := models.NewOrderEvent(eventType, models.OrderEventData{OrderID: "ord-1"})
	require.NoError(t, err)

	return &sarama.ConsumerMessage{
		Topic: "gallery.events",
		Value: msg.Payload,
		Headers: []*sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}
}

func TestGalleryEventsHandler_Delivers(t *testing.T) {
	d := &fakeDeliverer{}
	h := NewGalleryEventsHandler(d, nil, logger.NewNop())

	require.NoError(t, h.HandleMessage(context.Background(), record(t, models.EventOrderPaid)))
	assert.Equal(t, []string{models.EventOrderPaid}, d.types)
}

func TestGalleryEventsHandler_SkipsDuplicates(t *testing.T) {
	d := &fakeDeliverer{}
	h := NewGalleryEventsHandler(d, &memoryDeduper{seen: map[string]bool{}}, logger.NewNop())
	rec := record(t, models.EventOrderPaid)

	require.NoError(t, h.HandleMessage(context.Background(), rec))
	require.NoError(t, h.HandleMessage(context.Background(), rec))

	assert.Len(t, d.types, 1)
}

func TestGalleryEventsHandler_ReleasesClaimOnFailure(t *testing.T) {
	d := &fakeDeliverer{err: errors.New("smtp down")}
	dedup := &memoryDeduper{seen: map[string]bool{}}
	h := NewGalleryEventsHandler(d, dedup, logger.NewNop())
	rec := record(t, models.EventOrderPaid)

	assert.Error(t, h.HandleMessage(context.Background(), rec))
	assert.Empty(t, dedup.seen)

	d.err = nil
	require.NoError(t, h.HandleMessage(context.Background(), rec))
	assert.Len(t, d.types, 2)
}

func TestGalleryEventsHandler_SkipsMalformed(t *testing.T) {
	d := &fakeDeliverer{}
	h := NewGalleryEventsHandler(d, nil, logger.NewNop())

	require.NoError(t, h.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")}))
	assert.Empty(t, d.types)
}
