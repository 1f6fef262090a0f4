package handlers

import (
	"context"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/kafka"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// Deliverer sends the notifications for one event envelope
type Deliverer interface {
	Deliver(ctx context.Context, eventType string, payload []byte) error
}

// Deduper remembers which events were already delivered
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// GalleryEventsHandler consumes gallery events from Kafka and sends customer email
type GalleryEventsHandler struct {
	deliverer Deliverer
	deduper   Deduper
	logger    logger.Logger
}

// NewGalleryEventsHandler creates a new GalleryEventsHandler. deduper may be nil.
func NewGalleryEventsHandler(deliverer Deliverer, deduper Deduper, logger logger.Logger) *GalleryEventsHandler {
	return &GalleryEventsHandler{
		deliverer: deliverer,
		deduper:   deduper,
		logger:    logger,
	}
}

// HandleMessage handles one record from the events topic
func (h *GalleryEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	event, err := models.ParseOutboxEvent(msg.Value)

	if err != nil {
		// a malformed record will never parse; skip it rather than block the partition
		h.logger.Error("Failed to unmarshal gallery event", "error", err, "offset", msg.Offset)
		return nil
	}

	eventType := kafka.Header(msg, "event_type")
	if eventType == "" {
		eventType = event.EventType
	}

	h.logger.Info("Handling gallery event",
		"eventType", eventType,
		"eventID", event.EventID,
		"aggregateID", event.AggregateID,
		"occurredAt", event.OccurredAt)

	if h.deduper != nil {
		first, err := h.deduper.Claim(ctx, event.EventID)

		if err != nil {
			h.logger.Warn("Event dedup unavailable, delivering anyway", "error", err, "eventID", event.EventID)
		} else if !first {
			h.logger.Info("Skipping already delivered event", "eventID", event.EventID)
			return nil
		}
	}

	if err := h.deliverer.Deliver(ctx, eventType, msg.Value); err != nil {
		if h.deduper != nil {
			if relErr := h.deduper.Release(ctx, event.EventID); relErr != nil {
				h.logger.Warn("Failed to release event claim", "error", relErr, "eventID", event.EventID)
			}
		}
		return fmt.Errorf("deliver %s: %w", eventType, err)
	}

	return nil
}
