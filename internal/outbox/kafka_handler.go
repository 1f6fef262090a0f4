package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/kafka"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// Header names set on every published event
const (
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
)

// Publisher is satisfied by *kafka.Producer
type Publisher interface {
	Publish(ctx context.Context, m kafka.Message) error
}

// KafkaHandler publishes outbox messages to Kafka
type KafkaHandler struct {
	logger    logger.Logger
	publisher Publisher
	topic     string
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(publisher Publisher, topic string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// HandleMessage publishes the event keyed by aggregate ID so one order's events stay ordered
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	h.logger.Debug("Publishing message to Kafka",
		"topic", h.topic,
		"messageID", message.ID,
		"aggregateID", message.AggregateID,
		"eventType", message.EventType)

	err := h.publisher.Publish(ctx, kafka.Message{
		Topic: h.topic,
		Key:   message.AggregateID,
		Value: message.Payload,
		Headers: map[string]string{
			HeaderEventType:     message.EventType,
			HeaderAggregateType: message.AggregateType,
		},
	})

	if err != nil {
		h.logger.Error("Failed to publish message to Kafka",
			"error", err,
			"messageID", message.ID,
			"aggregateID", message.AggregateID)
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}

	return nil
}
