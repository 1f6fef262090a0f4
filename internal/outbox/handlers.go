package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// LoggingHandler logs each event before passing it on
type LoggingHandler struct {
	next   MessageHandler
	logger logger.Logger
}

// NewLoggingHandler wraps next; a nil next only logs
func NewLoggingHandler(next MessageHandler, logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{
		next:   next,
		logger: logger,
	}
}

// HandleMessage logs the event envelope and delegates
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	event, err := models.ParseOutboxEvent(message.Payload)

	if err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Handling outbox message",
		"messageID", message.ID,
		"eventType", message.EventType,
		"aggregateID", message.AggregateID,
		"eventID", event.EventID,
		"occurredAt", event.OccurredAt)

	if h.next == nil {
		return nil
	}

	return h.next.HandleMessage(ctx, message)
}
