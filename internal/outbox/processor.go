package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// HandlerFunc adapts a function to MessageHandler
type HandlerFunc func(ctx context.Context, message *models.OutboxMessage) error

// HandleMessage calls f
func (f HandlerFunc) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	return f(ctx, message)
}

// Store is the slice of the outbox repository the processor needs
type Store interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkAsProcessing(ctx context.Context, id int64) (bool, error)
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkForRetry(ctx context.Context, id int64, errorMessage string) error
	MarkAsFailed(ctx context.Context, id int64, errorMessage string) error
}

// DeadLetterSink receives messages that exhausted their attempts
type DeadLetterSink interface {
	Create(ctx context.Context, message *models.DeadLetterMessage) error
}

// Observer is notified of every processed message
type Observer func(eventType string, err error)

// Processor is responsible for processing outbox messages
type Processor struct {
	store           Store
	deadLetters     DeadLetterSink
	handlers        map[string]MessageHandler
	fallback        MessageHandler
	observer        Observer
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	logger          logger.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	running         bool
	mu              sync.Mutex
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
}

// NewProcessor creates a new Processor. deadLetters may be nil, in which case
// exhausted messages are only marked failed.
func NewProcessor(store Store, deadLetters DeadLetterSink, config ProcessorConfig, logger logger.Logger) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	if config.PollingInterval <= 0 {
		config.PollingInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}

	return &Processor{
		store:           store,
		deadLetters:     deadLetters,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// RegisterHandler registers a message handler for a specific event type
func (p *Processor) RegisterHandler(eventType string, handler MessageHandler) {
	p.handlers[eventType] = handler
}

// SetFallback sets the handler used for event types without a registered handler
func (p *Processor) SetFallback(handler MessageHandler) {
	p.fallback = handler
}

// SetObserver installs a callback run after each message attempt
func (p *Processor) SetObserver(o Observer) {
	p.observer = o
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.processOutbox()
	}()

	p.logger.Info("Outbox processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize)
}

// Stop stops the outbox processor
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info("Outbox processor stopped")
}

// processOutbox processes outbox messages in a loop
func (p *Processor) processOutbox() {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(p.ctx); err != nil {
				p.logger.Error("Failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessBatch handles one batch of pending messages and returns how many were attempted
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pollingInterval)
	defer cancel()

	messages, err := p.store.GetPendingMessages(ctx, p.batchSize)

	if err != nil {
		return 0, fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending messages to process")
		return 0, nil
	}

	p.logger.Info("Processing batch of outbox messages", "count", len(messages))

	for _, msg := range messages {
		if err := p.processMessage(ctx, msg); err != nil {
			p.logger.Error("Failed to process message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType)

			continue
		}
	}

	return len(messages), nil
}

func (p *Processor) handlerFor(eventType string) (MessageHandler, bool) {
	if handler, ok := p.handlers[eventType]; ok {
		return handler, true
	}
	if p.fallback != nil {
		return p.fallback, true
	}
	return nil, false
}

// processMessage processes a single outbox message
func (p *Processor) processMessage(ctx context.Context, msg *models.OutboxMessage) error {
	claimed, err := p.store.MarkAsProcessing(ctx, msg.ID)

	if err != nil {
		return fmt.Errorf("failed to mark message as processing: %w", err)
	}

	if !claimed {
		return nil
	}

	msg.ProcessingAttempts++

	handler, exists := p.handlerFor(msg.EventType)

	if !exists {
		err := fmt.Errorf("no handler registered for event type: %s", msg.EventType)
		p.fail(ctx, msg, err, "no handler")
		return err
	}

	err = handler.HandleMessage(ctx, msg)

	if p.observer != nil {
		p.observer(msg.EventType, err)
	}

	if err != nil {
		if msg.ProcessingAttempts >= p.maxRetries {
			p.fail(ctx, msg, err, "max retries reached")
			return fmt.Errorf("message failed after %d attempts: %w", msg.ProcessingAttempts, err)
		}

		p.logger.Warn("Message processing failed, will retry",
			"error", err,
			"messageID", msg.ID,
			"attempt", msg.ProcessingAttempts)

		if markErr := p.store.MarkForRetry(ctx, msg.ID, err.Error()); markErr != nil {
			p.logger.Error("Failed to return message to pending", "error", markErr, "messageID", msg.ID)
		}

		return err
	}

	if err := p.store.MarkAsCompleted(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as completed: %w", err)
	}

	p.logger.Info("Successfully processed message",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}

func (p *Processor) fail(ctx context.Context, msg *models.OutboxMessage, cause error, reason string) {
	p.logger.Error("Moving message to dead letter queue",
		"error", cause,
		"messageID", msg.ID,
		"attempts", msg.ProcessingAttempts,
		"reason", reason)

	if err := p.store.MarkAsFailed(ctx, msg.ID, cause.Error()); err != nil {
		p.logger.Error("Failed to mark message as failed", "error", err, "messageID", msg.ID)
	}

	if p.deadLetters == nil {
		return
	}

	if err := p.deadLetters.Create(ctx, models.NewDeadLetterMessage(msg, cause.Error(), reason)); err != nil {
		p.logger.Error("Failed to store dead letter message", "error", err, "messageID", msg.ID)
	}
}
