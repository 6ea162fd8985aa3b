package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/internal/repository"
	"github.com/vaidashi/support-portal/pkg/logger"
	"github.com/vaidashi/support-portal/pkg/retry"
)

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// Gate is implemented by handlers that can report a dependency outage.
// Messages for an unavailable handler stay pending and keep their attempts.
type Gate interface {
	Available() bool
}

var errUnavailable = errors.New("handler unavailable")

// statusWriteTimeout bounds the write that records a message's outcome
const statusWriteTimeout = 5 * time.Second

// Processor relays pending outbox messages to their handlers
type Processor struct {
	outbox          repository.OutboxStore
	handlers        map[string]MessageHandler
	handlersMu      sync.RWMutex
	pollingInterval time.Duration
	processingTTL   time.Duration
	batchSize       int
	maxRetries      int
	backoff         retry.BackoffStrategy
	now             func() time.Time
	logger          logger.Logger
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
	BackoffStrategy retry.BackoffStrategy
	// ProcessingTimeout is how long a message may stay processing before
	// it is requeued
	ProcessingTimeout time.Duration
}

// NewProcessor creates a new Processor
func NewProcessor(outbox repository.OutboxStore, config ProcessorConfig, logger logger.Logger) *Processor {
	if config.BackoffStrategy == nil {
		config.BackoffStrategy = retry.NewDefaultExponentialBackoff()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.PollingInterval <= 0 {
		config.PollingInterval = 5 * time.Second
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = 5 * time.Minute
	}

	return &Processor{
		outbox:          outbox,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		processingTTL:   config.ProcessingTimeout,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		backoff:         config.BackoffStrategy,
		now:             models.GetCurrentTime,
		logger:          logger,
	}
}

// RegisterHandler registers a message handler for a specific event type
func (p *Processor) RegisterHandler(eventType string, handler MessageHandler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[eventType] = handler
}

// RegisterAll registers handler for every order event type
func (p *Processor) RegisterAll(handler MessageHandler) {
	for _, eventType := range models.OrderEventTypes {
		p.RegisterHandler(eventType, handler)
	}
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.processOutbox(ctx)
	}()

	p.logger.Info("Outbox processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize)
}

// Stop stops the outbox processor and waits for the current batch
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

func (p *Processor) processOutbox(ctx context.Context) {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("Failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessBatch relays one batch of due messages and returns how many were
// delivered.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pollingInterval)
	defer cancel()

	if n, err := p.outbox.RequeueStuck(ctx, p.now().Add(-p.processingTTL)); err != nil {
		p.logger.Error("Failed to requeue stuck messages", "error", err)
	} else if n > 0 {
		p.logger.Warn("Requeued messages stuck in processing", "count", n)
	}

	messages, err := p.outbox.GetPendingMessages(ctx, p.batchSize)

	if err != nil {
		return 0, fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending messages to process")
		return 0, nil
	}

	p.logger.Info("Processing batch of outbox messages", "count", len(messages))

	delivered := 0
	deferred := 0

	for _, msg := range messages {
		// Unclaimed messages wait for the next batch
		if ctx.Err() != nil {
			break
		}

		err := p.processMessage(ctx, msg)

		if errors.Is(err, errUnavailable) {
			deferred++
			continue
		}

		if err != nil {
			p.logger.Error("Failed to process message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType)
			continue
		}
		delivered++
	}

	if deferred > 0 {
		p.logger.Warn("Handlers unavailable, messages left pending", "deferred", deferred)
	}

	return delivered, nil
}

func (p *Processor) processMessage(ctx context.Context, msg *models.OutboxMessage) error {
	p.handlersMu.RLock()
	handler, exists := p.handlers[msg.EventType]
	p.handlersMu.RUnlock()

	if gate, ok := handler.(Gate); exists && ok && !gate.Available() {
		return errUnavailable
	}

	if err := p.outbox.MarkAsProcessing(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as processing: %w", err)
	}

	attempt := msg.ProcessingAttempts + 1

	// The outcome is recorded even when the batch deadline passed while the
	// handler ran.
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if !exists {
		errorMsg := fmt.Sprintf("no handler registered for event type: %s", msg.EventType)

		if err := p.outbox.MarkAsFailed(statusCtx, msg.ID, errorMsg); err != nil {
			p.logger.Error("Failed to mark message as failed", "error", err, "messageID", msg.ID)
		}

		return fmt.Errorf("%s", errorMsg)
	}

	err := handler.HandleMessage(ctx, msg)

	if err != nil {
		if attempt >= p.maxRetries {
			errorMsg := fmt.Sprintf("max retries reached: %s", err.Error())

			if markErr := p.outbox.MarkAsFailed(statusCtx, msg.ID, errorMsg); markErr != nil {
				p.logger.Error("Failed to mark message as failed", "error", markErr, "messageID", msg.ID)
			}

			return fmt.Errorf("message failed after %d attempts: %w", attempt, err)
		}

		delay := p.backoff.NextBackoff(attempt)

		if relErr := p.outbox.ReleaseForRetry(statusCtx, msg.ID, err.Error(), p.now().Add(delay)); relErr != nil {
			p.logger.Error("Failed to release message for retry", "error", relErr, "messageID", msg.ID)
		}

		p.logger.Warn("Message processing failed, will retry",
			"error", err,
			"messageID", msg.ID,
			"attempt", attempt,
			"backoff", delay)
		return err
	}

	if err := p.outbox.MarkAsCompleted(statusCtx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as completed: %w", err)
	}

	p.logger.Debug("Successfully processed message",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}
