package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// LoggingHandler logs events instead of publishing them. It is used when no
// broker is configured.
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger,
	}
}

// HandleMessage logs the decoded event envelope
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.OrderEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Order event",
		"messageID", message.ID,
		"eventType", event.EventType,
		"orderID", event.AggregateID,
		"eventID", event.EventID,
		"occurredAt", event.OccurredAt)

	return nil
}
