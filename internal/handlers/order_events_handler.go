package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/vaidashi/support-portal/internal/engine"
	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/pkg/kafka"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// OrderEventsHandler consumes the orders topic. It is the hook the external
// reminder notifier builds on; here it records and logs what happened.
type OrderEventsHandler struct {
	logger logger.Logger
	mu     sync.Mutex
	seen   map[string]int
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		logger: logger,
		seen:   make(map[string]int),
	}
}

// HandleMessage handles incoming order events from Kafka messages
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.OrderEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("Failed to unmarshal order event", "error", err, "offset", msg.Offset)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if header := kafka.Header(msg, "event_type"); header != "" && header != event.EventType {
		h.logger.Warn("Event type header does not match payload", "header", header, "eventType", event.EventType)
	}

	var err error

	switch event.EventType {
	case models.EventOrderCreated, models.EventOrderArchived:
		err = h.handleOrder(event)
	case models.EventOrderUpdated:
		err = h.handleOrderUpdated(event)
	case models.EventOrderDeleted:
		err = h.handleOrderDeleted(event)
	case models.EventOrderStale:
		err = h.handleOrderStale(event)
	default:
		h.logger.Warn("Unknown event type", "eventType", event.EventType, "eventID", event.EventID)
		return nil
	}

	if err != nil {
		return err
	}

	h.mu.Lock()
	h.seen[event.EventType]++
	h.mu.Unlock()

	return nil
}

// Seen returns how many events of each type were handled
func (h *OrderEventsHandler) Seen() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int, len(h.seen))
	for k, v := range h.seen {
		out[k] = v
	}
	return out
}

func (h *OrderEventsHandler) handleOrder(event models.OrderEvent) error {
	var order models.Order

	if err := json.Unmarshal(event.Data, &order); err != nil {
		return fmt.Errorf("invalid %s payload: %w", event.EventType, err)
	}

	h.logger.Info("Order event received",
		"eventType", event.EventType,
		"orderID", event.AggregateID,
		"orderNumber", order.OrderNumber,
		"status", engine.ResolveStatus(order.Stages))

	return nil
}

func (h *OrderEventsHandler) handleOrderUpdated(event models.OrderEvent) error {
	var change models.StatusChange

	if err := json.Unmarshal(event.Data, &change); err != nil {
		return fmt.Errorf("invalid %s payload: %w", event.EventType, err)
	}

	if change.OldStatus == change.NewStatus {
		h.logger.Debug("Order updated", "orderID", event.AggregateID, "status", change.NewStatus)
		return nil
	}

	keyvals := []interface{}{
		"orderID", event.AggregateID,
		"oldStatus", change.OldStatus,
		"newStatus", change.NewStatus,
	}

	if change.Order != nil {
		keyvals = append(keyvals, "fulfillment", engine.FulfillmentLabel(change.Order.Stages))
	}

	h.logger.Info("Order status changed", keyvals...)
	return nil
}

func (h *OrderEventsHandler) handleOrderDeleted(event models.OrderEvent) error {
	var ref models.OrderRef

	if err := json.Unmarshal(event.Data, &ref); err != nil {
		return fmt.Errorf("invalid %s payload: %w", event.EventType, err)
	}

	h.logger.Info("Order deleted", "orderID", ref.OrderID, "orderNumber", ref.OrderNumber)
	return nil
}

func (h *OrderEventsHandler) handleOrderStale(event models.OrderEvent) error {
	var stale models.StaleOrderData

	if err := json.Unmarshal(event.Data, &stale); err != nil {
		return fmt.Errorf("invalid %s payload: %w", event.EventType, err)
	}

	h.logger.Warn("Order needs follow-up",
		"orderID", stale.OrderID,
		"customer", stale.CustomerName,
		"amount", stale.Amount,
		"daysSinceUpdate", stale.DaysSinceUpdate)

	return nil
}
