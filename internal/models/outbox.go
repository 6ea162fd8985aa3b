package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Order event types published through the outbox
const (
	EventOrderCreated  = "order_created"
	EventOrderUpdated  = "order_updated"
	EventOrderArchived = "order_archived"
	EventOrderDeleted  = "order_deleted"
	EventOrderStale    = "order_stale"
)

// OrderEventTypes lists every event type the portal emits
var OrderEventTypes = []string{
	EventOrderCreated,
	EventOrderUpdated,
	EventOrderArchived,
	EventOrderDeleted,
	EventOrderStale,
}

// OutboxMessage represents a message to be published from the outbox table
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	AvailableAt        time.Time    `db:"available_at" json:"available_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OrderEvent is the envelope written to the outbox and published to Kafka
type OrderEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// StaleOrderData is the payload of an order_stale event
type StaleOrderData struct {
	OrderID         string `json:"order_id"`
	CustomerName    string `json:"customer_name"`
	Amount          string `json:"amount"`
	DaysSinceUpdate int    `json:"days_since_update"`
}

// OrderRef identifies an order that no longer exists
type OrderRef struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// StatusChange is attached to order_updated events when the status label moved
type StatusChange struct {
	Order     *Order `json:"order"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
}

// NewOrderEvent wraps data in an event envelope and an outbox message
func NewOrderEvent(eventType, orderID string, data interface{}) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)

	if err != nil {
		return nil, err
	}

	event := OrderEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: orderID,
		OccurredAt:  GetCurrentTime(),
		Data:        raw,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	now := GetCurrentTime()

	return &OutboxMessage{
		EventType:          eventType,
		Payload:            payload,
		AggregateType:      "order",
		AggregateID:        orderID,
		CreatedAt:          now,
		AvailableAt:        now,
		ProcessingAttempts: 0,
		Status:             OutboxStatusPending,
	}, nil
}
