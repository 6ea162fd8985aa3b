package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/pkg/circuitbreaker"
	"github.com/vaidashi/support-portal/pkg/kafka"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// Publisher sends one record to the broker
type Publisher interface {
	Send(ctx context.Context, msg kafka.Message) error
}

// KafkaHandler publishes outbox messages to Kafka
type KafkaHandler struct {
	logger    logger.Logger
	publisher Publisher
	topic     string
	breaker   *circuitbreaker.CircuitBreaker
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(publisher Publisher, topic string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// WithBreaker guards publishing with cb. While the circuit is open the
// handler reports itself unavailable and the processor leaves messages pending.
func (h *KafkaHandler) WithBreaker(cb *circuitbreaker.CircuitBreaker) *KafkaHandler {
	h.breaker = cb
	return h
}

// Available reports whether the broker is worth calling
func (h *KafkaHandler) Available() bool {
	return h.breaker == nil || h.breaker.Ready()
}

// HandleMessage publishes the event keyed by order id
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	send := func() error {
		return h.publisher.Send(ctx, kafka.Message{
			Topic: h.topic,
			Key:   message.AggregateID,
			Value: message.Payload,
			Headers: map[string]string{
				"event_type":     message.EventType,
				"aggregate_type": message.AggregateType,
			},
		})
	}

	var err error

	if h.breaker != nil {
		err = h.breaker.Execute(send)
	} else {
		err = send()
	}

	if err != nil {
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}

	h.logger.Debug("Published order event",
		"topic", h.topic,
		"messageID", message.ID,
		"aggregateID", message.AggregateID,
		"eventType", message.EventType)

	return nil
}
