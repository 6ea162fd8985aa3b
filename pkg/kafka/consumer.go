package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// MessageHandler is the interface for handling messages from Kafka
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// Consumer is a wrapper around sarama.ConsumerGroup
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	handlers      map[string]MessageHandler
	mu            sync.RWMutex
	logger        logger.Logger
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// ConsumerConfig is the configuration for the Kafka consumer
type ConsumerConfig struct {
	Brokers       []string
	Topics        []string
	ConsumerGroup string
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *ConsumerConfig, logger logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)

	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return newConsumer(consumerGroup, cfg.Topics, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, logger logger.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		consumerGroup: group,
		topics:        topics,
		handlers:      make(map[string]MessageHandler),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// RegisterHandler registers a message handler for a specific topic
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
}

// Start joins the consumer group in the background
func (c *Consumer) Start() error {
	if len(c.topics) == 0 {
		return fmt.Errorf("no topics to consume")
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		// Consume returns on every rebalance, so it is called in a loop
		for {
			if err := c.consumerGroup.Consume(c.ctx, c.topics, c); err != nil {
				if c.ctx.Err() != nil {
					return
				}

				c.logger.Error("Kafka consumer error, rejoining group", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	c.logger.Info("Kafka consumer started", "topics", c.topics)
	return nil
}

// Stop stops the Kafka consumer
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// Setup is part of sarama.ConsumerGroupHandler
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is part of sarama.ConsumerGroupHandler
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim is part of sarama.ConsumerGroupHandler
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if c.dispatch(session.Context(), msg) {
				session.MarkMessage(msg, "")
			}

		case <-session.Context().Done():
			return nil
		case <-c.ctx.Done():
			return nil
		}
	}
}

// dispatch hands msg to the topic handler and reports whether it was handled.
// A failed message is logged and left unmarked, but the next marked offset on
// the partition commits past it, so it is skipped rather than redelivered.
func (c *Consumer) dispatch(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	c.logger.Debug("Received message from Kafka",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key))

	c.mu.RLock()
	handler, exists := c.handlers[msg.Topic]
	c.mu.RUnlock()

	if !exists {
		c.logger.Warn("No handler registered for topic", "topic", msg.Topic)
		return true
	}

	if err := handler.HandleMessage(ctx, msg); err != nil {
		c.logger.Error("Error handling message",
			"error", err,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset)
		return false
	}

	return true
}
