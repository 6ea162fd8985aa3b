package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// Message is one record to publish
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Producer is a wrapper around the Sarama producer
type Producer struct {
	producer sarama.SyncProducer
	logger   logger.Logger
}

// NewProducerConfig returns the sarama settings used for order events
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 10
	config.Producer.Return.Successes = true
	config.Producer.Retry.Backoff = 500 * time.Millisecond
	config.Producer.Timeout = 5 * time.Second
	// Keyed by order id so every event of one order lands on one partition
	config.Producer.Partitioner = sarama.NewHashPartitioner

	return config
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, logger logger.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())

	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewProducerFrom(producer, logger), nil
}

// NewProducerFrom wraps an existing sync producer
func NewProducerFrom(producer sarama.SyncProducer, logger logger.Logger) *Producer {
	return &Producer{
		producer: producer,
		logger:   logger,
	}
}

// Send publishes msg and waits for the broker acknowledgement
func (p *Producer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pm := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Value),
	}

	if msg.Key != "" {
		pm.Key = sarama.StringEncoder(msg.Key)
	}

	for k, v := range msg.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := p.producer.SendMessage(pm)

	if err != nil {
		p.logger.Error("Failed to send message to Kafka",
			"error", err,
			"topic", msg.Topic,
			"key", msg.Key)
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	p.logger.Debug("Message sent to Kafka",
		"topic", msg.Topic,
		"key", msg.Key,
		"partition", partition,
		"offset", offset)

	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

// Header returns the value of a record header, or "" when absent
func Header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
