package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/support-portal/pkg/logger"
)

func TestProducer_SendAddsKeyAndHeaders(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewProducerConfig())
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"event_type":"order_created"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	p := NewProducerFrom(mock, logger.NewNop())
	defer p.Close()

	err := p.Send(context.Background(), Message{
		Topic:   "orders",
		Key:     "order-1",
		Value:   []byte(`{"event_type":"order_created"}`),
		Headers: map[string]string{"event_type": "order_created"},
	})
	require.NoError(t, err)
}

func TestProducer_SendFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewProducerConfig())
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFrom(mock, logger.NewNop())
	defer p.Close()

	err := p.Send(context.Background(), Message{Topic: "orders", Value: []byte("{}")})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestProducer_CancelledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewProducerConfig())
	p := NewProducerFrom(mock, logger.NewNop())
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Send(ctx, Message{Topic: "orders"}), context.Canceled)
}

func TestHeader(t *testing.T) {
	msg := &sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{
		{Key: []byte("event_type"), Value: []byte("order_stale")},
	}}

	assert.Equal(t, "order_stale", Header(msg, "event_type"))
	assert.Equal(t, "", Header(msg, "missing"))
}

type recordingHandler struct {
	got []*sarama.ConsumerMessage
	err error
}

func (h *recordingHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	h.got = append(h.got, msg)
	return h.err
}

func TestConsumer_Dispatch(t *testing.T) {
	c := newConsumer(nil, []string{"orders"}, logger.NewNop())

	ok := &recordingHandler{}
	c.RegisterHandler("orders", ok)

	assert.True(t, c.dispatch(context.Background(), &sarama.ConsumerMessage{Topic: "orders"}))
	assert.Len(t, ok.got, 1)

	// unknown topics are committed and skipped
	assert.True(t, c.dispatch(context.Background(), &sarama.ConsumerMessage{Topic: "other"}))

	c.RegisterHandler("orders", &recordingHandler{err: errors.New("boom")})
	assert.False(t, c.dispatch(context.Background(), &sarama.ConsumerMessage{Topic: "orders"}))
}

func TestConsumer_StartWithoutTopics(t *testing.T) {
	c := newConsumer(nil, nil, logger.NewNop())
	assert.Error(t, c.Start())
}
