package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/internal/repository"
	"github.com/vaidashi/support-portal/pkg/circuitbreaker"
	"github.com/vaidashi/support-portal/pkg/kafka"
	"github.com/vaidashi/support-portal/pkg/logger"
	"github.com/vaidashi/support-portal/pkg/retry"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type flakyHandler struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (h *flakyHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls++
	if h.calls <= h.failures {
		return errors.New("broker unavailable")
	}
	return nil
}

func enqueue(t *testing.T, ob repository.OutboxStore, eventType string) *models.OutboxMessage {
	t.Helper()

	msg, err := models.NewOrderEvent(eventType, "order-1", map[string]string{"id": "order-1"})
	require.NoError(t, err)
	require.NoError(t, ob.Create(context.Background(), msg))
	return msg
}

func newTestProcessor(ob repository.OutboxStore, maxRetries int) *Processor {
	return NewProcessor(ob, ProcessorConfig{
		PollingInterval: 10 * time.Millisecond,
		BatchSize:       10,
		MaxRetries:      maxRetries,
		BackoffStrategy: &retry.ConstantBackoff{Interval: 0},
	}, logger.NewNop())
}

func TestProcessor_DeliversMessage(t *testing.T) {
	ob := repository.NewMemoryOutbox()
	msg := enqueue(t, ob, models.EventOrderCreated)

	p := newTestProcessor(ob, 3)
	h := &flakyHandler{}
	p.RegisterAll(h)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := ob.Messages()[0]
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, models.OutboxStatusCompleted, got.Status)
	assert.NotNil(t, got.ProcessedAt)
}

func TestProcessor_RetriesThenSucceeds(t *testing.T) {
	ob := repository.NewMemoryOutbox()
	enqueue(t, ob, models.EventOrderUpdated)

	p := newTestProcessor(ob, 3)
	h := &flakyHandler{failures: 1}
	p.RegisterHandler(models.EventOrderUpdated, h)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.OutboxStatusPending, ob.Messages()[0].Status)

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := ob.Messages()[0]
	assert.Equal(t, models.OutboxStatusCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessingAttempts)
}

func TestProcessor_GivesUpAfterMaxRetries(t *testing.T) {
	ob := repository.NewMemoryOutbox()
	enqueue(t, ob, models.EventOrderDeleted)

	p := newTestProcessor(ob, 2)
	p.RegisterAll(&flakyHandler{failures: 100})

	for i := 0; i < 3; i++ {
		_, err := p.ProcessBatch(context.Background())
		require.NoError(t, err)
	}

	got := ob.Messages()[0]
	assert.Equal(t, models.OutboxStatusFailed, got.Status)
	assert.Equal(t, 2, got.ProcessingAttempts)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "max retries reached")
}

func TestProcessor_UnknownEventType(t *testing.T) {
	ob := repository.NewMemoryOutbox()
	enqueue(t, ob, "order_teleported")

	p := newTestProcessor(ob, 3)
	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.OutboxStatusFailed, ob.Messages()[0].Status)
}

func TestProcessor_StartStop(t *testing.T) {
	ob := repository.NewMemoryOutbox()
	enqueue(t, ob, models.EventOrderStale)

	p := newTestProcessor(ob, 3)
	p.RegisterAll(NewLoggingHandler(logger.NewNop()))

	p.Start()
	p.Start()

	assert.Eventually(t, func() bool {
		return ob.Messages()[0].Status == models.OutboxStatusCompleted
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
}

func TestKafkaHandler_Publishes(t *testing.T) {
	mock := mocks.NewSyncProducer(t, kafka.NewProducerConfig())
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	producer := kafka.NewProducerFrom(mock, logger.NewNop())
	defer producer.Close()

	h := NewKafkaHandler(producer, "orders", logger.NewNop())

	msg, err := models.NewOrderEvent(models.EventOrderCreated, "order-1", map[string]string{})
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), msg))
	assert.ErrorIs(t, h.HandleMessage(context.Background(), msg), sarama.ErrNotLeaderForPartition)
}

func TestLoggingHandler_RejectsBadPayload(t *testing.T) {
	h := NewLoggingHandler(logger.NewNop())
	err := h.HandleMessage(context.Background(), &models.OutboxMessage{Payload: []byte("not json")})
	assert.Error(t, err)
}

func TestProcessor_OpenCircuitLeavesMessagesPending(t *testing.T) {
	ob := repository.NewMemoryOutbox()
	enqueue(t, ob, models.EventOrderUpdated)

	mock := mocks.NewSyncProducer(t, kafka.NewProducerConfig())
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mock.ExpectSendMessageAndSucceed()

	producer := kafka.NewProducerFrom(mock, logger.NewNop())
	defer producer.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, ResetTimeout: time.Minute}).
		WithClock(func() time.Time { return now })

	p := newTestProcessor(ob, 5)
	p.RegisterAll(NewKafkaHandler(producer, "orders", logger.NewNop()).WithBreaker(cb))
	ctx := context.Background()

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())
	assert.Equal(t, 1, ob.Messages()[0].ProcessingAttempts)

	// open circuit: the message is not attempted again
	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, ob.Messages()[0].ProcessingAttempts)
	assert.Equal(t, models.OutboxStatusPending, ob.Messages()[0].Status)

	now = now.Add(time.Minute)
	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
	assert.Equal(t, models.OutboxStatusCompleted, ob.Messages()[0].Status)
}

// deadlineOutbox rejects status writes once their context is done, as a
// database driver does
type deadlineOutbox struct {
	*repository.MemoryOutbox
}

func (o deadlineOutbox) MarkAsCompleted(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.MemoryOutbox.MarkAsCompleted(ctx, id)
}

func (o deadlineOutbox) ReleaseForRetry(ctx context.Context, id int64, errorMessage string, availableAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.MemoryOutbox.ReleaseForRetry(ctx, id, errorMessage, availableAt)
}

func (o deadlineOutbox) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.MemoryOutbox.MarkAsFailed(ctx, id, errorMessage)
}

// slowHandler ignores its context and outlasts the polling interval
type slowHandler struct {
	delay time.Duration
	err   error
}

func (h slowHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	time.Sleep(h.delay)
	return h.err
}

func TestProcessor_RecordsOutcomeAfterBatchDeadline(t *testing.T) {
	ob := deadlineOutbox{repository.NewMemoryOutbox()}
	enqueue(t, ob, models.EventOrderCreated)
	enqueue(t, ob, models.EventOrderUpdated)

	p := newTestProcessor(ob, 3)
	p.RegisterHandler(models.EventOrderCreated, slowHandler{delay: 30 * time.Millisecond})
	p.RegisterHandler(models.EventOrderUpdated, slowHandler{delay: 30 * time.Millisecond, err: errors.New("broker unavailable")})

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	messages := ob.Messages()
	assert.Equal(t, models.OutboxStatusCompleted, messages[0].Status)
	assert.Equal(t, models.OutboxStatusPending, messages[1].Status)
	assert.Zero(t, messages[1].ProcessingAttempts, "not claimed after the deadline")

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	messages = ob.Messages()
	assert.Equal(t, models.OutboxStatusPending, messages[1].Status)
	assert.Equal(t, 1, messages[1].ProcessingAttempts)
	require.NotNil(t, messages[1].LastError)
	assert.Equal(t, "broker unavailable", *messages[1].LastError)
}

func TestProcessor_RequeuesStuckMessages(t *testing.T) {
	ob := repository.NewMemoryOutbox()
	ctx := context.Background()

	stuck := enqueue(t, ob, models.EventOrderCreated)
	require.NoError(t, ob.MarkAsProcessing(ctx, stuck.ID))

	p := NewProcessor(ob, ProcessorConfig{
		PollingInterval:   10 * time.Millisecond,
		MaxRetries:        3,
		BackoffStrategy:   &retry.ConstantBackoff{Interval: 0},
		ProcessingTimeout: time.Minute,
	}, logger.NewNop())
	h := &flakyHandler{}
	p.RegisterAll(h)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a recent claim is not taken over")
	assert.Equal(t, models.OutboxStatusProcessing, ob.Messages()[0].Status)

	p.now = func() time.Time { return models.GetCurrentTime().Add(2 * time.Minute) }

	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := ob.Messages()[0]
	assert.Equal(t, models.OutboxStatusCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessingAttempts)
	assert.Equal(t, 1, h.calls)
}
