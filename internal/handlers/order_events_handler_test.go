package handlers

import (
	"context"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/pkg/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func consumerMessage(t *testing.T, eventType, orderID string, data interface{}) *sarama.ConsumerMessage {
	t.Helper()

	msg, err := models.NewOrderEvent(eventType, orderID, data)
	require.NoError(t, err)

	return &sarama.ConsumerMessage{
		Topic: "orders",
		Key:   []byte(orderID),
		Value: msg.Payload,
		Headers: []*sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}
}

func TestOrderEventsHandler_StatusChange(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewOrderEventsHandler(logger.FromZap(zap.New(core)))

	order := &models.Order{ID: "o-1", Stages: models.Stages{SentToDelhi: true}}
	msg := consumerMessage(t, models.EventOrderUpdated, "o-1", models.StatusChange{
		Order:     order,
		OldStatus: "Ready",
		NewStatus: "Dispatched",
	})

	require.NoError(t, h.HandleMessage(context.Background(), msg))

	entries := logs.FilterMessage("Order status changed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "Ready", fields["oldStatus"])
	assert.Equal(t, "Dispatched", fields["newStatus"])
	assert.Equal(t, "Fulfilled", fields["fulfillment"])
	assert.Equal(t, 1, h.Seen()[models.EventOrderUpdated])
}

func TestOrderEventsHandler_Stale(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewOrderEventsHandler(logger.FromZap(zap.New(core)))

	msg := consumerMessage(t, models.EventOrderStale, "o-2", models.StaleOrderData{
		OrderID: "o-2", CustomerName: "Asha", Amount: "80", DaysSinceUpdate: 6,
	})

	require.NoError(t, h.HandleMessage(context.Background(), msg))
	require.Equal(t, 1, logs.FilterMessage("Order needs follow-up").Len())
}

func TestOrderEventsHandler_AllTypes(t *testing.T) {
	h := NewOrderEventsHandler(logger.NewNop())
	ctx := context.Background()

	order := &models.Order{ID: "o-3", OrderNumber: "KM-3"}
	require.NoError(t, h.HandleMessage(ctx, consumerMessage(t, models.EventOrderCreated, "o-3", order)))
	require.NoError(t, h.HandleMessage(ctx, consumerMessage(t, models.EventOrderArchived, "o-3", order)))
	require.NoError(t, h.HandleMessage(ctx, consumerMessage(t, models.EventOrderDeleted, "o-3", models.OrderRef{OrderID: "o-3"})))
	require.NoError(t, h.HandleMessage(ctx, consumerMessage(t, "order_unknown", "o-3", nil)))

	assert.Equal(t, map[string]int{
		models.EventOrderCreated:  1,
		models.EventOrderArchived: 1,
		models.EventOrderDeleted:  1,
	}, h.Seen())
}

func TestOrderEventsHandler_BadPayload(t *testing.T) {
	h := NewOrderEventsHandler(logger.NewNop())

	err := h.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")})
	assert.Error(t, err)

	bad := consumerMessage(t, models.EventOrderUpdated, "o-4", "not an object")
	assert.Error(t, h.HandleMessage(context.Background(), bad))
}
