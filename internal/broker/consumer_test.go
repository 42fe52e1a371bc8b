package broker

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/config"
	"notifier/internal/logger"
	"notifier/pkg/models"
)

func newTestConsumer(t *testing.T, cfg config.TopologyConfig, registry *Registry) (*Consumer, *fakeConnection) {
	t.Helper()

	conn := &fakeConnection{}
	manager := NewConnectionManager(cfg.Connection, logger.NopLogger())
	manager.SetDialer(func(url string, amqpCfg amqp.Config) (Connection, error) {
		return conn, nil
	})

	return NewConsumer(cfg, manager, registry, logger.NopLogger()), conn
}

func delivery(body []byte, ack *fakeAcknowledger) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		Body:         body,
	}
}

func TestConsumerDropsInvalidJSON(t *testing.T) {
	registry := NewRegistry()
	handler := &recordingHandler{result: true}
	require.NoError(t, registry.Register("push-notifications", handler))

	consumer, _ := newTestConsumer(t, testTopology(), registry)
	queue := testTopology().Exchanges[0].Queues[0]

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), queue, delivery([]byte("{not json"), ack))

	assert.True(t, ack.acked, "malformed message must be acked away")
	assert.False(t, ack.rejected)
	assert.Zero(t, handler.count(), "handler must not see malformed input")
}

func TestConsumerDropsSchemaViolations(t *testing.T) {
	registry := NewRegistry()
	handler := &recordingHandler{result: true}
	require.NoError(t, registry.Register("push-notifications", handler))

	consumer, _ := newTestConsumer(t, testTopology(), registry)
	queue := testTopology().Exchanges[0].Queues[0]

	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing action",
			body: `{"dataArea": {"process": {}}, "applicationArea": {"dateCreated": "2026-01-15"}}`,
		},
		{
			name: "action too short",
			body: `{"dataArea": {"process": {"action": "ab"}}, "applicationArea": {"dateCreated": "2026-01-15"}}`,
		},
		{
			name: "missing dateCreated",
			body: `{"dataArea": {"process": {"action": "notify"}}, "applicationArea": {}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			consumer.handleDelivery(context.Background(), queue, delivery([]byte(tt.body), ack))

			assert.True(t, ack.acked)
			assert.False(t, ack.rejected)
		})
	}

	assert.Zero(t, handler.count())
}

func TestConsumerAcksWhenNoHandlerRegistered(t *testing.T) {
	consumer, _ := newTestConsumer(t, testTopology(), NewRegistry())
	queue := testTopology().Exchanges[0].Queues[0]

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), queue, delivery(validWireMessage(), ack))

	assert.True(t, ack.acked)
	assert.False(t, ack.rejected)
}

func TestConsumerAcksOnHandlerSuccess(t *testing.T) {
	registry := NewRegistry()
	handler := &recordingHandler{result: true}
	require.NoError(t, registry.Register("push-notifications", handler))

	consumer, _ := newTestConsumer(t, testTopology(), registry)
	queue := testTopology().Exchanges[0].Queues[0]

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), queue, delivery(validWireMessage(), ack))

	assert.True(t, ack.acked)
	assert.False(t, ack.rejected)
	require.Equal(t, 1, handler.count())
	assert.Equal(t, "notify", handler.messages[0].DataArea.Process.Action)
}

func TestConsumerRejectsOnHandlerFailure(t *testing.T) {
	tests := []struct {
		name        string
		requeue     bool
		wantRequeue bool
	}{
		{
			name:        "dead-letter by default",
			requeue:     false,
			wantRequeue: false,
		},
		{
			name:        "requeue when configured",
			requeue:     true,
			wantRequeue: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testTopology()
			cfg.Exchanges[0].Queues[0].ConsumptionOptions.RequeueOnFailure = tt.requeue

			registry := NewRegistry()
			require.NoError(t, registry.Register("push-notifications", &recordingHandler{result: false}))

			consumer, _ := newTestConsumer(t, cfg, registry)

			ack := &fakeAcknowledger{}
			consumer.handleDelivery(context.Background(), cfg.Exchanges[0].Queues[0], delivery(validWireMessage(), ack))

			assert.False(t, ack.acked)
			assert.True(t, ack.rejected)
			assert.Equal(t, tt.wantRequeue, ack.requeue)
		})
	}
}

func TestConsumerRejectsOnHandlerPanic(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("push-notifications", HandlerFunc(func(ctx context.Context, msg models.Message) bool {
		panic("handler exploded")
	})))

	consumer, _ := newTestConsumer(t, testTopology(), registry)
	queue := testTopology().Exchanges[0].Queues[0]

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), queue, delivery(validWireMessage(), ack))

	assert.False(t, ack.acked)
	assert.True(t, ack.rejected)
}

func TestConsumerStartConsumesFromTopology(t *testing.T) {
	registry := NewRegistry()
	handler := &recordingHandler{result: true}
	require.NoError(t, registry.Register("push-notifications", handler))

	consumer, conn := newTestConsumer(t, testTopology(), registry)

	require.NoError(t, consumer.Start(context.Background()))
	require.Len(t, conn.channels, 1)

	ch := conn.channels[0]
	assert.Equal(t, []string{"push-notifications"}, ch.declaredQueues)
	assert.Equal(t, 5, ch.qosPrefetch)

	ack := &fakeAcknowledger{}
	ch.deliveries <- delivery(validWireMessage(), ack)
	close(ch.deliveries)

	require.NoError(t, consumer.Close())
	assert.Equal(t, 1, handler.count())
	assert.True(t, ack.acked)
}

func TestConsumerStartFailsOnMissingHandler(t *testing.T) {
	consumer, conn := newTestConsumer(t, testTopology(), NewRegistry())

	err := consumer.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push-notifications")
	assert.Empty(t, conn.channels, "no subscription with an incomplete registry")
}

func TestConsumerStartFailsOnInvalidTopology(t *testing.T) {
	cfg := testTopology()
	cfg.Connection.Details.Host = ""

	registry := NewRegistry()
	require.NoError(t, registry.Register("push-notifications", &recordingHandler{result: true}))

	consumer, _ := newTestConsumer(t, cfg, registry)
	err := consumer.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid topology config")
}

func TestConsumerStartReturnsConnectionError(t *testing.T) {
	cfg := testTopology()
	registry := NewRegistry()
	require.NoError(t, registry.Register("push-notifications", &recordingHandler{result: true}))

	manager := NewConnectionManager(cfg.Connection, logger.NopLogger())
	manager.SetDialer(func(url string, amqpCfg amqp.Config) (Connection, error) {
		return nil, errors.New("connection refused")
	})

	consumer := NewConsumer(cfg, manager, registry, logger.NopLogger())
	err := consumer.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "problem connecting to broker")
}
