package integration

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/broker"
	"notifier/internal/config"
	"notifier/pkg/models"
)

func newBrokerFixture(t *testing.T, topology config.TopologyConfig) (*broker.Producer, *broker.ConnectionManager) {
	t.Helper()

	manager := broker.NewConnectionManager(topology.Connection, createTestLogger())
	t.Cleanup(func() {
		manager.Close()
	})

	return broker.NewProducer(topology, manager, createTestLogger()), manager
}

func TestBroker_PublishConsume(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	topology := createTestTopology(infra.BrokerURL, "notifications", "push-notifications")

	producer, manager := newBrokerFixture(t, topology)

	received := make(chan models.Message, 1)
	registry := broker.NewRegistry()
	require.NoError(t, registry.Register("push-notifications", broker.HandlerFunc(
		func(ctx context.Context, msg models.Message) bool {
			received <- msg
			return true
		})))

	consumer := broker.NewConsumer(topology, manager, registry, createTestLogger())
	t.Cleanup(func() {
		consumer.Close()
	})

	ctx := context.Background()
	require.NoError(t, consumer.Start(ctx))

	sent := createTestMessage("notify", &models.Notification{
		ID:              "n-1",
		Title:           "hello",
		RegistrationIDs: []string{"dev1"},
	})
	require.NoError(t, producer.Publish(ctx, "notifications", sent))

	select {
	case msg := <-received:
		assert.Equal(t, "notify", msg.DataArea.Process.Action)
		require.NotNil(t, msg.DataArea.Notification)
		assert.Equal(t, "n-1", msg.DataArea.Notification.ID)
		assert.Equal(t, []string{"dev1"}, msg.DataArea.Notification.RegistrationIDs)
	case <-time.After(10 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestBroker_UnknownSectionsSurviveTransit(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	topology := createTestTopology(infra.BrokerURL, "notifications", "push-notifications")

	producer, manager := newBrokerFixture(t, topology)

	wire := []byte(`{
		"dataArea": {"process": {"action": "notify"}},
		"applicationArea": {"dateCreated": "2026-01-15T10:00:00Z"},
		"customArea": {"tenant": "acme", "nested": {"deep": [1, 2, 3]}}
	}`)
	sent, err := models.Decode(wire)
	require.NoError(t, err)

	received := make(chan models.Message, 1)
	registry := broker.NewRegistry()
	require.NoError(t, registry.Register("push-notifications", broker.HandlerFunc(
		func(ctx context.Context, msg models.Message) bool {
			received <- msg
			return true
		})))

	consumer := broker.NewConsumer(topology, manager, registry, createTestLogger())
	t.Cleanup(func() {
		consumer.Close()
	})

	ctx := context.Background()
	require.NoError(t, consumer.Start(ctx))
	require.NoError(t, producer.Publish(ctx, "notifications", sent))

	select {
	case msg := <-received:
		encoded, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.JSONEq(t, string(wire), string(encoded))
	case <-time.After(10 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestBroker_RejectedMessageIsRedelivered(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	topology := createTestTopology(infra.BrokerURL, "notifications", "push-notifications")
	topology.Exchanges[0].Queues[0].ConsumptionOptions.RequeueOnFailure = true

	producer, manager := newBrokerFixture(t, topology)

	var attempts atomic.Int32
	done := make(chan struct{})
	registry := broker.NewRegistry()
	require.NoError(t, registry.Register("push-notifications", broker.HandlerFunc(
		func(ctx context.Context, msg models.Message) bool {
			if attempts.Add(1) == 1 {
				return false
			}
			close(done)
			return true
		})))

	consumer := broker.NewConsumer(topology, manager, registry, createTestLogger())
	t.Cleanup(func() {
		consumer.Close()
	})

	ctx := context.Background()
	require.NoError(t, consumer.Start(ctx))
	require.NoError(t, producer.Publish(ctx, "notifications",
		createTestMessage("notify", &models.Notification{ID: "n-2"})))

	select {
	case <-done:
		assert.GreaterOrEqual(t, attempts.Load(), int32(2))
	case <-time.After(10 * time.Second):
		t.Fatal("message was not redelivered after reject")
	}
}

func TestBroker_RepeatedPublishesReassertTopology(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	topology := createTestTopology(infra.BrokerURL, "notifications", "push-notifications")

	producer, manager := newBrokerFixture(t, topology)

	received := make(chan models.Message, 3)
	registry := broker.NewRegistry()
	require.NoError(t, registry.Register("push-notifications", broker.HandlerFunc(
		func(ctx context.Context, msg models.Message) bool {
			received <- msg
			return true
		})))

	consumer := broker.NewConsumer(topology, manager, registry, createTestLogger())
	t.Cleanup(func() {
		consumer.Close()
	})

	ctx := context.Background()
	require.NoError(t, consumer.Start(ctx))

	for i := 0; i < 3; i++ {
		require.NoError(t, producer.Publish(ctx, "notifications",
			createTestMessage("notify", &models.Notification{ID: "n-3"})))
	}

	for i := 0; i < 3; i++ {
		select {
		case <-received:
		case <-time.After(10 * time.Second):
			t.Fatalf("message %d was not delivered", i+1)
		}
	}
}
