package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"notifier/internal/config"
	"notifier/internal/logger"
	"notifier/internal/schema"
	"notifier/pkg/logging"
	"notifier/pkg/metrics"
	"notifier/pkg/models"
	"notifier/pkg/tracing"
)

// Consumer subscribes to every queue declared in the topology config and
// dispatches validated messages to registered handlers.
//
// Per-message protocol: invalid JSON or a schema violation is logged,
// acknowledged and dropped (malformed input is unrecoverable noise, not a
// retry candidate). A missing handler acks and drops rather than blocking
// the queue. A handler returning false rejects the message, which requeues
// or dead-letters it per broker policy; that is the only retry path.
type Consumer struct {
	cfg      config.TopologyConfig
	manager  *ConnectionManager
	registry *Registry
	logger   logger.Logger

	mu       sync.Mutex
	channels []Channel
	wg       sync.WaitGroup
}

func NewConsumer(cfg config.TopologyConfig, manager *ConnectionManager, registry *Registry, log logger.Logger) *Consumer {
	return &Consumer{
		cfg:      cfg,
		manager:  manager,
		registry: registry,
		logger:   log,
	}
}

// Start validates the topology and the handler registry, connects, and
// begins consuming from every configured queue. A connection failure here
// is returned to the caller, which is expected to terminate the process;
// a consumer with no broker connection has no other useful function.
func (c *Consumer) Start(ctx context.Context) error {
	if errs := schema.ValidateTopology(&c.cfg); errs != nil {
		return fmt.Errorf("invalid topology config: %w", errs)
	}

	queues := c.allQueues()
	names := make([]string, len(queues))
	for i, q := range queues {
		names[i] = q.Name
	}
	if err := c.registry.Validate(names); err != nil {
		return fmt.Errorf("handler registry incomplete: %w", err)
	}

	conn, err := c.manager.Connection()
	if err != nil {
		return fmt.Errorf("problem connecting to broker when trying to consume: %w", err)
	}

	for _, queue := range queues {
		if err := c.subscribe(ctx, conn, queue); err != nil {
			return err
		}
	}

	return nil
}

func (c *Consumer) allQueues() []config.QueueConfig {
	var queues []config.QueueConfig
	for _, exchange := range c.cfg.Exchanges {
		queues = append(queues, exchange.Queues...)
	}
	return queues
}

func (c *Consumer) subscribe(ctx context.Context, conn Connection, queue config.QueueConfig) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel for queue %s: %w", queue.Name, err)
	}

	q, err := ch.QueueDeclare(
		queue.Name,
		queue.PublishOptions.Durable,
		queue.PublishOptions.AutoDelete,
		queue.PublishOptions.Exclusive,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to assert queue %s: %w", queue.Name, err)
	}

	// The prefetch count is the backpressure bound: the broker hands the
	// process no more than this many unacknowledged messages at once.
	if err := ch.Qos(queue.ConsumptionOptions.PrefetchCount, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set prefetch for queue %s: %w", queue.Name, err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to start consuming from queue %s: %w", queue.Name, err)
	}

	c.mu.Lock()
	c.channels = append(c.channels, ch)
	c.mu.Unlock()

	c.logger.Infow("Started consuming",
		"queue", queue.Name,
		"prefetch_count", queue.ConsumptionOptions.PrefetchCount,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeLoop(ctx, queue, deliveries)
	}()

	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, queue config.QueueConfig, deliveries <-chan amqp.Delivery) {
	queueCtx := logging.WithQueue(ctx, queue.Name)

	for delivery := range deliveries {
		c.handleDelivery(queueCtx, queue, delivery)
	}

	c.logger.InfowCtx(queueCtx, "Stopped consuming", "queue", queue.Name)
}

func (c *Consumer) handleDelivery(ctx context.Context, queue config.QueueConfig, delivery amqp.Delivery) {
	msg, err := models.Decode(delivery.Body)
	if err != nil {
		c.logger.ErrorwCtx(ctx, "Incorrect message structure given to consumer",
			"queue", queue.Name,
			"error", err,
		)
		_ = delivery.Ack(false)
		metrics.MessagesConsumedTotal.WithLabelValues(queue.Name, "dropped_invalid").Inc()
		return
	}

	if errs := schema.ValidateMessage(&msg); errs != nil {
		c.logger.ErrorwCtx(ctx, "Incorrect message structure given to consumer",
			"queue", queue.Name,
			"errors", errs.Error(),
		)
		_ = delivery.Ack(false)
		metrics.MessagesConsumedTotal.WithLabelValues(queue.Name, "dropped_invalid").Inc()
		return
	}

	handler, ok := c.registry.Handler(queue.Name)
	if !ok {
		c.logger.ErrorwCtx(ctx, "Could not find a handler for queue",
			"queue", queue.Name,
		)
		_ = delivery.Ack(false)
		metrics.MessagesConsumedTotal.WithLabelValues(queue.Name, "dropped_no_handler").Inc()
		return
	}

	c.dispatch(ctx, queue, handler, msg, delivery)
}

// dispatch runs the handler inside a monitored span. The span is opened
// before the handler is invoked and ended exactly once whichever branch is
// taken, including a handler panic.
func (c *Consumer) dispatch(ctx context.Context, queue config.QueueConfig, handler Handler, msg models.Message, delivery amqp.Delivery) {
	start := time.Now()
	dispatchCtx, span := tracing.StartSpanFromDelivery(ctx, "consume/message/"+queue.Name, delivery.Headers)
	defer span.End()

	ok := c.invoke(dispatchCtx, queue.Name, handler, msg)
	status := "acked"

	if ok {
		c.logger.InfowCtx(dispatchCtx, "Consumed message from queue",
			"queue", queue.Name,
			"action", msg.DataArea.Process.Action,
		)
		_ = delivery.Ack(false)
	} else {
		c.logger.ErrorwCtx(dispatchCtx, "Failed to consume the message from queue",
			"queue", queue.Name,
			"action", msg.DataArea.Process.Action,
		)
		_ = delivery.Reject(queue.ConsumptionOptions.RequeueOnFailure)
		status = "rejected"
	}

	metrics.MessagesConsumedTotal.WithLabelValues(queue.Name, status).Inc()
	metrics.ObserveHandlingDuration(queue.Name, status, time.Since(start))
}

func (c *Consumer) invoke(ctx context.Context, queueName string, handler Handler, msg models.Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorwCtx(ctx, "Panic recovered during message handling",
				"queue", queueName,
				"panic", r,
			)
			ok = false
		}
	}()
	return handler.HandleMessage(ctx, msg)
}

// Close stops the per-queue channels and waits for in-flight dispatches.
func (c *Consumer) Close() error {
	c.mu.Lock()
	channels := c.channels
	c.channels = nil
	c.mu.Unlock()

	var firstErr error
	for _, ch := range channels {
		if err := ch.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.wg.Wait()
	return firstErr
}
