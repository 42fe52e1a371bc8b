package broker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"notifier/internal/config"
	"notifier/internal/logger"
	"notifier/internal/schema"
	"notifier/pkg/metrics"
	"notifier/pkg/models"
	"notifier/pkg/tracing"
)

// Producer publishes messages onto configured exchanges. Topology is
// re-asserted on every publish rather than once at startup; the assertions
// are idempotent and keep the producer resilient to broker restarts.
type Producer struct {
	cfg     config.TopologyConfig
	manager *ConnectionManager
	logger  logger.Logger
}

func NewProducer(cfg config.TopologyConfig, manager *ConnectionManager, log logger.Logger) *Producer {
	return &Producer{
		cfg:     cfg,
		manager: manager,
		logger:  log,
	}
}

// Publish validates the topology config and the message, then publishes
// onto the named exchange, binding every configured queue first. No
// publisher confirm is awaited; from the producer's own perspective
// delivery is at-most-once once the broker accepts the frame.
func (p *Producer) Publish(ctx context.Context, exchangeName string, msg models.Message) error {
	if errs := schema.ValidateTopology(&p.cfg); errs != nil {
		return fmt.Errorf("invalid topology config: %w", errs)
	}

	if errs := schema.ValidateMessage(&msg); errs != nil {
		p.logger.ErrorwCtx(ctx, "Incorrect message structure",
			"exchange", exchangeName,
			"errors", errs.Error(),
		)
		metrics.MessagesPublishedTotal.WithLabelValues(exchangeName, "invalid").Inc()
		return fmt.Errorf("invalid message structure: %w", errs)
	}

	exchange := p.findExchange(exchangeName)
	if exchange == nil {
		return fmt.Errorf("exchange %s is not declared in topology config", exchangeName)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	ch, err := p.manager.ChannelFor(exchangeName)
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Problem connecting to broker when trying to publish",
			"exchange", exchangeName,
			"error", err,
		)
		metrics.MessagesPublishedTotal.WithLabelValues(exchangeName, "connection_error").Inc()
		return err
	}

	if err := p.assertTopology(ch, exchange); err != nil {
		p.manager.InvalidateChannel(exchangeName)
		p.logger.ErrorwCtx(ctx, "Unexpected error when binding queues to exchange",
			"exchange", exchangeName,
			"error", err,
		)
		metrics.MessagesPublishedTotal.WithLabelValues(exchangeName, "topology_error").Inc()
		return err
	}

	err = ch.PublishWithContext(ctx, exchangeName, p.routingKey(exchange), false, false, amqp.Publishing{
		ContentType: "application/json",
		Headers:     tracing.InjectTraceContext(ctx, nil),
		Body:        body,
	})
	if err != nil {
		p.manager.InvalidateChannel(exchangeName)
		metrics.MessagesPublishedTotal.WithLabelValues(exchangeName, "error").Inc()
		return fmt.Errorf("failed to publish to exchange %s: %w", exchangeName, err)
	}

	p.logger.InfowCtx(ctx, "Sent message to exchange",
		"exchange", exchangeName,
		"action", msg.DataArea.Process.Action,
	)
	metrics.MessagesPublishedTotal.WithLabelValues(exchangeName, "published").Inc()
	return nil
}

func (p *Producer) findExchange(name string) *config.ExchangeConfig {
	for i := range p.cfg.Exchanges {
		if p.cfg.Exchanges[i].Name == name {
			return &p.cfg.Exchanges[i]
		}
	}
	return nil
}

// assertTopology re-declares the exchange and re-binds every queue under
// it. assertExchange/assertQueue/bindQueue are idempotent on the broker,
// so repeating this per publish trades a little latency for resilience to
// topology drift.
func (p *Producer) assertTopology(ch Channel, exchange *config.ExchangeConfig) error {
	err := ch.ExchangeDeclare(
		exchange.Name,
		exchange.Type,
		exchange.Options.Durable,
		exchange.Options.AutoDelete,
		exchange.Options.Internal,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to assert exchange %s: %w", exchange.Name, err)
	}

	for _, queue := range exchange.Queues {
		q, err := ch.QueueDeclare(
			queue.Name,
			queue.PublishOptions.Durable,
			queue.PublishOptions.AutoDelete,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to assert queue %s: %w", queue.Name, err)
		}

		if err := ch.QueueBind(q.Name, queue.RoutingKey, exchange.Name, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to exchange %s: %w", queue.Name, exchange.Name, err)
		}
	}

	return nil
}

// routingKey picks the key the message is published with: the exchange's
// own key when configured, otherwise the first queue's binding key.
func (p *Producer) routingKey(exchange *config.ExchangeConfig) string {
	if exchange.RoutingKey != "" {
		return exchange.RoutingKey
	}
	if len(exchange.Queues) > 0 {
		return exchange.Queues[0].RoutingKey
	}
	return ""
}
