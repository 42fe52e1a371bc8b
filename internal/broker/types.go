package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"notifier/pkg/models"
)

// Handler processes one validated message. The return value drives the
// broker acknowledgement: true acks, false rejects (requeue or dead-letter
// per broker policy).
type Handler interface {
	HandleMessage(ctx context.Context, msg models.Message) bool
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg models.Message) bool

func (f HandlerFunc) HandleMessage(ctx context.Context, msg models.Message) bool {
	return f(ctx, msg)
}

// Channel is the subset of *amqp091.Channel the subsystem uses. Tests
// substitute a recording fake.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection is the subset of *amqp091.Connection the subsystem uses.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer establishes a broker connection. The default dialer wraps
// amqp091.DialConfig; tests inject their own.
type Dialer func(url string, cfg amqp.Config) (Connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	return c.Connection.Channel()
}

func defaultDialer(url string, cfg amqp.Config) (Connection, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return amqpConnection{Connection: conn}, nil
}
