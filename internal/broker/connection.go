package broker

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"notifier/internal/config"
	"notifier/internal/logger"
)

// ConnectionManager owns at most one live broker connection and a cache of
// channels keyed by exchange name. The connection is established lazily on
// the first publish or consume attempt. Construct one per process and pass
// it into both producer and consumer.
type ConnectionManager struct {
	cfg    config.ConnectionConfig
	dial   Dialer
	logger logger.Logger

	mu       sync.Mutex
	conn     Connection
	channels map[string]Channel
}

func NewConnectionManager(cfg config.ConnectionConfig, log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		cfg:      cfg,
		dial:     defaultDialer,
		logger:   log,
		channels: make(map[string]Channel),
	}
}

// SetDialer replaces the dial function. Intended for tests.
func (m *ConnectionManager) SetDialer(dial Dialer) {
	m.dial = dial
}

// Connection returns the live connection, dialing if necessary.
func (m *ConnectionManager) Connection() (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectionLocked()
}

func (m *ConnectionManager) connectionLocked() (Connection, error) {
	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn, nil
	}

	// A closed connection invalidates every cached channel with it.
	m.channels = make(map[string]Channel)

	amqpCfg := amqp.Config{
		Vhost:      m.cfg.Options.Vhost,
		ChannelMax: uint16(m.cfg.Options.ChannelMax),
	}
	if m.cfg.Options.HeartbeatSeconds > 0 {
		amqpCfg.Heartbeat = time.Duration(m.cfg.Options.HeartbeatSeconds) * time.Second
	}

	conn, err := m.dial(m.cfg.Details.Host, amqpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker at %s: %w", m.cfg.Details.Host, err)
	}

	m.logger.Infow("Broker connection established", "host", m.cfg.Details.Host)
	m.conn = conn
	return conn, nil
}

// ChannelFor returns the cached channel for an exchange, opening one if
// absent. Two concurrent callers racing on a new exchange resolve
// last-write-wins; the superseded channel is closed.
func (m *ConnectionManager) ChannelFor(exchangeName string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[exchangeName]; ok {
		return ch, nil
	}

	conn, err := m.connectionLocked()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for exchange %s: %w", exchangeName, err)
	}

	if prev, ok := m.channels[exchangeName]; ok {
		prev.Close()
	}
	m.channels[exchangeName] = ch
	return ch, nil
}

// InvalidateChannel drops a cached channel after a publish error so the
// next call reopens it.
func (m *ConnectionManager) InvalidateChannel(exchangeName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[exchangeName]; ok {
		ch.Close()
		delete(m.channels, exchangeName)
	}
}

func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, ch := range m.channels {
		ch.Close()
		delete(m.channels, name)
	}

	if m.conn == nil {
		return nil
	}

	err := m.conn.Close()
	m.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close broker connection: %w", err)
	}
	return nil
}
