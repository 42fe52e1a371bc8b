package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         TopologyConfig
	Logging        LoggingConfig
	PushGateway    PushGatewayConfig
	Notification   NotificationConfig
	Audit          AuditConfig
	CircuitBreaker CircuitBreakerConfig
	RateLimit      RateLimitConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	MongoDB MongoDBConfig
	Redis   RedisConfig
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// TopologyConfig declares the broker connection and the exchange/queue
// topology. It is validated by internal/schema before any network call.
type TopologyConfig struct {
	Connection ConnectionConfig `mapstructure:"connection" validate:"required"`
	Exchanges  []ExchangeConfig `mapstructure:"exchanges" validate:"required,min=1,dive"`
}

type ConnectionConfig struct {
	Details ConnectionDetails `mapstructure:"details" validate:"required"`
	Options ConnectionOptions `mapstructure:"options"`
}

type ConnectionDetails struct {
	Host string `mapstructure:"host" validate:"required,min=3"`
}

type ConnectionOptions struct {
	HeartbeatSeconds int    `mapstructure:"heartbeat_seconds"`
	Vhost            string `mapstructure:"vhost"`
	ChannelMax       int    `mapstructure:"channel_max"`
}

type ExchangeConfig struct {
	Name       string          `mapstructure:"name" validate:"required,min=1"`
	Type       string          `mapstructure:"type" validate:"required,oneof=direct fanout topic headers"`
	RoutingKey string          `mapstructure:"routing_key"`
	Options    ExchangeOptions `mapstructure:"options"`
	Queues     []QueueConfig   `mapstructure:"queues" validate:"required,min=1,dive"`
}

type ExchangeOptions struct {
	Durable    bool `mapstructure:"durable"`
	AutoDelete bool `mapstructure:"auto_delete"`
	Internal   bool `mapstructure:"internal"`
}

type QueueConfig struct {
	Name               string         `mapstructure:"name" validate:"required,min=1"`
	RoutingKey         string         `mapstructure:"routing_key"`
	ConsumptionOptions ConsumeOptions `mapstructure:"consumption_options" validate:"required"`
	PublishOptions     QueueOptions   `mapstructure:"publish_options"`
}

type ConsumeOptions struct {
	PrefetchCount    int  `mapstructure:"prefetchCount" validate:"required,min=1"`
	RequeueOnFailure bool `mapstructure:"requeue_on_failure"`
}

type QueueOptions struct {
	Durable    bool `mapstructure:"durable"`
	AutoDelete bool `mapstructure:"auto_delete"`
	Exclusive  bool `mapstructure:"exclusive"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PushGatewayConfig struct {
	URL            string        `mapstructure:"url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type NotificationConfig struct {
	Queue              string `mapstructure:"queue"`
	MessageLockSeconds int    `mapstructure:"message_lock_seconds"`
	DeviceLockSeconds  int    `mapstructure:"device_lock_seconds"`
}

// AuditConfig drives the optional delivery-outcome stream. Disabled when
// no brokers are configured.
type AuditConfig struct {
	Brokers []string    `mapstructure:"brokers"`
	Topic   string      `mapstructure:"topic"`
	Retry   RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
