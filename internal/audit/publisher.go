package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"notifier/internal/config"
	"notifier/internal/logger"
	"notifier/internal/push"
	"notifier/pkg/metrics"
	"notifier/pkg/retry"
	"notifier/pkg/tracing"
)

// Record is one delivery attempt written to the audit stream.
type Record struct {
	NotificationID string               `json:"notification_id"`
	MulticastID    int64                `json:"multicast_id,omitempty"`
	Action         string               `json:"action"`
	Outcomes       []push.DeviceOutcome `json:"outcomes,omitempty"`
	Error          string               `json:"error,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

// Publisher writes delivery outcomes to Kafka. A nil Publisher is valid and
// drops records, so callers never need to branch on whether auditing is on.
type Publisher struct {
	writer *kafka.Writer
	policy retry.Policy
	logger logger.Logger
}

// NewPublisher returns nil when no brokers are configured.
func NewPublisher(cfg config.AuditConfig, log logger.Logger) *Publisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Async:        false,
	}

	policy := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = cfg.Retry.InitialInterval
	}
	if cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = cfg.Retry.MaxInterval
	}
	if cfg.Retry.Multiplier > 0 {
		policy.Multiplier = cfg.Retry.Multiplier
	}
	if cfg.Retry.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.Retry.MaxElapsedTime
	}

	return &Publisher{writer: w, policy: policy, logger: log}
}

func (p *Publisher) Publish(ctx context.Context, record Record) error {
	if p == nil {
		return nil
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	headers := tracing.InjectKafkaTraceContext(ctx, nil)

	err = retry.RetryWithCallback(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, kafka.Message{
			Key:     []byte(record.NotificationID),
			Value:   body,
			Headers: headers,
			Time:    time.Now(),
		})
	}, func(attempt int, err error, nextDelay time.Duration) {
		p.logger.WarnwCtx(ctx, "Retrying audit record publish",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})

	if err != nil {
		metrics.AuditRecordsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	metrics.AuditRecordsTotal.WithLabelValues("published").Inc()
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
