package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_consumed_total",
			Help: "Total number of messages received from broker queues (count)",
		},
		[]string{"queue", "status"},
	)

	MessagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_published_total",
			Help: "Total number of messages published to broker exchanges (count)",
		},
		[]string{"exchange", "status"},
	)

	MessageHandlingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_message_handling_duration_ms",
			Help:    "Handler dispatch duration per queue in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"queue", "status"},
	)

	LockEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_evaluations_total",
			Help: "Total number of notification gate evaluations (count)",
		},
		[]string{"result"},
	)

	LocksCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locks_created_total",
			Help: "Total number of suppression locks created (count)",
		},
		[]string{"type"},
	)

	PushRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_requests_total",
			Help: "Total number of push gateway requests (count)",
		},
		[]string{"status"},
	)

	PushRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "push_request_duration_ms",
			Help:    "Push gateway request duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	PushDeviceOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_device_outcomes_total",
			Help: "Per-device push delivery outcomes (count)",
		},
		[]string{"status"},
	)

	AuditRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of delivery audit records published (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejected_total",
			Help: "Total number of requests rejected by the rate limiter (count)",
		},
		[]string{"path"},
	)
)

func RegisterBrokerMetrics() {
	prometheus.MustRegister(
		MessagesConsumedTotal,
		MessagesPublishedTotal,
		MessageHandlingDuration,
	)
}

func RegisterLockMetrics() {
	prometheus.MustRegister(
		LockEvaluationsTotal,
		LocksCreatedTotal,
	)
}

func RegisterPushMetrics() {
	prometheus.MustRegister(
		PushRequestsTotal,
		PushRequestDuration,
		PushDeviceOutcomesTotal,
	)
}

func RegisterAuditMetrics() {
	prometheus.MustRegister(AuditRecordsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
}

func RegisterRateLimitMetrics() {
	prometheus.MustRegister(RateLimitRejectedTotal)
}

func ObserveHandlingDuration(queue, status string, duration time.Duration) {
	MessageHandlingDuration.WithLabelValues(queue, status).Observe(float64(duration.Milliseconds()))
}

func ObservePushDuration(status string, duration time.Duration) {
	PushRequestDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func SetCircuitBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}
