package tracing

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// InjectTraceContext writes the active trace context into AMQP message
// headers so the consumer side can continue the trace.
func InjectTraceContext(ctx context.Context, headers amqp.Table) amqp.Table {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return headers
	}

	if headers == nil {
		headers = amqp.Table{}
	}

	propagator.Inject(ctx, amqpHeaderCarrier(headers))
	return headers
}

// ExtractTraceContext reads the trace context out of AMQP delivery headers.
func ExtractTraceContext(ctx context.Context, headers amqp.Table) context.Context {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil || headers == nil {
		return ctx
	}

	return propagator.Extract(ctx, amqpHeaderCarrier(headers))
}

type amqpHeaderCarrier amqp.Table

func (c amqpHeaderCarrier) Get(key string) string {
	if v, ok := c[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func (c amqpHeaderCarrier) Set(key, value string) {
	c[key] = value
}

func (c amqpHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// StartSpanFromDelivery continues the trace carried in delivery headers
// and opens a span for the dispatch.
func StartSpanFromDelivery(ctx context.Context, operationName string, headers amqp.Table) (context.Context, trace.Span) {
	ctx = ExtractTraceContext(ctx, headers)

	tracer := GetTracer("notifier-amqp")
	return tracer.Start(ctx, operationName)
}
