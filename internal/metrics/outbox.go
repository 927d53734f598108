package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OutboxMetrics defines the interface for recording outbox delivery metrics.
// Eventual delivery is invisible to the command caller, so these metrics are
// the only operational window into pending, retrying, and failed events.
type OutboxMetrics interface {
	// RecordPublish records one delivery attempt outcome.
	// Status examples: "sent", "retry", "failed".
	RecordPublish(ctx context.Context, eventType, status string)

	// RecordQueueDepth records the number of records currently in a given
	// delivery status.
	RecordQueueDepth(ctx context.Context, status string, depth int64)
}

// outboxMetrics implements OutboxMetrics using OpenTelemetry metrics.
type outboxMetrics struct {
	publishCounter metric.Int64Counter
	depthGauge     metric.Int64Gauge
}

// NewOutboxMetrics creates a new OutboxMetrics implementation using the provided meter provider.
func NewOutboxMetrics(meterProvider metric.MeterProvider, namespace string) (OutboxMetrics, error) {
	meter := meterProvider.Meter(namespace)

	publishCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbox_publishes_total", namespace),
		metric.WithDescription("Total number of outbox delivery attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publish counter: %w", err)
	}

	depthGauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_outbox_queue_depth", namespace),
		metric.WithDescription("Number of outbox records per delivery status"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue depth gauge: %w", err)
	}

	return &outboxMetrics{
		publishCounter: publishCounter,
		depthGauge:     depthGauge,
	}, nil
}

// RecordPublish increments the delivery attempt counter with event type and status labels.
func (o *outboxMetrics) RecordPublish(ctx context.Context, eventType, status string) {
	o.publishCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("event_type", eventType),
			attribute.String("status", status),
		),
	)
}

// RecordQueueDepth records the per-status record count.
func (o *outboxMetrics) RecordQueueDepth(ctx context.Context, status string, depth int64) {
	o.depthGauge.Record(ctx, depth,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
}

// NoOpOutboxMetrics is a no-op implementation of OutboxMetrics for when metrics are disabled.
type NoOpOutboxMetrics struct{}

// NewNoOpOutboxMetrics creates a no-op OutboxMetrics implementation.
func NewNoOpOutboxMetrics() OutboxMetrics {
	return &NoOpOutboxMetrics{}
}

// RecordPublish does nothing when metrics are disabled.
func (n *NoOpOutboxMetrics) RecordPublish(ctx context.Context, eventType, status string) {
	// No-op
}

// RecordQueueDepth does nothing when metrics are disabled.
func (n *NoOpOutboxMetrics) RecordQueueDepth(ctx context.Context, status string, depth int64) {
	// No-op
}
