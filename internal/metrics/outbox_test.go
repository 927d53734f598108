package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxMetrics(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	outboxMetrics, err := NewOutboxMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)
	assert.NotNil(t, outboxMetrics)
}

func TestOutboxMetrics_RecordPublish(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	om, err := NewOutboxMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	ctx := context.Background()
	om.RecordPublish(ctx, "order.created", "sent")
	om.RecordPublish(ctx, "order.created", "retry")
	om.RecordPublish(ctx, "order.canceled", "failed")
}

func TestOutboxMetrics_RecordQueueDepth(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	om, err := NewOutboxMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	ctx := context.Background()
	om.RecordQueueDepth(ctx, "pending", 10)
	om.RecordQueueDepth(ctx, "retry", 2)
	om.RecordQueueDepth(ctx, "failed", 0)
}

func TestNoOpOutboxMetrics(t *testing.T) {
	om := NewNoOpOutboxMetrics()

	ctx := context.Background()
	om.RecordPublish(ctx, "order.created", "sent")
	om.RecordQueueDepth(ctx, "pending", 1)
}
