package service

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/allisson/orders/internal/outbox/domain"
)

// RedisStreamPublisher delivers outbox records to a Redis Stream via XADD,
// using the routing destination as the stream key. The event id travels as a
// field so stream consumers can deduplicate redeliveries.
type RedisStreamPublisher struct {
	client rueidis.Client
}

// NewRedisStreamPublisher creates a new RedisStreamPublisher.
func NewRedisStreamPublisher(client rueidis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client}
}

// Publish appends one record to the destination stream.
func (p *RedisStreamPublisher) Publish(ctx context.Context, destination string, record *domain.OutboxRecord) error {
	builder := p.client.B().Xadd().Key(destination).Id("*").FieldValue()
	for _, field := range streamFields(record) {
		builder = builder.FieldValue(field[0], field[1])
	}

	if err := p.client.Do(ctx, builder.Build()).Error(); err != nil {
		return fmt.Errorf("failed to publish to stream %q: %w", destination, err)
	}

	return nil
}

// streamFields flattens a record into XADD field value pairs.
func streamFields(record *domain.OutboxRecord) [][2]string {
	fields := [][2]string{
		{"event_id", record.ID.String()},
		{"event_type", record.EventType},
		{"aggregate_type", record.AggregateType},
		{"aggregate_id", record.AggregateID.String()},
		{"payload", string(record.Payload)},
	}

	for key, value := range record.Headers {
		fields = append(fields, [2]string{"header_" + key, value})
	}

	return fields
}

// NewRedisClient creates a rueidis client from a redis URL.
func NewRedisClient(url string) (rueidis.Client, error) {
	options, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client, err := rueidis.NewClient(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
