package service

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/allisson/orders/internal/outbox/domain"
)

// AMQPChannel defines the channel operations the publisher needs. Satisfied
// by *amqp.Channel.
type AMQPChannel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
}

// AMQPPublisher delivers outbox records to a RabbitMQ topic exchange, using
// the routing destination as the routing key. Messages are persistent and
// carry the record id as MessageId so consumers can deduplicate redeliveries.
type AMQPPublisher struct {
	channel  AMQPChannel
	exchange string
}

// NewAMQPPublisher creates a new AMQPPublisher.
func NewAMQPPublisher(channel AMQPChannel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{
		channel:  channel,
		exchange: exchange,
	}
}

// Publish sends one record to the exchange.
func (p *AMQPPublisher) Publish(ctx context.Context, destination string, record *domain.OutboxRecord) error {
	headers := amqp.Table{}
	for key, value := range record.Headers {
		headers[key] = value
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.ID.String(),
		Type:         record.EventType,
		Timestamp:    record.CreatedAt,
		Headers:      headers,
		Body:         record.Payload,
	}

	if err := p.channel.PublishWithContext(ctx, p.exchange, destination, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to exchange %q: %w", p.exchange, err)
	}

	return nil
}

// DialAMQP connects to the broker, opens a channel, and declares the topic
// exchange. The caller owns both returned handles and must close them on
// shutdown.
func DialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	return conn, channel, nil
}
