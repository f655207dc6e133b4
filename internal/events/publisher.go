// README: RabbitMQ fan-out of booking lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"lifeline/internal/logger"
	"lifeline/internal/modules/booking"
)

const exchange = "booking.events"

// Publisher pushes booking status transitions onto a durable topic exchange.
// Routing key: booking.status.<to_status>.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  logger.ILogger
}

func NewPublisher(url string, log logger.ILogger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, log: log}, nil
}

func (p *Publisher) PublishBookingEvent(ctx context.Context, evt booking.StatusEvent) error {
	if p.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	routingKey := fmt.Sprintf("booking.status.%s", evt.ToStatus)
	err = p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish booking event: %w", err)
	}
	p.log.Debug("booking event published",
		logger.Int64("booking_id", evt.BookingID),
		logger.String("routing_key", routingKey))
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil && !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
