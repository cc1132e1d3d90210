package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPublisherClosed is returned when publishing on a closed connection.
var ErrPublisherClosed = errors.New("rabbitmq publisher closed")

// RabbitMQPublisher publishes outbox messages to the billing exchange.
type RabbitMQPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// NewRabbitMQPublisher dials url and declares the billing exchange.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, ch, err := dialExchange(url, ExchangeName)
	if err != nil {
		return nil, err
	}
	logger = logger.With("exchange", ExchangeName)
	logger.Info("RabbitMQ publisher connected")

	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: ExchangeName, logger: logger}, nil
}

// persistentJSON is the envelope every outbox payload is sent in.
func persistentJSON(body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
}

func (p *RabbitMQPublisher) openLocked() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Publish sends payload with routingKey. It fails with ErrPublisherClosed once
// the connection is gone so the outbox schedules a retry.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.openLocked() {
		return ErrPublisherClosed
	}

	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, persistentJSON(payload)); err != nil {
		p.logger.ErrorContext(ctx, "broker publish failed", "routing_key", routingKey, "error", err)
		return err
	}
	p.logger.DebugContext(ctx, "broker publish", "routing_key", routingKey, "bytes", len(payload))
	return nil
}

// Healthy reports whether the broker connection is open.
func (p *RabbitMQPublisher) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked()
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	ch, conn := p.channel, p.conn
	p.channel, p.conn = nil, nil
	p.mu.Unlock()

	err := closeAll(ch, conn)
	p.logger.Info("RabbitMQ publisher closed")
	return err
}
