package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConsumerConfig configures the RabbitMQ consumer. Empty names fall
// back to DefaultConsumerQueueName and ExchangeName.
type RabbitMQConsumerConfig struct {
	URL       string
	QueueName string
	Exchange  string
	Logger    *slog.Logger
}

// RabbitMQConsumer feeds a durable queue into a ConsumerRegistry.
type RabbitMQConsumer struct {
	*ConsumerRegistry

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	exchange string
	logger   *slog.Logger
	running  bool
	closed   chan struct{}
	once     sync.Once
}

// NewRabbitMQConsumer dials the broker and declares the queue. A nil registry
// gets a fresh one.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) (*RabbitMQConsumer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queue, exchange := cfg.QueueName, cfg.Exchange
	if queue == "" {
		queue = DefaultConsumerQueueName
	}
	if exchange == "" {
		exchange = ExchangeName
	}
	if registry == nil {
		registry = NewConsumerRegistry(logger)
	}

	conn, ch, err := dialExchange(cfg.URL, exchange)
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = closeAll(ch, conn)
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	logger = logger.With("queue", queue, "exchange", exchange)
	logger.Info("RabbitMQ consumer connected")

	return &RabbitMQConsumer{
		ConsumerRegistry: registry,
		conn:             conn,
		channel:          ch,
		queue:            queue,
		exchange:         exchange,
		logger:           logger,
		closed:           make(chan struct{}),
	}, nil
}

// RegisterConsumer routes the consumer's keys and binds them to the queue.
func (c *RabbitMQConsumer) RegisterConsumer(consumer EventConsumer) error {
	c.Register(consumer)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range consumer.EventTypes() {
		if err := c.channel.QueueBind(c.queue, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Start blocks, consuming one message at a time, until ctx ends or Close is
// called.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	deliveries, err := c.subscribe()
	if err != nil {
		return err
	}
	c.logger.Info("consuming events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed by broker")
			}
			c.settle(d, c.process(ctx, d))
		}
	}
}

func (c *RabbitMQConsumer) subscribe() (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil, errors.New("consumer already running")
	}
	if err := c.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	c.running = true
	return deliveries, nil
}

type verdict int

const (
	verdictAck verdict = iota
	verdictRequeue
	verdictDrop
)

// process dispatches one delivery. Undecodable bodies are acked away; a failed
// dispatch is requeued once and dropped on redelivery.
func (c *RabbitMQConsumer) process(ctx context.Context, d amqp.Delivery) verdict {
	event, err := DecodeEnvelope(d.Body, d.RoutingKey)
	if err != nil {
		c.logger.Error("discarding undecodable message", "routing_key", d.RoutingKey, "error", err)
		return verdictAck
	}
	if err := c.Dispatch(ctx, event); err != nil {
		c.logger.Error("dispatch failed",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"redelivered", d.Redelivered,
			"error", err,
		)
		if d.Redelivered {
			return verdictDrop
		}
		return verdictRequeue
	}
	return verdictAck
}

func (c *RabbitMQConsumer) settle(d amqp.Delivery, v verdict) {
	var err error
	switch v {
	case verdictAck:
		err = d.Ack(false)
	case verdictRequeue:
		err = d.Nack(false, true)
	case verdictDrop:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.logger.Error("failed to settle delivery", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

func (c *RabbitMQConsumer) Close() error {
	c.once.Do(func() { close(c.closed) })

	c.mu.Lock()
	ch, conn := c.channel, c.conn
	c.channel, c.conn = nil, nil
	c.running = false
	c.mu.Unlock()

	err := closeAll(ch, conn)
	c.logger.Info("RabbitMQ consumer closed")
	return err
}
