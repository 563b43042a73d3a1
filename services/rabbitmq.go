package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smartoffice/config"
	"smartoffice/metrics"
	"smartoffice/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQService consumes telemetry from a queue bound to a topic exchange, typically
// amq.topic fed by the broker's MQTT plugin, and publishes back onto the same exchange.
type RabbitMQService struct {
	config    *config.Config
	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *zap.Logger
	reconnect chan bool
	isClosing atomic.Bool
}

// NewRabbitMQService creates a new RabbitMQ service instance
func NewRabbitMQService(cfg *config.Config, logger *zap.Logger) (*RabbitMQService, error) {
	service := &RabbitMQService{
		config:    cfg,
		logger:    logger,
		reconnect: make(chan bool, 1),
	}

	if err := service.connect(); err != nil {
		return nil, err
	}
	go service.handleReconnect()

	return service, nil
}

// connect establishes connection to RabbitMQ and declares exchange and queue
func (r *RabbitMQService) connect() error {
	r.logger.Info("Connecting to RabbitMQ", zap.String("url", r.config.RabbitMQURL))

	var (
		conn *amqp.Connection
		err  error
	)
	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = amqp.Dial(r.config.RabbitMQURL)
		if err == nil {
			break
		}

		r.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	err = ch.ExchangeDeclare(
		r.config.RabbitMQExchange, // name
		"topic",                   // type
		true,                      // durable
		false,                     // auto-deleted
		false,                     // internal
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := ch.QueueDeclare(
		r.config.RabbitMQQueue, // name
		true,                   // durable
		false,                  // delete when unused
		false,                  // exclusive
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	bindingKey := topicToRoutingKey(r.config.SubscribeTopic)
	if err := ch.QueueBind(queue.Name, bindingKey, r.config.RabbitMQExchange, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	r.logger.Info("Queue bound to exchange",
		zap.String("queue", queue.Name),
		zap.String("exchange", r.config.RabbitMQExchange),
		zap.String("routing_key", bindingKey))

	r.mu.Lock()
	r.conn = conn
	r.channel = ch
	r.mu.Unlock()
	return nil
}

// handleReconnect handles automatic reconnection when connection is lost
func (r *RabbitMQService) handleReconnect() {
	for {
		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()

		closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))
		if r.isClosing.Load() {
			r.logger.Info("RabbitMQ connection closed gracefully")
			return
		}

		r.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))

		for {
			r.logger.Info("Attempting to reconnect to RabbitMQ...")
			err := r.connect()
			if err == nil {
				r.logger.Info("Successfully reconnected to RabbitMQ")
				select {
				case r.reconnect <- true:
				default:
				}
				break
			}
			if r.isClosing.Load() {
				return
			}

			r.logger.Error("Failed to reconnect", zap.Error(err))
			time.Sleep(5 * time.Second)
		}
	}
}

// Consume pushes deliveries into out until ctx is cancelled. A delivery is acked once
// enqueued and rejected without requeue when the inbound queue stays full.
func (r *RabbitMQService) Consume(ctx context.Context, out chan<- models.InboundMessage) error {
	consumerTag := "smartoffice-" + uuid.NewString()[:8]
	for {
		r.mu.RLock()
		ch := r.channel
		r.mu.RUnlock()

		msgs, err := ch.Consume(
			r.config.RabbitMQQueue, // queue
			consumerTag,            // consumer tag
			false,                  // auto-ack (false = manual ack)
			false,                  // exclusive
			false,                  // no-local
			false,                  // no-wait
			nil,                    // args
		)
		if err != nil {
			return fmt.Errorf("failed to register consumer: %w", err)
		}

		r.logger.Info("Started consuming messages from RabbitMQ",
			zap.String("queue", r.config.RabbitMQQueue))

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Stopping RabbitMQ consumer")
				return nil

			case <-r.reconnect:
				r.logger.Info("Reconnection detected, restarting consumer")
				break consumeLoop

			case d, ok := <-msgs:
				if !ok {
					r.logger.Warn("Message channel closed")
					select {
					case <-ctx.Done():
						return nil
					case <-r.reconnect:
					}
					break consumeLoop
				}
				r.deliver(d, out)
			}
		}
	}
}

func (r *RabbitMQService) deliver(d amqp.Delivery, out chan<- models.InboundMessage) {
	msg := models.InboundMessage{
		Topic:      routingKeyToTopic(d.RoutingKey),
		Payload:    d.Body,
		ReceivedAt: time.Now(),
	}
	if enqueueInbound(out, msg, r.config.EnqueueTimeout) {
		if err := d.Ack(false); err != nil {
			r.logger.Error("Failed to ack delivery", zap.Error(err))
		}
		return
	}

	metrics.IncInboundDrop("amqp")
	r.logger.Warn("Inbound queue full, rejecting message",
		zap.String("topic", msg.Topic),
		zap.Uint64("delivery_tag", d.DeliveryTag))
	if err := d.Nack(false, false); err != nil {
		r.logger.Error("Failed to nack delivery", zap.Error(err))
	}
}

// Publish sends payload to the exchange with the topic's routing key.
func (r *RabbitMQService) Publish(ctx context.Context, topic string, payload []byte) error {
	r.mu.RLock()
	ch := r.channel
	r.mu.RUnlock()
	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("%w: rabbitmq channel not open", models.ErrPublish)
	}

	err := ch.PublishWithContext(ctx,
		r.config.RabbitMQExchange, // exchange
		topicToRoutingKey(topic),  // routing key
		false,                     // mandatory
		false,                     // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        payload,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", models.ErrPublish, topic, err)
	}

	r.logger.Debug("Published message to RabbitMQ", zap.String("topic", topic))
	return nil
}

// Close gracefully closes RabbitMQ connection
func (r *RabbitMQService) Close() error {
	r.isClosing.Store(true)

	r.logger.Info("Closing RabbitMQ connection")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}
