package services

import (
	"context"
	"fmt"
	"time"

	"smartoffice/config"
	"smartoffice/metrics"
	"smartoffice/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MQTTService subscribes to the telemetry wildcard and publishes alerts and commands.
type MQTTService struct {
	config  *config.Config
	client  mqtt.Client
	logger  *zap.Logger
	inbound chan<- models.InboundMessage
}

func NewMQTTService(cfg *config.Config, logger *zap.Logger) *MQTTService {
	return &MQTTService{
		config: cfg,
		logger: logger,
	}
}

// ClientID returns a unique client id with the configured prefix.
func ClientID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
}

// Connect dials the broker and subscribes; deliveries are pushed to out. Subscriptions
// are re-established on every reconnect.
func (s *MQTTService) Connect(ctx context.Context, out chan<- models.InboundMessage) error {
	s.inbound = out

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.MQTTBroker)
	opts.SetClientID(ClientID(s.config.MQTTClientPrefix))
	if s.config.MQTTUsername != "" {
		opts.SetUsername(s.config.MQTTUsername)
		opts.SetPassword(s.config.MQTTPassword)
	}
	opts.SetCleanSession(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(client mqtt.Client) {
		s.logger.Info("Connected to MQTT broker", zap.String("broker", s.config.MQTTBroker))
		token := client.Subscribe(s.config.SubscribeTopic, s.config.MQTTQoS, s.handleMessage)
		if err := awaitToken(token, s.config.OperationTimeout); err != nil {
			s.logger.Error("Failed to subscribe",
				zap.String("topic", s.config.SubscribeTopic),
				zap.Error(err))
			return
		}
		s.logger.Info("Subscribed to telemetry", zap.String("topic", s.config.SubscribeTopic))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		s.logger.Error("MQTT connection lost", zap.Error(err))
	}
	opts.OnReconnecting = func(client mqtt.Client, _ *mqtt.ClientOptions) {
		s.logger.Info("Reconnecting to MQTT broker")
	}

	s.client = mqtt.NewClient(opts)

	maxRetries := 5
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		token := s.client.Connect()
		token.Wait()
		if err = token.Error(); err == nil {
			return nil
		}

		s.logger.Warn("Failed to connect to MQTT broker",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}
	}
	return fmt.Errorf("failed to connect to MQTT broker after %d attempts: %w", maxRetries, err)
}

// awaitToken waits up to timeout for token; an unfinished token is an error.
func awaitToken(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	return token.Error()
}

func (s *MQTTService) handleMessage(_ mqtt.Client, m mqtt.Message) {
	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())

	msg := models.InboundMessage{
		Topic:      m.Topic(),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	if !enqueueInbound(s.inbound, msg, s.config.EnqueueTimeout) {
		metrics.IncInboundDrop("mqtt")
		s.logger.Warn("Inbound queue full, dropping message",
			zap.String("topic", msg.Topic),
			zap.Int("bytes", len(payload)))
	}
}

// Publish sends payload with the configured QoS, waiting at most until ctx expires.
func (s *MQTTService) Publish(ctx context.Context, topic string, payload []byte) error {
	if s.client == nil || !s.client.IsConnectionOpen() {
		return fmt.Errorf("%w: mqtt client not connected", models.ErrPublish)
	}

	token := s.client.Publish(topic, s.config.MQTTQoS, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: publish to %s: %v", models.ErrPublish, topic, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: publish to %s: %v", models.ErrPublish, topic, ctx.Err())
	}

	s.logger.Debug("Published MQTT message",
		zap.String("topic", topic),
		zap.Int("bytes", len(payload)))
	return nil
}

// Close disconnects, allowing in-flight work a short grace period.
func (s *MQTTService) Close() {
	if s.client == nil {
		return
	}
	s.logger.Info("Disconnecting from MQTT broker")
	s.client.Disconnect(250)
}
