package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/gateway"
	"voltwatch/backend/services/telemetry-service/internal/metrics"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultHandlerTimeout    = 5 * time.Second
	defaultKeepAlive         = 60 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	transportName            = "mqtt"
)

// Config configures the subscriber.
type Config struct {
	Broker         string
	ClientID       string
	TopicPrefix    string
	QoS            byte
	Username       string
	Password       string
	ConnectTimeout time.Duration
	HandlerTimeout time.Duration
}

// Subscriber feeds device messages published on the broker into the gateway router.
type Subscriber struct {
	cfg     Config
	topics  Topics
	router  *gateway.Router
	client  pahomqtt.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewSubscriber builds a subscriber. The broker is not contacted until Start.
func NewSubscriber(cfg Config, router *gateway.Router, m *metrics.Metrics, logger *zap.Logger) *Subscriber {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	s := &Subscriber{
		cfg:     cfg,
		topics:  Topics{Prefix: cfg.TopicPrefix},
		router:  router,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
	s.client = pahomqtt.NewClient(s.clientOptions())
	return s
}

func (s *Subscriber) clientOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		s.subscribe(client)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", zap.Error(err))
	})
	return opts
}

// subscribe runs on every (re)connect since sessions are clean.
func (s *Subscriber) subscribe(client pahomqtt.Client) {
	filters := make(map[string]byte)
	for _, topic := range s.topics.Subscriptions() {
		filters[topic] = s.cfg.QoS
	}
	token := client.SubscribeMultiple(filters, s.messageHandler)
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		s.logger.Error("mqtt subscribe timed out")
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("mqtt subscribe failed", zap.Error(err))
		return
	}
	s.logger.Info("mqtt subscribed", zap.Strings("topics", s.topics.Subscriptions()))
}

// Start connects and consumes until ctx is done. An unreachable broker is retried in the
// background rather than failing startup.
func (s *Subscriber) Start(ctx context.Context) error {
	token := s.client.Connect()
	if token.WaitTimeout(s.cfg.ConnectTimeout) {
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: connect %s: %w", s.cfg.Broker, err)
		}
		s.logger.Info("mqtt connected", zap.String("broker", s.cfg.Broker))
	} else {
		s.logger.Warn("mqtt broker not reachable yet, retrying", zap.String("broker", s.cfg.Broker))
	}

	<-ctx.Done()
	s.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

func (s *Subscriber) messageHandler(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("mqtt handler panic recovered", zap.String("topic", msg.Topic()), zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandlerTimeout)
	defer cancel()
	if err := s.HandleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
		s.logger.Warn("mqtt message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}

// HandleMessage routes one published message.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	deviceID, action, err := s.topics.Parse(topic)
	if err != nil {
		s.metrics.TransportMessage(transportName, "malformed")
		return err
	}
	if _, err := s.router.Route(ctx, deviceID, action, payload); err != nil {
		outcome := "error"
		if errors.Is(err, gateway.ErrUnsupportedAction) {
			outcome = "malformed"
		}
		s.metrics.TransportMessage(transportName, outcome)
		return fmt.Errorf("%s %s: %w", deviceID, action, err)
	}
	s.metrics.TransportMessage(transportName, "ok")
	s.logger.Debug("mqtt message handled", zap.String("device_id", deviceID), zap.String("action", action))
	return nil
}
