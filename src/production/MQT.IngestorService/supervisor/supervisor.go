// Package supervisor owns the broker connection for the life of the process:
// connect, subscribe, hand messages to a single dispatcher, and reconnect with
// backoff whenever the connection fails.
package supervisor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Metrics"
)

// ErrNotConnected is returned by Publish while the broker is unreachable
var ErrNotConnected = errors.New("broker not connected")

const disconnectQuiesceMs = 250

// MessageHandler processes one message. It is called from a single goroutine in delivery order.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// ClientFactory builds a paho client from options
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

type Config struct {
	BrokerURL       string
	ClientID        string
	Username        string
	Password        string
	TLSConfig       *tls.Config
	Topic           string
	SharedGroup     string
	QoS             byte
	KeepAlive       time.Duration
	PingTimeout     time.Duration
	ConnectTimeout  time.Duration
	QueueSize       int
	BackoffStrategy string
	ReconnectMin    time.Duration
	ReconnectMax    time.Duration
}

// ConfigFromMQTT maps the MQTT section of the application config
func ConfigFromMQTT(c *config.MQTTConfig, brokerURL string, tlsConfig *tls.Config) Config {
	return Config{
		BrokerURL:       brokerURL,
		ClientID:        c.ClientID,
		Username:        c.BrokerUser,
		Password:        c.BrokerPass,
		TLSConfig:       tlsConfig,
		Topic:           c.Topic,
		SharedGroup:     c.SharedGroup,
		QoS:             byte(c.QoS),
		KeepAlive:       c.KeepAlive,
		PingTimeout:     c.PingTimeout,
		ConnectTimeout:  c.ConnectTimeout,
		QueueSize:       c.QueueSize,
		BackoffStrategy: c.ReconnectStrategy,
		ReconnectMin:    c.ReconnectMin,
		ReconnectMax:    c.ReconnectMax,
	}
}

type Option func(*Supervisor)

func WithClientFactory(f ClientFactory) Option {
	return func(s *Supervisor) { s.newClient = f }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

type inbound struct {
	topic   string
	payload []byte
}

type Supervisor struct {
	cfg       Config
	handler   MessageHandler
	newClient ClientFactory
	logger    *logger.Logger
	metrics   *metrics.Metrics
	backoff   *Backoff
	queue     chan inbound

	mu        sync.RWMutex
	client    mqtt.Client
	connected atomic.Bool
}

func New(cfg Config, handler MessageHandler, opts ...Option) *Supervisor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	s := &Supervisor{
		cfg:       cfg,
		handler:   handler,
		newClient: mqtt.NewClient,
		backoff:   NewBackoff(cfg.BackoffStrategy, cfg.ReconnectMin, cfg.ReconnectMax),
		queue:     make(chan inbound, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	s.logger = s.logger.WithComponent("supervisor")

	return s
}

// Run keeps the subscription alive until ctx is cancelled. Broker failures are
// logged and retried; they never end the loop.
func (s *Supervisor) Run(ctx context.Context) error {
	stop := make(chan struct{})
	var dispatcher sync.WaitGroup
	dispatcher.Add(1)
	go func() {
		defer dispatcher.Done()
		s.dispatch(context.WithoutCancel(ctx), stop)
	}()

	defer func() {
		close(stop)
		dispatcher.Wait()
		s.logger.Info("Supervisor stopped")
	}()

	s.logger.Logger.Info().Str("broker", s.cfg.BrokerURL).Str("topic", s.subscription()).Msg("Starting broker supervisor")

	for {
		if ctx.Err() != nil {
			return nil
		}

		client, lost, subscribed, err := s.connect(ctx)
		if err == nil {
			if err = s.awaitSubscription(ctx, subscribed, lost); err != nil {
				client.Disconnect(0)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.metrics.ConnectAttempt("error")
			delay := s.backoff.Next()
			s.logger.Logger.Warn().Err(err).Dur("retry_in", delay).Msg("Broker connection failed")
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		s.metrics.ConnectAttempt("ok")
		s.backoff.Reset()
		s.setClient(client)
		s.logger.Logger.Info().Str("broker", s.cfg.BrokerURL).Msg("Broker connected")

		select {
		case <-ctx.Done():
			s.setClient(nil)
			client.Disconnect(disconnectQuiesceMs)
			return nil
		case err := <-lost:
			s.setClient(nil)
			client.Disconnect(0)
			delay := s.backoff.Next()
			s.logger.Logger.Warn().Err(err).Dur("retry_in", delay).Msg("Broker connection lost")
			if !sleep(ctx, delay) {
				return nil
			}
		}
	}
}

// connect makes one attempt. The lost channel fires once if this connection
// drops; subscribed yields the token of the subscription made on connect.
func (s *Supervisor) connect(ctx context.Context) (mqtt.Client, <-chan error, <-chan mqtt.Token, error) {
	lost := make(chan error, 1)
	subscribed := make(chan mqtt.Token, 1)
	signal := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(s.cfg.ConnectTimeout)

	if s.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(s.cfg.KeepAlive)
	}
	if s.cfg.PingTimeout > 0 {
		opts.SetPingTimeout(s.cfg.PingTimeout)
	}
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	if s.cfg.TLSConfig != nil {
		opts.SetTLSConfig(s.cfg.TLSConfig)
	}

	// paho runs this on its own goroutine; the SUBACK is awaited by Run
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.subscription(), s.cfg.QoS, s.onMessage)
		select {
		case subscribed <- token:
		default:
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err == nil {
			err = errors.New("connection lost")
		}
		signal(err)
	})

	client := s.newClient(opts)
	token := client.Connect()

	timer := time.NewTimer(s.cfg.ConnectTimeout + time.Second)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, nil, nil, ctx.Err()
	case <-timer.C:
		client.Disconnect(0)
		return nil, nil, nil, fmt.Errorf("connect to %s timed out", s.cfg.BrokerURL)
	}

	if err := token.Error(); err != nil {
		return nil, nil, nil, fmt.Errorf("connect to %s: %w", s.cfg.BrokerURL, err)
	}

	return client, lost, subscribed, nil
}

// awaitSubscription waits for the broker to acknowledge the subscription,
// bounded by the connect timeout
func (s *Supervisor) awaitSubscription(ctx context.Context, subscribed <-chan mqtt.Token, lost <-chan error) error {
	topic := s.subscription()
	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()

	var token mqtt.Token
	select {
	case token = <-subscribed:
	case err := <-lost:
		return fmt.Errorf("connection lost before subscribing: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("subscribe to %s was never sent", topic)
	}

	select {
	case <-token.Done():
	case err := <-lost:
		return fmt.Errorf("connection lost while subscribing: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("subscribe to %s timed out", topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	// 0x80 in the SUBACK is a refusal that paho does not report as an error
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		for t, code := range st.Result() {
			if code == 0x80 {
				return fmt.Errorf("subscribe to %s refused by broker", t)
			}
		}
	}

	s.logger.Logger.Info().Str("topic", topic).Uint8("qos", s.cfg.QoS).Msg("Subscribed")
	return nil
}

func (s *Supervisor) subscription() string {
	if s.cfg.SharedGroup != "" {
		return fmt.Sprintf("$share/%s/%s", s.cfg.SharedGroup, s.cfg.Topic)
	}
	return s.cfg.Topic
}

// onMessage runs on paho's goroutine and must not block
func (s *Supervisor) onMessage(_ mqtt.Client, m mqtt.Message) {
	msg := inbound{topic: m.Topic(), payload: m.Payload()}
	select {
	case s.queue <- msg:
		s.metrics.SetQueueDepth(len(s.queue))
	default:
		s.metrics.QueueDropped()
		s.logger.Logger.Warn().Str("topic", msg.topic).Int("capacity", cap(s.queue)).Msg("Dispatch queue full, dropping message")
	}
}

func (s *Supervisor) dispatch(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case msg := <-s.queue:
			s.deliver(ctx, msg)
		case <-stop:
			for {
				select {
				case msg := <-s.queue:
					s.deliver(ctx, msg)
				default:
					return
				}
			}
		}
	}
}

func (s *Supervisor) deliver(ctx context.Context, msg inbound) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Logger.Error().Interface("panic", r).Str("topic", msg.topic).Msg("Message handler panicked")
		}
	}()
	s.metrics.SetQueueDepth(len(s.queue))
	s.handler(ctx, msg.topic, msg.payload)
}

func (s *Supervisor) setClient(c mqtt.Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
	s.connected.Store(c != nil)
	s.metrics.SetBrokerConnected(c != nil)
}

// IsConnected reports whether the current connection is up
func (s *Supervisor) IsConnected() bool {
	return s.connected.Load()
}

// Publish sends a non-retained message on the current connection
func (s *Supervisor) Publish(ctx context.Context, topic string, payload []byte) error {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Publish(topic, s.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
