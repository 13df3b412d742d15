package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	Retain         bool
	ConnectTimeout time.Duration
}

// MQTT publishes each value as a decimal string to <prefix>/<channel>.
type MQTT struct {
	opts          MQTTOptions
	client        mqtt.Client
	clientFactory func(MQTTOptions) mqtt.Client
	logger        zerolog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewMQTT creates an MQTT sink. Call Connect before Put.
func NewMQTT(opts MQTTOptions) *MQTT {
	return &MQTT{
		opts:          opts,
		clientFactory: createMQTTClient,
		logger:        log.With().Str("component", "mqtt").Logger(),
	}
}

// NewMQTTWithClient creates an MQTT sink around an existing client (for testing).
func NewMQTTWithClient(opts MQTTOptions, client mqtt.Client) *MQTT {
	return &MQTT{
		opts:   opts,
		client: client,
		logger: log.With().Str("component", "mqtt").Logger(),
	}
}

// createMQTTClient is the default factory function for creating MQTT clients.
func createMQTTClient(opts MQTTOptions) mqtt.Client {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("upsmon-%d", time.Now().Unix())
	}

	o := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.ConnectTimeout).
		SetWriteTimeout(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetCleanSession(true)

	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}

	return mqtt.NewClient(o)
}

// Connect establishes the broker connection, waiting at most the configured
// connect timeout or until ctx ends.
func (m *MQTT) Connect(ctx context.Context) error {
	if m.client == nil {
		m.client = m.clientFactory(m.opts)
	}

	timeout := m.opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token := m.client.Connect()
	select {
	case <-connectCtx.Done():
		return errors.New(errors.ErrSink,
			fmt.Sprintf("Timed out connecting to MQTT broker %s after %s", m.opts.Broker, timeout),
			"Check sink.mqtt.broker and that the broker is running")
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.WrapWithCode(err, errors.ErrSink,
				fmt.Sprintf("Couldn't connect to MQTT broker %s", m.opts.Broker),
				"Check sink.mqtt.broker and the broker credentials")
		}
	}

	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()

	m.logger.Info().Str("broker", m.opts.Broker).Msg("MQTT connection established")
	return nil
}

// Topic returns the topic a channel is published on.
func (m *MQTT) Topic(channel string) string {
	prefix := strings.TrimSuffix(m.opts.TopicPrefix, "/")
	if prefix == "" {
		return channel
	}
	return prefix + "/" + channel
}

// Put publishes value at QoS 0 without waiting for delivery.
func (m *MQTT) Put(channel string, value int) error {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()

	if !connected || m.client == nil || !m.client.IsConnectionOpen() {
		return errors.New(errors.ErrSink,
			fmt.Sprintf("MQTT not connected, dropped %s=%d", channel, value), "")
	}

	topic := m.Topic(channel)
	m.client.Publish(topic, 0, m.opts.Retain, strconv.Itoa(value))
	m.logger.Debug().Str("topic", topic).Int("value", value).Msg("published")
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil && m.connected {
		m.client.Disconnect(250)
	}
	m.connected = false
	return nil
}
