package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// Client is the controller's broker connection.
//
// Subscriptions are remembered and restored after every reconnect, and the
// availability topic is set to "online" on each connect.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect  func()
	callbackMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler handles one inbound message. paho calls handlers on its
// own goroutines; a returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the first connection.
func Connect(cfg config.MQTTConfig, topics Topics) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        topics,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg, topics)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: timeout after %v", ErrConnectionFailed, brokerURL(cfg), connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnect runs asynchronously; mark connected now so callers can
	// subscribe straight away.
	c.setConnected(true)
	return c, nil
}

// Topics returns the topic builder the client was connected with.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) handleConnect() {
	c.setConnected(true)

	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	c.client.Publish(c.topics.Availability(), 1, true, PayloadOnline)
	if l := c.getLogger(); l != nil {
		l.Info("MQTT connected", "broker", brokerURL(c.cfg))
	}

	c.callbackMu.RLock()
	cb := c.onConnect
	c.callbackMu.RUnlock()
	if cb != nil {
		cb()
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.setConnected(false)
	if l := c.getLogger(); l != nil {
		l.Warn("MQTT connection lost", "error", err)
	}
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// Close publishes "offline" and disconnects.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.client.Publish(c.topics.Availability(), 1, true, PayloadOffline)
		token.WaitTimeout(publishTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers a callback run after every (re)connect, e.g. to
// republish retained state.
func (c *Client) SetOnConnect(cb func()) {
	c.callbackMu.Lock()
	c.onConnect = cb
	c.callbackMu.Unlock()
}

// SetLogger sets the logger used for connection and handler errors.
func (c *Client) SetLogger(l Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs a handler, recovering panics and logging errors.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if l := c.getLogger(); l != nil {
				l.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if l := c.getLogger(); l != nil {
			l.Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
