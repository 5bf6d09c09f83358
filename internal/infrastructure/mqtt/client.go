package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/config"
)

// Client is the bridge's broker connection.
//
// It owns the ON/OFF availability topic, re-subscribes after paho
// reconnects, and counts traffic for the metrics endpoint. All methods are
// safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	topics Topics
	subs   subscriptionSet

	connected atomic.Bool
	counters  counters

	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler receives the concrete topic and payload of a message.
// paho runs handlers on its own goroutines; a returned error is logged and
// counted, never sent back to the broker.
type MessageHandler func(topic string, payload []byte) error

// Stats is a snapshot of the client's counters.
type Stats struct {
	Connected        bool   `json:"connected"`
	Subscriptions    int    `json:"subscriptions"`
	Published        uint64 `json:"published"`
	PublishFailures  uint64 `json:"publish_failures"`
	Received         uint64 `json:"received"`
	HandlerErrors    uint64 `json:"handler_errors"`
	Connects         uint64 `json:"connects"`
	ConnectionLosses uint64 `json:"connection_losses"`
}

type counters struct {
	published        atomic.Uint64
	publishFailures  atomic.Uint64
	received         atomic.Uint64
	handlerErrors    atomic.Uint64
	connects         atomic.Uint64
	connectionLosses atomic.Uint64
}

// Connect dials the broker described by cfg and blocks until the first
// connection succeeds or defaultConnectTimeout passes.
//
// "OFF" on <prefix>/LWT is registered as the will and "ON" is published
// there after this and every later connect.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{topics: Topics{Prefix: cfg.TopicPrefix}}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.TopicPrefix)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, o *pahomqtt.ClientOptions) {
		if log := c.log(); log != nil {
			log.Info("MQTT reconnecting", "client_id", o.ClientID)
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The OnConnect handler runs asynchronously and may lag behind here.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.counters.connects.Add(1)

	c.subs.each(func(s subscription) {
		c.paho.Subscribe(s.topic, s.qos, c.wrapHandler(s.handler))
	})
	c.publishStatus(PayloadOnline)

	c.mu.RLock()
	fn := c.onConnect
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)
	c.counters.connectionLosses.Add(1)

	c.mu.RLock()
	fn := c.onDisconnect
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) publishStatus(payload string) pahomqtt.Token {
	return c.paho.Publish(c.topics.LWT(), lwtQoS, false, payload)
}

// Close publishes "OFF" while still connected, then disconnects. It is safe
// to call on a client that never connected.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(PayloadOffline).WaitTimeout(defaultAckTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
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
	return c.paho != nil && c.connected.Load() && c.paho.IsConnected()
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:        c.IsConnected(),
		Subscriptions:    c.subs.len(),
		Published:        c.counters.published.Load(),
		PublishFailures:  c.counters.publishFailures.Load(),
		Received:         c.counters.received.Load(),
		HandlerErrors:    c.counters.handlerErrors.Load(),
		Connects:         c.counters.connects.Load(),
		ConnectionLosses: c.counters.connectionLosses.Load(),
	}
}

// SetOnConnect registers fn to run after every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers fn to run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger enables logging of reconnects and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler adapts handler to paho, counting deliveries and turning
// errors and panics into log lines.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.counters.received.Add(1)
		defer func() {
			if r := recover(); r != nil {
				c.counters.handlerErrors.Add(1)
				if log := c.log(); log != nil {
					log.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.counters.handlerErrors.Add(1)
			if log := c.log(); log != nil {
				log.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}
