// Package messaging wraps a NATS connection for the inter-service event
// bus that runs alongside the Redis-backed job queue (pkg/queue). It is
// adapted from the teacher's pkg/messaging/nats.go: same Client shape,
// same subscription bookkeeping, generalized to this platform's event
// types instead of tradeengine's order/position events.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with subscription tracking and
// reconnect bookkeeping.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs map[string]*nats.Subscription
	mu   sync.RWMutex

	reconnects int
	connected  bool
}

// Config configures a Client.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1 // retry forever, per spec.md §4.H's "gateway must survive broker disconnects"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// NewClient dials NATS and opens a JetStream context.
func NewClient(cfg Config) (*Client, error) {
	cfg.setDefaults()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("messaging: jetstream: %w", err)
	}

	client := &Client{conn: conn, js: js, subs: make(map[string]*nats.Subscription), connected: true}

	conn.SetReconnectHandler(func(*nats.Conn) {
		client.mu.Lock()
		client.reconnects++
		client.connected = true
		client.mu.Unlock()
	})
	conn.SetDisconnectErrHandler(func(*nats.Conn, error) {
		client.mu.Lock()
		client.connected = false
		client.mu.Unlock()
	})

	return client, nil
}

// Publish fire-and-forgets a JSON-encoded message to subject.
func (c *Client) Publish(ctx context.Context, subject string, data interface{}) error {
	if c.conn == nil {
		return fmt.Errorf("messaging: not connected")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("messaging: marshal: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Subscribe registers a handler for subject. Subscribing twice to the
// same subject is an error, matching the teacher's dedupe-by-map idiom.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[subject]; exists {
		return fmt.Errorf("messaging: already subscribed to %s", subject)
	}
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("messaging: subscribe: %w", err)
	}
	c.subs[subject] = sub
	return nil
}

// QueueSubscribe registers a load-balanced handler within a queue group,
// used by the worker fleets so only one instance handles a given event.
func (c *Client) QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := subject + ":" + queue
	if _, exists := c.subs[key]; exists {
		return fmt.Errorf("messaging: already queue-subscribed to %s/%s", subject, queue)
	}
	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("messaging: queue subscribe: %w", err)
	}
	c.subs[key] = sub
	return nil
}

// Unsubscribe tears down a prior Subscribe/QueueSubscribe.
func (c *Client) Unsubscribe(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, exists := c.subs[key]
	if !exists {
		return fmt.Errorf("messaging: not subscribed to %s", key)
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("messaging: unsubscribe: %w", err)
	}
	delete(c.subs, key)
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil && c.conn.IsConnected()
}

// Close unsubscribes everything and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		sub.Unsubscribe()
		delete(c.subs, key)
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
	return nil
}

// Drain flushes in-flight messages before disconnecting, used on
// graceful shutdown so a publish started just before SIGTERM isn't lost.
func (c *Client) Drain() error {
	if c.conn == nil {
		return fmt.Errorf("messaging: not connected")
	}
	return c.conn.Drain()
}

// Stats returns connection statistics, surfaced on a health endpoint.
func (c *Client) Stats() nats.Statistics {
	if c.conn == nil {
		return nats.Statistics{}
	}
	return c.conn.Stats()
}
