// Package bus is a thin adapter over NATS: connect, publish, subscribe and
// request/reply over subject-addressed, best-effort delivery.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultURL is the bus URL services dial when settings carry none.
const DefaultURL = nats.DefaultURL

var (
	ErrNotConnected = errors.New("bus: not connected")
	ErrTimeout      = errors.New("bus: request timeout")
)

// Msg is the envelope every handler receives: subject, opaque payload and
// an optional reply subject.
type Msg struct {
	Subject string
	Data    []byte
	Reply   string
}

// MsgHandler is invoked once per matching message. Messages of a single
// subscription are delivered sequentially, never re-entrantly.
type MsgHandler func(msg Msg)

// Subscription is a live subject subscription.
type Subscription struct {
	sub *nats.Subscription
}

// Unsubscribe removes interest in the subject.
func (s *Subscription) Unsubscribe() error {
	if s == nil || s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

// Client wraps a single NATS connection. Subscriptions survive transient
// disconnects: the underlying connection re-establishes them on reconnect.
type Client struct {
	name string
	log  zerolog.Logger

	mu sync.RWMutex
	nc *nats.Conn
}

// New returns a disconnected client identified as name on the broker.
func New(name string, log zerolog.Logger) *Client {
	return &Client{name: name, log: log}
}

// Connect dials the broker. Reconnection is unbounded with a short wait, so
// a broker restart does not kill long-lived services.
func (c *Client) Connect(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc != nil && c.nc.IsConnected() {
		return nil
	}

	nc, err := nats.Connect(url,
		nats.Name(c.name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.log.Warn().Err(err).Msg("bus disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.log.Info().Str("url", nc.ConnectedUrl()).Msg("bus reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}

	c.nc = nc
	c.log.Info().Str("url", url).Msg("connected to bus")
	return nil
}

// Disconnect flushes and closes the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return
	}
	_ = c.nc.Drain()
	c.nc = nil
	c.log.Info().Msg("disconnected from bus")
}

// IsConnected reports whether the underlying connection is live.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc != nil && c.nc.IsConnected()
}

func (c *Client) conn() (*nats.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.nc == nil {
		return nil, ErrNotConnected
	}
	return c.nc, nil
}

// Publish sends payload bytes to a subject. Best-effort: no delivery ack,
// the caller never blocks on consumers.
func (c *Client) Publish(subject string, data []byte) error {
	nc, err := c.conn()
	if err != nil {
		return err
	}
	return nc.Publish(subject, data)
}

// Subscribe installs a handler for a subject (wildcards allowed).
func (c *Client) Subscribe(subject string, handler MsgHandler) (*Subscription, error) {
	return c.QueueSubscribe(subject, "", handler)
}

// QueueSubscribe installs a handler inside a queue group; an empty group
// behaves like Subscribe.
func (c *Client) QueueSubscribe(subject, queue string, handler MsgHandler) (*Subscription, error) {
	nc, err := c.conn()
	if err != nil {
		return nil, err
	}

	cb := func(m *nats.Msg) {
		handler(Msg{Subject: m.Subject, Data: m.Data, Reply: m.Reply})
	}

	var sub *nats.Subscription
	if queue == "" {
		sub, err = nc.Subscribe(subject, cb)
	} else {
		sub, err = nc.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return &Subscription{sub: sub}, nil
}

// Request publishes to subject with a private inbox and awaits one reply.
func (c *Client) Request(subject string, data []byte, timeout time.Duration) (Msg, error) {
	nc, err := c.conn()
	if err != nil {
		return Msg{}, err
	}

	m, err := nc.Request(subject, data, timeout)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrNoResponders) {
			return Msg{}, fmt.Errorf("%w: %s", ErrTimeout, subject)
		}
		return Msg{}, fmt.Errorf("request %s: %w", subject, err)
	}
	return Msg{Subject: m.Subject, Data: m.Data, Reply: m.Reply}, nil
}
