// Package amqp carries budget and goal snapshots from the web process to the
// export worker over a durable RabbitMQ queue.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "penny/internal/log"
)

const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
	maxBackoff       = 30 * time.Second
	publishTimeout   = 5 * time.Second
)

var errNoChannel = errors.New("amqp channel closed")

// Handler processes one snapshot. An error requeues the delivery.
type Handler func(context.Context, *SnapshotMessage) error

type Option func(*Client)

// WithLogger sets the logger. The default writes to stdout at info level.
func WithLogger(l *applog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client publishes to and consumes from one queue bound to a direct exchange
// under the queue's own name.
type Client struct {
	url      string
	exchange string
	queue    string
	logger   *applog.Logger
	breaker  *breaker

	mu   sync.Mutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// NewClient dials url and declares the exchange, the queue and their binding.
func NewClient(url, exchange, queue string, opts ...Option) (*Client, error) {
	c := newClient(url, exchange, queue, opts...)
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(url, exchange, queue string, opts ...Option) *Client {
	c := &Client{
		url:      url,
		exchange: exchange,
		queue:    queue,
		breaker:  newBreaker(breakerThreshold, breakerCooldown),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = applog.New(applog.DefaultConfig())
	}
	c.logger = c.logger.WithComponent(applog.ComponentAMQP).With("exchange", exchange, "queue", queue)
	return c
}

func (c *Client) reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, c.exchange, c.queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	c.conn, c.ch = conn, ch
	return nil
}

func declareTopology(ch *amqp091.Channel, exchange, queue string) error {
	const durable, autoDelete, internal, exclusive, noWait = true, false, false, false, false
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeDirect, durable, autoDelete, internal, noWait, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, durable, autoDelete, exclusive, noWait, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, queue, exchange, noWait, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

func (c *Client) channel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil || c.ch.IsClosed() {
		return nil
	}
	return c.ch
}

// PublishSnapshot sends msg as a persistent JSON message. It returns
// ErrCircuitOpen without trying while the breaker is open, and redials once
// when the connection was lost.
func (c *Client) PublishSnapshot(ctx context.Context, msg *SnapshotMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.breaker.allow() {
		return fmt.Errorf("publish %s snapshot: %w", msg.Kind, ErrCircuitOpen)
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.publish(ctx, body)
	if isConnectionError(err) {
		c.logger.WarnContext(ctx, "Publish hit a dead connection, redialing", applog.FieldError, err)
		if rerr := c.reconnect(); rerr == nil {
			err = c.publish(ctx, body)
		}
	}
	if err != nil {
		c.breaker.failure()
		return fmt.Errorf("publish %s snapshot: %w", msg.Kind, err)
	}
	c.breaker.success()

	c.logger.InfoContext(ctx, "Published snapshot",
		"message_id", msg.ID, "kind", msg.Kind, applog.FieldUserID, msg.UserID)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	ch := c.channel()
	if ch == nil {
		return errNoChannel
	}
	return ch.PublishWithContext(ctx, c.exchange, c.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// ConsumeSnapshots feeds deliveries to handle until ctx is done, redialing
// with exponential backoff whenever the delivery stream breaks.
func (c *Client) ConsumeSnapshots(ctx context.Context, handle Handler) error {
	for attempt := 0; ; {
		err := c.consume(ctx, handle)
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "Consumer stopped")
			return ctx.Err()
		}

		wait := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "Consumer interrupted",
			applog.FieldError, err, "attempt", attempt+1, "backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := c.reconnect(); err != nil {
			c.logger.ErrorContext(ctx, "Redial failed", applog.FieldError, err)
			attempt++
			continue
		}
		attempt = 0
	}
}

func (c *Client) consume(ctx context.Context, handle Handler) error {
	ch := c.channel()
	if ch == nil {
		return errNoChannel
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.logger.InfoContext(ctx, "Consuming snapshots")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errNoChannel
			}
			c.dispatch(ctx, d, handle)
		}
	}
}

// dispatch acks handled messages, drops undecodable ones and requeues the
// rest.
func (c *Client) dispatch(ctx context.Context, d amqp091.Delivery, handle Handler) {
	msg, err := SnapshotMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Dropping undecodable message", applog.FieldError, err)
		_ = d.Nack(false, false)
		return
	}
	if err := handle(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Snapshot handler failed, requeueing",
			applog.FieldError, err, "message_id", msg.ID, "kind", msg.Kind)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
	c.logger.DebugContext(ctx, "Snapshot handled", "message_id", msg.ID, "kind", msg.Kind)
}

// exponentialBackoff is 1s doubling per attempt, capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	return min(time.Second<<attempt, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) || errors.Is(err, errNoChannel) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
