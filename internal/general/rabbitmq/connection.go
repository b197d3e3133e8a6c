package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tow-dispatch/internal/general/config"
	"tow-dispatch/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dialTimeout      = 30 * time.Second
	heartbeat        = 10 * time.Second
	redialBackoffMin = time.Second
	redialBackoffMax = 30 * time.Second
)

// Client keeps one broker connection alive for the dispatch service. A lost
// connection or publish channel triggers a background redial; publishing and
// consuming always read the current handles under the lock.
type Client struct {
	amqpURL string
	logger  *logger.Logger
	logCtx  context.Context // survives request cancellation

	mu        sync.RWMutex
	conn      *amqp.Connection
	publishCh *amqp.Channel

	confirmMu sync.Mutex
	confirms  chan amqp.Confirmation

	done   chan struct{}
	redial chan struct{}
}

// Dial connects to the broker, declares the dispatch topology and starts the
// redial watcher.
func Dial(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	c := &Client{
		amqpURL: fmt.Sprintf("amqp://%s:%s@%s:%d/",
			cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port),
		logger: log,
		logCtx: context.WithoutCancel(ctx),
		done:   make(chan struct{}),
		redial: make(chan struct{}, 1),
	}

	// one attempt up front; afterwards failures go through the watcher
	if err := c.establish(); err != nil {
		return nil, err
	}
	go c.keepAlive()

	return c, nil
}

// Close stops the watcher and releases broker resources.
func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}

	c.mu.Lock()
	if c.publishCh != nil {
		_ = c.publishCh.Close()
		c.publishCh = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.confirmMu.Lock()
	if c.confirms != nil {
		close(c.confirms) // wake any publisher blocked on a confirm
		c.confirms = nil
	}
	c.confirmMu.Unlock()
}

// establish dials, declares topology and installs a confirmed publish
// channel, replacing whatever was there before.
func (c *Client) establish() (err error) {
	conn, err := amqp.DialConfig(c.amqpURL, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		c.logger.Error(c.logCtx, "broker_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() {
		if err != nil {
			_ = conn.Close()
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		c.logger.Error(c.logCtx, "broker_channel_failed", "Failed to open publish channel", err, nil)
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() {
		if err != nil {
			_ = ch.Close()
		}
	}()

	if err = declareTopology(ch); err != nil {
		c.logger.Error(c.logCtx, "broker_topology_failed", "Failed to declare dispatch topology", err, nil)
		return fmt.Errorf("rabbitmq topology: %w", err)
	}
	if err = ch.Confirm(false); err != nil {
		c.logger.Error(c.logCtx, "broker_confirms_failed", "Failed to enable publisher confirms", err, nil)
		return fmt.Errorf("rabbitmq confirms: %w", err)
	}

	c.swapConfirms(ch.NotifyPublish(make(chan amqp.Confirmation, 1)))
	go c.drainReturns(ch.NotifyReturn(make(chan amqp.Return, 1)))

	c.mu.Lock()
	if c.publishCh != nil && !c.publishCh.IsClosed() {
		_ = c.publishCh.Close()
	}
	c.conn = conn
	c.publishCh = ch
	c.mu.Unlock()

	go c.watchClose(conn, ch)

	c.logger.Info(c.logCtx, "broker_connected", "RabbitMQ connection established", nil)
	return nil
}

// swapConfirms installs a fresh confirm stream and unblocks waiters on the
// old one.
func (c *Client) swapConfirms(next chan amqp.Confirmation) {
	c.confirmMu.Lock()
	prev := c.confirms
	c.confirms = next
	c.confirmMu.Unlock()
	if prev != nil {
		close(prev)
	}
}

// drainReturns logs unroutable messages (published with mandatory=true).
func (c *Client) drainReturns(returns <-chan amqp.Return) {
	for r := range returns {
		c.logger.Error(c.logCtx, "broker_message_returned", "Unroutable message returned by broker",
			fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
			map[string]any{
				"exchange":    r.Exchange,
				"routing_key": r.RoutingKey,
				"size":        len(r.Body),
			},
		)
	}
}

// watchClose requests a redial the moment the connection or the publish
// channel dies.
func (c *Client) watchClose(conn *amqp.Connection, ch *amqp.Channel) {
	connErr := conn.NotifyClose(make(chan *amqp.Error, 1))
	chErr := ch.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-c.done:
		return
	case <-connErr:
	case <-chErr:
	}

	select {
	case c.redial <- struct{}{}:
	default: // a redial is already queued
	}
}

// keepAlive serves redial requests with capped exponential backoff.
func (c *Client) keepAlive() {
	backoff := redialBackoffMin
	for {
		select {
		case <-c.done:
			return
		case <-c.redial:
		}

		for {
			select {
			case <-c.done:
				return
			default:
			}

			if err := c.establish(); err == nil {
				backoff = redialBackoffMin
				c.logger.Info(c.logCtx, "broker_reconnected", "Reconnected to RabbitMQ", nil)
				break
			} else {
				c.logger.Error(c.logCtx, "broker_redial_failed", "Failed to reconnect to RabbitMQ", err, map[string]any{
					"next_attempt_in": backoff.String(),
				})
			}

			time.Sleep(backoff)
			if backoff *= 2; backoff > redialBackoffMax {
				backoff = redialBackoffMax
			}
		}
	}
}
