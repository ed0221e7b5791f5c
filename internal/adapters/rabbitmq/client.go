package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rpsouza441/ticker-monitor/internal/adapters/config"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
	"github.com/rpsouza441/ticker-monitor/pkg/logger"
)

// Client owns the broker connection and the two durable queues: the
// primary work queue and its dead-letter companion. The consumer is the
// single owner of this connection.
type Client struct {
	cfg  config.RabbitMQConfig
	log  *logger.Logger
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

// Connect dials the broker and declares both queues durable.
func Connect(cfg config.RabbitMQConfig) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open channel")
	}

	for _, queue := range []string{cfg.Queue, cfg.DLQ} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to declare queue %s", queue)
		}
	}

	// One message in flight: the executor finishes a job before the
	// broker hands over the next delivery.
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to set qos")
	}

	log := logger.Get().With("component", "rabbitmq", "queue", cfg.Queue)
	log.Info("RabbitMQ connected")

	return &Client{cfg: cfg, log: log, conn: conn, ch: ch}, nil
}

// Publish sends a persistent message to the primary queue.
func (c *Client) Publish(ctx context.Context, body []byte) error {
	return c.publish(ctx, c.cfg.Queue, body)
}

// PublishDead routes a message to the dead-letter queue after the job
// retry ceiling was exhausted.
func (c *Client) PublishDead(ctx context.Context, body []byte) error {
	return c.publish(ctx, c.cfg.DLQ, body)
}

func (c *Client) publish(ctx context.Context, queue string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(errors.ErrTransient, "publish to %s: %v", queue, err)
	}
	return nil
}

// Consume opens the delivery stream from the primary queue.
// Deliveries must be acked or nacked by the caller.
func (c *Client) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start consuming")
	}
	return deliveries, nil
}

// QueueDepth returns the number of ready messages in the primary queue.
func (c *Client) QueueDepth() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.ch.QueueDeclarePassive(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to inspect queue")
	}
	return q.Messages, nil
}

// Health checks broker connectivity.
func (c *Client) Health(ctx context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.Wrap(errors.ErrUnavailable, "rabbitmq connection closed")
	}
	return nil
}

// Close shuts the channel and connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}
