package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jobpilot/orchestrator/internal/domain"
)

const (
	baseReconnectDelay = 1 * time.Second
	maxReconnectDelay  = 30 * time.Second
)

// Handler processes one delivery body. Returning nil acknowledges the
// message. Returning ErrSchemaInvalid acknowledges and drops it: a malformed
// payload never becomes deliverable again by redelivery. Any other error
// nacks with requeue.
type Handler func(ctx context.Context, body []byte) error

// Consumer runs a manual-ack consume loop on its own connection, with
// prefetch 1 so a crashed handler leaves at most one message unacked.
type Consumer struct {
	url   string
	queue string

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer constructs a consumer for the named queue. The connection is
// established lazily by Run.
func NewConsumer(url, queue string) *Consumer {
	return &Consumer{url: url, queue: queue}
}

func (c *Consumer) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("queue declare %s: %w", c.queue, err)
	}
	c.conn = conn
	c.ch = ch
	return nil
}

// Run consumes until ctx is cancelled, reconnecting with capped exponential
// backoff when the broker connection drops.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for attempt := 0; ; {
		if c.ch == nil {
			if err := c.connect(); err != nil {
				delay := time.Duration(math.Min(
					float64(baseReconnectDelay)*math.Pow(2, float64(attempt)),
					float64(maxReconnectDelay),
				))
				attempt++
				slog.Warn("consumer connect failed",
					slog.String("queue", c.queue),
					slog.Int("attempt", attempt),
					slog.Duration("retry_in", delay),
					slog.Any("error", err))
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				continue
			}
			attempt = 0
		}

		err := c.consume(ctx, handler)
		c.closeConn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("consumer session ended, reconnecting",
			slog.String("queue", c.queue), slog.Any("error", err))
	}
}

func (c *Consumer) consume(ctx context.Context, handler Handler) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume %s: %w", c.queue, err)
	}
	slog.Info("consumer started", slog.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			herr := handler(ctx, d.Body)
			switch ackAction(herr) {
			case actionAck:
				if err := d.Ack(false); err != nil {
					slog.Error("ack failed", slog.String("queue", c.queue), slog.Any("error", err))
				}
			case actionDrop:
				slog.Warn("dropping malformed message",
					slog.String("queue", c.queue), slog.Any("error", herr))
				if err := d.Ack(false); err != nil {
					slog.Error("ack failed", slog.String("queue", c.queue), slog.Any("error", err))
				}
			case actionRequeue:
				slog.Error("handler failed, requeueing",
					slog.String("queue", c.queue), slog.Any("error", herr))
				if err := d.Nack(false, true); err != nil {
					slog.Error("nack failed", slog.String("queue", c.queue), slog.Any("error", err))
				}
			}
		}
	}
}

type action int

const (
	actionAck action = iota
	actionDrop
	actionRequeue
)

// ackAction maps a handler error to the delivery disposition.
func ackAction(err error) action {
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, domain.ErrSchemaInvalid):
		return actionDrop
	default:
		return actionRequeue
	}
}

func (c *Consumer) closeConn() {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
