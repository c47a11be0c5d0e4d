// Package rabbitmq implements the message bus ports over AMQP. Queues are
// durable and declared idempotently; the broker, not the process, is the
// source of truth for in-flight work.
package rabbitmq

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jobpilot/orchestrator/internal/domain"
)

// Bus implements domain.MessageBus on a single AMQP connection. It is safe
// for concurrent use; publishes and depth probes share one channel under a
// mutex because amqp091 channels are not goroutine-safe.
type Bus struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]struct{}
}

// DialBus connects to the broker, retrying with exponential backoff so the
// process survives a broker that is still starting.
func DialBus(url string) (*Bus, error) {
	b := &Bus{url: url, declared: make(map[string]struct{})}
	op := func() error { return b.connect() }
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("op=bus.dial: %w", err)
	}
	return b, nil
}

func (b *Bus) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	b.mu.Lock()
	b.conn = conn
	b.ch = ch
	b.declared = make(map[string]struct{})
	b.mu.Unlock()
	return nil
}

// ensureQueue declares the queue once per connection. Declaration is
// idempotent on the broker side.
func (b *Bus) ensureQueue(queue string) error {
	if _, ok := b.declared[queue]; ok {
		return nil
	}
	if _, err := b.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", queue, err)
	}
	b.declared[queue] = struct{}{}
	return nil
}

// Publish sends body to the named queue. Persistent deliveries survive a
// broker restart; transient ones are used for dispatch fan-out where a lost
// message only delays a submission.
func (b *Bus) Publish(ctx domain.Context, queue string, body []byte, persistent bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch == nil {
		return fmt.Errorf("op=bus.publish: %w", domain.ErrInternal)
	}
	if err := b.ensureQueue(queue); err != nil {
		return fmt.Errorf("op=bus.publish: %w", err)
	}
	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: mode,
		Timestamp:    time.Now(),
	}
	if err := b.ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("op=bus.publish queue=%s: %w", queue, err)
	}
	return nil
}

// Depth reports the ready-message count via a passive re-declare.
func (b *Bus) Depth(ctx domain.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch == nil {
		return 0, fmt.Errorf("op=bus.depth: %w", domain.ErrInternal)
	}
	q, err := b.ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("op=bus.depth queue=%s: %w", queue, err)
	}
	b.declared[queue] = struct{}{}
	return q.Messages, nil
}

// Close tears down the channel and connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	if b.ch != nil {
		if err := b.ch.Close(); err != nil {
			firstErr = err
		}
		b.ch = nil
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.conn = nil
	}
	if firstErr != nil {
		slog.Warn("bus close", slog.Any("error", firstErr))
	}
	return firstErr
}
