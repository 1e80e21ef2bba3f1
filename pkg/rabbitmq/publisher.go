package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"sync"
	"video-sentinel/config"
)

// Publisher sends JSON messages of type T to a topology's exchange.
type Publisher[T any] struct {
	conn     *amqp.Connection
	cfg      *config.RabbitMQ
	topology Topology

	mu       sync.Mutex
	ch       *amqp.Channel
	declared bool
}

func NewPublisher[T any](conn *amqp.Connection, cfg *config.RabbitMQ, topology Topology) *Publisher[T] {
	return &Publisher[T]{conn: conn, cfg: cfg, topology: topology}
}

// Dispatch publishes msg as a persistent message.
func (p *Publisher[T]) Dispatch(ctx context.Context, msg T) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, p.topology.Exchange, p.topology.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		// drop the channel so the next call opens a fresh one
		_ = ch.Close()
		p.ch = nil
		return fmt.Errorf("publish to %s: %w", p.topology.Exchange, err)
	}

	zerolog.Ctx(ctx).Debug().Str("exchange", p.topology.Exchange).Str("routing_key", p.topology.RoutingKey).Msg("message published")
	return nil
}

func (p *Publisher[T]) channel() (*amqp.Channel, error) {
	if p.conn == nil {
		return nil, amqp.ErrClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if !p.declared {
		if err := Declare(ch, p.cfg.Kind, p.topology); err != nil {
			_ = ch.Close()
			return nil, err
		}
		p.declared = true
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
