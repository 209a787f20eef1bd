package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"qonbaq/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher writes auth events as JSON to a durable queue for audit consumers.
type Publisher struct {
	conn    *amqp.Connection
	queue   amqp.Queue
	mu      sync.Mutex // amqp channels are not safe for concurrent publishing
	channel *amqp.Channel
}

func New(urlForConn string, queueName string) (*Publisher, error) {
	const op = "rabbitmq.New"

	conn, err := amqp.Dial(urlForConn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	q, err := ch.QueueDeclare(
		queueName, true, false, false, false, nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
		queue:   q,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, event models.AuthEvent) error {
	const op = "rabbitmq.Publish"

	msg, err := newPublishing(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.PublishWithContext(ctx, "", p.queue.Name, false, false, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func newPublishing(event models.AuthEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		Type:         string(event.Type),
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
	}, nil
}

func (p *Publisher) Close() {
	_ = p.channel.Close()
	_ = p.conn.Close()
}
