package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"video-pipeline/internal/jobs"
)

// Publisher sends processing events to the upload queue.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewPublisher connects to url and declares queue.
func NewPublisher(ctx context.Context, url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declare(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish sends ev as a persistent JSON message and returns its message id.
func (p *Publisher) Publish(ctx context.Context, ev jobs.Event) (string, error) {
	msg, err := Message(ev)
	if err != nil {
		return "", err
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return "", fmt.Errorf("publish event for job %s: %w", ev.JobID, err)
	}
	return msg.MessageId, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.ch.Close()
	return p.conn.Close()
}

// Message encodes ev as an AMQP publishing.
func Message(ev jobs.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
