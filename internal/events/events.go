package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"video-pipeline/internal/logging"
)

// Defaults mirror the transport policy: two retries five seconds apart,
// then the event is dropped.
const (
	DefaultQueue         = "video-upload-events"
	DefaultPrefetch      = 4
	DefaultMaxRetries    = 2
	DefaultRetryInterval = 5 * time.Second

	dialAttempts = 5
	dialBackoff  = 5 * time.Second
)

// Dial connects to the broker, retrying while it comes up.
func Dial(ctx context.Context, url string) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			logging.Info("Connected to message broker")
			return conn, nil
		}
		lastErr = err
		logging.Warn("Broker connection failed (%d/%d): %v", attempt, dialAttempts, err)

		if attempt == dialAttempts {
			break
		}
		if err := sleep(ctx, dialBackoff); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("connect to broker after %d attempts: %w", dialAttempts, lastErr)
}

func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
