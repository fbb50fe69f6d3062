package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/metrics"
)

// Handler accepts one decoded event. It must return quickly; a non-nil error
// triggers the retry policy.
type Handler func(ctx context.Context, ev jobs.Event) error

// ConsumerConfig configures a Consumer. Zero values other than MaxRetries
// take the package defaults.
type ConsumerConfig struct {
	URL           string
	Queue         string
	Prefetch      int
	MaxRetries    int
	RetryInterval time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if c.Prefetch <= 0 {
		c.Prefetch = DefaultPrefetch
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	return c
}

// Consumer reads processing events from a queue with manual acknowledgement.
type Consumer struct {
	cfg    ConsumerConfig
	handle Handler
	sleep  func(context.Context, time.Duration) error
}

// NewConsumer builds a Consumer that passes each event to handle.
func NewConsumer(cfg ConsumerConfig, handle Handler) *Consumer {
	return &Consumer{cfg: cfg.withDefaults(), handle: handle, sleep: sleep}
}

// Run consumes until ctx is cancelled, reconnecting when the broker drops
// the connection.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logging.Warn("Event consumer stopped: %v; reconnecting in %v", err, c.cfg.RetryInterval)
		if err := c.sleep(ctx, c.cfg.RetryInterval); err != nil {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := Dial(ctx, c.cfg.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	q, err := declare(ch, c.cfg.Queue)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.cfg.Queue, err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	logging.Info("Waiting for events on queue %s (prefetch %d)", q.Name, c.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.Deliver(ctx, d)
		}
	}
}

// Deliver handles one delivery: decode, hand to the handler with retries,
// then ack or drop.
func (c *Consumer) Deliver(ctx context.Context, d amqp.Delivery) {
	metrics.EventsReceivedTotal.Inc()

	var ev jobs.Event
	if err := json.Unmarshal(d.Body, &ev); err != nil || ev.JobID == "" {
		if err == nil {
			err = errors.New("missing jobId")
		}
		logging.Error("Dropping undecodable event %s: %v", d.MessageId, err)
		metrics.EventsDroppedTotal.WithLabelValues("decode").Inc()
		c.nack(d, false)
		return
	}

	log := logging.ForJob(ev.JobID)
	var err error
	for attempt := 0; ; attempt++ {
		if err = c.handle(ctx, ev); err == nil {
			if ackErr := d.Ack(false); ackErr != nil {
				log.Warn("ack failed: %v", ackErr)
			}
			return
		}
		if attempt >= c.cfg.MaxRetries {
			break
		}

		log.Warn("event handling failed (attempt %d/%d), retrying in %v: %v",
			attempt+1, c.cfg.MaxRetries+1, c.cfg.RetryInterval, err)
		metrics.EventsRetriedTotal.Inc()
		if sleepErr := c.sleep(ctx, c.cfg.RetryInterval); sleepErr != nil {
			log.Info("shutdown during retry, returning event to the queue")
			c.nack(d, true)
			return
		}
	}

	log.Error("dropping event after %d attempts: %v", c.cfg.MaxRetries+1, err)
	metrics.EventsDroppedTotal.WithLabelValues("retries_exhausted").Inc()
	c.nack(d, false)
}

func (c *Consumer) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		logging.Warn("nack of delivery %d failed: %v", d.DeliveryTag, err)
	}
}
