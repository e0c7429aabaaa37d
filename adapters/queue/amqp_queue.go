// Package queue provides the durable delay queue carrying confirmation jobs.
//
// The RabbitMQ adapter implements the fixed redelivery delay with a waiting
// queue: jobs are published there with a per-message TTL and no consumer, and
// dead-letter into the work queue once the TTL lapses. Per-message TTL is
// only safe because every job uses the same fixed delay, so the waiting
// queue's head is always the first message to expire.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/ports"
)

const (
	workQueue = "heimdall.confirmations"
	waitQueue = "heimdall.confirmations.wait"

	consumerTag   = "heimdall-confirmation-worker"
	prefetchCount = 8

	dialRetries = 7
)

// AMQPQueue is a RabbitMQ-backed JobQueue and JobConsumer.
type AMQPQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
}

var _ ports.JobQueue = (*AMQPQueue)(nil)
var _ ports.JobConsumer = (*AMQPQueue)(nil)

// NewAMQPQueue dials the broker with exponential backoff and declares the
// work/wait queue pair.
func NewAMQPQueue(url string, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := dialWithRetries(url, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &AMQPQueue{conn: conn, channel: channel, logger: logger}
	if err := q.declareTopology(); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

func dialWithRetries(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	wait := time.Second

	for i := 0; i < dialRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("broker dial failed, retrying",
			zap.Int("attempt", i+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		time.Sleep(wait)
		wait = time.Duration(math.Pow(2, float64(i+1))) * time.Second
	}
	return nil, err
}

func (q *AMQPQueue) declareTopology() error {
	if _, err := q.channel.QueueDeclare(
		workQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare work queue: %w", err)
	}

	if _, err := q.channel.QueueDeclare(
		waitQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": workQueue,
		},
	); err != nil {
		return fmt.Errorf("failed to declare wait queue: %w", err)
	}
	return nil
}

// Enqueue schedules a job for delivery after delay.
func (q *AMQPQueue) Enqueue(ctx context.Context, job *core.ConfirmationJob, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		"",        // default exchange
		waitQueue, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Consume delivers jobs from the work queue to handler until ctx is
// cancelled. Deliveries are acknowledged only after the handler returns nil,
// so a worker crash mid-job redelivers it (at-least-once).
func (q *AMQPQueue) Consume(ctx context.Context, handler ports.JobHandler) error {
	if err := q.channel.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := q.channel.Consume(
		workQueue,
		consumerTag,
		false, // auto-ack off, we ack after handling
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			q.handle(ctx, d, handler)
		}
	}
}

func (q *AMQPQueue) handle(ctx context.Context, d amqp.Delivery, handler ports.JobHandler) {
	var job core.ConfirmationJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		// An unparseable payload can never succeed; drop it instead of
		// cycling it through the broker forever.
		q.logger.Error("dropping malformed job payload", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, &job); err != nil {
		q.logger.Warn("job handling failed, requeueing",
			zap.String("transaction_id", job.TransactionID),
			zap.Error(err),
		)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Close tears down the channel and connection.
func (q *AMQPQueue) Close() error {
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
