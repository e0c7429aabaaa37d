package ports

import (
	"context"
	"time"

	"github.com/questland/heimdall/core"
)

// JobHandler processes one delivery of a confirmation job. Returning nil
// acknowledges the delivery; returning an error leaves it to the broker's
// redelivery policy. Deliveries are at-least-once.
type JobHandler func(ctx context.Context, job *core.ConfirmationJob) error

// JobQueue schedules confirmation jobs for delayed, durable delivery. The
// fixed-delay retry loop is expressed as "enqueue again with delay" rather
// than an in-process timer so that any worker on the queue may pick up the
// redelivery.
type JobQueue interface {
	// Enqueue schedules the job for delivery after delay.
	Enqueue(ctx context.Context, job *core.ConfirmationJob, delay time.Duration) error
}

// JobConsumer attaches a handler to the queue's delivery stream.
type JobConsumer interface {
	// Consume blocks delivering jobs to handler until ctx is cancelled.
	Consume(ctx context.Context, handler JobHandler) error
}
