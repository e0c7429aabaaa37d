package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/ports"
)

// MemoryQueue is an in-process JobQueue for tests and single-node
// development. Delays run on timers; there is no durability.
type MemoryQueue struct {
	mu      sync.Mutex
	handler ports.JobHandler
	timers  map[*time.Timer]struct{}
	logger  *zap.Logger
	wg      sync.WaitGroup
}

var _ ports.JobQueue = (*MemoryQueue)(nil)
var _ ports.JobConsumer = (*MemoryQueue)(nil)

// NewMemoryQueue creates a new in-process queue.
func NewMemoryQueue(logger *zap.Logger) *MemoryQueue {
	return &MemoryQueue{
		timers: make(map[*time.Timer]struct{}),
		logger: logger,
	}
}

// Enqueue schedules the job for delivery after delay. Jobs enqueued before a
// handler is attached are dropped with a log line, mirroring a broker with no
// bound queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *core.ConfirmationJob, delay time.Duration) error {
	copied := *job

	q.mu.Lock()
	defer q.mu.Unlock()

	q.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer q.wg.Done()

		q.mu.Lock()
		handler := q.handler
		delete(q.timers, timer)
		q.mu.Unlock()

		if handler == nil {
			q.logger.Warn("dropping job, no consumer attached",
				zap.String("transaction_id", copied.TransactionID))
			return
		}
		if err := handler(context.Background(), &copied); err != nil {
			q.logger.Warn("job handling failed",
				zap.String("transaction_id", copied.TransactionID),
				zap.Error(err))
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Consume attaches the handler and blocks until ctx is cancelled.
func (q *MemoryQueue) Consume(ctx context.Context, handler ports.JobHandler) error {
	q.mu.Lock()
	q.handler = handler
	q.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

// Drain stops pending timers and waits for in-flight deliveries.
func (q *MemoryQueue) Drain() {
	q.mu.Lock()
	for timer := range q.timers {
		if timer.Stop() {
			q.wg.Done()
		}
		delete(q.timers, timer)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
