package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/questland/heimdall/core"
)

func TestMemoryQueueDeliversAfterDelay(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var delivered []core.ConfirmationJob
	done := make(chan struct{})

	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, job *core.ConfirmationJob) error {
			mu.Lock()
			delivered = append(delivered, *job)
			mu.Unlock()
			close(done)
			return nil
		})
	}()
	// Let Consume attach the handler before enqueueing.
	time.Sleep(10 * time.Millisecond)

	job := &core.ConfirmationJob{TransactionID: "tx-1", Kind: core.JobKindPayment, RetryCount: 3}
	require.NoError(t, q.Enqueue(ctx, job, 5*time.Millisecond))

	// Mutating the caller's job after enqueue must not leak into delivery.
	job.RetryCount = 99

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 1)
	assert.Equal(t, "tx-1", delivered[0].TransactionID)
	assert.Equal(t, 3, delivered[0].RetryCount)
}

func TestMemoryQueueDrainStopsPendingTimers(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	count := 0
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, job *core.ConfirmationJob) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, &core.ConfirmationJob{TransactionID: "tx-far"}, time.Hour))
	q.Drain()
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}
