package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/ports"
)

// CommitmentConfirmed is the ledger commitment level every poll queries at.
const CommitmentConfirmed = "confirmed"

// ConfirmConfig carries the poller's policy knobs. Zero values fall back to
// the defaults below.
type ConfirmConfig struct {
	RetryMax       int
	PollDelay      time.Duration
	LedgerTimeout  time.Duration
	PublishTimeout time.Duration
}

const (
	defaultRetryMax       = 10
	defaultPollDelay      = 3 * time.Second
	defaultLedgerTimeout  = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// ConfirmService turns a registered transaction id into exactly one terminal
// event. Each queue delivery re-derives its decision from current ledger
// state, so crash-and-redeliver never flips an outcome; it can at most repeat
// an emission, which downstream consumers deduplicate.
type ConfirmService struct {
	queue   ports.JobQueue
	ledger  ports.LedgerClient
	events  ports.EventPublisher
	markers ports.MarkerStore
	logger  *zap.Logger

	retryMax       int
	pollDelay      time.Duration
	ledgerTimeout  time.Duration
	publishTimeout time.Duration
}

// NewConfirmService creates a new confirmation poller.
func NewConfirmService(
	queue ports.JobQueue,
	ledger ports.LedgerClient,
	events ports.EventPublisher,
	markers ports.MarkerStore,
	logger *zap.Logger,
	cfg ConfirmConfig,
) *ConfirmService {
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = defaultRetryMax
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = defaultPollDelay
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = defaultLedgerTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &ConfirmService{
		queue:          queue,
		ledger:         ledger,
		events:         events,
		markers:        markers,
		logger:         logger,
		retryMax:       cfg.RetryMax,
		pollDelay:      cfg.PollDelay,
		ledgerTimeout:  cfg.LedgerTimeout,
		publishTimeout: cfg.PublishTimeout,
	}
}

// Register enqueues a confirmation job for the transaction with the initial
// poll delay. For payment jobs carrying identity and resource context it also
// drops a short-lived "purchase in progress" marker so query endpoints can
// show optimistic state before the terminal event lands. The marker is
// advisory: it expires on its own and its loss is harmless.
func (s *ConfirmService) Register(ctx context.Context, transactionID string, kind core.JobKind, auxiliary map[string]string) error {
	job := &core.ConfirmationJob{
		TransactionID: transactionID,
		Kind:          kind,
		RetryCount:    0,
		Auxiliary:     auxiliary,
	}

	if kind == core.JobKindPayment {
		identity, resource := auxiliary["identity"], auxiliary["resource"]
		if identity != "" && resource != "" {
			ttl := time.Duration(s.retryMax+2) * s.pollDelay
			key := PurchaseMarkerKey(identity, resource)
			if err := s.markers.SetMarker(ctx, key, transactionID, ttl); err != nil {
				s.logger.Warn("failed to set purchase marker",
					zap.String("transaction_id", transactionID),
					zap.Error(err),
				)
			}
		}
	}

	if err := s.queue.Enqueue(ctx, job, s.pollDelay); err != nil {
		return fmt.Errorf("failed to enqueue confirmation job: %w", err)
	}

	s.logger.Info("confirmation registered",
		zap.String("transaction_id", transactionID),
		zap.String("kind", string(kind)),
	)
	return nil
}

// HandleDelivery is the queue callback, safe to run from many workers at
// once. Returning an error leaves the delivery unacknowledged so the broker
// redelivers it.
func (s *ConfirmService) HandleDelivery(ctx context.Context, job *core.ConfirmationJob) error {
	status := s.lookup(ctx, job)

	switch {
	case status != nil && status.Landed && !status.Succeeded:
		return s.publish(ctx, job, "failed", s.events.PublishFailed)

	case status != nil && status.Landed:
		return s.publish(ctx, job, "confirmed", s.events.PublishConfirmed)

	case job.RetryCount >= s.retryMax:
		return s.publish(ctx, job, "skipped", s.events.PublishSkipped)

	default:
		job.RetryCount++
		if err := s.queue.Enqueue(ctx, job, s.pollDelay); err != nil {
			return fmt.Errorf("failed to re-enqueue confirmation job: %w", err)
		}
		return nil
	}
}

// lookup queries the ledger under its own timeout. A transient RPC failure
// is folded into "not yet visible": the job takes the retry path instead of
// surfacing an error that would burn a broker redelivery without counting it.
func (s *ConfirmService) lookup(ctx context.Context, job *core.ConfirmationJob) *ports.TransactionStatus {
	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	status, err := s.ledger.GetTransaction(lctx, job.TransactionID, CommitmentConfirmed)
	if err != nil {
		s.logger.Warn("ledger lookup failed, treating as not yet visible",
			zap.String("transaction_id", job.TransactionID),
			zap.Int("retry_count", job.RetryCount),
			zap.Error(err),
		)
		return nil
	}
	return status
}

func (s *ConfirmService) publish(ctx context.Context, job *core.ConfirmationJob, outcome string, emit func(context.Context, core.TransactionEvent) error) error {
	pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if err := emit(pctx, job.Event()); err != nil {
		return fmt.Errorf("failed to publish terminal event: %w", err)
	}

	s.logger.Info("confirmation terminal",
		zap.String("transaction_id", job.TransactionID),
		zap.String("outcome", outcome),
		zap.Int("retry_count", job.RetryCount),
	)
	return nil
}

// PurchaseMarkerKey names the advisory marker for a pending purchase.
func PurchaseMarkerKey(identity, resource string) string {
	return fmt.Sprintf("purchase:%s:%s", identity, resource)
}
