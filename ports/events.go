package ports

import (
	"context"

	"github.com/questland/heimdall/core"
)

// EventPublisher dispatches terminal confirmation events to downstream
// handlers. Publication is fire-and-forget from the poller's point of view;
// delivery deduplication is the downstream collaborator's concern.
type EventPublisher interface {
	PublishConfirmed(ctx context.Context, event core.TransactionEvent) error
	PublishFailed(ctx context.Context, event core.TransactionEvent) error
	PublishSkipped(ctx context.Context, event core.TransactionEvent) error
}
