package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/ports"
)

// Topics the three terminal events are published on. Downstream handlers are
// expected to deduplicate on transaction id: redelivery after a worker crash
// can repeat an emission.
const (
	TopicConfirmed = "heimdall.transactions.confirmed"
	TopicFailed    = "heimdall.transactions.failed"
	TopicSkipped   = "heimdall.transactions.skipped"
)

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishConfirmed emits a TransactionConfirmed event.
func (p *WatermillPublisher) PublishConfirmed(ctx context.Context, event core.TransactionEvent) error {
	return p.publish(ctx, TopicConfirmed, event)
}

// PublishFailed emits a TransactionFailed event.
func (p *WatermillPublisher) PublishFailed(ctx context.Context, event core.TransactionEvent) error {
	return p.publish(ctx, TopicFailed, event)
}

// PublishSkipped emits a TransactionSkipped event.
func (p *WatermillPublisher) PublishSkipped(ctx context.Context, event core.TransactionEvent) error {
	return p.publish(ctx, TopicSkipped, event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event core.TransactionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("transaction_id", event.TransactionID)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
