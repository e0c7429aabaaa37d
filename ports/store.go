package ports

import (
	"context"
	"time"

	"github.com/questland/heimdall/core"
)

// NonceStore persists the single live challenge per identity. The identity
// is the natural key; Put overwrites whatever was stored before, which is
// what invalidates a superseded nonce.
type NonceStore interface {
	// Get returns the stored nonce for an identity, or core.ErrNonceNotFound.
	Get(ctx context.Context, identity string) (*core.Nonce, error)

	// Put upserts the nonce. A zero ttl stores the record without expiry;
	// otherwise the record is dropped after ttl unless overwritten first.
	Put(ctx context.Context, nonce *core.Nonce, ttl time.Duration) error

	// Swap atomically replaces the stored nonce only if its current value
	// equals oldValue. It reports false when the comparison loses, which is
	// how a racing second verification attempt is rejected.
	Swap(ctx context.Context, identity, oldValue string, next *core.Nonce) (bool, error)
}

// MarkerStore holds short-lived advisory flags, such as the "purchase in
// progress" marker written when a payment confirmation job is registered.
// Markers expire on their own and must never be relied on for correctness.
type MarkerStore interface {
	SetMarker(ctx context.Context, key, value string, ttl time.Duration) error

	// GetMarker returns the marker value and whether it is present.
	GetMarker(ctx context.Context, key string) (string, bool, error)
}
