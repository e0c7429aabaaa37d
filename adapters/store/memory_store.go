package store

import (
	"context"
	"sync"
	"time"

	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/ports"
)

// MemoryStore is an in-memory NonceStore and MarkerStore, used in tests and
// single-process development setups. Expiry is enforced lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	nonces  map[string]memoryNonce
	markers map[string]memoryMarker
}

type memoryNonce struct {
	nonce     core.Nonce
	dropAfter time.Time // zero means no store-level expiry
}

type memoryMarker struct {
	value     string
	dropAfter time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces:  make(map[string]memoryNonce),
		markers: make(map[string]memoryMarker),
	}
}

var _ ports.NonceStore = (*MemoryStore)(nil)
var _ ports.MarkerStore = (*MemoryStore)(nil)

// Get returns the stored nonce for an identity.
func (s *MemoryStore) Get(ctx context.Context, identity string) (*core.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.nonces[identity]
	if !ok || entry.dropped(time.Now()) {
		delete(s.nonces, identity)
		return nil, core.ErrNonceNotFound
	}
	nonce := entry.nonce
	return &nonce, nil
}

// Put upserts the nonce.
func (s *MemoryStore) Put(ctx context.Context, nonce *core.Nonce, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryNonce{nonce: *nonce}
	if ttl > 0 {
		entry.dropAfter = time.Now().Add(ttl)
	}
	s.nonces[nonce.Identity] = entry
	return nil
}

// Swap rotates the nonce if the stored value still matches oldValue.
func (s *MemoryStore) Swap(ctx context.Context, identity, oldValue string, next *core.Nonce) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.nonces[identity]
	if !ok || entry.dropped(time.Now()) || entry.nonce.Value != oldValue {
		return false, nil
	}
	s.nonces[identity] = memoryNonce{nonce: *next}
	return true, nil
}

// SetMarker stores an advisory flag with expiry.
func (s *MemoryStore) SetMarker(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markers[key] = memoryMarker{value: value, dropAfter: time.Now().Add(ttl)}
	return nil
}

// GetMarker returns the marker value and whether it is still live.
func (s *MemoryStore) GetMarker(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.markers[key]
	if !ok || time.Now().After(entry.dropAfter) {
		delete(s.markers, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (e memoryNonce) dropped(now time.Time) bool {
	return !e.dropAfter.IsZero() && now.After(e.dropAfter)
}
