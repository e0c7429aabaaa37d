package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/ports"
)

const (
	noncePrefix  = "heimdall:nonce:"
	markerPrefix = "heimdall:marker:"
)

// swapScript is the compare-and-set used for nonce rotation: replace the
// stored record only if its value field still matches. Rotation happens only
// after a successful verification, so the swapped-in record is persisted
// without expiry.
var swapScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'value') ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
	'identity', ARGV[2],
	'value', ARGV[3],
	'issued_at', ARGV[4],
	'expires_at', ARGV[5],
	'verified_at', ARGV[6])
return 1
`)

// RedisStore implements NonceStore and MarkerStore on a shared Redis client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ ports.NonceStore = (*RedisStore)(nil)
var _ ports.MarkerStore = (*RedisStore)(nil)

// Get returns the stored nonce for an identity.
func (s *RedisStore) Get(ctx context.Context, identity string) (*core.Nonce, error) {
	fields, err := s.client.HGetAll(ctx, noncePrefix+identity).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load nonce: %w", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNonceNotFound
	}
	return nonceFromFields(identity, fields)
}

// Put upserts the nonce, dropping it after ttl when ttl is positive.
func (s *RedisStore) Put(ctx context.Context, nonce *core.Nonce, ttl time.Duration) error {
	key := noncePrefix + nonce.Identity

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, nonceFields(nonce))
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

// Swap atomically rotates the nonce if the stored value still matches.
func (s *RedisStore) Swap(ctx context.Context, identity, oldValue string, next *core.Nonce) (bool, error) {
	verifiedAt := ""
	if next.VerifiedAt != nil {
		verifiedAt = next.VerifiedAt.UTC().Format(time.RFC3339Nano)
	}

	res, err := swapScript.Run(ctx, s.client, []string{noncePrefix + identity},
		oldValue,
		next.Identity,
		next.Value,
		next.IssuedAt.UTC().Format(time.RFC3339Nano),
		next.ExpiresAt.UTC().Format(time.RFC3339Nano),
		verifiedAt,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to swap nonce: %w", err)
	}
	return res == 1, nil
}

// SetMarker stores an advisory flag with expiry.
func (s *RedisStore) SetMarker(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, markerPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set marker: %w", err)
	}
	return nil
}

// GetMarker returns the marker value and whether it is (still) present.
func (s *RedisStore) GetMarker(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, markerPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get marker: %w", err)
	}
	return value, true, nil
}

func nonceFields(nonce *core.Nonce) map[string]string {
	verifiedAt := ""
	if nonce.VerifiedAt != nil {
		verifiedAt = nonce.VerifiedAt.UTC().Format(time.RFC3339Nano)
	}
	return map[string]string{
		"identity":    nonce.Identity,
		"value":       nonce.Value,
		"issued_at":   nonce.IssuedAt.UTC().Format(time.RFC3339Nano),
		"expires_at":  nonce.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"verified_at": verifiedAt,
	}
}

func nonceFromFields(identity string, fields map[string]string) (*core.Nonce, error) {
	issuedAt, err := time.Parse(time.RFC3339Nano, fields["issued_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt nonce record for %s: %w", identity, err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt nonce record for %s: %w", identity, err)
	}

	nonce := &core.Nonce{
		Identity:  identity,
		Value:     fields["value"],
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	if raw := fields["verified_at"]; raw != "" {
		verifiedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt nonce record for %s: %w", identity, err)
		}
		nonce.VerifiedAt = &verifiedAt
	}
	return nonce, nil
}
