// Package secrets resolves the server's signing keypair.
package secrets

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/ports"
)

// EnvKeypairSource serves a keypair handed to it at construction, typically
// from the environment. The material is validated once, on first use, and
// immutable afterwards: the sync.Once guard replaces the ad hoc
// check-the-nullable-field caching this pattern tends to grow.
type EnvKeypairSource struct {
	publicKey    string
	secretKeyHex string

	once    sync.Once
	onceErr error
}

var _ ports.KeypairSource = (*EnvKeypairSource)(nil)

// NewEnvKeypairSource creates a source serving the given material.
func NewEnvKeypairSource(publicKey, secretKeyHex string) *EnvKeypairSource {
	return &EnvKeypairSource{publicKey: publicKey, secretKeyHex: secretKeyHex}
}

// ServerKeypair returns the validated keypair.
func (s *EnvKeypairSource) ServerKeypair(ctx context.Context) (string, string, error) {
	s.once.Do(func() {
		s.onceErr = s.validate()
	})
	if s.onceErr != nil {
		return "", "", fmt.Errorf("%w: %v", core.ErrSecretsUnavailable, s.onceErr)
	}
	return s.publicKey, s.secretKeyHex, nil
}

func (s *EnvKeypairSource) validate() error {
	if s.publicKey == "" || s.secretKeyHex == "" {
		return fmt.Errorf("server keypair not configured")
	}

	pub, err := solana.PublicKeyFromBase58(s.publicKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}

	raw, err := hex.DecodeString(s.secretKeyHex)
	if err != nil {
		return fmt.Errorf("invalid secret key encoding: %w", err)
	}
	if len(raw) != 64 {
		return fmt.Errorf("secret key must be 64 bytes, got %d", len(raw))
	}

	if !solana.PrivateKey(raw).PublicKey().Equals(pub) {
		return fmt.Errorf("secret key does not match public key")
	}
	return nil
}
