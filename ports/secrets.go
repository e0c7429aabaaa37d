package ports

import "context"

// KeypairSource resolves the deployment's signing keypair. Implementations
// are expected to resolve the material once and serve the same immutable
// pair afterwards.
type KeypairSource interface {
	// ServerKeypair returns the server's public key (base58) and secret key
	// (hex-encoded 64-byte ed25519 key).
	ServerKeypair(ctx context.Context) (publicKey, secretKeyHex string, err error)
}
