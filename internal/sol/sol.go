// Package sol decides whether a detached ed25519 signature over one of the
// supported challenge encodings was produced by the holder of a given Solana
// public key. Different wallets can only sign different shapes: some sign an
// arbitrary string, some only an already-constructed transaction, some only a
// versioned transaction. The server therefore reconstructs, byte for byte,
// what the client actually signed.
package sol

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Mode selects the challenge encoding a signature is verified against.
type Mode string

const (
	// ModeRaw verifies over the UTF-8 bytes of the nonce verbatim.
	ModeRaw Mode = "raw"

	// ModeTransaction verifies over the serialized message of a placeholder
	// legacy transaction carrying the nonce in a memo instruction.
	ModeTransaction Mode = "transaction"

	// ModeVersioned treats the signature argument as a complete serialized
	// versioned transaction and verifies its first signature against an
	// independently rebuilt v0 message.
	ModeVersioned Mode = "versioned"
)

type verifyFunc func(nonce, signature string, identity solana.PublicKey) bool

// strategy pairs a mode with its verifier. VerifyAny walks this slice in
// order, so cheaper encodings are listed first.
type strategy struct {
	mode Mode
	fn   verifyFunc
}

var strategies = []strategy{
	{ModeRaw, verifyRaw},
	{ModeTransaction, verifyTransaction},
	{ModeVersioned, verifyVersioned},
}

// Verify reports whether signature proves possession of identity's private
// key under the given mode. It never fails with an error: malformed input of
// any kind, attacker-controlled or otherwise, yields false.
func Verify(nonce, signature, identity string, mode Mode) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	pub, err := solana.PublicKeyFromBase58(identity)
	if err != nil {
		return false
	}
	for _, s := range strategies {
		if s.mode == mode {
			return s.fn(nonce, signature, pub)
		}
	}
	return false
}

// VerifyAny tries every supported mode in order and succeeds if any accepts.
func VerifyAny(nonce, signature, identity string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	pub, err := solana.PublicKeyFromBase58(identity)
	if err != nil {
		return false
	}
	for _, s := range strategies {
		if s.fn(nonce, signature, pub) {
			return true
		}
	}
	return false
}

// Sign produces a hex-encoded detached ed25519 signature over the UTF-8
// bytes of message. The secret key is the hex encoding of a 64-byte ed25519
// private key.
func Sign(message, secretKeyHex string) (string, error) {
	raw, err := hex.DecodeString(secretKeyHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret key: %w", err)
	}
	if len(raw) != 64 {
		return "", fmt.Errorf("secret key must be 64 bytes, got %d", len(raw))
	}
	priv := solana.PrivateKey(raw)
	sig, err := priv.Sign([]byte(message))
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	return hex.EncodeToString(sig[:]), nil
}

func verifyRaw(nonce, signature string, identity solana.PublicKey) bool {
	sig, ok := decodeSignature(signature)
	if !ok {
		return false
	}
	return identity.Verify([]byte(nonce), sig)
}

func decodeSignature(signature string) (solana.Signature, bool) {
	raw, err := hex.DecodeString(signature)
	if err != nil {
		return solana.Signature{}, false
	}
	sig := solana.SignatureFromBytes(raw)
	return sig, true
}

// decodeEnvelope accepts the serialized-transaction argument of the
// versioned mode. Hex is the documented encoding; base64 is accepted as a
// fallback because several wallet adapters emit it.
func decodeEnvelope(signature string) ([]byte, bool) {
	if raw, err := hex.DecodeString(signature); err == nil {
		return raw, true
	}
	if raw, err := base64.StdEncoding.DecodeString(signature); err == nil {
		return raw, true
	}
	return nil, false
}
