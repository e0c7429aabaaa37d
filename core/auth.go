package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// NonceValuePrefix is the human-readable prefix embedded in every challenge
// value handed to a wallet for signing.
const NonceValuePrefix = "Heimdall Authorization Token: "

// Nonce is a single-use challenge tied to an identity (a Solana public key).
// The record doubles as the identity's registration state: VerifiedAt is set
// exactly once, on the first successful signature verification.
type Nonce struct {
	Identity   string     `json:"identity"`
	Value      string     `json:"value"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// Verified reports whether the identity behind this nonce completed sign-up
// at some point in the past.
func (n *Nonce) Verified() bool {
	return n.VerifiedAt != nil
}

// Expired reports whether the challenge window has closed. Verified records
// are kept without expiry, so only unverified nonces can expire.
func (n *Nonce) Expired(now time.Time) bool {
	return !n.Verified() && now.After(n.ExpiresAt)
}

// ClaimBundle is the server-countersigned credential returned to an
// authenticated caller and re-verified statelessly on every protected call.
type ClaimBundle struct {
	Subject         string `json:"subject"`
	Issuer          string `json:"issuer"`
	IssuedAt        int64  `json:"issued_at"`
	ExpiresAt       int64  `json:"expires_at"`
	ClientSignature string `json:"client_signature"`
	NonceEcho       Nonce  `json:"nonce"`
	Role            string `json:"role"`
	ServerSignature string `json:"server_signature,omitempty"`
}

// SigningBytes returns the canonical serialization covered by
// ServerSignature: the JSON of every field except the signature itself.
// Mutating any covered field changes these bytes and breaks verification.
func (b *ClaimBundle) SigningBytes() ([]byte, error) {
	unsigned := *b
	unsigned.ServerSignature = ""
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize claim bundle: %w", err)
	}
	return data, nil
}

// Encode renders the bundle as the opaque bearer credential: base64 of its
// JSON serialization.
func (b *ClaimBundle) Encode() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to serialize claim bundle: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeClaimBundle parses a bearer credential produced by Encode. It does
// not verify anything; see service.AuthService.VerifyClaimToken.
func DecodeClaimBundle(token string) (*ClaimBundle, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrClaimMalformed
	}
	var bundle ClaimBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, ErrClaimMalformed
	}
	return &bundle, nil
}
