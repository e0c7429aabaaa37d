package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/internal/sol"
	"github.com/questland/heimdall/ports"
)

// AuthConfig carries the authenticator's policy knobs. Zero values fall back
// to the defaults below.
type AuthConfig struct {
	NonceTTL time.Duration
	ClaimTTL time.Duration
	Role     string
}

const (
	defaultNonceTTL = 30 * time.Second
	defaultClaimTTL = 24 * time.Hour
	defaultRole     = "user"
)

// AuthService runs the challenge-response protocol: it issues single-use
// nonces, verifies wallet signatures over them and mints server-countersigned
// claim bundles. Per identity the state machine is
// NoNonce -> NonceIssued -> Verified, with re-issuance allowed for sign-in.
type AuthService struct {
	nonces ports.NonceStore
	keys   ports.KeypairSource
	logger *zap.Logger

	nonceTTL time.Duration
	claimTTL time.Duration
	role     string

	now func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(nonces ports.NonceStore, keys ports.KeypairSource, logger *zap.Logger, cfg AuthConfig) *AuthService {
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = defaultNonceTTL
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = defaultClaimTTL
	}
	if cfg.Role == "" {
		cfg.Role = defaultRole
	}
	return &AuthService{
		nonces:   nonces,
		keys:     keys,
		logger:   logger,
		nonceTTL: cfg.NonceTTL,
		claimTTL: cfg.ClaimTTL,
		role:     cfg.Role,
		now:      time.Now,
	}
}

// IssueNonce returns the identity's live challenge, minting a fresh one when
// none exists, the previous one expired, or the identity is already verified
// and is re-authenticating. Issuing always supersedes the previous value.
func (s *AuthService) IssueNonce(ctx context.Context, identity string) (*core.Nonce, error) {
	if _, err := solana.PublicKeyFromBase58(identity); err != nil {
		return nil, core.ErrIdentityInvalid
	}

	now := s.now()

	existing, err := s.nonces.Get(ctx, identity)
	if err != nil && !errors.Is(err, core.ErrNonceNotFound) {
		return nil, fmt.Errorf("failed to load nonce: %w", err)
	}
	if existing != nil && !existing.Verified() && !existing.Expired(now) {
		return existing, nil
	}

	nonce := &core.Nonce{
		Identity:  identity,
		Value:     core.NonceValuePrefix + randomToken(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.nonceTTL),
	}
	ttl := s.nonceTTL
	if existing != nil && existing.Verified() {
		// Re-authentication: keep the registration mark and persist the
		// record without store expiry, the same as any verified nonce.
		nonce.VerifiedAt = existing.VerifiedAt
		ttl = 0
	}

	if err := s.nonces.Put(ctx, nonce, ttl); err != nil {
		return nil, fmt.Errorf("failed to store nonce: %w", err)
	}
	return nonce, nil
}

// SignUp completes first-time registration. It refuses identities that have
// already verified once; use SignIn for re-authentication.
func (s *AuthService) SignUp(ctx context.Context, identity, signature string) (string, error) {
	return s.completeSignIn(ctx, identity, signature, true)
}

// SignIn authenticates a previously registered identity, or one mid sign-up.
// Each attempt consumes the live nonce.
func (s *AuthService) SignIn(ctx context.Context, identity, signature string) (string, error) {
	return s.completeSignIn(ctx, identity, signature, false)
}

func (s *AuthService) completeSignIn(ctx context.Context, identity, signature string, signUp bool) (string, error) {
	nonce, err := s.nonces.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, core.ErrNonceNotFound) {
			return "", core.ErrNonceNotFound
		}
		return "", fmt.Errorf("failed to load nonce: %w", err)
	}

	// The anti-replay check on the verified mark applies to sign-up only;
	// sign-in mints a fresh nonce per attempt and is exempt.
	if signUp && nonce.Verified() {
		return "", core.ErrIdentityRegistered
	}

	now := s.now()
	if nonce.Expired(now) {
		return "", core.ErrNonceExpired
	}

	if !sol.VerifyAny(nonce.Value, signature, identity) {
		return "", core.ErrSignatureInvalid
	}

	// Rotate the consumed value so a captured signature cannot be replayed.
	// The swap is a compare-and-set keyed by identity: of two racing
	// verifications over the same value, exactly one wins.
	rotated := &core.Nonce{
		Identity:   identity,
		Value:      core.NonceValuePrefix + randomToken(),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.nonceTTL),
		VerifiedAt: nonce.VerifiedAt,
	}
	if rotated.VerifiedAt == nil {
		rotated.VerifiedAt = &now
	}

	swapped, err := s.nonces.Swap(ctx, identity, nonce.Value, rotated)
	if err != nil {
		return "", fmt.Errorf("failed to rotate nonce: %w", err)
	}
	if !swapped {
		return "", core.ErrNonceConsumed
	}

	token, err := s.issueClaim(ctx, identity, signature, nonce, now)
	if err != nil {
		return "", err
	}

	s.logger.Info("identity authenticated",
		zap.String("identity", identity),
		zap.Bool("sign_up", signUp),
	)
	return token, nil
}

func (s *AuthService) issueClaim(ctx context.Context, identity, signature string, nonce *core.Nonce, now time.Time) (string, error) {
	serverPub, serverSecret, err := s.keys.ServerKeypair(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrSecretsUnavailable, err)
	}

	bundle := &core.ClaimBundle{
		Subject:         identity,
		Issuer:          serverPub,
		IssuedAt:        now.Unix(),
		ExpiresAt:       now.Add(s.claimTTL).Unix(),
		ClientSignature: signature,
		NonceEcho:       *nonce,
		Role:            s.role,
	}

	payload, err := bundle.SigningBytes()
	if err != nil {
		return "", err
	}
	bundle.ServerSignature, err = sol.Sign(string(payload), serverSecret)
	if err != nil {
		return "", fmt.Errorf("failed to countersign claim bundle: %w", err)
	}

	return bundle.Encode()
}

// VerifyClaimToken checks a bearer credential statelessly: decode, expiry,
// issuer, countersignature. It returns the parsed claims so callers can gate
// on Role.
func (s *AuthService) VerifyClaimToken(ctx context.Context, token string) (*core.ClaimBundle, error) {
	bundle, err := core.DecodeClaimBundle(token)
	if err != nil {
		return nil, err
	}

	if s.now().Unix() > bundle.ExpiresAt {
		return nil, core.ErrClaimExpired
	}

	serverPub, _, err := s.keys.ServerKeypair(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSecretsUnavailable, err)
	}
	if bundle.Issuer != serverPub {
		return nil, core.ErrClaimInvalid
	}

	payload, err := bundle.SigningBytes()
	if err != nil {
		return nil, core.ErrClaimMalformed
	}
	if !sol.Verify(string(payload), bundle.ServerSignature, bundle.Issuer, sol.ModeRaw) {
		return nil, core.ErrClaimInvalid
	}

	return bundle, nil
}

func randomToken() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process cannot do anything useful.
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}
