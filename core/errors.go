package core

import "errors"

var (
	// ErrNonceNotFound is returned when no challenge exists for an identity.
	ErrNonceNotFound = errors.New("nonce not found")

	// ErrNonceExpired is returned when the challenge window has closed.
	ErrNonceExpired = errors.New("nonce has expired")

	// ErrNonceConsumed is returned when a verification attempt presents a
	// signature over a nonce value that has already been rotated away.
	ErrNonceConsumed = errors.New("nonce has already been consumed")

	// ErrSignatureInvalid is returned when a signature verifies under none
	// of the supported payload encodings.
	ErrSignatureInvalid = errors.New("signature does not verify")

	// ErrIdentityRegistered is returned on sign-up for an identity that has
	// already completed verification.
	ErrIdentityRegistered = errors.New("identity is already registered")

	// ErrIdentityInvalid is returned when an identity is not a parseable
	// public key.
	ErrIdentityInvalid = errors.New("invalid identity")

	// ErrClaimMalformed is returned when a bearer credential cannot be
	// decoded at all.
	ErrClaimMalformed = errors.New("malformed claim token")

	// ErrClaimExpired is returned when a bundle's validity window has passed.
	ErrClaimExpired = errors.New("claim token has expired")

	// ErrClaimInvalid is returned when a bundle's issuer or countersignature
	// does not check out.
	ErrClaimInvalid = errors.New("invalid claim token")

	// ErrSecretsUnavailable is returned when the server keypair cannot be
	// resolved from the secret source.
	ErrSecretsUnavailable = errors.New("server keypair unavailable")
)
