package auth

import "errors"

// Verification rejections. Each terminal state of the gate maps to exactly
// one of these so callers can distinguish reasons without string matching.
var (
	ErrTokenMalformed    = errors.New("auth: token malformed or forged")
	ErrUnknownPrincipal  = errors.New("auth: unknown principal")
	ErrVersionSuperseded = errors.New("auth: token version superseded")
	ErrTokenRevoked      = errors.New("auth: token explicitly revoked")
	ErrStoreUnavailable  = errors.New("auth: credential store unavailable")
)

// Authorization and revocation errors.
var (
	ErrCapabilityDenied = errors.New("auth: capability denied")
	ErrSelfTarget       = errors.New("auth: cannot force-logout own account")
)

// Login rejections.
var (
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrDeviceMismatch      = errors.New("auth: device id mismatch")
	ErrIPMismatch          = errors.New("auth: ip mismatch")
	ErrChannelNotPermitted = errors.New("auth: channel not permitted")
)

// Store-level errors shared by implementations.
var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
)
