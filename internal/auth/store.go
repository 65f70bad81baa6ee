package auth

import (
	"context"
	"time"
)

// Store is the credential store contract. Each mutation is atomic per user
// record: the user row is the unit of atomicity, and implementations must
// serialize writes per key so two concurrent version bumps never lose an
// update. Reads observe completed writes (read-after-write per key).
type Store interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByLogin(ctx context.Context, login string) (*User, error)
	FindRole(ctx context.Context, id string) (*Role, error)

	// IncrementTokenVersion bumps the user's token version by exactly one and
	// records the forced-logout timestamp. Returns the new version.
	IncrementTokenVersion(ctx context.Context, userID string, at time.Time) (int64, error)

	// AppendRevokedToken adds the exact credential string to the user's
	// revoked set. The token version is untouched.
	AppendRevokedToken(ctx context.Context, userID, token string, at time.Time) error

	// UpdatePasswordHash replaces the secret hash and bumps the token version
	// in the same atomic write, so credentials issued before a secret change
	// can never survive it. Returns the new version.
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) (int64, error)

	// UpdateLoginBinding records the device identifier and source IP observed
	// at a successful app-channel login.
	UpdateLoginBinding(ctx context.Context, userID, deviceID, ip string) error

	// PruneRevokedTokens drops revoked-set entries recorded before the cutoff
	// and reports how many were removed.
	PruneRevokedTokens(ctx context.Context, before time.Time) (int64, error)
}
