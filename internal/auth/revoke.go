package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ForceLogout bumps the target's token version by exactly one, invalidating
// every credential issued before the call regardless of how many exist. A
// caller targeting itself is rejected; self-logout goes through Logout.
func (s *Service) ForceLogout(ctx context.Context, actorID, targetID string) (int64, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return 0, fmt.Errorf("%w: target user id is required", ErrInvalidInput)
	}
	if actorID != "" && actorID == targetID {
		return 0, ErrSelfTarget
	}
	version, err := s.store.IncrementTokenVersion(ctx, targetID, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrUnknownPrincipal
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return version, nil
}

// BatchOutcome records one successful force-logout within a batch.
type BatchOutcome struct {
	UserID       string `json:"user_id"`
	TokenVersion int64  `json:"token_version"`
}

// BatchError records one failed batch item. Failures never abort siblings.
type BatchError struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// BatchResult carries per-item outcomes alongside per-item errors.
type BatchResult struct {
	Succeeded []BatchOutcome `json:"succeeded"`
	Failed    []BatchError   `json:"failed"`
}

// ForceLogoutBatch applies ForceLogout to each target independently. An
// invalid item — a self-target, an unknown user — is reported in Failed
// while the remaining items still proceed.
func (s *Service) ForceLogoutBatch(ctx context.Context, actorID string, targetIDs []string) BatchResult {
	var result BatchResult
	for _, targetID := range targetIDs {
		version, err := s.ForceLogout(ctx, actorID, targetID)
		if err != nil {
			result.Failed = append(result.Failed, BatchError{
				UserID: targetID,
				Reason: batchReason(err),
				Err:    err,
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, BatchOutcome{
			UserID:       targetID,
			TokenVersion: version,
		})
	}
	return result
}

func batchReason(err error) string {
	switch {
	case errors.Is(err, ErrSelfTarget):
		return "self-target-forbidden"
	case errors.Is(err, ErrUnknownPrincipal):
		return "unknown-principal"
	case errors.Is(err, ErrInvalidInput):
		return "invalid-input"
	case errors.Is(err, ErrStoreUnavailable):
		return "store-unavailable"
	default:
		return "error"
	}
}

// Logout revokes exactly the presented credential by appending its string to
// the user's revoked set. Other active sessions of the same user keep
// working because the token version is untouched.
func (s *Service) Logout(ctx context.Context, userID, token string) error {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	if userID == "" || token == "" {
		return fmt.Errorf("%w: user id and token are required", ErrInvalidInput)
	}
	if err := s.store.AppendRevokedToken(ctx, userID, token, s.now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnknownPrincipal
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CompactRevokedTokens drops blacklist entries older than the configured
// retention window. With no retention configured it is a no-op; the revoked
// set then grows without bound, matching the uncompacted design.
func (s *Service) CompactRevokedTokens(ctx context.Context) (int64, error) {
	if s.revokedRetention <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-s.revokedRetention)
	pruned, err := s.store.PruneRevokedTokens(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return pruned, nil
}
