package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims asserts an identity together with the token version current at
// issuance. The pair is everything the gate needs: the version comparison
// replaces any per-credential bookkeeping for coarse revocation.
type Claims struct {
	TokenVersion int64 `json:"token_version"`
	jwt.RegisteredClaims
}

// Issue signs a credential for the identity at the given token version using
// HS256. Credentials carry no expiry: they stay valid until the version is
// superseded or the exact string is revoked. The same {identity, version}
// pair may be issued any number of times; each result is independently valid.
func (s *Service) Issue(identity string, tokenVersion int64) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	claims := Claims{
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  identity,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify is the authorization gate. A credential passes through signature
// verification, principal resolution, the version comparison, and the
// revoked-set membership check; the first failed step decides the rejection
// reason. Verification never mutates anything, so repeated calls on the same
// credential give the same answer.
func (s *Service) Verify(ctx context.Context, token string) (Principal, error) {
	claims, err := s.parseAndValidate(token)
	if err != nil {
		return Principal{}, ErrTokenMalformed
	}

	user, err := s.store.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnknownPrincipal
		}
		// Fail closed: a store failure must never look like acceptance.
		return Principal{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if claims.TokenVersion != user.TokenVersion {
		return Principal{}, ErrVersionSuperseded
	}

	for _, revoked := range user.RevokedTokens {
		if revoked.Token == token {
			return Principal{}, ErrTokenRevoked
		}
	}

	role, err := s.resolveRole(ctx, user.RoleID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: user, Role: role}, nil
}

func (s *Service) parseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenMalformed
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrTokenMalformed
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenMalformed
	}
	if claims.IssuedAt == nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
