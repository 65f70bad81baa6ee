package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultIssuer = "fieldops"

// Service issues credentials, runs the authorization gate, and applies
// revocation operations against the credential store. It holds no mutable
// state of its own beyond the process-wide signing secret.
type Service struct {
	store  Store
	secret []byte
	issuer string
	now    func() time.Time

	revokedRetention time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the issuer claim embedded in credentials.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithRevokedTokenRetention bounds blacklist growth: CompactRevokedTokens
// drops entries older than the window. Zero keeps entries forever.
func WithRevokedTokenRetention(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d < 0 {
			return errors.New("auth: retention must not be negative")
		}
		s.revokedRetention = d
		return nil
	}
}

// NewService constructs a Service. The signing secret is fixed at
// construction and shared by issuance and verification.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		store:  store,
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// LoginRequest carries the credentials presented at the login entry point.
// DeviceID and IP matter only for the app channel.
type LoginRequest struct {
	Login    string
	Password string
	Channel  string
	DeviceID string
	IP       string
}

// LoginResult is the issued credential plus the resolved principal.
type LoginResult struct {
	Token     string
	Principal Principal
}

// Login authenticates the identity/secret pair, applies channel and device
// binding checks, and issues a credential bound to the user's current token
// version.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	login := strings.TrimSpace(strings.ToLower(req.Login))
	if login == "" || req.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := s.store.FindUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.Status != UserStatusActive {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, req.Password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	role, err := s.resolveRole(ctx, user.RoleID)
	if err != nil {
		return LoginResult{}, err
	}

	channel := req.Channel
	if channel == "" {
		channel = ChannelWeb
	}
	capability, err := ChannelCapability(channel)
	if err != nil {
		return LoginResult{}, err
	}
	if !role.Allows(capability) {
		return LoginResult{}, ErrChannelNotPermitted
	}
	if channel == ChannelApp {
		if user.DeviceID != "" && req.DeviceID != user.DeviceID {
			return LoginResult{}, ErrDeviceMismatch
		}
		if user.LastIP != "" && req.IP != "" && req.IP != user.LastIP {
			return LoginResult{}, ErrIPMismatch
		}
		if err := s.store.UpdateLoginBinding(ctx, user.ID, req.DeviceID, req.IP); err != nil {
			return LoginResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	token, err := s.Issue(user.ID, user.TokenVersion)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:     token,
		Principal: Principal{User: user, Role: role},
	}, nil
}

// ChangePassword verifies the current secret and installs the new one. The
// store bumps the token version in the same write, so every previously
// issued credential dies with the old password.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	userID = strings.TrimSpace(userID)
	next = strings.TrimSpace(next)
	if userID == "" || next == "" {
		return fmt.Errorf("%w: user id and new password are required", ErrInvalidInput)
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnknownPrincipal
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if _, err := s.store.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnknownPrincipal
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ResetPassword installs a new secret without checking the old one. Intended
// for capability-gated administrative resets; the version bump still applies.
func (s *Service) ResetPassword(ctx context.Context, userID, next string) error {
	userID = strings.TrimSpace(userID)
	next = strings.TrimSpace(next)
	if userID == "" || next == "" {
		return fmt.Errorf("%w: user id and new password are required", ErrInvalidInput)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if _, err := s.store.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnknownPrincipal
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// resolveRole loads the user's role. A missing role is not an error: it
// yields a nil role, which denies every capability.
func (s *Service) resolveRole(ctx context.Context, roleID string) (*Role, error) {
	if strings.TrimSpace(roleID) == "" {
		return nil, nil
	}
	role, err := s.store.FindRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return role, nil
}
