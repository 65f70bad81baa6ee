package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local development.
// A single mutex serializes writes, which is enough to satisfy the
// per-record atomicity the contract demands.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*User
	roles map[string]*Role
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		roles: make(map[string]*Role),
	}
}

// PutUser inserts or replaces a user record.
func (m *MemoryStore) PutUser(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneUser(u)
	m.users[cp.ID] = cp
}

// PutRole inserts or replaces a role record.
func (m *MemoryStore) PutRole(r *Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneRole(r)
	m.roles[cp.ID] = cp
}

func (m *MemoryStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) FindUserByLogin(ctx context.Context, login string) (*User, error) {
	login = strings.TrimSpace(strings.ToLower(login))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.ToLower(u.Login) == login {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindRole(ctx context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRole(r), nil
}

func (m *MemoryStore) IncrementTokenVersion(ctx context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, ErrNotFound
	}
	u.TokenVersion++
	ts := at
	u.LastForcedLogoutAt = &ts
	u.UpdatedAt = at
	return u.TokenVersion, nil
}

func (m *MemoryStore) AppendRevokedToken(ctx context.Context, userID, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	for _, revoked := range u.RevokedTokens {
		if revoked.Token == token {
			return nil
		}
	}
	u.RevokedTokens = append(u.RevokedTokens, RevokedToken{Token: token, RevokedAt: at})
	u.UpdatedAt = at
	return nil
}

func (m *MemoryStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.TokenVersion++
	return u.TokenVersion, nil
}

func (m *MemoryStore) UpdateLoginBinding(ctx context.Context, userID, deviceID, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if deviceID != "" {
		u.DeviceID = deviceID
	}
	if ip != "" {
		u.LastIP = ip
	}
	return nil
}

func (m *MemoryStore) PruneRevokedTokens(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for _, u := range m.users {
		kept := u.RevokedTokens[:0]
		for _, revoked := range u.RevokedTokens {
			if revoked.RevokedAt.Before(before) {
				pruned++
				continue
			}
			kept = append(kept, revoked)
		}
		u.RevokedTokens = kept
	}
	return pruned, nil
}

func cloneUser(u *User) *User {
	cp := *u
	if u.LastForcedLogoutAt != nil {
		ts := *u.LastForcedLogoutAt
		cp.LastForcedLogoutAt = &ts
	}
	cp.RevokedTokens = make([]RevokedToken, len(u.RevokedTokens))
	copy(cp.RevokedTokens, u.RevokedTokens)
	return &cp
}

func cloneRole(r *Role) *Role {
	cp := *r
	cp.Capabilities = make(map[string]bool, len(r.Capabilities))
	for k, v := range r.Capabilities {
		cp.Capabilities[k] = v
	}
	return &cp
}
