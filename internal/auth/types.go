package auth

import "time"

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User is the persisted principal record tracked by the credential store.
type User struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	RoleID       string    `json:"role_id"`
	Status       string    `json:"status"`

	// TokenVersion only ever increases. Bumping it invalidates every
	// credential issued before the bump in a single counter write.
	TokenVersion       int64          `json:"token_version"`
	RevokedTokens      []RevokedToken `json:"-"`
	LastForcedLogoutAt *time.Time     `json:"last_forced_logout_at,omitempty"`

	// Device binding, consulted by app-channel login checks.
	DeviceID string `json:"device_id,omitempty"`
	LastIP   string `json:"last_ip,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RevokedToken is one individually revoked credential string.
type RevokedToken struct {
	Token     string    `json:"token"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Role maps capability names to booleans. Absent keys deny.
type Role struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Capabilities map[string]bool `json:"capabilities"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Allows reports whether the role grants the named capability.
func (r *Role) Allows(capability string) bool {
	if r == nil {
		return false
	}
	return r.Capabilities[capability]
}

// Principal is an authenticated user with its resolved role.
type Principal struct {
	User *User
	Role *Role
}

// HasCapability reports whether the principal's role grants the capability.
func (p Principal) HasCapability(key string) bool {
	return p.Role.Allows(key)
}
