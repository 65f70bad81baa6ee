package auth

import "fmt"

// Capability keys consulted by business handlers. Roles store these as a
// flat name→bool map; a missing key behaves exactly like false.
const (
	CapUsersAdd       = "usersAdd"
	CapUsersView      = "usersView"
	CapUsersEdit      = "usersEdit"
	CapUsersDelete    = "usersDelete"
	CapRolesManage    = "rolesManage"
	CapClientsManage  = "clientsManage"
	CapProductsManage = "productsManage"
	CapForceLogout    = "forceLogout"
	CapWebLogin       = "webLogin"
	CapAppLogin       = "appLogin"
)

// Login channels.
const (
	ChannelWeb = "web"
	ChannelApp = "app"
)

// RequireCapability returns ErrCapabilityDenied unless the principal's role
// grants the capability. Denial is an authorization error, distinct from
// every authentication failure.
func RequireCapability(p Principal, key string) error {
	if !p.HasCapability(key) {
		return ErrCapabilityDenied
	}
	return nil
}

// ChannelCapability maps a login channel to the capability gating it.
func ChannelCapability(channel string) (string, error) {
	switch channel {
	case ChannelWeb:
		return CapWebLogin, nil
	case ChannelApp:
		return CapAppLogin, nil
	default:
		return "", fmt.Errorf("%w: unknown channel %q", ErrChannelNotPermitted, channel)
	}
}
