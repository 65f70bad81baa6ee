package httpapi

import (
	"errors"
	"net/http"

	"fieldops.org/internal/audit"
	"fieldops.org/internal/auth"
)

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
	Channel  string `json:"channel" validate:"omitempty,oneof=web app"`
	DeviceID string `json:"device_id"`
}

type principalSummary struct {
	ID           string          `json:"id"`
	Login        string          `json:"login"`
	Name         string          `json:"name"`
	RoleID       string          `json:"role_id,omitempty"`
	RoleName     string          `json:"role_name,omitempty"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}

type loginResponse struct {
	Token string           `json:"token"`
	User  principalSummary `json:"user"`
}

func summarize(p auth.Principal) principalSummary {
	summary := principalSummary{
		ID:     p.User.ID,
		Login:  p.User.Login,
		Name:   p.User.Name,
		RoleID: p.User.RoleID,
	}
	if p.Role != nil {
		summary.RoleName = p.Role.Name
		summary.Capabilities = p.Role.Capabilities
	}
	return summary
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.auth.Login(r.Context(), auth.LoginRequest{
		Login:    req.Login,
		Password: req.Password,
		Channel:  req.Channel,
		DeviceID: req.DeviceID,
		IP:       clientIP(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "Invalid login or password")
		case errors.Is(err, auth.ErrDeviceMismatch):
			writeError(w, r, http.StatusUnauthorized, "Device ID does not match the registered device")
		case errors.Is(err, auth.ErrIPMismatch):
			writeError(w, r, http.StatusUnauthorized, "IP address does not match the registered address")
		case errors.Is(err, auth.ErrChannelNotPermitted):
			writeError(w, r, http.StatusUnauthorized, "Login channel not permitted for this role")
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "Credential store unavailable")
		default:
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": result.Principal.User.ID,
		"channel": req.Channel,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User:  summarize(result.Principal),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, msgNoToken)
		return
	}
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, msgNoToken)
		return
	}

	// Revokes exactly this session; other sessions of the user stay valid.
	if err := a.auth.Logout(r.Context(), principal.User.ID, token); err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "Credential store unavailable")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, msgNoToken)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.auth.ChangePassword(r.Context(), principal.User.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "Current password is incorrect")
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "Credential store unavailable")
		default:
			writeError(w, r, http.StatusBadRequest, err.Error())
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.change", nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated, please log in again"})
}

type forceLogoutRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (a *API) handleForceLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.ensureCapability(w, r, auth.CapForceLogout)
	if !ok {
		return
	}
	var req forceLogoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	version, err := a.auth.ForceLogout(r.Context(), principal.User.ID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrSelfTarget):
			writeError(w, r, http.StatusBadRequest, "Cannot force-logout your own account")
		case errors.Is(err, auth.ErrUnknownPrincipal):
			writeError(w, r, http.StatusNotFound, "User not found")
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "Credential store unavailable")
		default:
			writeError(w, r, http.StatusBadRequest, err.Error())
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.force_logout", map[string]any{
		"target_user_id": req.UserID,
		"token_version":  version,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       req.UserID,
		"token_version": version,
	})
}

type forceLogoutBatchRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1"`
}

func (a *API) handleForceLogoutBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.ensureCapability(w, r, auth.CapForceLogout)
	if !ok {
		return
	}
	var req forceLogoutBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Partial-failure semantics: one bad target never aborts its siblings.
	result := a.auth.ForceLogoutBatch(r.Context(), principal.User.ID, req.UserIDs)
	_ = audit.LogEvent(r.Context(), "auth.force_logout_batch", map[string]any{
		"requested": len(req.UserIDs),
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	})
	writeJSON(w, http.StatusOK, result)
}
