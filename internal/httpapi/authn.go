package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"fieldops.org/internal/auth"
	"fieldops.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	msgNoToken          = "Not authorized, no token"
	msgCapabilityDenied = "You are not authorized to perform this request"
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/login",
}

// withAuth runs every non-public request through the authorization gate and
// attaches the resolved principal and raw token to the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.ObserveAuthDecision("missing-token")
			writeError(w, r, http.StatusUnauthorized, msgNoToken)
			return
		}

		principal, err := a.auth.Verify(r.Context(), token)
		if err != nil {
			code, outcome, message := rejectionResponse(err)
			obs.ObserveAuthDecision(outcome)
			writeError(w, r, code, message)
			return
		}
		obs.ObserveAuthDecision("accepted")

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rejectionResponse maps a gate rejection to status, metric outcome, and
// client-visible message. Store failures are the one transient kind: they
// surface as 503 so clients retry instead of re-authenticating.
func rejectionResponse(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrTokenMalformed):
		return http.StatusUnauthorized, "malformed-or-forged", "Invalid or malformed token"
	case errors.Is(err, auth.ErrUnknownPrincipal):
		return http.StatusUnauthorized, "unknown-principal", "Unknown principal"
	case errors.Is(err, auth.ErrVersionSuperseded):
		return http.StatusUnauthorized, "version-superseded", "Session expired, please log in again"
	case errors.Is(err, auth.ErrTokenRevoked):
		return http.StatusUnauthorized, "explicitly-blacklisted", "Token has been revoked"
	case errors.Is(err, auth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store-unavailable", "Credential store unavailable"
	default:
		return http.StatusUnauthorized, "rejected", "Not authorized"
	}
}

// ensureCapability enforces a capability on the authenticated principal.
// Denial is an authorization failure: 403, never 401.
func (a *API) ensureCapability(w http.ResponseWriter, r *http.Request, capability string) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, msgNoToken)
		return auth.Principal{}, false
	}
	if err := auth.RequireCapability(principal, capability); err != nil {
		writeError(w, r, http.StatusForbidden, msgCapabilityDenied)
		return auth.Principal{}, false
	}
	return principal, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
