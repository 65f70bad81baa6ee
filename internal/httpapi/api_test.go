package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fieldops.org/internal/auth"
	"fieldops.org/internal/directory"
)

type testEnv struct {
	api       *API
	handler   http.Handler
	authStore *auth.MemoryStore
	dirStore  *directory.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	authStore := auth.NewMemoryStore()
	authSvc, err := auth.NewService(authStore, "test-secret")
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	dirStore := directory.NewMemoryStore()
	dirSvc, err := directory.NewService(dirStore)
	if err != nil {
		t.Fatalf("directory.NewService: %v", err)
	}
	api := New(Options{
		Auth:               authSvc,
		Directory:          dirSvc,
		Version:            "test",
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	})
	return &testEnv{
		api:       api,
		handler:   api.Handler(),
		authStore: authStore,
		dirStore:  dirStore,
	}
}

func (e *testEnv) seedUser(t *testing.T, id, login, password, roleID string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	e.authStore.PutUser(&auth.User{
		ID:           id,
		Login:        login,
		Name:         "Test " + id,
		PasswordHash: hash,
		RoleID:       roleID,
		Status:       auth.UserStatusActive,
	})
}

func (e *testEnv) seedRole(id string, capabilities map[string]bool) {
	e.authStore.PutRole(&auth.Role{ID: id, Name: id, Capabilities: capabilities})
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, login, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login":    login,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Message
}

func TestPublicPathsNeedNoToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/v1/info"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestProtectedPathRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/users", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Not authorized, no token" {
		t.Fatalf("message = %q", msg)
	}
}

func TestProtectedPathRejectsMalformedToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/users", "garbage", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Invalid or malformed token" {
		t.Fatalf("message = %q", msg)
	}
}

func TestLoginAndAccessProtectedRoute(t *testing.T) {
	env := newTestEnv(t)
	env.seedRole("r-admin", map[string]bool{
		auth.CapWebLogin:  true,
		auth.CapUsersView: true,
	})
	env.seedUser(t, "u1", "alice", "secret-password", "r-admin")

	token := env.login(t, "alice", "secret-password")

	rec := env.do(t, http.MethodGet, "/v1/users", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedRole("r-admin", map[string]bool{auth.CapWebLogin: true})
	env.seedUser(t, "u1", "alice", "secret-password", "r-admin")

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login":    "alice",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Invalid login or password" {
		t.Fatalf("message = %q", msg)
	}
}

func TestCapabilityDenialIs403(t *testing.T) {
	env := newTestEnv(t)
	env.seedRole("r-limited", map[string]bool{auth.CapWebLogin: true})
	env.seedUser(t, "u1", "alice", "secret-password", "r-limited")

	token := env.login(t, "alice", "secret-password")

	rec := env.do(t, http.MethodGet, "/v1/users", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "You are not authorized to perform this request" {
		t.Fatalf("message = %q", msg)
	}
}

func TestLogoutRevokesOnlyThatSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedRole("r-admin", map[string]bool{
		auth.CapWebLogin:  true,
		auth.CapUsersView: true,
	})
	env.seedUser(t, "u1", "alice", "secret-password", "r-admin")

	first := env.login(t, "alice", "secret-password")
	second := env.login(t, "alice", "secret-password")

	rec := env.do(t, http.MethodPost, "/v1/auth/logout", first, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v1/users", first, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked session status = %d, want 401", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Token has been revoked" {
		t.Fatalf("message = %q", msg)
	}

	rec = env.do(t, http.MethodGet, "/v1/users", second, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sibling session status = %d, want 200", rec.Code)
	}
}

func TestForceLogoutInvalidatesEverySession(t *testing.T) {
	env := newTestEnv(t)
	env.seedRole("r-admin", map[string]bool{
		auth.CapWebLogin:    true,
		auth.CapForceLogout: true,
	})
	env.seedRole("r-user", map[string]bool{
		auth.CapWebLogin:  true,
		auth.CapUsersView: true,
	})
	env.seedUser(t, "admin", "carol", "secret-password", "r-admin")
	env.seedUser(t, "u1", "alice", "secret-password", "r-user")

	adminToken := env.login(t, "carol", "secret-password")
	aliceFirst := env.login(t, "alice", "secret-password")
	aliceSecond := env.login(t, "alice", "secret-password")

	rec := env.do(t, http.MethodPost, "/v1/auth/force-logout", adminToken, map[string]string{
		"user_id": "u1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("force-logout status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		TokenVersion int64 `json:"token_version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TokenVersion != 1 {
		t.Fatalf("token_version = %d, want 1", resp.TokenVersion)
	}

	for _, token := range []string{aliceFirst, aliceSecond} {
		rec := env.do(t, http.MethodGet, "/v1/users", token, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if msg := errorMessage(t, rec); msg != "Session expired, please log in again" {
			t.Fatalf("message = %q", msg)
		}
	}

	// The admin's own session is untouched, and re-login works for alice.
	if rec := env.do(t, http.MethodPost, "/v1/auth/force-logout", adminToken, map[string]string{"user_id": "u1"}); rec.Code != http.StatusOK {
		t.Fatalf("admin session broken: %d", rec.Code)
	}
	fresh := env.login(t, "alice", "secret-password")
	if rec := env.do(t, http.MethodGet, "/v1/users", fresh, nil); rec.Code != http.StatusOK {
		t.Fatalf("fresh session status = %d, want 200", rec.Code)
	}
}

func TestForceLogoutRejectsSelfTarget(t *testing.T) {
	env := newTestEnv(t)
	env.seedRole("r-admin", map[string]bool{
		auth.CapWebLogin:    true,
		auth.CapForceLogout: true,
	})
	env.seedUser(t, "admin", "carol", "secret-password", "r-admin")

	token := env.login(t, "carol", "secret-password")
	rec := env.do(t, http.MethodPost, "/v1/auth/force-logout", token, map[string]string{
		"user_id": "admin",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Cannot force-logout your own account" {
		t.Fatalf("message = %q", msg)
	}
	// The rejected call left the session valid.
	if rec := env.do(t, http.MethodPost, "/v1/auth/logout", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("session broken after rejected self-target: %d", rec.Code)
	}
}

func TestForceLogoutBatchPartialOutcome(t *testing.T) {
	env := newTestEnv(t)
	env.seedRole("r-admin", map[string]bool{
		auth.CapWebLogin:    true,
		auth.CapForceLogout: true,
	})
	env.seedUser(t, "admin", "carol", "secret-password", "r-admin")
	env.seedUser(t, "u1", "alice", "secret-password", "")
	env.seedUser(t, "u2", "bob", "secret-password", "")

	token := env.login(t, "carol", "secret-password")
	rec := env.do(t, http.MethodPost, "/v1/auth/force-logout-batch", token, map[string]any{
		"user_ids": []string{"u1", "admin", "u2", "ghost"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result auth.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Succeeded) != 2 || len(result.Failed) != 2 {
		t.Fatalf("succeeded=%d failed=%d, want 2/2 (%s)", len(result.Succeeded), len(result.Failed), rec.Body.String())
	}
}

func TestChangePasswordFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedRole("r-user", map[string]bool{auth.CapWebLogin: true})
	env.seedUser(t, "u1", "alice", "old-password-1", "r-user")

	token := env.login(t, "alice", "old-password-1")

	rec := env.do(t, http.MethodPost, "/v1/auth/password", token, map[string]string{
		"current_password": "wrong",
		"new_password":     "new-password-2",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current: status = %d, want 401", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Current password is incorrect" {
		t.Fatalf("message = %q", msg)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/password", token, map[string]string{
		"current_password": "old-password-1",
		"new_password":     "new-password-2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// The old credential dies with the password change.
	rec = env.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old token still accepted: %d", rec.Code)
	}
	env.login(t, "alice", "new-password-2")
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	// Missing required field.
	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"login": "alice"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing field: status = %d, want 400", rec.Code)
	}
	if msg := errorMessage(t, rec); !strings.Contains(msg, "password") {
		t.Fatalf("message = %q, want mention of password", msg)
	}

	// Unknown field.
	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"login": "alice", "password": "x", "extra": "field",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status = %d, want 400", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/auth/login", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow = %q, want POST", allow)
	}
}
