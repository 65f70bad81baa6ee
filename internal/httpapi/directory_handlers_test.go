package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"fieldops.org/internal/auth"
	"fieldops.org/internal/directory"
)

func adminEnv(t *testing.T) (*testEnv, string) {
	t.Helper()
	env := newTestEnv(t)
	env.seedRole("r-admin", map[string]bool{
		auth.CapWebLogin:       true,
		auth.CapUsersAdd:       true,
		auth.CapUsersView:      true,
		auth.CapUsersEdit:      true,
		auth.CapUsersDelete:    true,
		auth.CapRolesManage:    true,
		auth.CapClientsManage:  true,
		auth.CapProductsManage: true,
	})
	env.seedUser(t, "admin", "carol", "secret-password", "r-admin")
	return env, env.login(t, "carol", "secret-password")
}

func TestUserCRUD(t *testing.T) {
	env, token := adminEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/users", token, map[string]string{
		"login":    "Dave",
		"name":     "Dave Example",
		"password": "initial-pass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created auth.User
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created user: %v", err)
	}
	if created.Login != "dave" {
		t.Fatalf("login = %q, want normalized dave", created.Login)
	}
	if created.TokenVersion != 0 {
		t.Fatalf("token_version = %d, want 0 for a new account", created.TokenVersion)
	}
	if rec.Header().Get("Location") == "" {
		t.Fatal("missing Location header")
	}

	// The hash never leaves the service.
	var raw map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &raw)
	if _, ok := raw["password_hash"]; ok {
		t.Fatal("password hash leaked in response")
	}

	rec = env.do(t, http.MethodGet, "/v1/users/"+created.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/v1/users/"+created.ID, token, map[string]string{
		"status": "inactive",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var updated auth.User
	_ = json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Status != "inactive" {
		t.Fatalf("status = %q, want inactive", updated.Status)
	}

	rec = env.do(t, http.MethodDelete, "/v1/users/"+created.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/users/"+created.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: status = %d, want 404", rec.Code)
	}
}

func TestCreateUserConflict(t *testing.T) {
	env, token := adminEnv(t)

	body := map[string]string{"login": "dave", "name": "Dave", "password": "initial-pass"}
	if rec := env.do(t, http.MethodPost, "/v1/users", token, body); rec.Code != http.StatusCreated {
		t.Fatalf("first create: %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/v1/users", token, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: status = %d, want 409", rec.Code)
	}
}

func TestRoleCRUD(t *testing.T) {
	env, token := adminEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/roles", token, map[string]any{
		"name": "Dispatcher",
		"capabilities": map[string]bool{
			auth.CapClientsManage: true,
			auth.CapWebLogin:      true,
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var role auth.Role
	if err := json.Unmarshal(rec.Body.Bytes(), &role); err != nil {
		t.Fatalf("decode role: %v", err)
	}

	rec = env.do(t, http.MethodPut, "/v1/roles/"+role.ID, token, map[string]any{
		"capabilities": map[string]bool{auth.CapWebLogin: true},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d", rec.Code)
	}
	var updated auth.Role
	_ = json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Capabilities[auth.CapClientsManage] {
		t.Fatal("capability map should have been replaced")
	}

	rec = env.do(t, http.MethodGet, "/v1/roles", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/v1/roles/"+role.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
}

func TestClientCRUD(t *testing.T) {
	env, token := adminEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/clients", token, map[string]string{
		"name":    "Acme Retail",
		"code":    "ACME-01",
		"phone":   "+7 700 000 0000",
		"address": "12 Market St",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var client directory.Client
	if err := json.Unmarshal(rec.Body.Bytes(), &client); err != nil {
		t.Fatalf("decode client: %v", err)
	}
	if client.Status != directory.RecordStatusActive {
		t.Fatalf("status = %q, want active", client.Status)
	}

	rec = env.do(t, http.MethodPut, "/v1/clients/"+client.ID, token, map[string]string{
		"phone": "+7 700 111 1111",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d", rec.Code)
	}
	var updated directory.Client
	_ = json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Phone != "+7 700 111 1111" {
		t.Fatalf("phone = %q", updated.Phone)
	}
	if updated.Name != "Acme Retail" {
		t.Fatalf("untouched field changed: %q", updated.Name)
	}

	rec = env.do(t, http.MethodDelete, "/v1/clients/"+client.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/v1/clients/"+client.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: status = %d, want 404", rec.Code)
	}
}

func TestProductCRUD(t *testing.T) {
	env, token := adminEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/products", token, map[string]any{
		"name":       "Bottled Water 0.5L",
		"code":       "SKU-001",
		"unit_price": 150,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var product directory.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &product); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if product.UnitPrice != 150 {
		t.Fatalf("unit_price = %d, want 150", product.UnitPrice)
	}

	rec = env.do(t, http.MethodPost, "/v1/products", token, map[string]any{
		"name":       "Broken",
		"unit_price": -5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative price: status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var products []directory.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &products); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("len = %d, want 1", len(products))
	}
}

func TestAdminPasswordReset(t *testing.T) {
	env, token := adminEnv(t)
	env.seedRole("r-user", map[string]bool{auth.CapWebLogin: true})
	env.seedUser(t, "u1", "alice", "forgotten", "r-user")

	aliceToken := env.login(t, "alice", "forgotten")

	rec := env.do(t, http.MethodPut, "/v1/users/u1/password", token, map[string]string{
		"new_password": "issued-by-admin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Reset bumps the version, ending alice's old session.
	rec = env.do(t, http.MethodPost, "/v1/auth/logout", aliceToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old session status = %d, want 401", rec.Code)
	}
	env.login(t, "alice", "issued-by-admin")
}

func TestScopedRoutesRequireCapabilities(t *testing.T) {
	env := newTestEnv(t)
	env.seedRole("r-viewer", map[string]bool{
		auth.CapWebLogin:  true,
		auth.CapUsersView: true,
	})
	env.seedUser(t, "u1", "alice", "secret-password", "r-viewer")
	token := env.login(t, "alice", "secret-password")

	// Viewing is allowed, mutations are not.
	if rec := env.do(t, http.MethodGet, "/v1/users", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	denied := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/v1/users", map[string]string{"login": "x", "name": "x", "password": "longenough"}},
		{http.MethodDelete, "/v1/users/u1", nil},
		{http.MethodGet, "/v1/roles", nil},
		{http.MethodPost, "/v1/clients", map[string]string{"name": "x"}},
		{http.MethodGet, "/v1/products", nil},
	}
	for _, tc := range denied {
		rec := env.do(t, tc.method, tc.path, token, tc.body)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", tc.method, tc.path, rec.Code)
		}
	}
}

func TestScopedRouteUnknownAction(t *testing.T) {
	env, token := adminEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/users/u1/sessions", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
