package directory

import (
	"context"
	"errors"
	"testing"

	"fieldops.org/internal/auth"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestCreateUserNormalizesAndHashes(t *testing.T) {
	svc, _ := newTestService(t)

	u, err := svc.CreateUser(context.Background(), "  Alice ", " Alice Example ", "secret-password", "", "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Login != "alice" {
		t.Fatalf("login = %q, want alice", u.Login)
	}
	if u.Name != "Alice Example" {
		t.Fatalf("name = %q", u.Name)
	}
	if u.Status != RecordStatusActive {
		t.Fatalf("status = %q, want active default", u.Status)
	}
	if u.PasswordHash == "" || u.PasswordHash == "secret-password" {
		t.Fatal("password must be stored as a hash")
	}
	if err := auth.VerifyPassword(u.PasswordHash, "secret-password"); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
	if u.TokenVersion != 0 {
		t.Fatalf("token version = %d, want 0", u.TokenVersion)
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name                         string
		login, display, pass, status string
	}{
		{"empty login", "", "Name", "secret-password", ""},
		{"empty name", "alice", "", "secret-password", ""},
		{"empty password", "alice", "Name", "   ", ""},
		{"bad status", "alice", "Name", "secret-password", "frozen"},
	}
	for _, tc := range cases {
		if _, err := svc.CreateUser(ctx, tc.login, tc.display, tc.pass, "", tc.status); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestCreateUserDuplicateLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "alice", "Alice", "secret-password", "", ""); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.CreateUser(ctx, "ALICE", "Other Alice", "secret-password", "", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate: err = %v, want ErrConflict", err)
	}
}

func TestUpdateUserPartial(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "alice", "Alice", "secret-password", "", "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	status := "inactive"
	updated, err := svc.UpdateUser(ctx, u.ID, UserUpdate{Status: &status})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.Status != RecordStatusInactive {
		t.Fatalf("status = %q", updated.Status)
	}
	if updated.Name != "Alice" {
		t.Fatalf("untouched name changed: %q", updated.Name)
	}

	empty := "  "
	if _, err := svc.UpdateUser(ctx, u.ID, UserUpdate{Name: &empty}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name: err = %v, want ErrInvalidInput", err)
	}
}

func TestCreateRoleNormalizesCapabilities(t *testing.T) {
	svc, _ := newTestService(t)

	role, err := svc.CreateRole(context.Background(), "Dispatcher", map[string]bool{
		"  forceLogout ": true,
		"":               true,
		"usersView":      false,
	})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if !role.Capabilities["forceLogout"] {
		t.Fatal("trimmed key missing")
	}
	if _, ok := role.Capabilities[""]; ok {
		t.Fatal("empty key kept")
	}
	if allowed, ok := role.Capabilities["usersView"]; !ok || allowed {
		t.Fatal("explicit false entry should be kept as false")
	}
}

func TestProductValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateProduct(ctx, "", "SKU-1", 100); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := svc.CreateProduct(ctx, "Water", "SKU-1", -1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative price: %v", err)
	}

	p, err := svc.CreateProduct(ctx, "Water", "SKU-1", 150)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	bad := int64(-5)
	if _, err := svc.UpdateProduct(ctx, p.ID, ProductUpdate{UnitPrice: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative update: %v", err)
	}
}

func TestClientLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateClient(ctx, " Acme Retail ", "ACME-01", "", "")
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if c.Name != "Acme Retail" {
		t.Fatalf("name = %q", c.Name)
	}

	if _, err := svc.CreateClient(ctx, "Other", "ACME-01", "", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate code: err = %v, want ErrConflict", err)
	}

	if err := svc.DeleteClient(ctx, c.ID); err != nil {
		t.Fatalf("DeleteClient: %v", err)
	}
	if _, err := svc.GetClient(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted: err = %v, want ErrNotFound", err)
	}
}
