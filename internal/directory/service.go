package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fieldops.org/internal/auth"
)

// Service validates administration requests before they reach the store.
type Service struct {
	store Store
}

// NewService constructs the administration service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory: store is required")
	}
	return &Service{store: store}, nil
}

// Users ---------------------------------------------------------------------

// CreateUser registers a back-office account. The password is hashed here;
// the stored record starts at token version zero.
func (s *Service) CreateUser(ctx context.Context, login, name, password, roleID, status string) (*auth.User, error) {
	login = strings.TrimSpace(strings.ToLower(login))
	if login == "" {
		return nil, fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	status, err := normalizeStatus(status)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &auth.User{
		Login:        login,
		Name:         name,
		PasswordHash: hash,
		RoleID:       strings.TrimSpace(roleID),
		Status:       status,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]*auth.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) GetUser(ctx context.Context, id string) (*auth.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*auth.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.RoleID != nil {
		roleID := strings.TrimSpace(*upd.RoleID)
		upd.RoleID = &roleID
	}
	if upd.Status != nil {
		status, err := normalizeStatus(*upd.Status)
		if err != nil {
			return nil, err
		}
		upd.Status = &status
	}
	return s.store.UpdateUser(ctx, id, upd)
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.DeleteUser(ctx, id)
}

// Roles ---------------------------------------------------------------------

// CreateRole registers a role with its capability map. Keys are trimmed;
// false entries are kept as written since absent and false read the same.
func (s *Service) CreateRole(ctx context.Context, name string, capabilities map[string]bool) (*auth.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &auth.Role{
		Name:         name,
		Capabilities: normalizeCapabilities(capabilities),
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *Service) ListRoles(ctx context.Context) ([]*auth.Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) GetRole(ctx context.Context, id string) (*auth.Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, id)
}

func (s *Service) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*auth.Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Capabilities != nil {
		upd.Capabilities = normalizeCapabilities(upd.Capabilities)
	}
	return s.store.UpdateRole(ctx, id, upd)
}

func (s *Service) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, id)
}

// Clients -------------------------------------------------------------------

func (s *Service) CreateClient(ctx context.Context, name, code, phone, address string) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: client name is required", ErrInvalidInput)
	}
	client := &Client{
		Name:    name,
		Code:    strings.TrimSpace(code),
		Phone:   strings.TrimSpace(phone),
		Address: strings.TrimSpace(address),
		Status:  RecordStatusActive,
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]*Client, error) {
	return s.store.ListClients(ctx)
}

func (s *Service) GetClient(ctx context.Context, id string) (*Client, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	return s.store.GetClient(ctx, id)
}

func (s *Service) UpdateClient(ctx context.Context, id string, upd ClientUpdate) (*Client, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: client name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Status != nil {
		status, err := normalizeStatus(*upd.Status)
		if err != nil {
			return nil, err
		}
		upd.Status = &status
	}
	return s.store.UpdateClient(ctx, id, upd)
}

func (s *Service) DeleteClient(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	return s.store.DeleteClient(ctx, id)
}

// Products ------------------------------------------------------------------

func (s *Service) CreateProduct(ctx context.Context, name, code string, unitPrice int64) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if unitPrice < 0 {
		return nil, fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	}
	product := &Product{
		Name:      name,
		Code:      strings.TrimSpace(code),
		UnitPrice: unitPrice,
		Status:    RecordStatusActive,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]*Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return s.store.GetProduct(ctx, id)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (*Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.UnitPrice != nil && *upd.UnitPrice < 0 {
		return nil, fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	}
	if upd.Status != nil {
		status, err := normalizeStatus(*upd.Status)
		if err != nil {
			return nil, err
		}
		upd.Status = &status
	}
	return s.store.UpdateProduct(ctx, id, upd)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return s.store.DeleteProduct(ctx, id)
}

func normalizeStatus(status string) (string, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		return RecordStatusActive, nil
	}
	if status != RecordStatusActive && status != RecordStatusInactive {
		return "", fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	return status, nil
}

func normalizeCapabilities(capabilities map[string]bool) map[string]bool {
	normalized := make(map[string]bool, len(capabilities))
	for key, allowed := range capabilities {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		normalized[key] = allowed
	}
	return normalized
}
