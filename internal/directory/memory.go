package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fieldops.org/internal/auth"
	"fieldops.org/internal/ids"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*auth.User
	roles    map[string]*auth.Role
	clients  map[string]*Client
	products map[string]*Product
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*auth.User),
		roles:    make(map[string]*auth.Role),
		clients:  make(map[string]*Client),
		products: make(map[string]*Product),
		now:      time.Now,
	}
}

// Users ---------------------------------------------------------------------

func (m *MemoryStore) CreateUser(ctx context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Login, u.Login) {
			return ErrConflict
		}
	}
	now := m.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*auth.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.RoleID != nil {
		u.RoleID = *upd.RoleID
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	u.UpdatedAt = m.now().UTC()
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// Roles ---------------------------------------------------------------------

func (m *MemoryStore) CreateRole(ctx context.Context, r *auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = ids.New()
	}
	for _, existing := range m.roles {
		if strings.EqualFold(existing.Name, r.Name) {
			return ErrConflict
		}
	}
	now := m.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	m.roles[r.ID] = &cp
	return nil
}

func (m *MemoryStore) ListRoles(ctx context.Context) ([]*auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := make([]*auth.Role, 0, len(m.roles))
	for _, r := range m.roles {
		cp := *r
		roles = append(roles, &cp)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].CreatedAt.Before(roles[j].CreatedAt) })
	return roles, nil
}

func (m *MemoryStore) GetRole(ctx context.Context, id string) (*auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Capabilities != nil {
		r.Capabilities = upd.Capabilities
	}
	r.UpdatedAt = m.now().UTC()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) DeleteRole(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

// Clients -------------------------------------------------------------------

func (m *MemoryStore) CreateClient(ctx context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	if c.Code != "" {
		for _, existing := range m.clients {
			if existing.Code == c.Code {
				return ErrConflict
			}
		}
	}
	now := m.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	m.clients[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListClients(ctx context.Context) ([]*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		cp := *c
		clients = append(clients, &cp)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].CreatedAt.Before(clients[j].CreatedAt) })
	return clients, nil
}

func (m *MemoryStore) GetClient(ctx context.Context, id string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) UpdateClient(ctx context.Context, id string, upd ClientUpdate) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Code != nil {
		c.Code = *upd.Code
	}
	if upd.Phone != nil {
		c.Phone = *upd.Phone
	}
	if upd.Address != nil {
		c.Address = *upd.Address
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	c.UpdatedAt = m.now().UTC()
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) DeleteClient(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return ErrNotFound
	}
	delete(m.clients, id)
	return nil
}

// Products ------------------------------------------------------------------

func (m *MemoryStore) CreateProduct(ctx context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.Code != "" {
		for _, existing := range m.products {
			if existing.Code == p.Code {
				return ErrConflict
			}
		}
	}
	now := m.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListProducts(ctx context.Context) ([]*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	products := make([]*Product, 0, len(m.products))
	for _, p := range m.products {
		cp := *p
		products = append(products, &cp)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].CreatedAt.Before(products[j].CreatedAt) })
	return products, nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Code != nil {
		p.Code = *upd.Code
	}
	if upd.UnitPrice != nil {
		p.UnitPrice = *upd.UnitPrice
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	p.UpdatedAt = m.now().UTC()
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return ErrNotFound
	}
	delete(m.products, id)
	return nil
}
