package directory

import (
	"context"
	"errors"
	"time"

	"fieldops.org/internal/auth"
)

var (
	ErrInvalidInput = errors.New("directory: invalid input")
	ErrNotFound     = errors.New("directory: not found")
	ErrConflict     = errors.New("directory: resource conflict")
)

const (
	RecordStatusActive   = "active"
	RecordStatusInactive = "inactive"
)

// Client is a catalog record for a customer the field teams serve.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a catalog record for an item in the price list.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	UnitPrice int64     `json:"unit_price"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserUpdate carries optional field changes; nil fields are untouched.
type UserUpdate struct {
	Name   *string
	RoleID *string
	Status *string
}

// RoleUpdate carries optional field changes; nil fields are untouched.
type RoleUpdate struct {
	Name         *string
	Capabilities map[string]bool
}

// ClientUpdate carries optional field changes; nil fields are untouched.
type ClientUpdate struct {
	Name    *string
	Code    *string
	Phone   *string
	Address *string
	Status  *string
}

// ProductUpdate carries optional field changes; nil fields are untouched.
type ProductUpdate struct {
	Name      *string
	Code      *string
	UnitPrice *int64
	Status    *string
}

// Store persists the administration catalogs. Implementations map missing
// rows to ErrNotFound and unique violations to ErrConflict.
type Store interface {
	CreateUser(ctx context.Context, u *auth.User) error
	ListUsers(ctx context.Context) ([]*auth.User, error)
	GetUser(ctx context.Context, id string) (*auth.User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*auth.User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateRole(ctx context.Context, r *auth.Role) error
	ListRoles(ctx context.Context) ([]*auth.Role, error)
	GetRole(ctx context.Context, id string) (*auth.Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*auth.Role, error)
	DeleteRole(ctx context.Context, id string) error

	CreateClient(ctx context.Context, c *Client) error
	ListClients(ctx context.Context) ([]*Client, error)
	GetClient(ctx context.Context, id string) (*Client, error)
	UpdateClient(ctx context.Context, id string, upd ClientUpdate) (*Client, error)
	DeleteClient(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, p *Product) error
	ListProducts(ctx context.Context) ([]*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (*Product, error)
	DeleteProduct(ctx context.Context, id string) error
}
