package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"fieldops.org/internal/auth"
	"fieldops.org/internal/directory"
	"fieldops.org/internal/ids"
)

var _ directory.Store = (*Store)(nil)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapDirectoryError translates driver errors into the store contract.
func mapDirectoryError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return directory.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", directory.ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

// Users ---------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	var roleID any
	if u.RoleID != "" {
		roleID = u.RoleID
	}
	row := s.db.QueryRowContext(ctx,
		`insert into users(id, login, name, password_hash, role_id, status)
		 values($1, $2, $3, $4, $5, $6)
		 returning created_at, updated_at`,
		u.ID, u.Login, u.Name, u.PasswordHash, roleID, u.Status)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapDirectoryError(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		var (
			u            auth.User
			roleID       sql.NullString
			forcedLogout sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Login, &u.Name, &u.PasswordHash, &roleID, &u.Status,
			&u.TokenVersion, &forcedLogout, &u.DeviceID, &u.LastIP, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if roleID.Valid {
			u.RoleID = roleID.String
		}
		if forcedLogout.Valid {
			ts := forcedLogout.Time
			u.LastForcedLogoutAt = &ts
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	u, err := s.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, directory.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd directory.UserUpdate) (*auth.User, error) {
	var roleID any
	setRole := upd.RoleID != nil
	if setRole && *upd.RoleID != "" {
		roleID = *upd.RoleID
	}
	res, err := s.db.ExecContext(ctx,
		`update users
		    set name = coalesce($2, name),
		        role_id = case when $3 then $4 else role_id end,
		        status = coalesce($5, status),
		        updated_at = now()
		  where id = $1`,
		id, upd.Name, setRole, roleID, upd.Status)
	if err != nil {
		return nil, mapDirectoryError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, directory.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return mapDirectoryError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// Roles ---------------------------------------------------------------------

func (s *Store) CreateRole(ctx context.Context, r *auth.Role) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	capabilities, err := json.Marshal(r.Capabilities)
	if err != nil {
		return err
	}
	row := s.db.QueryRowContext(ctx,
		`insert into roles(id, name, capabilities)
		 values($1, $2, $3)
		 returning created_at, updated_at`,
		r.ID, r.Name, capabilities)
	if err := row.Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		return mapDirectoryError(err)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, capabilities, created_at, updated_at from roles order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		var (
			role         auth.Role
			capabilities []byte
		)
		if err := rows.Scan(&role.ID, &role.Name, &capabilities, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.Capabilities = map[string]bool{}
		if len(capabilities) > 0 {
			if err := json.Unmarshal(capabilities, &role.Capabilities); err != nil {
				return nil, err
			}
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *Store) GetRole(ctx context.Context, id string) (*auth.Role, error) {
	role, err := s.FindRole(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, directory.ErrNotFound
		}
		return nil, err
	}
	return role, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd directory.RoleUpdate) (*auth.Role, error) {
	var capabilities []byte
	if upd.Capabilities != nil {
		var err error
		capabilities, err = json.Marshal(upd.Capabilities)
		if err != nil {
			return nil, err
		}
	}
	res, err := s.db.ExecContext(ctx,
		`update roles
		    set name = coalesce($2, name),
		        capabilities = coalesce($3, capabilities),
		        updated_at = now()
		  where id = $1`,
		id, upd.Name, capabilities)
	if err != nil {
		return nil, mapDirectoryError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, directory.ErrNotFound
	}
	return s.GetRole(ctx, id)
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return mapDirectoryError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// Clients -------------------------------------------------------------------

func (s *Store) CreateClient(ctx context.Context, c *directory.Client) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx,
		`insert into clients(id, name, code, phone, address, status)
		 values($1, $2, $3, $4, $5, $6)
		 returning created_at, updated_at`,
		c.ID, c.Name, c.Code, c.Phone, c.Address, c.Status)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return mapDirectoryError(err)
	}
	return nil
}

func (s *Store) ListClients(ctx context.Context) ([]*directory.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, code, phone, address, status, created_at, updated_at
		   from clients order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*directory.Client
	for rows.Next() {
		var c directory.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.Phone, &c.Address, &c.Status,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

func (s *Store) GetClient(ctx context.Context, id string) (*directory.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, code, phone, address, status, created_at, updated_at
		   from clients where id = $1`, id)
	var c directory.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Code, &c.Phone, &c.Address, &c.Status,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapDirectoryError(err)
	}
	return &c, nil
}

func (s *Store) UpdateClient(ctx context.Context, id string, upd directory.ClientUpdate) (*directory.Client, error) {
	res, err := s.db.ExecContext(ctx,
		`update clients
		    set name = coalesce($2, name),
		        code = coalesce($3, code),
		        phone = coalesce($4, phone),
		        address = coalesce($5, address),
		        status = coalesce($6, status),
		        updated_at = now()
		  where id = $1`,
		id, upd.Name, upd.Code, upd.Phone, upd.Address, upd.Status)
	if err != nil {
		return nil, mapDirectoryError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, directory.ErrNotFound
	}
	return s.GetClient(ctx, id)
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from clients where id = $1`, id)
	if err != nil {
		return mapDirectoryError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// Products ------------------------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p *directory.Product) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx,
		`insert into products(id, name, code, unit_price, status)
		 values($1, $2, $3, $4, $5)
		 returning created_at, updated_at`,
		p.ID, p.Name, p.Code, p.UnitPrice, p.Status)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return mapDirectoryError(err)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]*directory.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, code, unit_price, status, created_at, updated_at
		   from products order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*directory.Product
	for rows.Next() {
		var p directory.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.UnitPrice, &p.Status,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*directory.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, code, unit_price, status, created_at, updated_at
		   from products where id = $1`, id)
	var p directory.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Code, &p.UnitPrice, &p.Status,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapDirectoryError(err)
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, upd directory.ProductUpdate) (*directory.Product, error) {
	res, err := s.db.ExecContext(ctx,
		`update products
		    set name = coalesce($2, name),
		        code = coalesce($3, code),
		        unit_price = coalesce($4, unit_price),
		        status = coalesce($5, status),
		        updated_at = now()
		  where id = $1`,
		id, upd.Name, upd.Code, upd.UnitPrice, upd.Status)
	if err != nil {
		return nil, mapDirectoryError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, directory.ErrNotFound
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from products where id = $1`, id)
	if err != nil {
		return mapDirectoryError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return directory.ErrNotFound
	}
	return nil
}
