package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"fieldops.org/internal/auth"
)

var _ auth.Store = (*Store)(nil)

// Store implements the credential and catalog stores on PostgreSQL. The
// user row is the unit of atomicity: version bumps and password changes are
// single UPDATE statements, so concurrent writers serialize on the row lock
// and increments are never lost.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, login, name, password_hash, role_id, status, token_version,
	last_forced_logout_at, device_id, last_ip, created_at, updated_at`

func (s *Store) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id)
	return s.scanUser(ctx, row)
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where login = $1`, login)
	return s.scanUser(ctx, row)
}

func (s *Store) scanUser(ctx context.Context, row *sql.Row) (*auth.User, error) {
	var (
		u            auth.User
		roleID       sql.NullString
		forcedLogout sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Login, &u.Name, &u.PasswordHash, &roleID, &u.Status,
		&u.TokenVersion, &forcedLogout, &u.DeviceID, &u.LastIP, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if roleID.Valid {
		u.RoleID = roleID.String
	}
	if forcedLogout.Valid {
		ts := forcedLogout.Time
		u.LastForcedLogoutAt = &ts
	}
	revoked, err := s.revokedTokens(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.RevokedTokens = revoked
	return &u, nil
}

func (s *Store) revokedTokens(ctx context.Context, userID string) ([]auth.RevokedToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`select token, revoked_at from revoked_tokens where user_id = $1 order by revoked_at asc`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revoked []auth.RevokedToken
	for rows.Next() {
		var entry auth.RevokedToken
		if err := rows.Scan(&entry.Token, &entry.RevokedAt); err != nil {
			return nil, err
		}
		revoked = append(revoked, entry)
	}
	return revoked, rows.Err()
}

func (s *Store) FindRole(ctx context.Context, id string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, capabilities, created_at, updated_at from roles where id = $1`, id)
	return scanRole(row)
}

func scanRole(row *sql.Row) (*auth.Role, error) {
	var (
		role         auth.Role
		capabilities []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &capabilities, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	role.Capabilities = map[string]bool{}
	if len(capabilities) > 0 {
		if err := json.Unmarshal(capabilities, &role.Capabilities); err != nil {
			return nil, err
		}
	}
	return &role, nil
}

func (s *Store) IncrementTokenVersion(ctx context.Context, userID string, at time.Time) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		`update users
		    set token_version = token_version + 1,
		        last_forced_logout_at = $2,
		        updated_at = $2
		  where id = $1
		 returning token_version`,
		userID, at)
	var version int64
	if err := row.Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return 0, auth.ErrNotFound
		}
		return 0, err
	}
	return version, nil
}

func (s *Store) AppendRevokedToken(ctx context.Context, userID, token string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`insert into revoked_tokens(user_id, token, revoked_at)
		 select $1, $2, $3 where exists (select 1 from users where id = $1)
		 on conflict (user_id, token) do nothing`,
		userID, token, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the token was already revoked (fine) or the user is gone.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`select exists (select 1 from users where id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return auth.ErrNotFound
		}
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		`update users
		    set password_hash = $2,
		        token_version = token_version + 1,
		        updated_at = now()
		  where id = $1
		 returning token_version`,
		userID, passwordHash)
	var version int64
	if err := row.Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return 0, auth.ErrNotFound
		}
		return 0, err
	}
	return version, nil
}

func (s *Store) UpdateLoginBinding(ctx context.Context, userID, deviceID, ip string) error {
	res, err := s.db.ExecContext(ctx,
		`update users
		    set device_id = case when $2 <> '' then $2 else device_id end,
		        last_ip = case when $3 <> '' then $3 else last_ip end,
		        updated_at = now()
		  where id = $1`,
		userID, deviceID, ip)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) PruneRevokedTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from revoked_tokens where revoked_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
