package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/forgeerp/forgeerp/internal/auth"
	"github.com/forgeerp/forgeerp/internal/ids"
)

// AuthStore implements auth.UserStore and auth.GrantStore.
type AuthStore struct {
	db *sql.DB
}

var (
	_ auth.UserStore  = (*AuthStore)(nil)
	_ auth.GrantStore = (*AuthStore)(nil)
)

const userColumns = `id, username, email, password_hash, full_name, role, is_active, is_superuser,
	last_login_at, failed_login_attempts, locked_until, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.Role,
		&u.IsActive, &u.IsSuperuser, &u.LastLoginAt, &u.FailedLoginAttempts, &u.LockedUntil,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *AuthStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, username, email, password_hash, full_name, role, is_active, is_superuser, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, u.Role, u.IsActive, u.IsSuperuser, u.CreatedAt, u.UpdatedAt)
	return mapError(err, auth.ErrConflict, auth.ErrNotFound)
}

func (s *AuthStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id))
}

func (s *AuthStore) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username=$1`, username))
}

func (s *AuthStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set last_login_at=$2, failed_login_attempts=0, locked_until=null, updated_at=$2
		where id=$1
	`, id, at)
	if err != nil {
		return err
	}
	return requireRow(res, auth.ErrNotFound)
}

func (s *AuthStore) RecordLoginFailure(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set failed_login_attempts=$2, locked_until=$3, updated_at=now()
		where id=$1
	`, id, attempts, lockedUntil)
	if err != nil {
		return err
	}
	return requireRow(res, auth.ErrNotFound)
}

func (s *AuthStore) Grant(ctx context.Context, g *auth.Grant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Duplicates are deactivated, never stacked.
	if _, err := tx.ExecContext(ctx, `
		update permission_grants
		set is_active=false, updated_at=now()
		where user_id=$1 and action=$2 and client_id=$3 and environment=$4 and is_active
	`, g.UserID, g.Action, g.ClientID, g.Environment); err != nil {
		return err
	}

	if g.ID == "" {
		g.ID = ids.New()
	}
	now := time.Now().UTC()
	g.IsActive = true
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := tx.ExecContext(ctx, `
		insert into permission_grants(id, user_id, action, client_id, environment, is_active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,true,$6,$6)
	`, g.ID, g.UserID, g.Action, g.ClientID, g.Environment, now); err != nil {
		return mapError(err, auth.ErrConflict, auth.ErrNotFound)
	}
	return tx.Commit()
}

func (s *AuthStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update permission_grants set is_active=false, updated_at=now() where id=$1
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res, auth.ErrNotFound)
}

func (s *AuthStore) ListForUser(ctx context.Context, userID string) ([]auth.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, action, client_id, environment, is_active, created_at, updated_at
		from permission_grants
		where user_id=$1 and is_active
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Grant
	for rows.Next() {
		var g auth.Grant
		if err := rows.Scan(&g.ID, &g.UserID, &g.Action, &g.ClientID, &g.Environment, &g.IsActive, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
