package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/forgeerp/forgeerp/internal/ids"
	"github.com/forgeerp/forgeerp/internal/tenant"
)

// TenantStore implements tenant.Store.
type TenantStore struct {
	db *sql.DB
}

var _ tenant.Store = (*TenantStore)(nil)

const clientColumns = `id, name, code, email, namespace_prefix, domain, is_active,
	onboarding_completed, last_sync_at, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*tenant.Client, error) {
	var c tenant.Client
	err := row.Scan(&c.ID, &c.Name, &c.Code, &c.Email, &c.NamespacePrefix, &c.Domain,
		&c.IsActive, &c.OnboardingCompleted, &c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *TenantStore) CreateClient(ctx context.Context, c *tenant.Client) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into clients(id, name, code, email, namespace_prefix, domain, is_active, onboarding_completed, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, c.ID, c.Name, c.Code, c.Email, c.NamespacePrefix, c.Domain, c.IsActive, c.OnboardingCompleted, c.CreatedAt, c.UpdatedAt)
	return mapError(err, tenant.ErrConflict, tenant.ErrNotFound)
}

func (s *TenantStore) GetClient(ctx context.Context, id string) (*tenant.Client, error) {
	return scanClient(s.db.QueryRowContext(ctx, `select `+clientColumns+` from clients where id=$1`, id))
}

func (s *TenantStore) GetClientByCode(ctx context.Context, code string) (*tenant.Client, error) {
	return scanClient(s.db.QueryRowContext(ctx, `select `+clientColumns+` from clients where code=$1`, code))
}

func (s *TenantStore) ListClients(ctx context.Context, activeOnly bool) ([]tenant.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+clientColumns+` from clients where (not $1 or is_active) order by code`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *TenantStore) UpdateClient(ctx context.Context, id string, upd tenant.ClientUpdate) (*tenant.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		update clients
		set name = coalesce($2, name),
		    email = coalesce($3, email),
		    domain = coalesce($4, domain),
		    namespace_prefix = coalesce($5, namespace_prefix),
		    onboarding_completed = coalesce($6, onboarding_completed),
		    updated_at = now()
		where id=$1
		returning `+clientColumns+`
	`, id, upd.Name, upd.Email, upd.Domain, upd.NamespacePrefix, upd.OnboardingCompleted)
	return scanClient(row)
}

func (s *TenantStore) DeactivateClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update clients set is_active=false, updated_at=now() where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, tenant.ErrNotFound)
}

func (s *TenantStore) CreateEnvironment(ctx context.Context, e *tenant.Environment) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into environments(id, client_id, name, namespace, domain, is_production, is_active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.ClientID, e.Name, e.Namespace, e.Domain, e.IsProduction, e.IsActive, e.CreatedAt, e.UpdatedAt)
	return mapError(err, tenant.ErrConflict, tenant.ErrNotFound)
}

func (s *TenantStore) ListEnvironments(ctx context.Context, clientID string) ([]tenant.Environment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, client_id, name, namespace, domain, is_production, is_active, created_at, updated_at
		from environments where client_id=$1 order by name
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Environment
	for rows.Next() {
		var e tenant.Environment
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Name, &e.Namespace, &e.Domain, &e.IsProduction, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *TenantStore) SetConfiguration(ctx context.Context, c *tenant.Configuration) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		insert into configurations(id, client_id, environment, key, value, is_secret, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$7)
		on conflict (client_id, environment, key) do update
		set value = excluded.value, is_secret = excluded.is_secret, updated_at = excluded.updated_at
		returning id, created_at, updated_at
	`, c.ID, c.ClientID, c.Environment, c.Key, c.Value, c.IsSecret, now)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return mapError(err, tenant.ErrConflict, tenant.ErrNotFound)
	}
	return nil
}

func (s *TenantStore) ListConfigurations(ctx context.Context, clientID string) ([]tenant.Configuration, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, client_id, environment, key, value, is_secret, created_at, updated_at
		from configurations where client_id=$1 order by key
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Configuration
	for rows.Next() {
		var c tenant.Configuration
		if err := rows.Scan(&c.ID, &c.ClientID, &c.Environment, &c.Key, &c.Value, &c.IsSecret, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
