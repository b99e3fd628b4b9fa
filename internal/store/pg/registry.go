package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/forgeerp/forgeerp/internal/ids"
	"github.com/forgeerp/forgeerp/internal/registry"
)

// RegistryStore implements registry.Store.
type RegistryStore struct {
	db *sql.DB
}

var _ registry.Store = (*RegistryStore)(nil)

func (s *RegistryStore) CreateModule(ctx context.Context, m *registry.Module) error {
	if m.ID == "" {
		m.ID = ids.New()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	depends, err := json.Marshal(m.Depends)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into modules(id, name, display_name, description, category, depends, is_active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, m.ID, m.Name, m.DisplayName, m.Description, m.Category, depends, m.IsActive, m.CreatedAt, m.UpdatedAt)
	return mapError(err, registry.ErrConflict, registry.ErrNotFound)
}

const moduleColumns = `id, name, display_name, description, category, depends, is_active, created_at, updated_at`

func scanModule(row interface{ Scan(...any) error }) (*registry.Module, error) {
	var m registry.Module
	var depends []byte
	err := row.Scan(&m.ID, &m.Name, &m.DisplayName, &m.Description, &m.Category,
		&depends, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(depends) > 0 {
		_ = json.Unmarshal(depends, &m.Depends)
	}
	return &m, nil
}

func (s *RegistryStore) GetModule(ctx context.Context, id string) (*registry.Module, error) {
	return scanModule(s.db.QueryRowContext(ctx, `select `+moduleColumns+` from modules where id=$1`, id))
}

func (s *RegistryStore) GetModuleByName(ctx context.Context, name string) (*registry.Module, error) {
	return scanModule(s.db.QueryRowContext(ctx, `select `+moduleColumns+` from modules where name=$1`, name))
}

func (s *RegistryStore) UpdateModule(ctx context.Context, id string, upd registry.ModuleUpdate) (*registry.Module, error) {
	var depends []byte
	if upd.Depends != nil {
		var err error
		if depends, err = json.Marshal(*upd.Depends); err != nil {
			return nil, err
		}
	}
	row := s.db.QueryRowContext(ctx, `
		update modules
		set display_name = coalesce($2, display_name),
		    description = coalesce($3, description),
		    category = coalesce($4, category),
		    depends = coalesce($5, depends),
		    is_active = coalesce($6, is_active),
		    updated_at = now()
		where id=$1
		returning `+moduleColumns+`
	`, id, upd.DisplayName, upd.Description, upd.Category, depends, upd.IsActive)
	return scanModule(row)
}

func (s *RegistryStore) ListModules(ctx context.Context, activeOnly bool) ([]registry.Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+moduleColumns+` from modules where (not $1 or is_active) order by name`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registry.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Install runs the whole install state machine inside one transaction,
// locking the (client, module) row so concurrent installs serialize: insert
// a fresh row, reactivate an inactive one replacing its config, or fail with
// ErrConflict on an active one.
func (s *RegistryStore) Install(ctx context.Context, clientID, moduleID string, config map[string]any) (*registry.Installation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var dummy int
	if err := tx.QueryRowContext(ctx, `select 1 from modules where id=$1`, moduleID).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, err
	}

	cfg, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	inst := &registry.Installation{ClientID: clientID, ModuleID: moduleID, Config: config}
	var active bool
	var rawCfg []byte
	err = tx.QueryRowContext(ctx, `
		select id, is_active, created_at from client_modules
		where client_id=$1 and module_id=$2
		for update
	`, clientID, moduleID).Scan(&inst.ID, &active, &inst.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		inst.ID = ids.New()
		inst.CreatedAt = now
		if _, err := tx.ExecContext(ctx, `
			insert into client_modules(id, client_id, module_id, config, is_active, created_at, updated_at)
			values ($1,$2,$3,$4,true,$5,$5)
		`, inst.ID, clientID, moduleID, cfg, now); err != nil {
			return nil, mapError(err, registry.ErrConflict, registry.ErrNotFound)
		}
	case err != nil:
		return nil, err
	case active:
		return nil, registry.ErrConflict
	default:
		if err := tx.QueryRowContext(ctx, `
			update client_modules
			set is_active=true, config=$3, updated_at=$4
			where client_id=$1 and module_id=$2
			returning config
		`, clientID, moduleID, cfg, now).Scan(&rawCfg); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	inst.IsActive = true
	inst.UpdatedAt = now
	return inst, nil
}

func (s *RegistryStore) Uninstall(ctx context.Context, clientID, moduleID string) error {
	res, err := s.db.ExecContext(ctx, `
		update client_modules set is_active=false, updated_at=now()
		where client_id=$1 and module_id=$2
	`, clientID, moduleID)
	if err != nil {
		return err
	}
	return requireRow(res, registry.ErrNotFound)
}

func (s *RegistryStore) ListInstallations(ctx context.Context, clientID string) ([]registry.Installation, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, client_id, module_id, config, is_active, created_at, updated_at
		from client_modules where client_id=$1 order by module_id
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registry.Installation
	for rows.Next() {
		var inst registry.Installation
		var cfg []byte
		if err := rows.Scan(&inst.ID, &inst.ClientID, &inst.ModuleID, &cfg, &inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		if len(cfg) > 0 {
			_ = json.Unmarshal(cfg, &inst.Config)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *RegistryStore) ListEffective(ctx context.Context, clientID string) ([]registry.Module, error) {
	rows, err := s.db.QueryContext(ctx, `
		select m.id, m.name, m.display_name, m.description, m.category, m.depends, m.is_active, m.created_at, m.updated_at
		from modules m
		join client_modules cm on cm.module_id = m.id
		where cm.client_id=$1 and cm.is_active
		order by m.name
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registry.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
