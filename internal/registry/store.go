package registry

import "context"

// Store persists the module catalog and per-client installations.
//
// Install carries the whole install state machine so each implementation can
// make it atomic per (client, module): the postgres store locks the pair row
// inside a transaction, the memory store serializes under its mutex.
type Store interface {
	CreateModule(ctx context.Context, m *Module) error
	GetModule(ctx context.Context, id string) (*Module, error)
	GetModuleByName(ctx context.Context, name string) (*Module, error)
	UpdateModule(ctx context.Context, id string, upd ModuleUpdate) (*Module, error)
	ListModules(ctx context.Context, activeOnly bool) ([]Module, error)

	// Install inserts a fresh installation, reactivates an inactive one in
	// place (replacing its config), or fails with ErrConflict when an active
	// one already exists. ErrNotFound when the module is unknown.
	Install(ctx context.Context, clientID, moduleID string, config map[string]any) (*Installation, error)

	// Uninstall deactivates the installation. ErrNotFound when no row exists
	// for the pair.
	Uninstall(ctx context.Context, clientID, moduleID string) error

	ListInstallations(ctx context.Context, clientID string) ([]Installation, error)
	ListEffective(ctx context.Context, clientID string) ([]Module, error)
}
