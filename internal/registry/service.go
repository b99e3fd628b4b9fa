package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forgeerp/forgeerp/internal/obs"
	"github.com/forgeerp/forgeerp/internal/tenant"
)

// ClientDirectory answers client lookups; satisfied by tenant.Service.
type ClientDirectory interface {
	GetClient(ctx context.Context, id string) (*tenant.Client, error)
}

// Service manages the module catalog and per-client installations.
type Service struct {
	store     Store
	clients   ClientDirectory
	addonsDir string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAddonsDir points the service at the addon tree scanned by
// SyncAvailable.
func WithAddonsDir(dir string) ServiceOption {
	return func(s *Service) error {
		s.addonsDir = dir
		return nil
	}
}

func NewService(store Store, clients ClientDirectory, opts ...ServiceOption) (*Service, error) {
	if store == nil || clients == nil {
		return nil, errors.New("registry: store and client directory are required")
	}
	svc := &Service{store: store, clients: clients}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// CreateModule registers a module in the catalog.
func (s *Service) CreateModule(ctx context.Context, name, displayName, description, category string, depends []string) (*Module, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil, fmt.Errorf("%w: module name is required", ErrInvalidInput)
	}
	if category == "" {
		category = CategoryAddon
	}
	if category != CategoryCore && category != CategoryAddon {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, category)
	}
	if displayName == "" {
		displayName = name
	}
	mod := &Module{
		Name:        name,
		DisplayName: strings.TrimSpace(displayName),
		Description: strings.TrimSpace(description),
		Category:    category,
		Depends:     depends,
		IsActive:    true,
	}
	if err := s.store.CreateModule(ctx, mod); err != nil {
		return nil, err
	}
	return mod, nil
}

// UpdateModule amends catalog metadata. The name is immutable identity and
// stays as created.
func (s *Service) UpdateModule(ctx context.Context, id string, upd ModuleUpdate) (*Module, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: module_id is required", ErrInvalidInput)
	}
	if upd.Category != nil && *upd.Category != CategoryCore && *upd.Category != CategoryAddon {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, *upd.Category)
	}
	return s.store.UpdateModule(ctx, id, upd)
}

func (s *Service) GetModule(ctx context.Context, id string) (*Module, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: module_id is required", ErrInvalidInput)
	}
	return s.store.GetModule(ctx, id)
}

func (s *Service) ListModules(ctx context.Context, activeOnly bool) ([]Module, error) {
	return s.store.ListModules(ctx, activeOnly)
}

// Install enables a module for a client. Installing over an active
// installation fails with ErrConflict; reinstalling after an uninstall
// reactivates the existing row with the new config, so repeated
// install/uninstall cycles never grow the table.
func (s *Service) Install(ctx context.Context, clientID, moduleID string, config map[string]any) (*Installation, error) {
	clientID = strings.TrimSpace(clientID)
	moduleID = strings.TrimSpace(moduleID)
	if clientID == "" || moduleID == "" {
		return nil, fmt.Errorf("%w: client_id and module_id are required", ErrInvalidInput)
	}
	if _, err := s.clients.GetClient(ctx, clientID); err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
		}
		return nil, err
	}
	inst, err := s.store.Install(ctx, clientID, moduleID, config)
	if err != nil {
		return nil, err
	}
	obs.ModuleInstalls.WithLabelValues("install").Inc()
	return inst, nil
}

// Uninstall disables a module for a client. The installation row and its
// config are retained.
func (s *Service) Uninstall(ctx context.Context, clientID, moduleID string) error {
	clientID = strings.TrimSpace(clientID)
	moduleID = strings.TrimSpace(moduleID)
	if clientID == "" || moduleID == "" {
		return fmt.Errorf("%w: client_id and module_id are required", ErrInvalidInput)
	}
	if err := s.store.Uninstall(ctx, clientID, moduleID); err != nil {
		return err
	}
	obs.ModuleInstalls.WithLabelValues("uninstall").Inc()
	return nil
}

// ListEffective returns the modules currently enabled for the client.
func (s *Service) ListEffective(ctx context.Context, clientID string) ([]Module, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	return s.store.ListEffective(ctx, clientID)
}

// ListInstalled returns all installation rows for the client, active or not.
func (s *Service) ListInstalled(ctx context.Context, clientID string) ([]Installation, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	return s.store.ListInstallations(ctx, clientID)
}

// SyncAvailable scans the addons directory and registers every manifest not
// yet in the catalog. Returns the number of modules added.
func (s *Service) SyncAvailable(ctx context.Context) (int, error) {
	if s.addonsDir == "" {
		return 0, nil
	}
	manifests, err := AvailableModules(s.addonsDir)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, m := range manifests {
		if _, err := s.store.GetModuleByName(ctx, m.Name); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return added, err
		}
		mod := &Module{
			Name:        m.Name,
			DisplayName: m.DisplayName,
			Description: m.Description,
			Category:    m.Category,
			Depends:     m.Depends,
			IsActive:    true,
		}
		if err := s.store.CreateModule(ctx, mod); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}
