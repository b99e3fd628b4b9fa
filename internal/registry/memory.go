package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/forgeerp/forgeerp/internal/ids"
)

// MemoryStore is the in-memory Store used by tests and DSN-less runs.
type MemoryStore struct {
	mu       sync.Mutex
	modules  map[string]*Module
	installs map[string]*Installation
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		modules:  make(map[string]*Module),
		installs: make(map[string]*Installation),
	}
}

func (m *MemoryStore) CreateModule(_ context.Context, mod *Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.modules {
		if existing.Name == mod.Name {
			return ErrConflict
		}
	}
	if mod.ID == "" {
		mod.ID = ids.New()
	}
	now := time.Now().UTC()
	mod.CreatedAt = now
	mod.UpdatedAt = now
	cp := *mod
	m.modules[mod.ID] = &cp
	return nil
}

func (m *MemoryStore) GetModule(_ context.Context, id string) (*Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mod
	return &cp, nil
}

func (m *MemoryStore) GetModuleByName(_ context.Context, name string) (*Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mod := range m.modules {
		if mod.Name == name {
			cp := *mod
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateModule(_ context.Context, id string, upd ModuleUpdate) (*Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.DisplayName != nil {
		mod.DisplayName = *upd.DisplayName
	}
	if upd.Description != nil {
		mod.Description = *upd.Description
	}
	if upd.Category != nil {
		mod.Category = *upd.Category
	}
	if upd.Depends != nil {
		mod.Depends = append([]string(nil), (*upd.Depends)...)
	}
	if upd.IsActive != nil {
		mod.IsActive = *upd.IsActive
	}
	mod.UpdatedAt = time.Now().UTC()
	cp := *mod
	return &cp, nil
}

func (m *MemoryStore) ListModules(_ context.Context, activeOnly bool) ([]Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Module
	for _, mod := range m.modules {
		if activeOnly && !mod.IsActive {
			continue
		}
		out = append(out, *mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) Install(_ context.Context, clientID, moduleID string, config map[string]any) (*Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modules[moduleID]; !ok {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	for _, inst := range m.installs {
		if inst.ClientID != clientID || inst.ModuleID != moduleID {
			continue
		}
		if inst.IsActive {
			return nil, ErrConflict
		}
		inst.Config = config
		inst.IsActive = true
		inst.UpdatedAt = now
		cp := *inst
		return &cp, nil
	}
	inst := &Installation{
		ID:        ids.New(),
		ClientID:  clientID,
		ModuleID:  moduleID,
		Config:    config,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.installs[inst.ID] = inst
	cp := *inst
	return &cp, nil
}

func (m *MemoryStore) Uninstall(_ context.Context, clientID, moduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range m.installs {
		if inst.ClientID == clientID && inst.ModuleID == moduleID {
			inst.IsActive = false
			inst.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ListInstallations(_ context.Context, clientID string) ([]Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Installation
	for _, inst := range m.installs {
		if inst.ClientID == clientID {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out, nil
}

func (m *MemoryStore) ListEffective(_ context.Context, clientID string) ([]Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Module
	for _, inst := range m.installs {
		if inst.ClientID != clientID || !inst.IsActive {
			continue
		}
		if mod, ok := m.modules[inst.ModuleID]; ok {
			out = append(out, *mod)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
