package tenant

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/forgeerp/forgeerp/internal/ids"
)

// MemoryStore is the in-memory Store used by tests and DSN-less runs.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
	envs    map[string]*Environment
	configs map[string]*Configuration
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*Client),
		envs:    make(map[string]*Environment),
		configs: make(map[string]*Configuration),
	}
}

func (m *MemoryStore) CreateClient(_ context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.clients {
		if existing.Code == c.Code {
			return ErrConflict
		}
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	m.clients[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetClient(_ context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetClientByCode(_ context.Context, code string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListClients(_ context.Context, activeOnly bool) ([]Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Client
	for _, c := range m.clients {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) UpdateClient(_ context.Context, id string, upd ClientUpdate) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.Domain != nil {
		c.Domain = *upd.Domain
	}
	if upd.NamespacePrefix != nil {
		c.NamespacePrefix = *upd.NamespacePrefix
	}
	if upd.OnboardingCompleted != nil {
		c.OnboardingCompleted = *upd.OnboardingCompleted
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) DeactivateClient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return ErrNotFound
	}
	c.IsActive = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) CreateEnvironment(_ context.Context, e *Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.envs {
		if existing.Namespace == e.Namespace {
			return ErrConflict
		}
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	cp := *e
	m.envs[e.ID] = &cp
	return nil
}

func (m *MemoryStore) ListEnvironments(_ context.Context, clientID string) ([]Environment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Environment
	for _, e := range m.envs {
		if e.ClientID == clientID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) SetConfiguration(_ context.Context, c *Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, existing := range m.configs {
		if existing.ClientID == c.ClientID && existing.Environment == c.Environment && existing.Key == c.Key {
			existing.Value = c.Value
			existing.IsSecret = c.IsSecret
			existing.UpdatedAt = now
			*c = *existing
			return nil
		}
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	m.configs[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListConfigurations(_ context.Context, clientID string) ([]Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Configuration
	for _, c := range m.configs {
		if c.ClientID == clientID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
