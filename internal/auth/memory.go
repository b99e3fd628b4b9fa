package auth

import (
	"context"
	"sync"
	"time"

	"github.com/forgeerp/forgeerp/internal/ids"
)

// MemoryStore is an in-memory UserStore and GrantStore used by tests and
// DSN-less development runs.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	grants map[string]*Grant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*User),
		grants: make(map[string]*Grant),
	}
}

var (
	_ UserStore  = (*MemoryStore)(nil)
	_ GrantStore = (*MemoryStore)(nil)
)

func (m *MemoryStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) Find(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) FindByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = at
	return nil
}

func (m *MemoryStore) RecordLoginFailure(_ context.Context, id string, attempts int, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FailedLoginAttempts = attempts
	u.LockedUntil = lockedUntil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Grant(_ context.Context, g *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.grants {
		if existing.IsActive &&
			existing.UserID == g.UserID &&
			existing.Action == g.Action &&
			existing.ClientID == g.ClientID &&
			existing.Environment == g.Environment {
			existing.IsActive = false
			existing.UpdatedAt = time.Now().UTC()
		}
	}
	if g.ID == "" {
		g.ID = ids.New()
	}
	now := time.Now().UTC()
	g.IsActive = true
	g.CreatedAt = now
	g.UpdatedAt = now
	cp := *g
	m.grants[g.ID] = &cp
	return nil
}

func (m *MemoryStore) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return ErrNotFound
	}
	g.IsActive = false
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ListForUser(_ context.Context, userID string) ([]Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Grant
	for _, g := range m.grants {
		if g.UserID == userID && g.IsActive {
			out = append(out, *g)
		}
	}
	return out, nil
}
