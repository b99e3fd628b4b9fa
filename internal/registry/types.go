package registry

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("registry: not found")
	ErrConflict     = errors.New("registry: already exists")
	ErrInvalidInput = errors.New("registry: invalid input")
)

// Module categories.
const (
	CategoryCore  = "core"
	CategoryAddon = "addon"
)

// Module is a feature unit from the catalog that clients can enable.
type Module struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Depends     []string  `json:"depends,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ModuleUpdate carries partial catalog mutations. The module name is its
// identity and cannot change.
type ModuleUpdate struct {
	DisplayName *string
	Description *string
	Category    *string
	Depends     *[]string
	IsActive    *bool
}

// Installation links a client to a module. Uninstalling flips the active
// flag; the row and its config stay for history. A module is effective for a
// client exactly when its installation row is active.
type Installation struct {
	ID        string         `json:"id"`
	ClientID  string         `json:"client_id"`
	ModuleID  string         `json:"module_id"`
	Config    map[string]any `json:"config,omitempty"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
