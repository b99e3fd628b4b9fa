package tenant

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("tenant: not found")
	ErrConflict     = errors.New("tenant: already exists")
	ErrInvalidInput = errors.New("tenant: invalid input")
)

// Client is a managed end customer. One record per customer; infrastructure
// is provisioned per client, there is no per-client repository fork.
type Client struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Code            string `json:"code"`
	Email           string `json:"email,omitempty"`
	NamespacePrefix string `json:"namespace_prefix,omitempty"`
	Domain          string `json:"domain,omitempty"`

	IsActive            bool `json:"is_active"`
	OnboardingCompleted bool `json:"onboarding_completed"`

	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Environment is one deployment target of a client (dev, hml, prod).
type Environment struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	Name         string    `json:"name"`
	Namespace    string    `json:"namespace"`
	Domain       string    `json:"domain,omitempty"`
	IsProduction bool      `json:"is_production"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Configuration is a per-client, optionally per-environment key/value entry.
type Configuration struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Environment string    `json:"environment,omitempty"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	IsSecret    bool      `json:"is_secret"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClientUpdate carries partial client mutations.
type ClientUpdate struct {
	Name                *string
	Email               *string
	Domain              *string
	NamespacePrefix     *string
	OnboardingCompleted *bool
}
