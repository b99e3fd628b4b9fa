package tenant

import "context"

// Store persists clients, their environments and configuration entries.
type Store interface {
	CreateClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, id string) (*Client, error)
	GetClientByCode(ctx context.Context, code string) (*Client, error)
	ListClients(ctx context.Context, activeOnly bool) ([]Client, error)
	UpdateClient(ctx context.Context, id string, upd ClientUpdate) (*Client, error)
	// DeactivateClient soft-deletes; client history is never erased.
	DeactivateClient(ctx context.Context, id string) error

	CreateEnvironment(ctx context.Context, e *Environment) error
	ListEnvironments(ctx context.Context, clientID string) ([]Environment, error)

	// SetConfiguration upserts the active entry for (client, environment, key).
	SetConfiguration(ctx context.Context, c *Configuration) error
	ListConfigurations(ctx context.Context, clientID string) ([]Configuration, error)
}
