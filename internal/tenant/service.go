package tenant

import (
	"context"
	"fmt"
	"strings"
)

// Service wraps the store with input validation and derived defaults.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	return &Service{store: store}, nil
}

func (s *Service) CreateClient(ctx context.Context, name, code, email, domain string) (*Client, error) {
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(strings.ToLower(code))
	if name == "" || code == "" {
		return nil, fmt.Errorf("%w: client name and code are required", ErrInvalidInput)
	}
	client := &Client{
		Name:            name,
		Code:            code,
		Email:           strings.TrimSpace(strings.ToLower(email)),
		Domain:          strings.TrimSpace(domain),
		NamespacePrefix: code,
		IsActive:        true,
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Service) GetClient(ctx context.Context, id string) (*Client, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	return s.store.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context, activeOnly bool) ([]Client, error) {
	return s.store.ListClients(ctx, activeOnly)
}

func (s *Service) UpdateClient(ctx context.Context, id string, upd ClientUpdate) (*Client, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: client name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	return s.store.UpdateClient(ctx, id, upd)
}

func (s *Service) DeactivateClient(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	return s.store.DeactivateClient(ctx, id)
}

func (s *Service) CreateEnvironment(ctx context.Context, clientID, name, domain string, production bool) (*Environment, error) {
	clientID = strings.TrimSpace(clientID)
	name = strings.TrimSpace(strings.ToLower(name))
	if clientID == "" || name == "" {
		return nil, fmt.Errorf("%w: client_id and environment name are required", ErrInvalidInput)
	}
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	env := &Environment{
		ClientID:     clientID,
		Name:         name,
		Namespace:    client.Code + "-" + name,
		Domain:       strings.TrimSpace(domain),
		IsProduction: production,
		IsActive:     true,
	}
	if err := s.store.CreateEnvironment(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

func (s *Service) ListEnvironments(ctx context.Context, clientID string) ([]Environment, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.store.ListEnvironments(ctx, clientID)
}

func (s *Service) SetConfiguration(ctx context.Context, clientID, environment, key, value string, secret bool) (*Configuration, error) {
	clientID = strings.TrimSpace(clientID)
	key = strings.TrimSpace(key)
	if clientID == "" || key == "" {
		return nil, fmt.Errorf("%w: client_id and key are required", ErrInvalidInput)
	}
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	cfg := &Configuration{
		ClientID:    clientID,
		Environment: strings.TrimSpace(strings.ToLower(environment)),
		Key:         key,
		Value:       value,
		IsSecret:    secret,
	}
	if err := s.store.SetConfiguration(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Service) ListConfigurations(ctx context.Context, clientID string) ([]Configuration, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	return s.store.ListConfigurations(ctx, clientID)
}
