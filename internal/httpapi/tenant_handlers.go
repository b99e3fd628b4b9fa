package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forgeerp/forgeerp/internal/audit"
	"github.com/forgeerp/forgeerp/internal/auth"
	"github.com/forgeerp/forgeerp/internal/tenant"
)

type createClientRequest struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Email  string `json:"email"`
	Domain string `json:"domain"`
}

func (a *API) createClient(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionClientCreate, auth.Scope{}) {
		return
	}
	var req createClientRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	client, err := a.tenants.CreateClient(r.Context(), req.Name, req.Code, req.Email, req.Domain)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "client.created", map[string]any{
		"client_id": client.ID,
		"code":      client.Code,
	})
	writeJSON(w, http.StatusCreated, client)
}

func (a *API) listClients(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	clients, err := a.tenants.ListClients(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (a *API) getClient(w http.ResponseWriter, r *http.Request) {
	client, err := a.tenants.GetClient(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

type updateClientRequest struct {
	Name                *string `json:"name"`
	Email               *string `json:"email"`
	Domain              *string `json:"domain"`
	NamespacePrefix     *string `json:"namespace_prefix"`
	OnboardingCompleted *bool   `json:"onboarding_completed"`
}

func (a *API) updateClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if !a.authorize(w, r, auth.ActionClientModify, auth.Scope{ClientID: clientID}) {
		return
	}
	var req updateClientRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	client, err := a.tenants.UpdateClient(r.Context(), clientID, tenant.ClientUpdate{
		Name:                req.Name,
		Email:               req.Email,
		Domain:              req.Domain,
		NamespacePrefix:     req.NamespacePrefix,
		OnboardingCompleted: req.OnboardingCompleted,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "client.updated", map[string]any{"client_id": clientID})
	writeJSON(w, http.StatusOK, client)
}

func (a *API) deactivateClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if !a.authorize(w, r, auth.ActionClientDelete, auth.Scope{ClientID: clientID}) {
		return
	}
	if err := a.tenants.DeactivateClient(r.Context(), clientID); err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "client.deactivated", map[string]any{"client_id": clientID})
	w.WriteHeader(http.StatusNoContent)
}

type createEnvironmentRequest struct {
	Name       string `json:"name"`
	Domain     string `json:"domain"`
	Production bool   `json:"production"`
}

func (a *API) createEnvironment(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if !a.authorize(w, r, auth.ActionClientModify, auth.Scope{ClientID: clientID}) {
		return
	}
	var req createEnvironmentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	env, err := a.tenants.CreateEnvironment(r.Context(), clientID, req.Name, req.Domain, req.Production)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

func (a *API) listEnvironments(w http.ResponseWriter, r *http.Request) {
	envs, err := a.tenants.ListEnvironments(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"environments": envs})
}

type setConfigurationRequest struct {
	Environment string `json:"environment"`
	Key         string `json:"key"`
	Value       string `json:"value"`
	Secret      bool   `json:"secret"`
}

func (a *API) setConfiguration(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if !a.authorize(w, r, auth.ActionConfigChange, auth.Scope{ClientID: clientID}) {
		return
	}
	var req setConfigurationRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	cfg, err := a.tenants.SetConfiguration(r.Context(), clientID, req.Environment, req.Key, req.Value, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "configuration.set", map[string]any{
		"client_id": clientID,
		"key":       req.Key,
		"secret":    req.Secret,
	})
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) listConfigurations(w http.ResponseWriter, r *http.Request) {
	configs, err := a.tenants.ListConfigurations(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	// Secret values never leave the service.
	for i := range configs {
		if configs[i].IsSecret {
			configs[i].Value = ""
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"configurations": configs})
}
