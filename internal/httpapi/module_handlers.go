package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forgeerp/forgeerp/internal/audit"
	"github.com/forgeerp/forgeerp/internal/auth"
	"github.com/forgeerp/forgeerp/internal/registry"
)

type createModuleRequest struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Depends     []string `json:"depends"`
}

func (a *API) createModule(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionModuleCreate, auth.Scope{}) {
		return
	}
	var req createModuleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	mod, err := a.modules.CreateModule(r.Context(), req.Name, req.DisplayName, req.Description, req.Category, req.Depends)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "module.created", map[string]any{"module": mod.Name})
	writeJSON(w, http.StatusCreated, mod)
}

type updateModuleRequest struct {
	DisplayName *string   `json:"display_name"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Depends     *[]string `json:"depends"`
	Active      *bool     `json:"active"`
}

func (a *API) updateModule(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionModuleCreate, auth.Scope{}) {
		return
	}
	var req updateModuleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	mod, err := a.modules.UpdateModule(r.Context(), chi.URLParam(r, "moduleID"), registry.ModuleUpdate{
		DisplayName: req.DisplayName,
		Description: req.Description,
		Category:    req.Category,
		Depends:     req.Depends,
		IsActive:    req.Active,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "module.updated", map[string]any{"module": mod.Name})
	writeJSON(w, http.StatusOK, mod)
}

func (a *API) listModules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	modules, err := a.modules.ListModules(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": modules})
}

func (a *API) getModule(w http.ResponseWriter, r *http.Request) {
	mod, err := a.modules.GetModule(r.Context(), chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

func (a *API) syncModules(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionModuleCreate, auth.Scope{}) {
		return
	}
	added, err := a.modules.SyncAvailable(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added})
}

func (a *API) listClientModules(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	installed, err := a.modules.ListInstalled(r.Context(), clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	effective, err := a.modules.ListEffective(r.Context(), clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"installations": installed,
		"effective":     effective,
	})
}

type installModuleRequest struct {
	Config map[string]any `json:"config"`
}

func (a *API) installModule(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	moduleID := chi.URLParam(r, "moduleID")
	if !a.authorize(w, r, auth.ActionModuleInstall, auth.Scope{ClientID: clientID}) {
		return
	}
	req := installModuleRequest{}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}
	inst, err := a.modules.Install(r.Context(), clientID, moduleID, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "module.installed", map[string]any{
		"client_id": clientID,
		"module_id": moduleID,
	})
	writeJSON(w, http.StatusCreated, inst)
}

func (a *API) uninstallModule(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	moduleID := chi.URLParam(r, "moduleID")
	if !a.authorize(w, r, auth.ActionModuleUninstall, auth.Scope{ClientID: clientID}) {
		return
	}
	if err := a.modules.Uninstall(r.Context(), clientID, moduleID); err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "module.uninstalled", map[string]any{
		"client_id": clientID,
		"module_id": moduleID,
	})
	w.WriteHeader(http.StatusNoContent)
}
