package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/forgeerp/forgeerp/internal/audit"
	"github.com/forgeerp/forgeerp/internal/auth"
	"github.com/forgeerp/forgeerp/internal/change"
)

type fileChangeRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	SourceRef string `json:"source_ref"`
	TargetRef string `json:"target_ref"`
	Kind      string `json:"kind"`
	Target    string `json:"target"`
	Payload   string `json:"payload"`
}

func (a *API) fileChange(w http.ResponseWriter, r *http.Request) {
	var req fileChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if !a.authorize(w, r, auth.ActionChangeFile, auth.Scope{ClientID: req.Target}) {
		return
	}
	filed, err := a.changes.File(r.Context(), change.FileParams{
		Title:     req.Title,
		Body:      req.Body,
		SourceRef: req.SourceRef,
		TargetRef: req.TargetRef,
		Kind:      change.Kind(req.Kind),
		Target:    req.Target,
		Payload:   req.Payload,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "change.filed", map[string]any{
		"number": filed.Number,
		"kind":   filed.Kind,
		"target": filed.Target,
	})
	writeJSON(w, http.StatusCreated, filed)
}

func (a *API) listChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := a.changes.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

// changeStatus reconciles before answering, so the caller always sees state
// no older than this request.
func (a *API) changeStatus(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		badRequest(w, "invalid change number")
		return
	}
	req, err := a.changes.Status(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) reconcileChanges(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionChangeFile, auth.Scope{}) {
		return
	}
	if err := a.changes.ReconcileOpen(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}

type authorizeActionRequest struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// authorizeAction runs the grave-action gate and reports the decision. It
// performs no side effects itself; callers consult it before acting.
func (a *API) authorizeAction(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req authorizeActionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	decision := a.gate.AuthorizeGraveAction(r.Context(), user, change.Kind(req.Kind), req.Target)
	_ = audit.LogEvent(r.Context(), "action.gate_decision", map[string]any{
		"kind":    req.Kind,
		"target":  req.Target,
		"allowed": decision.Allowed,
		"reason":  decision.Reason,
	})
	writeJSON(w, http.StatusOK, decision)
}

func (a *API) generateWorkflows(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if !a.authorize(w, r, auth.ActionWorkflowGenerate, auth.Scope{ClientID: clientID}) {
		return
	}
	names, err := a.workflows.Generate(r.Context(), clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "workflow.generated", map[string]any{
		"client_id": clientID,
		"files":     names,
	})
	writeJSON(w, http.StatusOK, map[string]any{"workflows": names})
}
