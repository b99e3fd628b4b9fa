// Package httpapi is the JSON transport over the domain services.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forgeerp/forgeerp/internal/auth"
	"github.com/forgeerp/forgeerp/internal/change"
	"github.com/forgeerp/forgeerp/internal/obs"
	"github.com/forgeerp/forgeerp/internal/registry"
	"github.com/forgeerp/forgeerp/internal/tenant"
	"github.com/forgeerp/forgeerp/internal/workflow"
)

const maxBodyBytes = 1 << 20

// Deps carries the wired services the API exposes.
type Deps struct {
	Auth      *auth.Service
	Tenants   *tenant.Service
	Modules   *registry.Service
	Changes   *change.Service
	Gate      *change.Gate
	Workflows *workflow.Generator

	// Ready is the readiness probe, typically a database ping. Nil means
	// always ready.
	Ready   func(ctx context.Context) error
	Version string

	RatePerSecond int
	RateBurst     int
}

type API struct {
	auth      *auth.Service
	tenants   *tenant.Service
	modules   *registry.Service
	changes   *change.Service
	gate      *change.Gate
	workflows *workflow.Generator

	ready   func(ctx context.Context) error
	version string

	ratePerSecond int
	rateBurst     int
}

func New(deps Deps) (*API, error) {
	if deps.Auth == nil || deps.Tenants == nil || deps.Modules == nil ||
		deps.Changes == nil || deps.Gate == nil || deps.Workflows == nil {
		return nil, errors.New("httpapi: all services are required")
	}
	if deps.RatePerSecond <= 0 {
		deps.RatePerSecond = 50
	}
	if deps.RateBurst <= 0 {
		deps.RateBurst = 100
	}
	return &API{
		auth:          deps.Auth,
		tenants:       deps.Tenants,
		modules:       deps.Modules,
		changes:       deps.Changes,
		gate:          deps.Gate,
		workflows:     deps.Workflows,
		ready:         deps.Ready,
		version:       deps.Version,
		ratePerSecond: deps.RatePerSecond,
		rateBurst:     deps.RateBurst,
	}, nil
}

// Handler assembles the full middleware chain and route table.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(Logging)
	r.Use(func(next http.Handler) http.Handler {
		return RateLimit(next, a.ratePerSecond, a.rateBurst)
	})
	r.Use(func(next http.Handler) http.Handler {
		return MaxBodyBytes(next, maxBodyBytes)
	})

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Post("/v1/auth/login", a.login)

	r.Group(func(pr chi.Router) {
		pr.Use(a.Authenticate)

		pr.Get("/v1/auth/me", a.me)

		pr.Route("/v1/clients", func(cr chi.Router) {
			cr.Get("/", a.listClients)
			cr.Post("/", a.createClient)
			cr.Route("/{clientID}", func(one chi.Router) {
				one.Get("/", a.getClient)
				one.Patch("/", a.updateClient)
				one.Delete("/", a.deactivateClient)

				one.Get("/environments", a.listEnvironments)
				one.Post("/environments", a.createEnvironment)

				one.Get("/configurations", a.listConfigurations)
				one.Put("/configurations", a.setConfiguration)

				one.Get("/modules", a.listClientModules)
				one.Post("/modules/{moduleID}/install", a.installModule)
				one.Delete("/modules/{moduleID}", a.uninstallModule)

				one.Post("/workflows/generate", a.generateWorkflows)
			})
		})

		pr.Route("/v1/modules", func(mr chi.Router) {
			mr.Get("/", a.listModules)
			mr.Post("/", a.createModule)
			mr.Post("/sync", a.syncModules)
			mr.Get("/{moduleID}", a.getModule)
			mr.Patch("/{moduleID}", a.updateModule)
		})

		pr.Route("/v1/changes", func(ch chi.Router) {
			ch.Get("/", a.listChanges)
			ch.Post("/", a.fileChange)
			ch.Post("/reconcile", a.reconcileChanges)
			ch.Get("/{number}/status", a.changeStatus)
		})

		pr.Post("/v1/actions/authorize", a.authorizeAction)
	})

	return obs.Instrument(r)
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "forgeerp-api",
		"version": a.version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
