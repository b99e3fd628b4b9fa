package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgeerp/forgeerp/internal/auth"
	"github.com/forgeerp/forgeerp/internal/change"
	"github.com/forgeerp/forgeerp/internal/change/github"
	"github.com/forgeerp/forgeerp/internal/config"
	"github.com/forgeerp/forgeerp/internal/httpapi"
	"github.com/forgeerp/forgeerp/internal/obs"
	"github.com/forgeerp/forgeerp/internal/registry"
	"github.com/forgeerp/forgeerp/internal/store/pg"
	"github.com/forgeerp/forgeerp/internal/tenant"
	"github.com/forgeerp/forgeerp/internal/workflow"
)

var version = "0.3.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		userStore     auth.UserStore
		grantStore    auth.GrantStore
		tenantStore   tenant.Store
		registryStore registry.Store
		changeStore   change.Store
		ready         func(ctx context.Context) error
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		authStore := store.Auth()
		userStore, grantStore = authStore, authStore
		tenantStore = store.Tenants()
		registryStore = store.Registry()
		changeStore = store.Changes()
		ready = store.Ping
	} else {
		log.Printf("FORGEERP_PG_DSN not set, using in-memory stores")
		memAuth := auth.NewMemoryStore()
		userStore, grantStore = memAuth, memAuth
		tenantStore = tenant.NewMemoryStore()
		registryStore = registry.NewMemoryStore()
		changeStore = change.NewMemoryStore()
	}

	authSvc, err := auth.NewService(userStore, grantStore, []byte(cfg.AuthSecret),
		auth.WithTokenTTL(cfg.TokenTTL()),
		auth.WithLockoutPolicy(cfg.LockoutThreshold, cfg.LockoutDuration()),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	tenants, err := tenant.NewService(tenantStore)
	if err != nil {
		log.Fatalf("tenant service: %v", err)
	}
	modules, err := registry.NewService(registryStore, tenants,
		registry.WithAddonsDir(cfg.AddonsDir),
	)
	if err != nil {
		log.Fatalf("registry service: %v", err)
	}
	reviews := github.NewClient(cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubToken,
		github.WithBaseURL(cfg.GitHubBaseURL),
		github.WithTimeout(cfg.ExternalTimeout()),
	)
	changes, err := change.NewService(changeStore, reviews,
		change.WithMinApprovals(cfg.MinApprovals),
	)
	if err != nil {
		log.Fatalf("change service: %v", err)
	}
	gate, err := change.NewGate(changes, authSvc)
	if err != nil {
		log.Fatalf("gate: %v", err)
	}
	workflows, err := workflow.NewGenerator(cfg.RepoDir, tenants, modules)
	if err != nil {
		log.Fatalf("workflow generator: %v", err)
	}

	api, err := httpapi.New(httpapi.Deps{
		Auth:          authSvc,
		Tenants:       tenants,
		Modules:       modules,
		Changes:       changes,
		Gate:          gate,
		Workflows:     workflows,
		Ready:         ready,
		Version:       version,
		RatePerSecond: cfg.RateLimitPerSecond,
		RateBurst:     cfg.RateLimitBurst,
	})
	if err != nil {
		log.Fatalf("api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting forgeerp-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
