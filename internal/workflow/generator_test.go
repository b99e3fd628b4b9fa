package workflow

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/forgeerp/forgeerp/internal/registry"
	"github.com/forgeerp/forgeerp/internal/tenant"
)

func newTestGenerator(t *testing.T) (*Generator, *registry.Service, string, string) {
	t.Helper()
	repoDir := t.TempDir()
	tenants, err := tenant.NewService(tenant.NewMemoryStore())
	if err != nil {
		t.Fatalf("tenant.NewService: %v", err)
	}
	client, err := tenants.CreateClient(context.Background(), "Racco", "racco", "", "")
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	modules, err := registry.NewService(registry.NewMemoryStore(), tenants)
	if err != nil {
		t.Fatalf("registry.NewService: %v", err)
	}
	gen, err := NewGenerator(repoDir, tenants, modules)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return gen, modules, repoDir, client.ID
}

func TestGenerateBaseSet(t *testing.T) {
	gen, _, repoDir, clientID := newTestGenerator(t)

	names, err := gen.Generate(context.Background(), clientID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sort.Strings(names)
	want := []string{"deploy-client.yml", "diagnose-services.yml", "fix-common-issues.yml", "setup-client.yml"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	raw, err := os.ReadFile(filepath.Join(repoDir, ".github", "workflows", "deploy-client.yml"))
	if err != nil {
		t.Fatalf("read workflow: %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("generated workflow is not valid yaml: %v", err)
	}
	if doc["name"] != "Deploy Racco" {
		t.Fatalf("unexpected workflow name: %v", doc["name"])
	}
}

func TestDisasterRecoveryRequiresHetzner(t *testing.T) {
	gen, modules, repoDir, clientID := newTestGenerator(t)
	ctx := context.Background()
	drPath := filepath.Join(repoDir, ".github", "workflows", "disaster-recovery.yml")

	if _, err := gen.Generate(ctx, clientID); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := os.Stat(drPath); !os.IsNotExist(err) {
		t.Fatalf("disaster-recovery.yml emitted without the hetzner module")
	}

	mod, err := modules.CreateModule(ctx, "hetzner", "Hetzner", "", registry.CategoryAddon, nil)
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	if _, err := modules.Install(ctx, clientID, mod.ID, nil); err != nil {
		t.Fatalf("Install: %v", err)
	}

	names, err := gen.Generate(ctx, clientID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(names) != 5 {
		t.Fatalf("expected 5 workflows with hetzner effective, got %v", names)
	}
	if _, err := os.Stat(drPath); err != nil {
		t.Fatalf("disaster-recovery.yml missing: %v", err)
	}

	// Uninstalling hetzner stops emitting the pipeline on the next run.
	if err := modules.Uninstall(ctx, clientID, mod.ID); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	names, err = gen.Generate(ctx, clientID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(names) != 4 {
		t.Fatalf("expected 4 workflows after uninstall, got %v", names)
	}
}

func TestGenerateUnknownClient(t *testing.T) {
	gen, _, _, _ := newTestGenerator(t)
	if _, err := gen.Generate(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown client")
	}
}
