// Package workflow renders the GitHub Actions pipelines that operate a
// client's infrastructure. Files land under <repo>/.github/workflows/ and
// are committed through the normal change-request flow, not pushed directly.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/forgeerp/forgeerp/internal/registry"
	"github.com/forgeerp/forgeerp/internal/tenant"
)

// disasterRecoveryModule gates the disaster-recovery pipeline: it only makes
// sense for clients running on infrastructure this module manages.
const disasterRecoveryModule = "hetzner"

// ClientDirectory resolves the client a pipeline set is generated for;
// satisfied by tenant.Service.
type ClientDirectory interface {
	GetClient(ctx context.Context, id string) (*tenant.Client, error)
}

// ModuleLister reports which modules are effective for a client; satisfied
// by registry.Service.
type ModuleLister interface {
	ListEffective(ctx context.Context, clientID string) ([]registry.Module, error)
}

// Generator writes per-client workflow files into the infrastructure repo.
type Generator struct {
	repoDir string
	clients ClientDirectory
	modules ModuleLister
}

func NewGenerator(repoDir string, clients ClientDirectory, modules ModuleLister) (*Generator, error) {
	if repoDir == "" || clients == nil || modules == nil {
		return nil, errors.New("workflow: repo dir, client directory and module lister are required")
	}
	return &Generator{repoDir: repoDir, clients: clients, modules: modules}, nil
}

type document struct {
	Name string         `yaml:"name"`
	On   map[string]any `yaml:"on"`
	Jobs map[string]job `yaml:"jobs"`
}

type job struct {
	RunsOn string `yaml:"runs-on"`
	Steps  []step `yaml:"steps"`
}

type step struct {
	Name string            `yaml:"name,omitempty"`
	Uses string            `yaml:"uses,omitempty"`
	Run  string            `yaml:"run,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"`
}

// Generate renders the workflow set for one client and returns the file
// names written. The disaster-recovery pipeline is emitted only when the
// hetzner module is effective for the client.
func (g *Generator) Generate(ctx context.Context, clientID string) ([]string, error) {
	client, err := g.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	modules, err := g.modules.ListEffective(ctx, clientID)
	if err != nil {
		return nil, err
	}

	docs := map[string]document{
		"setup-client.yml":      setupClient(client),
		"deploy-client.yml":     deployClient(client),
		"diagnose-services.yml": diagnoseServices(client),
		"fix-common-issues.yml": fixCommonIssues(client),
	}
	for _, m := range modules {
		if m.Name == disasterRecoveryModule {
			docs["disaster-recovery.yml"] = disasterRecovery(client)
			break
		}
	}

	dir := filepath.Join(g.repoDir, ".github", "workflows")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(docs))
	for name, doc := range docs {
		raw, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("workflow: render %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func dispatchOn(inputs map[string]any) map[string]any {
	return map[string]any{"workflow_dispatch": map[string]any{"inputs": inputs}}
}

func environmentInput() map[string]any {
	return map[string]any{
		"environment": map[string]any{
			"description": "Target environment",
			"required":    true,
			"type":        "choice",
			"options":     []string{"dev", "hml", "prod"},
		},
	}
}

func clientEnv(c *tenant.Client) map[string]string {
	return map[string]string{
		"CLIENT_CODE": c.Code,
		"NAMESPACE":   c.NamespacePrefix + "-${{ inputs.environment }}",
	}
}

func checkout() step {
	return step{Name: "Checkout", Uses: "actions/checkout@v4"}
}

func setupClient(c *tenant.Client) document {
	return document{
		Name: "Setup " + c.Name,
		On:   dispatchOn(environmentInput()),
		Jobs: map[string]job{
			"setup": {
				RunsOn: "ubuntu-latest",
				Steps: []step{
					checkout(),
					{Name: "Provision namespace", Run: "./scripts/setup-client.sh", Env: clientEnv(c)},
				},
			},
		},
	}
}

func deployClient(c *tenant.Client) document {
	return document{
		Name: "Deploy " + c.Name,
		On:   dispatchOn(environmentInput()),
		Jobs: map[string]job{
			"deploy": {
				RunsOn: "ubuntu-latest",
				Steps: []step{
					checkout(),
					{Name: "Deploy services", Run: "./scripts/deploy-client.sh", Env: clientEnv(c)},
					{Name: "Smoke check", Run: "./scripts/smoke-check.sh", Env: clientEnv(c)},
				},
			},
		},
	}
}

func diagnoseServices(c *tenant.Client) document {
	return document{
		Name: "Diagnose " + c.Name,
		On:   dispatchOn(environmentInput()),
		Jobs: map[string]job{
			"diagnose": {
				RunsOn: "ubuntu-latest",
				Steps: []step{
					checkout(),
					{Name: "Collect diagnostics", Run: "./scripts/diagnose-services.sh", Env: clientEnv(c)},
				},
			},
		},
	}
}

func fixCommonIssues(c *tenant.Client) document {
	return document{
		Name: "Fix common issues for " + c.Name,
		On:   dispatchOn(environmentInput()),
		Jobs: map[string]job{
			"fix": {
				RunsOn: "ubuntu-latest",
				Steps: []step{
					checkout(),
					{Name: "Apply known fixes", Run: "./scripts/fix-common-issues.sh", Env: clientEnv(c)},
				},
			},
		},
	}
}

func disasterRecovery(c *tenant.Client) document {
	inputs := environmentInput()
	inputs["confirm"] = map[string]any{
		"description": "Type the client code to confirm",
		"required":    true,
		"type":        "string",
	}
	return document{
		Name: "Disaster recovery for " + c.Name,
		On:   dispatchOn(inputs),
		Jobs: map[string]job{
			"recover": {
				RunsOn: "ubuntu-latest",
				Steps: []step{
					checkout(),
					{
						Name: "Verify confirmation",
						Run:  `test "${{ inputs.confirm }}" = "$CLIENT_CODE"`,
						Env:  clientEnv(c),
					},
					{Name: "Restore infrastructure", Run: "./scripts/disaster-recovery.sh", Env: clientEnv(c)},
				},
			},
		},
	}
}
