package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("FORGEERP_AUTH_SECRET", "test-secret")
	t.Setenv("FORGEERP_TOKEN_TTL_MINUTES", "5")
	t.Setenv("FORGEERP_GITHUB_OWNER", "acme")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected default addr: %s", cfg.HTTPAddr)
	}
	if cfg.TokenTTL() != 5*time.Minute {
		t.Fatalf("unexpected token TTL: %v", cfg.TokenTTL())
	}
	if cfg.GitHubOwner != "acme" {
		t.Fatalf("env override lost: %s", cfg.GitHubOwner)
	}
	if cfg.MinApprovals != 1 {
		t.Fatalf("unexpected min approvals: %d", cfg.MinApprovals)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("FORGEERP_AUTH_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without auth secret")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := defaults()
	cfg.AuthSecret = "s"
	cfg.MinApprovals = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero min approvals")
	}
}
