package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WORKLOAD_PUBLISHER_TENANT_ID", "publisher-tenant")
	t.Setenv("WORKLOAD_CLIENT_ID", "client-id")
	t.Setenv("WORKLOAD_CLIENT_SECRET", "client-secret")
	t.Setenv("WORKLOAD_AUDIENCE", "api://workload")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AADInstanceURL != "https://login.microsoftonline.com" {
		t.Fatalf("instance url: got %q", cfg.AADInstanceURL)
	}
	if want := "https://login.microsoftonline.com/common/.well-known/openid-configuration"; cfg.OpenIDMetadataEndpoint != want {
		t.Fatalf("metadata endpoint: got %q, want %q", cfg.OpenIDMetadataEndpoint, want)
	}
	if cfg.OpenIDCacheTTL != time.Hour {
		t.Fatalf("cache ttl: got %v", cfg.OpenIDCacheTTL)
	}
	if cfg.OpenIDFetchTimeout != 5*time.Second {
		t.Fatalf("fetch timeout: got %v", cfg.OpenIDFetchTimeout)
	}

	if got := cfg.Authority("tenant-x"); got != "https://login.microsoftonline.com/tenant-x" {
		t.Fatalf("authority: got %q", got)
	}
	if got := cfg.PublisherAuthority(); got != "https://login.microsoftonline.com/publisher-tenant" {
		t.Fatalf("publisher authority: got %q", got)
	}
	if got := cfg.WorkloadControlBaseURL(); got != "https://api.fabric.microsoft.com/v1/workload-control" {
		t.Fatalf("workload control base: got %q", got)
	}
	scopes := cfg.FabricDefaultScopes()
	if len(scopes) != 1 || scopes[0] != "https://analysis.windows.net/powerbi/api/.default" {
		t.Fatalf("default scopes: got %v", scopes)
	}
	ids := cfg.FirstPartyAppIDs()
	if len(ids) != 2 || ids[0] != "00000009-0000-0000-c000-000000000000" || ids[1] != "d2450708-699c-41e3-8077-b0c8341509aa" {
		t.Fatalf("first party app ids: got %v", ids)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AAD_INSTANCE_URL", "https://login.sovereign.example")
	t.Setenv("OPENID_METADATA_ENDPOINT", "https://login.sovereign.example/custom/metadata")
	t.Setenv("OPENID_CACHE_TTL", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenIDMetadataEndpoint != "https://login.sovereign.example/custom/metadata" {
		t.Fatalf("metadata endpoint override lost: %q", cfg.OpenIDMetadataEndpoint)
	}
	if cfg.OpenIDCacheTTL != 15*time.Minute {
		t.Fatalf("cache ttl: got %v", cfg.OpenIDCacheTTL)
	}
	if got := cfg.Authority("tenant-x"); got != "https://login.sovereign.example/tenant-x" {
		t.Fatalf("authority: got %q", got)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKLOAD_CLIENT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a missing required variable")
	}
}
