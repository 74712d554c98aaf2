// Package config exposes the workload's runtime configuration. Values are
// loaded from the environment via envdecode struct tags; endpoint defaults
// target the public Azure AD and Fabric instances and only need overriding
// for sovereign clouds or tests.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the configuration provider consumed by the auth core. Treat a
// loaded Config as immutable.
type Config struct {
	// PublisherTenantID is the Entra ID tenant the workload is published
	// from. App tokens must originate from this tenant.
	PublisherTenantID string `env:"WORKLOAD_PUBLISHER_TENANT_ID,required"`
	// ClientID and ClientSecret identify the workload's confidential
	// client application.
	ClientID     string `env:"WORKLOAD_CLIENT_ID,required"`
	ClientSecret string `env:"WORKLOAD_CLIENT_SECRET,required"`
	// Audience is the expected audience of v1.0 tokens. v2.0 tokens use
	// ClientID as audience instead.
	Audience string `env:"WORKLOAD_AUDIENCE,required"`

	AADInstanceURL          string `env:"AAD_INSTANCE_URL,default=https://login.microsoftonline.com"`
	OpenIDMetadataEndpoint  string `env:"OPENID_METADATA_ENDPOINT"`
	FabricAPIBaseURL        string `env:"FABRIC_API_BASE_URL,default=https://api.fabric.microsoft.com"`
	FabricBackendResourceID string `env:"FABRIC_BACKEND_RESOURCE_ID,default=https://analysis.windows.net/powerbi/api"`

	// First-party application ids allowed to present app tokens.
	FabricBackendAppID            string `env:"FABRIC_BACKEND_APP_ID,default=00000009-0000-0000-c000-000000000000"`
	FabricClientForWorkloadsAppID string `env:"FABRIC_CLIENT_FOR_WORKLOADS_APP_ID,default=d2450708-699c-41e3-8077-b0c8341509aa"`

	OpenIDCacheTTL     time.Duration `env:"OPENID_CACHE_TTL,default=1h"`
	OpenIDFetchTimeout time.Duration `env:"OPENID_FETCH_TIMEOUT,default=5s"`
}

// Load populates a Config from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDerivedDefaults()
	return &cfg, nil
}

func (c *Config) applyDerivedDefaults() {
	if c.OpenIDMetadataEndpoint == "" {
		c.OpenIDMetadataEndpoint = c.AADInstanceURL + "/common/.well-known/openid-configuration"
	}
}

// Authority returns the AAD authority URL for a tenant.
func (c *Config) Authority(tenantID string) string {
	return c.AADInstanceURL + "/" + tenantID
}

// PublisherAuthority is the authority of the publisher tenant, used for
// service-to-service token acquisition.
func (c *Config) PublisherAuthority() string {
	return c.Authority(c.PublisherTenantID)
}

// WorkloadControlBaseURL is the base of the control-plane workload-control
// API (permission resolution lives under it).
func (c *Config) WorkloadControlBaseURL() string {
	return c.FabricAPIBaseURL + "/v1/workload-control"
}

// FabricDefaultScopes is the scope set for tokens addressed to the Fabric
// backend resource.
func (c *Config) FabricDefaultScopes() []string {
	return []string{c.FabricBackendResourceID + "/.default"}
}

// FirstPartyAppIDs lists the application ids an app token may carry.
func (c *Config) FirstPartyAppIDs() []string {
	return []string{c.FabricBackendAppID, c.FabricClientForWorkloadsAppID}
}
