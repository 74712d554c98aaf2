// Package broker acquires outbound credentials for the workload: delegated
// tokens via the OAuth2 on-behalf-of flow, app tokens via the client
// credentials flow, and composite SubjectAndAppToken headers combining the
// two.
//
// One confidential-client handle is cached per tenant authority for the
// process lifetime; the set is bounded by tenant cardinality. No token
// acquisition is retried here: provider errors are classified and
// surfaced, and the consent-required class carries the challenge the HTTP
// boundary turns into a WWW-Authenticate response.
package broker

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/fabrikam/fabric-workload/auth"
	"github.com/fabrikam/fabric-workload/config"
	"github.com/fabrikam/fabric-workload/internal/dualtoken"
	"github.com/fabrikam/fabric-workload/internal/httpclient"
)

// Broker caches per-tenant confidential clients and performs token
// acquisition. Safe for concurrent use.
type Broker struct {
	cfg   *config.Config
	httpc *httpclient.Client
	log   *slog.Logger

	mu      sync.RWMutex
	clients map[string]*TenantClient
}

func New(cfg *config.Config, httpc *httpclient.Client, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		cfg:     cfg,
		httpc:   httpc,
		log:     log,
		clients: make(map[string]*TenantClient),
	}
}

// GetConfidentialClient returns the confidential client for a tenant,
// constructing it on first use. Exactly one client is ever constructed per
// distinct authority regardless of concurrent callers.
func (b *Broker) GetConfidentialClient(tenantID string) *TenantClient {
	authority := b.cfg.Authority(tenantID)

	b.mu.RLock()
	client := b.clients[authority]
	b.mu.RUnlock()
	if client != nil {
		return client
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if client := b.clients[authority]; client != nil {
		return client
	}
	client = newTenantClient(authority, b.cfg.ClientID, b.cfg.ClientSecret, b.httpc)
	b.clients[authority] = client
	b.log.Info("confidential client created", "authority", authority)
	return client
}

// ExchangeOnBehalfOf exchanges a validated subject token for an access
// token scoped to a downstream resource, using the tenant's authority.
func (b *Broker) ExchangeOnBehalfOf(ctx context.Context, subjectToken, tenantID string, scopes []string) (string, error) {
	if subjectToken == "" {
		return "", errMissingSubjectForOBO
	}
	if tenantID == "" {
		return "", errMissingTenantForOBO
	}
	client := b.GetConfidentialClient(tenantID)
	token, err := client.AcquireOnBehalfOf(ctx, subjectToken, scopes)
	if err != nil {
		return "", err
	}
	b.log.DebugContext(ctx, "on-behalf-of exchange succeeded", "tenant_id", tenantID)
	return token, nil
}

// ServiceToServiceToken acquires an app token from the publisher tenant via
// the client credentials flow.
func (b *Broker) ServiceToServiceToken(ctx context.Context, scopes []string) (string, error) {
	cc := clientcredentials.Config{
		ClientID:     b.cfg.ClientID,
		ClientSecret: b.cfg.ClientSecret,
		TokenURL:     b.cfg.PublisherAuthority() + "/oauth2/v2.0/token",
		Scopes:       scopes,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpc.Underlying())
	token, err := cc.Token(ctx)
	if err != nil {
		return "", classifyRetrieveError(err)
	}
	if token.AccessToken == "" {
		return "", auth.ErrAccessTokenMissing
	}
	return token.AccessToken, nil
}

// CompositeToken builds the SubjectAndAppToken header used on calls back to
// the control plane: the subject slot carries the on-behalf-of token for
// the caller, the app slot carries the workload's own service token.
func (b *Broker) CompositeToken(ctx context.Context, authCtx *auth.AuthorizationContext, scopes []string) (string, error) {
	if !authCtx.HasSubjectContext() {
		return "", errMissingSubjectForOBO
	}
	if authCtx.TenantObjectID == "" {
		return "", errMissingTenantForOBO
	}

	oboToken, err := b.ExchangeOnBehalfOf(ctx, authCtx.OriginalSubjectToken, authCtx.TenantObjectID, scopes)
	if err != nil {
		return "", err
	}
	s2sToken, err := b.ServiceToServiceToken(ctx, b.cfg.FabricDefaultScopes())
	if err != nil {
		return "", err
	}
	return dualtoken.Generate(oboToken, s2sToken), nil
}
