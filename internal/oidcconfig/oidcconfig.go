// Package oidcconfig fetches and caches the identity provider's OpenID
// Connect discovery document and signing-key set (JWKS).
//
// The cache is demand-driven: there is no background refresh task. A
// snapshot older than the TTL is refreshed by the first caller to notice,
// under a mutex so concurrent callers trigger exactly one upstream fetch.
// When a refresh fails and a previous snapshot exists, the stale snapshot
// is served with a warning; availability wins over freshness for signing
// keys, since a stale key set at worst rejects freshly rotated tokens.
package oidcconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fabrikam/fabric-workload/internal/httpclient"
)

const (
	defaultTTL          = time.Hour
	defaultFetchTimeout = 5 * time.Second
)

// Configuration is one immutable discovery snapshot. It is shared across
// requests and must not be mutated after publication.
type Configuration struct {
	// IssuerTemplate is the issuer exactly as advertised by the metadata
	// endpoint. For multi-tenant authorities it contains a {tenantid}
	// placeholder that the token validator substitutes per token.
	IssuerTemplate string

	fetchedAt time.Time
	keys      keyfunc.Keyfunc
}

// FetchedAt reports when this snapshot was retrieved.
func (c *Configuration) FetchedAt() time.Time { return c.fetchedAt }

// Keyfunc resolves the verification key for a token from this snapshot's
// key set. It satisfies the golang-jwt keyfunc contract.
func (c *Configuration) Keyfunc(token *jwt.Token) (any, error) {
	return c.keys.Keyfunc(token)
}

// HasSigningKey reports whether the key set contains a key with the given
// key id. Absence is legitimate during key rotation.
func (c *Configuration) HasSigningKey(ctx context.Context, kid string) bool {
	if kid == "" {
		return false
	}
	_, err := c.keys.Storage().KeyRead(ctx, kid)
	return err == nil
}

// Manager owns the cached Configuration. Construct one per process and
// share it; it is safe for concurrent use.
type Manager struct {
	metadataEndpoint string
	ttl              time.Duration
	fetchTimeout     time.Duration
	httpc            *httpclient.Client
	log              *slog.Logger

	mu      sync.Mutex // held only while refreshing
	current atomic.Pointer[Configuration]
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the snapshot lifetime (default 1h).
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithFetchTimeout bounds each discovery/JWKS fetch (default 5s). The
// caller's context deadline still applies if sooner.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Manager) { m.fetchTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func NewManager(httpc *httpclient.Client, metadataEndpoint string, opts ...Option) *Manager {
	m := &Manager{
		metadataEndpoint: metadataEndpoint,
		ttl:              defaultTTL,
		fetchTimeout:     defaultFetchTimeout,
		httpc:            httpc,
		log:              slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configuration returns the current snapshot, refreshing it first when the
// TTL has lapsed. Readers inside the TTL window never take the lock.
func (m *Manager) Configuration(ctx context.Context) (*Configuration, error) {
	if cfg := m.current.Load(); cfg != nil && time.Since(cfg.fetchedAt) < m.ttl {
		return cfg, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while we waited on the lock.
	if cfg := m.current.Load(); cfg != nil && time.Since(cfg.fetchedAt) < m.ttl {
		return cfg, nil
	}

	cfg, err := m.fetch(ctx)
	if err != nil {
		if stale := m.current.Load(); stale != nil {
			m.log.Warn("serving stale OpenID Connect configuration", "endpoint", m.metadataEndpoint, "err", err)
			return stale, nil
		}
		return nil, err
	}
	m.current.Store(cfg)
	m.log.Info("OpenID Connect configuration refreshed", "endpoint", m.metadataEndpoint)
	return cfg, nil
}

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JwksURI string `json:"jwks_uri"`
}

func (m *Manager) fetch(ctx context.Context) (*Configuration, error) {
	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	var doc discoveryDocument
	if err := m.getJSON(ctx, m.metadataEndpoint, &doc); err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	if doc.Issuer == "" {
		return nil, fmt.Errorf("oidc discovery: metadata at %s has no issuer", m.metadataEndpoint)
	}
	if doc.JwksURI == "" {
		return nil, fmt.Errorf("oidc discovery: metadata at %s has no jwks_uri", m.metadataEndpoint)
	}

	rawJWKS, err := m.getRaw(ctx, doc.JwksURI)
	if err != nil {
		return nil, fmt.Errorf("jwks fetch failed: %w", err)
	}
	kf, err := keyfunc.NewJWKSetJSON(rawJWKS)
	if err != nil {
		return nil, fmt.Errorf("jwks parse failed: %w", err)
	}

	return &Configuration{
		IssuerTemplate: doc.Issuer,
		fetchedAt:      time.Now(),
		keys:           kf,
	}, nil
}

func (m *Manager) getJSON(ctx context.Context, url string, out any) error {
	raw, err := m.getRaw(ctx, url)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (m *Manager) getRaw(ctx context.Context, url string) (json.RawMessage, error) {
	resp, err := m.httpc.Get(ctx, url, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
