// Package authz resolves item-level permissions against the control
// plane's workload-control API. Results are never cached: every check
// re-queries the authority, trading latency for freshness of authorization
// decisions.
package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fabrikam/fabric-workload/auth"
	"github.com/fabrikam/fabric-workload/broker"
	"github.com/fabrikam/fabric-workload/config"
	"github.com/fabrikam/fabric-workload/internal/httpclient"
)

// Resolver checks a caller's permissions on a single item. Safe for
// concurrent use.
type Resolver struct {
	broker  *broker.Broker
	httpc   *httpclient.Client
	baseURL string
	scopes  []string
	log     *slog.Logger
}

func New(b *broker.Broker, httpc *httpclient.Client, cfg *config.Config, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		broker:  b,
		httpc:   httpc,
		baseURL: cfg.WorkloadControlBaseURL(),
		scopes:  cfg.FabricDefaultScopes(),
		log:     log,
	}
}

type resolvePermissionsResponse struct {
	Permissions []string `json:"permissions"`
}

// ValidatePermissions verifies that the caller holds every entry of
// requiredPermissions on the item. Permission names compare
// case-insensitively; no other normalization is applied. A nil return
// means all required permissions are present.
func (r *Resolver) ValidatePermissions(ctx context.Context, authCtx *auth.AuthorizationContext, workspaceID, itemID uuid.UUID, requiredPermissions []string) error {
	token, err := r.broker.CompositeToken(ctx, authCtx, r.scopes)
	if err != nil {
		return err
	}

	granted, err := r.resolveItemPermissions(ctx, token, workspaceID, itemID)
	if err != nil {
		return err
	}
	if len(granted) == 0 {
		return fmt.Errorf("%w: no permissions resolved for item %s", auth.ErrPermissionDenied, itemID)
	}

	var missing []string
	for _, required := range requiredPermissions {
		if !containsFold(granted, required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		r.log.ErrorContext(ctx, "insufficient item permissions",
			"tenant_id", authCtx.TenantObjectID,
			"object_id", authCtx.ObjectID(),
			"workspace_id", workspaceID,
			"item_id", itemID,
			"required", requiredPermissions,
			"granted", granted,
		)
		return fmt.Errorf("%w: missing permissions [%s]", auth.ErrPermissionDenied, strings.Join(missing, ", "))
	}
	return nil
}

func (r *Resolver) resolveItemPermissions(ctx context.Context, token string, workspaceID, itemID uuid.UUID) ([]string, error) {
	url := fmt.Sprintf("%s/workspaces/%s/items/%s/resolvepermissions", r.baseURL, workspaceID, itemID)

	resp, err := r.httpc.Get(ctx, url, token)
	if err != nil {
		return nil, fmt.Errorf("%w: resolvepermissions call failed: %v", auth.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: throttled by resolvepermissions API", auth.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: access denied by resolvepermissions API (%d)", auth.ErrPermissionDenied, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: resolvepermissions API returned %d", auth.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var body resolvePermissionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: undecodable resolvepermissions response: %v", auth.ErrUpstreamUnavailable, err)
	}
	return body.Permissions, nil
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
