package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fabrikam/fabric-workload/config"
	"github.com/fabrikam/fabric-workload/internal/dualtoken"
	"github.com/fabrikam/fabric-workload/internal/logctx"
)

// Service authenticates inbound control-plane and data-plane calls. It is
// constructed once at the composition root and shared across requests.
type Service struct {
	validator          *Validator
	publisherTenantID  string
	firstPartyAppIDs   []string
	controlPlaneScopes []string
	log                *slog.Logger
}

func NewService(validator *Validator, cfg *config.Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		validator:          validator,
		publisherTenantID:  cfg.PublisherTenantID,
		firstPartyAppIDs:   cfg.FirstPartyAppIDs(),
		controlPlaneScopes: []string{ScopeFabricWorkloadControl},
		log:                log,
	}
}

type controlPlaneCall struct {
	requireSubjectToken bool
	requireTenantHeader bool
}

// ControlPlaneOption relaxes a control-plane authentication requirement.
type ControlPlaneOption func(*controlPlaneCall)

// WithOptionalSubjectToken accepts a dual-token header whose subject token
// is empty. The returned context then carries no subject information.
func WithOptionalSubjectToken() ControlPlaneOption {
	return func(c *controlPlaneCall) { c.requireSubjectToken = false }
}

// WithOptionalTenantHeader accepts calls without the tenant id header.
func WithOptionalTenantHeader() ControlPlaneOption {
	return func(c *controlPlaneCall) { c.requireTenantHeader = false }
}

// AuthenticateControlPlaneCall authenticates a call from the Fabric control
// plane. authHeader is the raw Authorization header; tenantID is the value
// of the client tenant id header, validated against the subject token's tid
// claim before it is trusted.
func (s *Service) AuthenticateControlPlaneCall(ctx context.Context, authHeader, tenantID string, opts ...ControlPlaneOption) (*AuthorizationContext, error) {
	call := controlPlaneCall{requireSubjectToken: true, requireTenantHeader: true}
	for _, opt := range opts {
		opt(&call)
	}

	if authHeader == "" {
		return nil, ErrMissingAuthHeader
	}
	if call.requireTenantHeader && tenantID == "" {
		return nil, ErrMissingTenantHeader
	}

	tok, err := dualtoken.Parse(authHeader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	appClaims, err := s.validator.Validate(ctx, tok.AppToken, true)
	if err != nil {
		return nil, err
	}
	appVersion := mustTokenVersion(appClaims)
	appID, err := s.validateClaimOneOf(appClaims, appVersion.AppIDClaim(), s.firstPartyAppIDs,
		"app-only token must belong to a Fabric first-party application")
	if err != nil {
		return nil, err
	}
	if err := validateClaimEquals(appClaims, "tid", s.publisherTenantID,
		"app token must be in the publisher's tenant"); err != nil {
		return nil, err
	}

	if tok.SubjectToken == "" {
		if call.requireSubjectToken {
			return nil, ErrMissingSubjectToken
		}
		if call.requireTenantHeader {
			return &AuthorizationContext{TenantObjectID: tenantID}, nil
		}
		return &AuthorizationContext{}, nil
	}

	subjectClaims, err := s.validator.Validate(ctx, tok.SubjectToken, false)
	if err != nil {
		return nil, err
	}
	subjectVersion := mustTokenVersion(subjectClaims)
	if err := validateClaimEquals(subjectClaims, subjectVersion.AppIDClaim(), appID,
		"subject and app tokens must belong to the same application"); err != nil {
		return nil, err
	}
	if err := validateClaimEquals(subjectClaims, "tid", tenantID,
		"subject token must belong to the caller's tenant"); err != nil {
		return nil, err
	}
	if err := validateAnyScope(subjectClaims, s.controlPlaneScopes); err != nil {
		return nil, err
	}

	authCtx := &AuthorizationContext{
		OriginalSubjectToken: tok.SubjectToken,
		TenantObjectID:       tenantID,
		Claims:               subjectClaims,
	}
	s.log.InfoContext(logctx.WithCallerData(ctx, &logctx.CallerData{
		TenantID: authCtx.TenantObjectID,
		ObjectID: authCtx.ObjectID(),
	}), "control plane call authenticated")
	return authCtx, nil
}

// AuthenticateDataPlaneCall authenticates an end-user call to one of the
// workload's own APIs. The header must carry a plain bearer token, which is
// validated as a delegated token and checked against allowedScopes.
func (s *Service) AuthenticateDataPlaneCall(ctx context.Context, authHeader string, allowedScopes []string) (*AuthorizationContext, error) {
	if authHeader == "" {
		return nil, ErrMissingAuthHeader
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return nil, fmt.Errorf("%w: expected a Bearer token", ErrMalformedHeader)
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])

	claims, err := s.validator.Validate(ctx, token, false)
	if err != nil {
		return nil, err
	}
	tenantID, ok := ClaimValue(claims, "tid")
	if !ok {
		return nil, fmt.Errorf("%w: missing tid claim", ErrInvalidClaims)
	}
	if err := validateAnyScope(claims, allowedScopes); err != nil {
		return nil, err
	}

	return &AuthorizationContext{
		OriginalSubjectToken: token,
		TenantObjectID:       tenantID,
		Claims:               claims,
	}, nil
}

// mustTokenVersion re-reads the version from validated claims. Validation
// already rejected tokens with an unknown version, so a miss here means a
// programming error; V2 is returned as the conservative fallback.
func mustTokenVersion(claims []Claim) TokenVersion {
	ver, _ := ClaimValue(claims, "ver")
	if ver == "1.0" {
		return TokenV1
	}
	return TokenV2
}

func validateClaimEquals(claims []Claim, claimType, expected, reason string) error {
	value, ok := ClaimValue(claims, claimType)
	if !ok {
		return fmt.Errorf("%w: missing %s claim", ErrClaimMismatch, claimType)
	}
	if value != expected {
		return fmt.Errorf("%w: %s", ErrClaimMismatch, reason)
	}
	return nil
}

func (s *Service) validateClaimOneOf(claims []Claim, claimType string, expected []string, reason string) (string, error) {
	value, ok := ClaimValue(claims, claimType)
	if !ok {
		return "", fmt.Errorf("%w: missing %s claim", ErrClaimMismatch, claimType)
	}
	for _, e := range expected {
		if value == e {
			return value, nil
		}
	}
	s.log.Error("claim value not allowed", "claim", claimType, "value", value)
	return "", fmt.Errorf("%w: %s", ErrClaimMismatch, reason)
}

func validateAnyScope(claims []Claim, allowedScopes []string) error {
	tokenScopes := TokenScopes(claims)
	for _, allowed := range allowedScopes {
		for _, have := range tokenScopes {
			if have == allowed {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: token carries none of the required scopes [%s]",
		ErrInsufficientScope, strings.Join(allowedScopes, ", "))
}
