package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fabrikam/fabric-workload/internal/oidcconfig"
)

// TokenVersion is the Entra ID token format version from the "ver" claim.
type TokenVersion int

const (
	TokenV1 TokenVersion = iota + 1
	TokenV2
)

// AppIDClaim returns the claim that carries the client application id for
// this token version: "appid" for v1.0 tokens, "azp" for v2.0.
func (v TokenVersion) AppIDClaim() string {
	if v == TokenV1 {
		return "appid"
	}
	return "azp"
}

// ValidatorConfig carries the validation policy for a Validator.
type ValidatorConfig struct {
	// InstanceURL is the AAD instance (e.g. https://login.microsoftonline.com),
	// used to derive the expected issuer of v2.0 tokens.
	InstanceURL string
	// Audience is the expected audience of v1.0 tokens.
	Audience string
	// ClientID is the workload application id, the expected audience of
	// v2.0 tokens.
	ClientID string
	// AllowedAlgs defaults to ["RS256"]. Leeway defaults to 60s.
	AllowedAlgs []string
	Leeway      time.Duration
}

// Validator verifies a single JWT against the cached OIDC configuration.
// Safe for concurrent use.
type Validator struct {
	cfg  ValidatorConfig
	oidc *oidcconfig.Manager
	log  *slog.Logger
}

func NewValidator(cfg ValidatorConfig, oidc *oidcconfig.Manager, log *slog.Logger) *Validator {
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Validator{cfg: cfg, oidc: oidc, log: log}
}

// Validate runs the full validation pipeline on one token and returns its
// claims in payload order. appOnly selects the expected token shape:
// app-only tokens must carry idtyp="app" and oid and must not carry scp;
// delegated tokens must carry scp and must not carry idtyp.
//
// The pipeline fails fast at the first violated step. A signing key absent
// from the cached JWKS fails with ErrSignatureKeyNotFound without forcing
// a cache refresh; key rotation resolves on the next TTL lapse.
func (v *Validator) Validate(ctx context.Context, token string, appOnly bool) ([]Claim, error) {
	// Step 1: unverified decode to read kid, tid and ver. Nothing from
	// this step is trusted beyond routing the verification below.
	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable token: %v", ErrInvalidClaims, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	mc := unverified.Claims.(jwt.MapClaims)
	tid, _ := mc["tid"].(string)
	if tid == "" {
		return nil, fmt.Errorf("%w: missing tid claim", ErrInvalidClaims)
	}

	ver, _ := mc["ver"].(string)
	version, err := parseTokenVersion(ver)
	if err != nil {
		return nil, err
	}

	oc, err := v.oidc.Configuration(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	expectedIssuer, err := v.expectedIssuer(oc, version, tid)
	if err != nil {
		return nil, err
	}
	expectedAudience := v.cfg.Audience
	if version == TokenV2 {
		expectedAudience = v.cfg.ClientID
	}

	if !oc.HasSigningKey(ctx, kid) {
		v.log.ErrorContext(ctx, "token signing key not found", "kid", kid)
		return nil, fmt.Errorf("%w: kid %q", ErrSignatureKeyNotFound, kid)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(expectedIssuer),
		jwt.WithAudience(expectedAudience),
	)
	parsed, err := parser.Parse(token, oc.Keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token rejected", ErrInvalidClaims)
	}

	claims, err := decodeOrderedClaims(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}

	if _, ok := FindClaim(claims, version.AppIDClaim()); !ok {
		return nil, fmt.Errorf("%w: missing %s claim", ErrInvalidClaims, version.AppIDClaim())
	}
	if err := validateShape(claims, appOnly); err != nil {
		return nil, err
	}

	return claims, nil
}

func parseTokenVersion(ver string) (TokenVersion, error) {
	switch ver {
	case "1.0":
		return TokenV1, nil
	case "2.0":
		return TokenV2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedTokenVersion, ver)
	}
}

func (v *Validator) expectedIssuer(oc *oidcconfig.Configuration, version TokenVersion, tenantID string) (string, error) {
	if version == TokenV2 {
		return v.cfg.InstanceURL + "/" + tenantID + "/v2.0", nil
	}
	const placeholder = "{tenantid}"
	if !strings.Contains(oc.IssuerTemplate, placeholder) {
		return "", fmt.Errorf("%w: issuer template %q has no %s placeholder", ErrAuthenticationFailed, oc.IssuerTemplate, placeholder)
	}
	return strings.ReplaceAll(oc.IssuerTemplate, placeholder, tenantID), nil
}

func validateShape(claims []Claim, appOnly bool) error {
	if appOnly {
		idtyp, ok := ClaimValue(claims, "idtyp")
		if !ok || idtyp != "app" {
			return fmt.Errorf("%w: expecting an app-only token", ErrShapeViolation)
		}
		if _, ok := FindClaim(claims, "oid"); !ok {
			return fmt.Errorf("%w: app-only token missing oid claim", ErrShapeViolation)
		}
		if _, ok := FindClaim(claims, "scp"); ok {
			return fmt.Errorf("%w: app-only token must not carry scp claim", ErrShapeViolation)
		}
		return nil
	}
	if _, ok := FindClaim(claims, "idtyp"); ok {
		return fmt.Errorf("%w: delegated token must not carry idtyp claim", ErrShapeViolation)
	}
	if _, ok := FindClaim(claims, "scp"); !ok {
		return fmt.Errorf("%w: delegated token missing scp claim", ErrShapeViolation)
	}
	return nil
}

// decodeOrderedClaims re-reads the payload segment with a streaming decoder
// so the claim list preserves the JWT's document order, which map-based
// claim types discard.
func decodeOrderedClaims(token string) ([]Claim, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("token is not a compact JWS")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("payload decode: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("payload is not a JSON object")
	}

	var claims []Claim
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("unexpected payload token")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		claims = append(claims, Claim{Type: key, Value: value})
	}
	return claims, nil
}
