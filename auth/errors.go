package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the authentication/authorization core. Callers match
// with errors.Is; wrapped detail is informational only.
var (
	ErrMalformedHeader         = errors.New("auth: malformed authorization header")
	ErrMissingAuthHeader       = errors.New("auth: missing authorization header")
	ErrMissingTenantHeader     = errors.New("auth: missing tenant id header")
	ErrMissingSubjectToken     = errors.New("auth: missing subject token")
	ErrClaimMismatch           = errors.New("auth: claim mismatch")
	ErrTokenExpired            = errors.New("auth: token expired")
	ErrSignatureKeyNotFound    = errors.New("auth: token signing key not found")
	ErrUnsupportedTokenVersion = errors.New("auth: unsupported token version")
	ErrShapeViolation          = errors.New("auth: unexpected token format")
	ErrInvalidClaims           = errors.New("auth: invalid token claims")
	ErrInsufficientScope       = errors.New("auth: insufficient scope")
	ErrAccessTokenMissing      = errors.New("auth: access token missing from token response")
	ErrAuthenticationFailed    = errors.New("auth: authentication failed")
	ErrConsentRequired         = errors.New("auth: interactive consent required")
	ErrPermissionDenied        = errors.New("auth: permission denied")
	ErrRateLimited             = errors.New("auth: rate limited")
	ErrUpstreamUnavailable     = errors.New("auth: upstream unavailable")
)

// consentAuthorizationURI is advertised in every consent challenge so
// clients know where to send the user.
const consentAuthorizationURI = "https://login.microsoftonline.com/common/oauth2/authorize"

// ConsentChallenge carries the detail a client needs to drive interactive
// consent or conditional-access remediation.
type ConsentChallenge struct {
	// ClaimsChallenge is the raw claims challenge returned by the identity
	// provider for conditional-access failures.
	ClaimsChallenge string
	// ScopesToConsent lists the scopes the user must consent to. Populated
	// only when the failure was specifically consent_required.
	ScopesToConsent []string
}

// ConsentRequiredError is returned when an on-behalf-of exchange cannot
// complete without user interaction. It unwraps to ErrConsentRequired.
type ConsentRequiredError struct {
	Reason    string
	Challenge ConsentChallenge
}

func (e *ConsentRequiredError) Error() string {
	return fmt.Sprintf("%v: %s", ErrConsentRequired, e.Reason)
}

func (e *ConsentRequiredError) Unwrap() error { return ErrConsentRequired }

// WWWAuthenticate renders the Bearer challenge header for this error. The
// error code depends on what the challenge carries: a claims challenge
// maps to invalid_token, scopes to consent map to insufficient_scope, and
// a bare interaction requirement maps to interaction_required.
func (e *ConsentRequiredError) WWWAuthenticate() string {
	desc := sanitizeDescription(e.Reason)
	parts := []string{
		fmt.Sprintf("authorization_uri=%q", consentAuthorizationURI),
	}
	switch {
	case e.Challenge.ClaimsChallenge != "":
		parts = append(parts,
			`error="invalid_token"`,
			fmt.Sprintf("error_description=%q", desc),
			fmt.Sprintf("claims=%q", e.Challenge.ClaimsChallenge),
		)
	case len(e.Challenge.ScopesToConsent) > 0:
		parts = append(parts,
			`error="insufficient_scope"`,
			fmt.Sprintf("error_description=%q", desc),
			fmt.Sprintf("scope=%q", strings.Join(e.Challenge.ScopesToConsent, " ")),
		)
	default:
		parts = append(parts,
			`error="interaction_required"`,
			fmt.Sprintf("error_description=%q", desc),
		)
	}
	return "Bearer " + strings.Join(parts, ", ")
}

// sanitizeDescription strips CR/LF so provider-supplied text cannot split
// the header.
func sanitizeDescription(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
