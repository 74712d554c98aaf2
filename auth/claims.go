package auth

import (
	"fmt"
	"strings"
)

// Claim is a single claim from a validated token. Value holds the decoded
// JSON value: string, json.Number, bool, or []any for array claims.
type Claim struct {
	Type  string
	Value any
}

// AuthorizationContext is the result of a successful authentication. It is
// created once per request and carries the validated subject claims plus
// the raw subject token for later on-behalf-of exchange.
type AuthorizationContext struct {
	// OriginalSubjectToken is the delegated token exactly as presented.
	// Empty when the call carried no subject token.
	OriginalSubjectToken string
	// TenantObjectID is the caller's tenant. It is only ever derived from
	// a validated token claim or from a header value the subject token was
	// validated against, never from unvalidated input.
	TenantObjectID string
	// Claims are the subject token's claims in payload order.
	Claims []Claim
}

// HasSubjectContext reports whether a delegated subject token was present.
func (c *AuthorizationContext) HasSubjectContext() bool {
	return c != nil && c.OriginalSubjectToken != ""
}

// ObjectID returns the first "oid" claim, or "" when absent.
func (c *AuthorizationContext) ObjectID() string {
	if c == nil {
		return ""
	}
	v, _ := ClaimValue(c.Claims, "oid")
	return v
}

// FindClaim returns the first claim with the given type.
func FindClaim(claims []Claim, claimType string) (Claim, bool) {
	for _, cl := range claims {
		if cl.Type == claimType {
			return cl, true
		}
	}
	return Claim{}, false
}

// ClaimValue returns the string form of the first claim with the given
// type. Non-scalar claims report their fmt rendering.
func ClaimValue(claims []Claim, claimType string) (string, bool) {
	cl, ok := FindClaim(claims, claimType)
	if !ok {
		return "", false
	}
	switch v := cl.Value.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// TokenScopes extracts the effective scopes of a token: the space-delimited
// delegated "scp" claim plus any application "roles" entries.
func TokenScopes(claims []Claim) []string {
	var scopes []string
	for _, cl := range claims {
		switch cl.Type {
		case "scp":
			if s, ok := cl.Value.(string); ok {
				scopes = append(scopes, strings.Fields(s)...)
			}
		case "roles":
			switch v := cl.Value.(type) {
			case []any:
				for _, r := range v {
					if s, ok := r.(string); ok {
						scopes = append(scopes, s)
					}
				}
			case string:
				scopes = append(scopes, v)
			}
		}
	}
	return scopes
}
