// Package auth implements authentication for Fabric workload backends. It
// gates every inbound control-plane and data-plane call and produces the
// AuthorizationContext that downstream components (credential broker,
// permission resolver, item handlers) consume.
//
// The public surface is a Service with two entry points:
//
//   - AuthenticateControlPlaneCall parses the SubjectAndAppToken1.0 dual
//     token header presented by the Fabric control plane, validates the
//     app-only token against the publisher tenant and the first-party
//     application ids, and (unless waived) validates the delegated subject
//     token against the caller's tenant and the workload-control scope.
//   - AuthenticateDataPlaneCall validates a plain Bearer token as a
//     delegated token and checks its scopes against the operation's
//     allowed set.
//
// # Token validation
//
// Validator performs the per-token pipeline: unverified decode of kid/tid/
// ver, issuer and audience resolution by token version (v1.0 substitutes
// the tenant into the issuer template from OIDC discovery, v2.0 derives
// the issuer from the AAD instance URL), signing-key lookup in the cached
// JWKS, full signature/lifetime verification with 60s leeway, and the
// app-only vs delegated shape check. Validation fails fast: the first
// violated step rejects the token, and nothing is retried within a call.
//
// # Errors
//
// Failures are sentinel errors (ErrTokenExpired, ErrClaimMismatch, ...)
// matched with errors.Is. ConsentRequiredError is the one structured error
// type: it carries the consent challenge produced by a failed on-behalf-of
// exchange and renders the WWW-Authenticate header that lets the client
// drive interactive consent. WriteError maps any error from this core to
// a structured HTTP response; unclassified errors become a bare 500 with
// full detail logged server-side only.
package auth
