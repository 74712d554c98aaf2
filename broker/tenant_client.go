package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/fabrikam/fabric-workload/auth"
	"github.com/fabrikam/fabric-workload/internal/httpclient"
)

const oboGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

var (
	errMissingSubjectForOBO = fmt.Errorf("%w: on-behalf-of exchange requires a subject token", auth.ErrAuthenticationFailed)
	errMissingTenantForOBO  = fmt.Errorf("%w: on-behalf-of exchange requires a tenant id", auth.ErrAuthenticationFailed)
)

// TenantClient is the confidential-client handle for one tenant authority.
// It holds no mutable state and may be shared freely across requests.
type TenantClient struct {
	authorityURL string
	tokenURL     string
	clientID     string
	clientSecret string
	httpc        *httpclient.Client
}

func newTenantClient(authorityURL, clientID, clientSecret string, httpc *httpclient.Client) *TenantClient {
	return &TenantClient{
		authorityURL: authorityURL,
		tokenURL:     authorityURL + "/oauth2/v2.0/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		httpc:        httpc,
	}
}

// AuthorityURL reports the authority this client is bound to.
func (c *TenantClient) AuthorityURL() string { return c.authorityURL }

// tokenResponse is the token endpoint's response body, covering both the
// success and error shapes.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Suberror         string `json:"suberror"`
	Claims           string `json:"claims"`
}

// AcquireOnBehalfOf performs the on-behalf-of exchange at this tenant's
// token endpoint. Failures that require user interaction are returned as
// *auth.ConsentRequiredError; everything else maps to
// auth.ErrAuthenticationFailed.
func (c *TenantClient) AcquireOnBehalfOf(ctx context.Context, assertion string, scopes []string) (string, error) {
	form := url.Values{
		"grant_type":          {oboGrantType},
		"client_id":           {c.clientID},
		"client_secret":       {c.clientSecret},
		"assertion":           {assertion},
		"scope":               {strings.Join(scopes, " ")},
		"requested_token_use": {"on_behalf_of"},
	}

	resp, err := c.httpc.PostForm(ctx, c.tokenURL, "", form)
	if err != nil {
		return "", fmt.Errorf("%w: token endpoint unreachable: %v", auth.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: undecodable token response: %v", auth.ErrAuthenticationFailed, err)
	}

	if tr.Error != "" {
		return "", classifyTokenError(tr, scopes)
	}
	if tr.AccessToken == "" {
		return "", auth.ErrAccessTokenMissing
	}
	return tr.AccessToken, nil
}

// classifyTokenError maps a token endpoint error body onto the closed error
// set: consent/interaction failures carry a challenge, everything else is a
// generic authentication failure.
func classifyTokenError(tr tokenResponse, requestedScopes []string) error {
	switch {
	case tr.Error == "interaction_required",
		tr.Error == "consent_required",
		tr.Error == "invalid_grant",
		tr.Suberror == "conditional_access":
		challenge := auth.ConsentChallenge{ClaimsChallenge: tr.Claims}
		if tr.Error == "consent_required" || strings.Contains(strings.ToLower(tr.ErrorDescription), "consent_required") {
			challenge.ScopesToConsent = requestedScopes
		}
		return &auth.ConsentRequiredError{
			Reason:    tr.ErrorDescription,
			Challenge: challenge,
		}
	default:
		return fmt.Errorf("%w: token endpoint returned %s", auth.ErrAuthenticationFailed, tr.Error)
	}
}

// classifyRetrieveError maps oauth2 transport/endpoint errors from the
// client credentials flow.
func classifyRetrieveError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		code := rerr.ErrorCode
		if code == "" {
			code = fmt.Sprintf("status %d", rerr.Response.StatusCode)
		}
		return fmt.Errorf("%w: token endpoint returned %s", auth.ErrAuthenticationFailed, code)
	}
	return fmt.Errorf("%w: %v", auth.ErrUpstreamUnavailable, err)
}
