package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fabrikam/fabric-workload/internal/httpclient"
	"github.com/fabrikam/fabric-workload/internal/oidcconfig"
)

// Shared fixture values for auth tests.
const (
	testInstanceURL       = "https://login.test"
	testIssuerTemplate    = "https://sts.test/{tenantid}/"
	testAudience          = "api://workload"
	testClientID          = "11111111-2222-3333-4444-555555555555"
	testPublisherTenantID = "publisher-tenant"
	testFabricBackendApp  = "00000009-0000-0000-c000-000000000000"
	testWorkloadClientApp = "d2450708-699c-41e3-8077-b0c8341509aa"
	testKid               = "signing-key-1"
)

type testIdP struct {
	srv *httptest.Server
	key *rsa.PrivateKey
}

func newTestIdP(t *testing.T) *testIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	p := &testIdP{key: key}

	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: &key.PublicKey, KeyID: testKid, Algorithm: "RS256", Use: "sig"}}}
	keysJSON, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metadata", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":   testIssuerTemplate,
			"jwks_uri": p.srv.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *testIdP) validator(t *testing.T) *Validator {
	t.Helper()
	mgr := oidcconfig.NewManager(httpclient.New(httpclient.WithMaxRetries(0)), p.srv.URL+"/metadata")
	return NewValidator(ValidatorConfig{
		InstanceURL: testInstanceURL,
		Audience:    testAudience,
		ClientID:    testClientID,
	}, mgr, slog.Default())
}

// sign produces a token with the fixture key. kid defaults to the published
// key; pass kid="" for the published one.
func (p *testIdP) sign(t *testing.T, claims jwt.MapClaims) string {
	return p.signWithKid(t, testKid, claims)
}

func (p *testIdP) signWithKid(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(p.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// signRawPayload signs a handcrafted payload, bypassing MapClaims so tests
// can control claim ordering.
func (p *testIdP) signRawPayload(t *testing.T, payload []byte) string {
	t.Helper()
	header := fmt.Sprintf(`{"alg":"RS256","kid":%q,"typ":"JWT"}`, testKid)
	signingString := base64.RawURLEncoding.EncodeToString([]byte(header)) +
		"." + base64.RawURLEncoding.EncodeToString(payload)
	sig, err := jwt.SigningMethodRS256.Sign(signingString, p.key)
	if err != nil {
		t.Fatalf("sign raw: %v", err)
	}
	return signingString + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// appTokenClaims is a valid v2.0 app-only token for the publisher tenant.
func appTokenClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   testInstanceURL + "/" + testPublisherTenantID + "/v2.0",
		"aud":   testClientID,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"tid":   testPublisherTenantID,
		"ver":   "2.0",
		"azp":   testFabricBackendApp,
		"idtyp": "app",
		"oid":   "app-object-id",
	}
}

// subjectTokenClaims is a valid v2.0 delegated token for the given tenant.
func subjectTokenClaims(now time.Time, tenantID string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": testInstanceURL + "/" + tenantID + "/v2.0",
		"aud": testClientID,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"tid": tenantID,
		"ver": "2.0",
		"azp": testFabricBackendApp,
		"scp": ScopeFabricWorkloadControl,
		"oid": "user-object-id",
	}
}
