package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/fabrikam/fabric-workload/internal/dualtoken"
)

func TestAuthorizationHeaderInjection(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	c := New()
	ctx := context.Background()

	composite := dualtoken.Generate("", "eyJhbGciOiJSUzI1NiJ9.e30.c2ln")

	cases := []struct {
		name  string
		token string
		want  string
	}{
		{"bearer", "some-access-token", "Bearer some-access-token"},
		{"composite passthrough", composite, composite},
		{"no credential", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := c.Get(ctx, srv.URL, tc.token)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			resp.Body.Close()
			if got := gotAuth.Load().(string); got != tc.want {
				t.Fatalf("authorization header: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(WithMaxRetries(2))
	resp, err := c.Get(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 requests, got %d", n)
	}
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(WithMaxRetries(2))
	resp, err := c.Get(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("4xx must not be retried; got %d requests", n)
	}
}

func TestExhaustedRetriesReturnError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(WithMaxRetries(1))
	if _, err := c.Get(context.Background(), srv.URL, ""); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 requests, got %d", n)
	}
}

func TestPostFormEncoding(t *testing.T) {
	var gotContentType string
	var gotGrant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotGrant = r.PostFormValue("grant_type")
	}))
	defer srv.Close()

	c := New()
	resp, err := c.PostForm(context.Background(), srv.URL, "", url.Values{"grant_type": {"client_credentials"}})
	if err != nil {
		t.Fatalf("post form: %v", err)
	}
	resp.Body.Close()
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("content type: got %q", gotContentType)
	}
	if gotGrant != "client_credentials" {
		t.Fatalf("grant_type: got %q", gotGrant)
	}
}

func TestHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New()
	if _, err := c.Get(ctx, srv.URL, ""); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
