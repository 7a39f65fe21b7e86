package edge

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// staticTokens is a TokenProvider that counts fetches and invalidations.
type staticTokens struct {
	fetches     atomic.Int64
	invalidated atomic.Int64
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	n := s.fetches.Add(1)
	return fmt.Sprintf("tok-%d", n), nil
}

func (s *staticTokens) Invalidate() {
	s.invalidated.Add(1)
}

func TestCallTokenRefresh(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"token expired"}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			t.Errorf("expected refreshed token on retry, got %s", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `"ok"`)
	}))
	defer server.Close()

	tokens := &staticTokens{}
	client := NewClient(server.URL, tokens, testLogger())

	resp, err := client.Call(context.Background(), http.MethodGet, "accounts/abc", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	// 1. The call completes successfully after the refresh-and-replay.
	if !resp.OK() {
		t.Errorf("expected success after refresh, got %d", resp.StatusCode)
	}
	// 2. Exactly one extra auth fetch happened.
	if got := tokens.fetches.Load(); got != 2 {
		t.Errorf("expected 2 token fetches, got %d", got)
	}
	if got := tokens.invalidated.Load(); got != 1 {
		t.Errorf("expected 1 invalidation, got %d", got)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 remote calls, got %d", got)
	}
}

func TestCallRefreshOnlyOnce(t *testing.T) {
	// A credential that stays expired is handed back to the caller as a
	// 401 response, not retried forever.
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"token expired"}`)
	}))
	defer server.Close()

	tokens := &staticTokens{}
	client := NewClient(server.URL, tokens, testLogger())

	resp, err := client.Call(context.Background(), http.MethodGet, "accounts", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 handed back, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected exactly 2 remote calls (original + one replay), got %d", got)
	}
}

func TestCallErrorStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, "duplicate")
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{}, testLogger())
	resp, err := client.Call(context.Background(), http.MethodPost, "accounts", nil, accountBody{AccountName: "x"})
	if err != nil {
		t.Fatalf("remote error status must not surface as an error: %v", err)
	}
	if resp.StatusCode != http.StatusConflict || string(resp.Body) != "duplicate" {
		t.Errorf("unexpected response: %d %q", resp.StatusCode, resp.Body)
	}
}

func TestCallRetriesTransportFailures(t *testing.T) {
	// The server closes the connection twice, then answers.
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("hijacking unsupported")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatal(err)
			}
			conn.Close()
			return
		}
		fmt.Fprint(w, `"ok"`)
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{}, testLogger())
	resp, err := client.Call(context.Background(), http.MethodGet, "accounts", nil, nil)
	if err != nil {
		t.Fatalf("expected recovery within retry budget: %v", err)
	}
	if !resp.OK() {
		t.Errorf("expected success, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestCallRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj := w.(http.Hijacker)
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Fatal(err)
		}
		conn.Close()
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{}, testLogger())
	_, err := client.Call(context.Background(), http.MethodGet, "accounts", nil, nil)
	if err == nil {
		t.Fatal("expected error after retry budget exhaustion")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestAssertionTokenSource(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	var grants atomic.Int64
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grants.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.Form.Get("assertion") == "" {
			t.Error("expected a signed assertion in the grant request")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "granted",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer auth.Close()

	source := NewAssertionTokenSource(auth.URL, "integration-client", "https://issuer.example", "workspace.write", keyPEM)

	// 1. First use fetches.
	tok, err := source.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "granted" {
		t.Errorf("expected granted, got %s", tok)
	}
	// 2. Subsequent uses reuse the cached credential.
	if _, err := source.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := grants.Load(); got != 1 {
		t.Errorf("expected 1 grant request, got %d", got)
	}
	// 3. Invalidate forces a fresh fetch.
	source.Invalidate()
	if _, err := source.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := grants.Load(); got != 2 {
		t.Errorf("expected 2 grant requests after invalidation, got %d", got)
	}
}
