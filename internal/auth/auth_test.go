package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/studiowebux/restswarm/internal/types"
	"github.com/studiowebux/restswarm/internal/vuser"
)

func tokenServer(t *testing.T, calls *atomic.Int32, expiresIn string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm failed: %v", err)
		}
		id, secret, ok := r.BasicAuth()
		if !ok {
			id, secret = r.Form.Get("client_id"), r.Form.Get("client_secret")
		}
		if id != "load" || secret != "s3cr3t" || r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-` + string(rune('0'+n)) + `","token_type":"bearer","expires_in":` + expiresIn + `}`))
	}))
}

func TestNew_Empty(t *testing.T) {
	for _, spec := range []*types.AuthSpec{nil, {}} {
		a, err := New(context.Background(), spec, nil, nil)
		if err != nil || a != nil {
			t.Errorf("Expected nil authenticator, got %v, %v", a, err)
		}
	}

	var a *Authenticator
	if h, err := a.Headers(); h != nil || err != nil {
		t.Error("Expected no headers from nil authenticator")
	}
	if a.Hook() != nil {
		t.Error("Expected no hook from nil authenticator")
	}
	if err := a.Verify(); err != nil {
		t.Errorf("Expected nil verify, got %v", err)
	}
}

func TestNew_BearerFromEnv(t *testing.T) {
	a, err := New(context.Background(), &types.AuthSpec{BearerTokenEnv: "API_TOKEN"}, map[string]string{"API_TOKEN": "abc"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	headers, err := a.Headers()
	if err != nil {
		t.Fatalf("Headers failed: %v", err)
	}
	if headers["Authorization"] != "Bearer abc" {
		t.Errorf("Expected bearer header, got %v", headers)
	}
	if a.Hook() != nil {
		t.Error("Static tokens need no iteration hook")
	}
}

func TestNew_MissingSecret(t *testing.T) {
	tests := []struct {
		name string
		spec *types.AuthSpec
	}{
		{"bearer", &types.AuthSpec{BearerTokenEnv: "API_TOKEN"}},
		{"oauth", &types.AuthSpec{OAuth: &types.OAuthClientCredentials{TokenURL: "http://x", ClientID: "id", ClientSecretEnv: "SECRET"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.spec, map[string]string{"API_TOKEN": ""}, nil)
			if !errors.Is(err, ErrMissingSecret) {
				t.Errorf("Expected ErrMissingSecret, got %v", err)
			}
		})
	}
}

func TestNew_BothSources(t *testing.T) {
	spec := &types.AuthSpec{
		BearerTokenEnv: "A",
		OAuth:          &types.OAuthClientCredentials{TokenURL: "http://x", ClientID: "id", ClientSecretEnv: "B"},
	}
	if _, err := New(context.Background(), spec, map[string]string{"A": "1", "B": "2"}, nil); err == nil {
		t.Error("Expected error when both sources are set")
	}
}

func TestOAuth_ClientCredentials(t *testing.T) {
	var calls atomic.Int32
	server := tokenServer(t, &calls, "3600")
	defer server.Close()

	spec := &types.AuthSpec{OAuth: &types.OAuthClientCredentials{
		TokenURL:        server.URL,
		ClientID:        "load",
		ClientSecretEnv: "LOAD_SECRET",
		Scopes:          []string{"read"},
	}}
	a, err := New(context.Background(), spec, map[string]string{"LOAD_SECRET": "s3cr3t"}, server.Client())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := a.Verify(); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	session, err := vuser.NewSession(vuser.SessionConfig{BaseURL: "http://localhost"})
	if err != nil {
		t.Fatal(err)
	}
	hook := a.Hook()
	for i := 0; i < 3; i++ {
		if err := hook(context.Background(), session); err != nil {
			t.Fatalf("Hook failed: %v", err)
		}
	}

	if got := session.Header("Authorization"); got != "Bearer token-1" {
		t.Errorf("Expected cached token on session, got %q", got)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected one token request while the token is valid, got %d", calls.Load())
	}
}

func TestOAuth_RefreshesExpiredToken(t *testing.T) {
	var calls atomic.Int32
	// Tokens expiring immediately are refreshed on every use
	server := tokenServer(t, &calls, "1")
	defer server.Close()

	spec := &types.AuthSpec{OAuth: &types.OAuthClientCredentials{
		TokenURL:        server.URL,
		ClientID:        "load",
		ClientSecretEnv: "LOAD_SECRET",
	}}
	a, err := New(context.Background(), spec, map[string]string{"LOAD_SECRET": "s3cr3t"}, server.Client())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, err := a.Header()
	if err != nil {
		t.Fatalf("Header failed: %v", err)
	}
	second, err := a.Header()
	if err != nil {
		t.Fatalf("Header failed: %v", err)
	}
	if first == second {
		t.Errorf("Expected a refreshed token, got %q twice", first)
	}
}

func TestOAuth_VerifyRejectsBadCredentials(t *testing.T) {
	var calls atomic.Int32
	server := tokenServer(t, &calls, "3600")
	defer server.Close()

	spec := &types.AuthSpec{OAuth: &types.OAuthClientCredentials{
		TokenURL:        server.URL,
		ClientID:        "load",
		ClientSecretEnv: "LOAD_SECRET",
	}}
	a, err := New(context.Background(), spec, map[string]string{"LOAD_SECRET": "wrong"}, server.Client())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := a.Verify(); err == nil {
		t.Error("Expected Verify to fail")
	}
}
