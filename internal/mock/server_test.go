package mock

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/studiowebux/restswarm/internal/types"
)

func newTestServer(t *testing.T, cfg *Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(cfg, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, method, url string) (int, string, http.Header) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp.Header
}

func TestDefaultConfig_Ping(t *testing.T) {
	s, ts := newTestServer(t, DefaultConfig())

	status, body, headers := get(t, "GET", ts.URL+"/ping")
	if status != 200 || body != "pong" {
		t.Errorf("Expected 200 pong, got %d %q", status, body)
	}
	if headers.Get("Content-Type") != "text/plain" {
		t.Errorf("Expected text/plain, got %q", headers.Get("Content-Type"))
	}

	status, _, _ = get(t, "POST", ts.URL+"/ping")
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for wrong method, got %d", status)
	}

	counts := s.Counts()
	if counts["ping"] != 1 || counts["none"] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestServer_PathTypes(t *testing.T) {
	_, ts := newTestServer(t, &Config{Routes: []Route{
		{Method: "GET", Path: "/users/me", Body: "exact"},
		{Method: "GET", Path: `^/users/\d+$`, PathType: "regex", Body: "regex"},
		{Method: "*", Path: "/static/", PathType: "prefix", Status: 202, Body: "prefix"},
	}})

	tests := []struct {
		method, path string
		status       int
		body         string
	}{
		{"GET", "/users/me", 200, "exact"},
		{"GET", "/users/42", 200, "regex"},
		{"DELETE", "/static/app.js", 202, "prefix"},
		{"GET", "/users/abc", 404, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			status, body, _ := get(t, tt.method, ts.URL+tt.path)
			if status != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, status)
			}
			if tt.body != "" && body != tt.body {
				t.Errorf("Expected body %q, got %q", tt.body, body)
			}
		})
	}
}

func TestServer_Delay(t *testing.T) {
	_, ts := newTestServer(t, &Config{Routes: []Route{
		{Method: "GET", Path: "/slow", Delay: types.Duration(100 * time.Millisecond)},
	}})

	start := time.Now()
	get(t, "GET", ts.URL+"/slow")
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Expected at least 100ms, got %v", elapsed)
	}
}

func TestServer_ErrorRate(t *testing.T) {
	_, ts := newTestServer(t, &Config{Routes: []Route{
		{Method: "GET", Path: "/flaky", ErrorRate: 1, Body: "ok"},
		{Method: "GET", Path: "/teapot", ErrorRate: 1, ErrorStatus: 418},
	}})

	if status, _, _ := get(t, "GET", ts.URL+"/flaky"); status != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", status)
	}
	if status, _, _ := get(t, "GET", ts.URL+"/teapot"); status != http.StatusTeapot {
		t.Errorf("Expected 418, got %d", status)
	}
}

func TestServer_BodyFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "user.json"), []byte(`{"id": 1}`), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := NewServer(&Config{Routes: []Route{
		{Method: "GET", Path: "/user", BodyFile: "user.json"},
		{Method: "GET", Path: "/missing", BodyFile: "nope.json"},
	}}, dir, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	if _, body, _ := get(t, "GET", ts.URL+"/user"); body != `{"id": 1}` {
		t.Errorf("Unexpected body: %q", body)
	}
	if status, _, _ := get(t, "GET", ts.URL+"/missing"); status != http.StatusInternalServerError {
		t.Errorf("Expected 500 for missing body file, got %d", status)
	}
}

func TestNewServer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		route Route
	}{
		{"no method", Route{Path: "/"}},
		{"no path", Route{Method: "GET"}},
		{"bad path type", Route{Method: "GET", Path: "/", PathType: "glob"}},
		{"bad regex", Route{Method: "GET", Path: "(", PathType: "regex"}},
		{"bad status", Route{Method: "GET", Path: "/", Status: 42}},
		{"bad error rate", Route{Method: "GET", Path: "/", ErrorRate: 2}},
		{"bad error status", Route{Method: "GET", Path: "/", ErrorStatus: 1000}},
		{"negative delay", Route{Method: "GET", Path: "/", Delay: types.Duration(-time.Second)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(&Config{Routes: []Route{tt.route}}, "", nil)
			if !errors.Is(err, ErrInvalidRoutes) {
				t.Errorf("Expected ErrInvalidRoutes, got %v", err)
			}
		})
	}
	if _, err := NewServer(&Config{}, "", nil); err == nil {
		t.Error("Expected an error without routes")
	}
}

func TestLoadConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	content := `port: 9090
routes:
  - method: GET
    path: /ping
    body: pong
    delay: 20ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Port != 9090 || cfg.Routes[0].Delay.D() != 20*time.Millisecond {
		t.Errorf("Unexpected config: %+v", cfg)
	}

	jsonPath := filepath.Join(t.TempDir(), "routes.json")
	if err := SaveConfig(cfg, jsonPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	again, err := LoadConfig(jsonPath)
	if err != nil {
		t.Fatalf("LoadConfig(json) failed: %v", err)
	}
	if again.Routes[0].Body != "pong" || again.Routes[0].Delay != cfg.Routes[0].Delay {
		t.Errorf("Round trip mismatch: %+v", again.Routes[0])
	}

	if _, err := LoadConfig(strings.TrimSuffix(path, ".yaml") + ".toml"); err == nil {
		t.Error("Expected error for unsupported extension")
	}
}

func TestLoadConfig_StrictFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	content := `routes:
  - method: get
    path: /ping
    delai: 20ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for misspelled field")
	}

	if err := os.WriteFile(path, []byte("routes:\n  - method: get\n    path: /ping\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Routes[0].Method != "GET" {
		t.Errorf("Expected method normalized to GET, got %s", cfg.Routes[0].Method)
	}
}

func TestServer_Run(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	s, err := NewServer(cfg, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	// Port 0 is replaced by the default, so pick a free one explicitly
	cfg.Port = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(s.Address() + "/ping")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Server never became ready: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	port := ts.Listener.Addr().(*net.TCPAddr).Port
	ts.Close()
	return port
}
