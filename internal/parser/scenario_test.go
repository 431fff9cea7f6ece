package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/studiowebux/restswarm/internal/types"
)

func TestLoadScenario_YAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "browse.http"), []byte("GET /items\n"), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "scenario.yaml")
	content := `name: shop
host: http://localhost:8080
variables:
  user: alice
auth:
  bearerTokenEnv: SHOP_TOKEN
tasks:
  - name: login
    weight: 1
    steps:
      - method: POST
        path: /login
        body: '{"user": "{{user}}"}'
        extract:
          token: access_token
        setHeaders:
          Authorization: Bearer {{token}}
  - name: browse
    weight: 3
    file: browse.http
  - name: feed
    steps:
      - websocket:
          url: ws://localhost:8080/feed
          send: ["hello"]
          expect: welcome
          timeout: 2s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	if s.Name != "shop" || s.Host != "http://localhost:8080" || len(s.Tasks) != 3 {
		t.Fatalf("Unexpected scenario: %+v", s)
	}
	if s.Auth == nil || s.Auth.BearerTokenEnv != "SHOP_TOKEN" {
		t.Errorf("Expected bearer token env, got %+v", s.Auth)
	}
	login := s.Tasks[0]
	if login.Steps[0].Extract["token"] != "access_token" || login.Steps[0].SetHeaders["Authorization"] != "Bearer {{token}}" {
		t.Errorf("Unexpected login step: %+v", login.Steps[0])
	}
	if want := filepath.Join(dir, "browse.http"); s.Tasks[1].File != want {
		t.Errorf("Expected task file resolved to %s, got %s", want, s.Tasks[1].File)
	}
	ws := s.Tasks[2].Steps[0].WebSocket
	if ws == nil || ws.Timeout.D() != 2*time.Second || ws.Expect != "welcome" {
		t.Errorf("Unexpected websocket step: %+v", ws)
	}
}

func TestLoadScenario_JSON(t *testing.T) {
	path := writeFile(t, "scenario.json", `{"tasks": [{"name": "ping", "steps": [{"path": "/ping"}]}]}`)

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	if len(s.Tasks) != 1 || s.Tasks[0].Steps[0].Path != "/ping" {
		t.Errorf("Unexpected scenario: %+v", s)
	}
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeFile(t, "scenario.yaml", "tasks:\n  - name: a\n    stepz: []\n")
	if _, err := LoadScenario(path); err == nil {
		t.Error("Expected error for unknown field")
	}
}

func TestValidateScenario(t *testing.T) {
	step := types.StepSpec{Path: "/ping"}
	tests := []struct {
		name     string
		scenario types.ScenarioFile
	}{
		{"no tasks", types.ScenarioFile{}},
		{"no name", types.ScenarioFile{Tasks: []types.TaskSpec{{Steps: []types.StepSpec{step}}}}},
		{"duplicate", types.ScenarioFile{Tasks: []types.TaskSpec{
			{Name: "a", Steps: []types.StepSpec{step}},
			{Name: "a", Steps: []types.StepSpec{step}},
		}}},
		{"negative weight", types.ScenarioFile{Tasks: []types.TaskSpec{{Name: "a", Weight: -1, Steps: []types.StepSpec{step}}}}},
		{"steps and file", types.ScenarioFile{Tasks: []types.TaskSpec{{Name: "a", File: "x.http", Steps: []types.StepSpec{step}}}}},
		{"empty task", types.ScenarioFile{Tasks: []types.TaskSpec{{Name: "a"}}}},
		{"missing path", types.ScenarioFile{Tasks: []types.TaskSpec{{Name: "a", Steps: []types.StepSpec{{Method: "GET"}}}}}},
		{"bad method", types.ScenarioFile{Tasks: []types.TaskSpec{{Name: "a", Steps: []types.StepSpec{{Method: "FETCH", Path: "/"}}}}}},
		{"websocket without url", types.ScenarioFile{Tasks: []types.TaskSpec{{Name: "a", Steps: []types.StepSpec{{WebSocket: &types.WebSocketStep{}}}}}}},
		{"oauth without secret env", types.ScenarioFile{
			Auth:  &types.AuthSpec{OAuth: &types.OAuthClientCredentials{TokenURL: "http://t", ClientID: "id"}},
			Tasks: []types.TaskSpec{{Name: "a", Steps: []types.StepSpec{step}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScenario(&tt.scenario)
			if !errors.Is(err, ErrInvalidScenario) {
				t.Errorf("Expected ErrInvalidScenario, got %v", err)
			}
		})
	}
}

func TestParseRequests_YAMLList(t *testing.T) {
	path := writeFile(t, "requests.yaml", `- name: ping
  method: GET
  url: /ping
  expectStatus: [200]
- method: POST
  url: /echo
  body: hi
`)

	requests, err := ParseRequests(path)
	if err != nil {
		t.Fatalf("ParseRequests failed: %v", err)
	}
	if len(requests) != 2 || requests[0].ExpectStatus[0] != 200 || requests[1].Body != "hi" {
		t.Errorf("Unexpected requests: %+v", requests)
	}
}

func TestParseRequests_SingleJSON(t *testing.T) {
	path := writeFile(t, "request.json", `{"method": "GET", "url": "/ping"}`)

	requests, err := ParseRequests(path)
	if err != nil {
		t.Fatalf("ParseRequests failed: %v", err)
	}
	if len(requests) != 1 || requests[0].URL != "/ping" {
		t.Errorf("Unexpected requests: %+v", requests)
	}
}
