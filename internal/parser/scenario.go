package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/studiowebux/restswarm/internal/types"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario is returned for scenario files that cannot drive a run
var ErrInvalidScenario = errors.New("invalid scenario")

// LoadScenario reads a YAML or JSON scenario file. Relative task files are
// resolved against the scenario's directory.
func LoadScenario(filePath string) (*types.ScenarioFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var scenario types.ScenarioFile
	if strings.ToLower(filepath.Ext(filePath)) == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&scenario); err != nil {
			return nil, fmt.Errorf("failed to parse JSON scenario: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&scenario); err != nil {
			return nil, fmt.Errorf("failed to parse YAML scenario: %w", err)
		}
	}

	dir := filepath.Dir(filePath)
	for i := range scenario.Tasks {
		if f := scenario.Tasks[i].File; f != "" && !filepath.IsAbs(f) {
			scenario.Tasks[i].File = filepath.Join(dir, f)
		}
	}

	if err := ValidateScenario(&scenario); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// ValidateScenario checks the structural rules of a scenario
func ValidateScenario(s *types.ScenarioFile) error {
	if len(s.Tasks) == 0 {
		return fmt.Errorf("%w: no tasks", ErrInvalidScenario)
	}
	seen := make(map[string]bool, len(s.Tasks))
	for i, task := range s.Tasks {
		if task.Name == "" {
			return fmt.Errorf("%w: task %d has no name", ErrInvalidScenario, i)
		}
		if seen[task.Name] {
			return fmt.Errorf("%w: duplicate task %q", ErrInvalidScenario, task.Name)
		}
		seen[task.Name] = true
		if task.Weight < 0 {
			return fmt.Errorf("%w: task %q has negative weight", ErrInvalidScenario, task.Name)
		}
		if (task.File == "") == (len(task.Steps) == 0) {
			return fmt.Errorf("%w: task %q needs either steps or a file", ErrInvalidScenario, task.Name)
		}
		for j, step := range task.Steps {
			if step.IsWebSocket() {
				if step.WebSocket.URL == "" {
					return fmt.Errorf("%w: task %q step %d: websocket url is required", ErrInvalidScenario, task.Name, j)
				}
				continue
			}
			if step.Path == "" {
				return fmt.Errorf("%w: task %q step %d: path is required", ErrInvalidScenario, task.Name, j)
			}
			if step.Method != "" && !validMethods[strings.ToUpper(step.Method)] {
				return fmt.Errorf("%w: task %q step %d: unsupported method %q", ErrInvalidScenario, task.Name, j, step.Method)
			}
		}
	}
	if s.Auth != nil && s.Auth.OAuth != nil {
		o := s.Auth.OAuth
		if o.TokenURL == "" || o.ClientID == "" || o.ClientSecretEnv == "" {
			return fmt.Errorf("%w: oauth needs tokenUrl, clientId and clientSecretEnv", ErrInvalidScenario)
		}
	}
	return nil
}

// ParseRequests parses any supported request file: .http, or a YAML/JSON
// list of requests
func ParseRequests(filePath string) ([]types.HttpRequest, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml", ".json":
		return parseStructured(filePath)
	default:
		return ParseHTTPFile(filePath)
	}
}

// parseStructured parses a YAML or JSON request list, or a single request
func parseStructured(filePath string) ([]types.HttpRequest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// YAML is a superset of JSON
	var requests []types.HttpRequest
	if err := yaml.Unmarshal(data, &requests); err == nil {
		return requests, nil
	}

	var request types.HttpRequest
	if err := yaml.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	return []types.HttpRequest{request}, nil
}
