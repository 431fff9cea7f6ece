package parser

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/studiowebux/restswarm/internal/types"
)

// Variable placeholder pattern: {{varName}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Resolver substitutes {{name}} placeholders. It holds the run-wide sources
// and is safe for concurrent use; per-user variables are passed on each call.
//
// Lookup order: CLI vars (-e) -> user vars -> scenario vars. {{env.NAME}}
// reads the environment map only.
type Resolver struct {
	cliVars      map[string]string
	scenarioVars map[string]string
	envVars      map[string]string
}

// NewResolver creates a resolver. Any map may be nil.
func NewResolver(cliVars, scenarioVars, envVars map[string]string) *Resolver {
	return &Resolver{
		cliVars:      cloneMap(cliVars),
		scenarioVars: cloneMap(scenarioVars),
		envVars:      cloneMap(envVars),
	}
}

// Resolve substitutes placeholders in input. Unresolved placeholders are left
// as is and their names returned.
func (r *Resolver) Resolve(input string, userVars map[string]string) (string, []string) {
	if !strings.Contains(input, "{{") {
		return input, nil
	}

	var unresolved []string
	out := varPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := r.lookup(name, userVars); ok {
			return value
		}
		unresolved = append(unresolved, name)
		return match
	})
	return out, unresolved
}

// MustResolve is like Resolve but reports unresolved names as an error
func (r *Resolver) MustResolve(input string, userVars map[string]string) (string, error) {
	out, unresolved := r.Resolve(input, userVars)
	if len(unresolved) > 0 {
		return out, &UnresolvedError{Names: unique(unresolved)}
	}
	return out, nil
}

func (r *Resolver) lookup(name string, userVars map[string]string) (string, bool) {
	if envKey, ok := strings.CutPrefix(name, "env."); ok {
		value, found := r.envVars[envKey]
		return value, found
	}
	if value, ok := r.cliVars[name]; ok {
		return value, true
	}
	if value, ok := userVars[name]; ok {
		return value, true
	}
	value, ok := r.scenarioVars[name]
	return value, ok
}

// ResolveRequest resolves URL, headers and body of req
func (r *Resolver) ResolveRequest(req *types.HttpRequest, userVars map[string]string) (*types.HttpRequest, error) {
	resolved := *req
	resolved.Headers = make(map[string]string, len(req.Headers))

	var err error
	if resolved.URL, err = r.MustResolve(req.URL, userVars); err != nil {
		return nil, fmt.Errorf("failed to resolve URL: %w", err)
	}
	for key, value := range req.Headers {
		if resolved.Headers[key], err = r.MustResolve(value, userVars); err != nil {
			return nil, fmt.Errorf("failed to resolve header %s: %w", key, err)
		}
	}
	if resolved.Body, err = r.MustResolve(req.Body, userVars); err != nil {
		return nil, fmt.Errorf("failed to resolve body: %w", err)
	}
	return &resolved, nil
}

// UnresolvedError lists placeholders with no value
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return "unresolved variables: " + strings.Join(e.Names, ", ")
}

// ExtractVariableNames extracts all unique variable names from a string
func ExtractVariableNames(input string) []string {
	var names []string
	for _, match := range varPattern.FindAllStringSubmatch(input, -1) {
		names = append(names, strings.TrimSpace(match[1]))
	}
	return unique(names)
}

// ParseExtraVars parses repeated key=value flags
func ParseExtraVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q: expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// LoadEnvFile loads environment variables from a .env file
func LoadEnvFile(path string) (map[string]string, error) {
	envVars := make(map[string]string)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		envVars[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading env file: %w", err)
	}

	return envVars, nil
}

// LoadSystemEnv loads all system environment variables
func LoadSystemEnv() map[string]string {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		if key, value, ok := strings.Cut(env, "="); ok {
			envVars[key] = value
		}
	}
	return envVars
}

// MergeEnv overlays the env file on top of the system environment
func MergeEnv(system, file map[string]string) map[string]string {
	out := cloneMap(system)
	for k, v := range file {
		out[k] = v
	}
	return out
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
