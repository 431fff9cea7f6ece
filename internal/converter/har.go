// Package converter turns recorded browser traffic into load scenarios.
package converter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/studiowebux/restswarm/internal/config"
	"github.com/studiowebux/restswarm/internal/parser"
	"github.com/studiowebux/restswarm/internal/types"
	"gopkg.in/yaml.v3"
)

// DefaultTokenEnv names the variable the generated auth section reads the bearer token from
const DefaultTokenEnv = "API_TOKEN"

// ErrNoEntries is returned when no HAR entry survives the filters
var ErrNoEntries = errors.New("no entries to convert")

// HAROptions contains options for HAR conversion
type HAROptions struct {
	HarFile     string
	Name        string // scenario and task name; the file name when empty
	Host        string // keep only this origin; the first entry's origin when empty
	Filter      string // keep only URLs containing this substring
	KeepStatic  bool   // keep scripts, styles, images and fonts
	KeepHeaders bool   // keep non-sensitive request headers
	TokenEnv    string // DefaultTokenEnv when empty
}

// HARFile represents the HAR file structure
type HARFile struct {
	Log HARLog `json:"log"`
}

// HARLog represents the log section of HAR
type HARLog struct {
	Version string     `json:"version"`
	Entries []HAREntry `json:"entries"`
}

// HAREntry represents a single HTTP request/response
type HAREntry struct {
	Request  HARRequest  `json:"request"`
	Response HARResponse `json:"response"`
}

// HARRequest represents the request part of an entry
type HARRequest struct {
	Method   string       `json:"method"`
	URL      string       `json:"url"`
	Headers  []HARHeader  `json:"headers"`
	PostData *HARPostData `json:"postData,omitempty"`
}

// HARResponse represents the response part of an entry
type HARResponse struct {
	Status  int        `json:"status"`
	Content HARContent `json:"content"`
}

// HARHeader represents a single header
type HARHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARPostData represents POST data
type HARPostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// HARContent represents response content
type HARContent struct {
	MimeType string `json:"mimeType"`
}

// Never copied into a scenario
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"x-auth-token":        true,
	"x-api-key":           true,
	"proxy-authorization": true,
}

// Set by the HTTP client or meaningless on replay
var transportHeaders = map[string]bool{
	"host":              true,
	"content-length":    true,
	"connection":        true,
	"accept-encoding":   true,
	"keep-alive":        true,
	"upgrade":           true,
	"te":                true,
	"transfer-encoding": true,
	"origin":            true,
	"referer":           true,
	"user-agent":        true,
}

var staticExtensions = map[string]bool{
	".js": true, ".mjs": true, ".css": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".ico": true, ".webp": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// HARToScenario reads a HAR capture and builds a one-task scenario that
// replays its requests in order against the captured origin.
// Credentials are never copied: a bearer Authorization header becomes an
// auth section reading the token from the environment.
func HARToScenario(opts HAROptions) (*types.ScenarioFile, error) {
	data, err := os.ReadFile(opts.HarFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read HAR file: %w", err)
	}

	var har HARFile
	if err := json.Unmarshal(data, &har); err != nil {
		return nil, fmt.Errorf("failed to parse HAR file: %w", err)
	}

	name := opts.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(opts.HarFile), filepath.Ext(opts.HarFile))
	}
	tokenEnv := opts.TokenEnv
	if tokenEnv == "" {
		tokenEnv = DefaultTokenEnv
	}

	origin := strings.TrimRight(opts.Host, "/")
	sc := &types.ScenarioFile{Name: name}
	var steps []types.StepSpec

	for _, entry := range har.Log.Entries {
		u, err := url.Parse(entry.Request.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if opts.Filter != "" && !strings.Contains(entry.Request.URL, opts.Filter) {
			continue
		}
		if !opts.KeepStatic && isStatic(u, entry.Response.Content.MimeType) {
			continue
		}

		entryOrigin := u.Scheme + "://" + u.Host
		if origin == "" {
			origin = entryOrigin
		}
		if entryOrigin != origin {
			continue
		}

		step, bearer := stepFromEntry(entry, u, opts.KeepHeaders)
		if bearer && sc.Auth == nil {
			sc.Auth = &types.AuthSpec{BearerTokenEnv: tokenEnv}
		}
		steps = append(steps, step)
	}

	if len(steps) == 0 {
		return nil, ErrNoEntries
	}

	sc.Host = origin
	sc.Tasks = []types.TaskSpec{{Name: name, Steps: steps}}
	if err := parser.ValidateScenario(sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func stepFromEntry(entry HAREntry, u *url.URL, keepHeaders bool) (types.StepSpec, bool) {
	req := entry.Request

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	step := types.StepSpec{
		Method: strings.ToUpper(req.Method),
		Path:   path,
	}
	if entry.Response.Status > 0 {
		step.ExpectStatus = []int{entry.Response.Status}
	}

	bearer := false
	headers := make(map[string]string)
	for _, h := range req.Headers {
		lower := strings.ToLower(h.Name)
		// Skip pseudo-headers
		if strings.HasPrefix(h.Name, ":") {
			continue
		}
		if lower == "authorization" && strings.HasPrefix(h.Value, "Bearer ") {
			bearer = true
		}
		if sensitiveHeaders[lower] || transportHeaders[lower] {
			continue
		}
		if keepHeaders || lower == "content-type" {
			headers[h.Name] = h.Value
		}
	}

	if req.PostData != nil && req.PostData.Text != "" {
		step.Body = req.PostData.Text
		if req.PostData.MimeType != "" && !hasHeader(headers, "content-type") {
			headers["Content-Type"] = req.PostData.MimeType
		}
	}
	if len(headers) > 0 {
		step.Headers = headers
	}
	return step, bearer
}

func hasHeader(headers map[string]string, lower string) bool {
	for k := range headers {
		if strings.ToLower(k) == lower {
			return true
		}
	}
	return false
}

func isStatic(u *url.URL, mimeType string) bool {
	if staticExtensions[strings.ToLower(filepath.Ext(u.Path))] {
		return true
	}
	mimeType = strings.ToLower(mimeType)
	for _, prefix := range []string{"image/", "font/", "text/css", "text/javascript", "application/javascript"} {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}

// WriteScenario writes sc as YAML, or JSON for a .json path
func WriteScenario(sc *types.ScenarioFile, path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(sc, "", "  ")
	default:
		data, err = yaml.Marshal(sc)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, config.DirPermissions); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, config.FilePermissions); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	return nil
}
