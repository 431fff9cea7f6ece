package mock

import (
	"regexp"

	"github.com/studiowebux/restswarm/internal/types"
)

// Config represents the mock server configuration
type Config struct {
	Port    int     `json:"port" yaml:"port"`       // Server port (default: 8080)
	Host    string  `json:"host" yaml:"host"`       // Server host (default: localhost)
	Routes  []Route `json:"routes" yaml:"routes"`   // Route definitions, first match wins
	Logging bool    `json:"logging" yaml:"logging"` // Log every request at debug level
}

// Route represents a mock route configuration
type Route struct {
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method      string            `json:"method" yaml:"method"`                               // HTTP method, or * for any
	Path        string            `json:"path" yaml:"path"`                                   // URL path pattern
	PathType    string            `json:"pathType,omitempty" yaml:"pathType,omitempty"`       // exact, prefix, regex (default: exact)
	Status      int               `json:"status" yaml:"status"`                               // default 200
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body        string            `json:"body,omitempty" yaml:"body,omitempty"`
	BodyFile    string            `json:"bodyFile,omitempty" yaml:"bodyFile,omitempty"`
	Delay       types.Duration    `json:"delay,omitempty" yaml:"delay,omitempty"`             // e.g. 50ms
	Jitter      types.Duration    `json:"jitter,omitempty" yaml:"jitter,omitempty"`           // extra random delay in [0, jitter)
	ErrorRate   float64           `json:"errorRate,omitempty" yaml:"errorRate,omitempty"`     // fraction answered with ErrorStatus
	ErrorStatus int               `json:"errorStatus,omitempty" yaml:"errorStatus,omitempty"` // default 503

	re *regexp.Regexp
}

// label names the route in logs and counters
func (r *Route) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Method + " " + r.Path
}

// DefaultConfig serves GET /ping -> 200 pong on localhost:8080
func DefaultConfig() *Config {
	return &Config{
		Port:    8080,
		Host:    "localhost",
		Logging: true,
		Routes: []Route{
			{
				Name:    "ping",
				Method:  "GET",
				Path:    "/ping",
				Status:  200,
				Headers: map[string]string{"Content-Type": "text/plain"},
				Body:    "pong",
			},
		},
	}
}
