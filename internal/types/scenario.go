package types

// ScenarioFile is a declarative load scenario loaded from YAML or JSON
type ScenarioFile struct {
	Name      string            `json:"name,omitempty" yaml:"name,omitempty"`
	Host      string            `json:"host,omitempty" yaml:"host,omitempty"`
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Auth      *AuthSpec         `json:"auth,omitempty" yaml:"auth,omitempty"`
	TLS       *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
	Tasks     []TaskSpec        `json:"tasks" yaml:"tasks"`
}

// TaskSpec describes one weighted task: either inline steps or a .http file
type TaskSpec struct {
	Name   string     `json:"name" yaml:"name"`
	Weight int        `json:"weight,omitempty" yaml:"weight,omitempty"`
	File   string     `json:"file,omitempty" yaml:"file,omitempty"`
	Steps  []StepSpec `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// StepSpec is a single call made by a task
type StepSpec struct {
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method       string            `json:"method,omitempty" yaml:"method,omitempty"`
	Path         string            `json:"path,omitempty" yaml:"path,omitempty"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body         string            `json:"body,omitempty" yaml:"body,omitempty"`
	ExpectStatus []int             `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`
	ExpectBody   string            `json:"expectBody,omitempty" yaml:"expectBody,omitempty"`
	Extract      map[string]string `json:"extract,omitempty" yaml:"extract,omitempty"`       // variable -> JMESPath
	SetHeaders   map[string]string `json:"setHeaders,omitempty" yaml:"setHeaders,omitempty"` // header -> template
	WebSocket    *WebSocketStep    `json:"websocket,omitempty" yaml:"websocket,omitempty"`
}

// IsWebSocket reports whether the step opens a WebSocket instead of an HTTP call
func (s *StepSpec) IsWebSocket() bool {
	return s.WebSocket != nil
}

// WebSocketStep connects, sends messages and optionally waits for one matching reply
type WebSocketStep struct {
	URL          string   `json:"url" yaml:"url"`
	Subprotocols []string `json:"subprotocols,omitempty" yaml:"subprotocols,omitempty"`
	Send         []string `json:"send,omitempty" yaml:"send,omitempty"`
	Expect       string   `json:"expect,omitempty" yaml:"expect,omitempty"` // substring of a received message
	Timeout      Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// AuthSpec names where credentials come from. Secrets are never inline.
type AuthSpec struct {
	BearerTokenEnv string                  `json:"bearerTokenEnv,omitempty" yaml:"bearerTokenEnv,omitempty"`
	OAuth          *OAuthClientCredentials `json:"oauth,omitempty" yaml:"oauth,omitempty"`
}

// OAuthClientCredentials configures the OAuth 2.0 client credentials grant
type OAuthClientCredentials struct {
	TokenURL        string            `json:"tokenUrl" yaml:"tokenUrl"`
	ClientID        string            `json:"clientId" yaml:"clientId"`
	ClientSecretEnv string            `json:"clientSecretEnv" yaml:"clientSecretEnv"`
	Scopes          []string          `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	EndpointParams  map[string]string `json:"endpointParams,omitempty" yaml:"endpointParams,omitempty"`
}
