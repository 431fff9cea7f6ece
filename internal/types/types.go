package types

// HttpRequest represents an HTTP request definition from .http files
type HttpRequest struct {
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method       string            `json:"method" yaml:"method"`
	URL          string            `json:"url" yaml:"url"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body         string            `json:"body,omitempty" yaml:"body,omitempty"`
	ExpectStatus []int             `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`
	ExpectBody   string            `json:"expectBody,omitempty" yaml:"expectBody,omitempty"`
	Extract      map[string]string `json:"extract,omitempty" yaml:"extract,omitempty"` // variable -> JMESPath
}

// TLSConfig contains TLS/mTLS material for the load generator's HTTP client
type TLSConfig struct {
	CertFile           string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	CAFile             string `json:"caFile,omitempty" yaml:"caFile,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// IsZero reports whether no TLS option is set
func (t *TLSConfig) IsZero() bool {
	return t == nil || (t.CertFile == "" && t.KeyFile == "" && t.CAFile == "" && !t.InsecureSkipVerify)
}
