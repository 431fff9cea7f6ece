package vuser

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/studiowebux/restswarm/internal/types"
)

const (
	// HTTP client configuration timeouts
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 5 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Client is the HTTP capability a session depends on
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOptions configures the shared HTTP client
type ClientOptions struct {
	MaxConns       int // sized to the user population
	RequestTimeout time.Duration
	TLS            *types.TLSConfig
}

// NewHTTPClient creates an HTTP client tuned for load generation
// with connection pooling, timeouts and optional TLS/mTLS material.
// The client is safe to share between users; cookies are kept per session.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 100
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns * 2,
		IdleConnTimeout:     IdleConnTimeout,
		ForceAttemptHTTP2:   true,

		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,

		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: ExpectContinueTimeout,
	}

	tlsCfg, err := BuildTLSConfig(opts.TLS)
	if err != nil {
		return nil, err
	}
	transport.TLSClientConfig = tlsCfg

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		// Redirects are followed by default; cookies are handled by the session
	}, nil
}

// BuildTLSConfig turns TLS file settings into a *tls.Config, or nil when unset
func BuildTLSConfig(cfg *types.TLSConfig) (*tls.Config, error) {
	if cfg.IsZero() {
		return nil, nil
	}

	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	// Load client certificate if provided (for mTLS)
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	// Load CA certificate if provided (for server verification)
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = caCertPool
	}

	return tlsCfg, nil
}

// CloseIdleConnections releases pooled connections when the client supports it
func CloseIdleConnections(c Client) {
	if closer, ok := c.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}
