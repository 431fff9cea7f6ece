// Package auth supplies credentials to virtual user sessions. Secrets are
// read from the environment by name and never from scenario files.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/studiowebux/restswarm/internal/types"
	"github.com/studiowebux/restswarm/internal/vuser"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenRequestTimeout bounds each token endpoint call
const TokenRequestTimeout = 30 * time.Second

// ErrMissingSecret is returned when a named environment variable is unset or empty
var ErrMissingSecret = errors.New("missing secret")

// Authenticator sets the Authorization header on sessions
type Authenticator struct {
	static string
	source oauth2.TokenSource
}

// New builds an authenticator from spec. env maps variable names to values,
// usually the process environment merged with an env file. A nil spec or
// empty spec yields a nil authenticator and no error.
func New(ctx context.Context, spec *types.AuthSpec, env map[string]string, client *http.Client) (*Authenticator, error) {
	if spec == nil || (spec.BearerTokenEnv == "" && spec.OAuth == nil) {
		return nil, nil
	}
	if spec.BearerTokenEnv != "" && spec.OAuth != nil {
		return nil, errors.New("auth: bearerTokenEnv and oauth are mutually exclusive")
	}

	if spec.BearerTokenEnv != "" {
		token, err := secret(env, spec.BearerTokenEnv)
		if err != nil {
			return nil, err
		}
		return &Authenticator{static: token}, nil
	}

	o := spec.OAuth
	clientSecret, err := secret(env, o.ClientSecretEnv)
	if err != nil {
		return nil, err
	}

	cfg := &clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: clientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	if len(o.EndpointParams) > 0 {
		cfg.EndpointParams = url.Values{}
		for k, v := range o.EndpointParams {
			cfg.EndpointParams.Set(k, v)
		}
	}

	if client == nil {
		client = &http.Client{Timeout: TokenRequestTimeout}
	}
	// The token source keeps this context for every refresh
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, client)

	return &Authenticator{source: cfg.TokenSource(tokenCtx)}, nil
}

func secret(env map[string]string, name string) (string, error) {
	value, ok := env[name]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrMissingSecret, name)
	}
	return value, nil
}

// Verify fetches a token once so bad credentials fail before any user starts
func (a *Authenticator) Verify() error {
	if a == nil || a.source == nil {
		return nil
	}
	if _, err := a.source.Token(); err != nil {
		return fmt.Errorf("failed to obtain OAuth token: %w", err)
	}
	return nil
}

// Header returns the current Authorization header value
func (a *Authenticator) Header() (string, error) {
	if a.source == nil {
		return "Bearer " + a.static, nil
	}
	tok, err := a.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh OAuth token: %w", err)
	}
	return tok.Type() + " " + tok.AccessToken, nil
}

// Headers returns the headers set on every new session
func (a *Authenticator) Headers() (map[string]string, error) {
	if a == nil {
		return nil, nil
	}
	h, err := a.Header()
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": h}, nil
}

// Hook refreshes the Authorization header before each iteration. Static
// tokens never change, so only OAuth sources get a hook.
func (a *Authenticator) Hook() vuser.IterationHook {
	if a == nil || a.source == nil {
		return nil
	}
	return func(ctx context.Context, s *vuser.Session) error {
		h, err := a.Header()
		if err != nil {
			return err
		}
		if s.Header("Authorization") != h {
			s.SetHeader("Authorization", h)
		}
		return nil
	}
}
