package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when neither the environment nor credentials.toml
// carries a key for the provider.
var ErrNoAPIKey = errors.New("no API key configured")

// Resolver looks up the API key for a single provider. The provider's
// environment variable wins over the stored credential so a key can be
// swapped for one invocation without touching credentials.toml.
type Resolver struct {
	provider string
	mgr      *Manager
	getenv   func(string) string
}

// NewResolver returns a Resolver for provider. mgr may be nil, in which case
// only the environment is consulted.
func NewResolver(provider string, mgr *Manager) *Resolver {
	return &Resolver{
		provider: provider,
		mgr:      mgr,
		getenv:   os.Getenv,
	}
}

// APIKey returns the key for the resolver's provider, or ErrNoAPIKey.
func (r *Resolver) APIKey() (string, error) {
	if envVar := EnvVarForProvider(r.provider); envVar != "" {
		if key := strings.TrimSpace(r.getenv(envVar)); key != "" {
			return key, nil
		}
	}

	if r.mgr != nil {
		key, err := r.mgr.GetKey(r.provider)
		if err != nil {
			return "", fmt.Errorf("loading %s credential: %w", r.provider, err)
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}

	return "", fmt.Errorf("%w for %s: set %s or run 'chatstream auth %s'",
		ErrNoAPIKey, r.provider, EnvVarForProvider(r.provider), r.provider)
}

// Source reports where the key would be read from: "env", "file", or "".
func (r *Resolver) Source() string {
	if envVar := EnvVarForProvider(r.provider); envVar != "" && strings.TrimSpace(r.getenv(envVar)) != "" {
		return "env"
	}
	if r.mgr != nil {
		if key, err := r.mgr.GetKey(r.provider); err == nil && strings.TrimSpace(key) != "" {
			return "file"
		}
	}
	return ""
}
