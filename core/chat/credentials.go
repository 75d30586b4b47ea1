package chat

import "os"

// DefaultAPIKeyEnv is the environment variable consulted when no key is
// configured.
const DefaultAPIKeyEnv = "DASHSCOPE_API_KEY"

// KeyResolver finds the provider API key: the configured value first, then
// the environment variable.
type KeyResolver struct {
	Configured string
	EnvVar     string

	// lookup replaces os.LookupEnv in tests.
	lookup func(string) (string, bool)
}

// NewKeyResolver returns a resolver falling back to DASHSCOPE_API_KEY.
func NewKeyResolver(configured string) KeyResolver {
	return KeyResolver{Configured: configured, EnvVar: DefaultAPIKeyEnv}
}

// Resolve returns the key or a *CredentialError.
func (r KeyResolver) Resolve() (string, error) {
	if r.Configured != "" {
		return r.Configured, nil
	}

	envVar := r.EnvVar
	if envVar == "" {
		envVar = DefaultAPIKeyEnv
	}
	lookup := r.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(envVar); ok && value != "" {
		return value, nil
	}
	return "", &CredentialError{EnvVar: envVar}
}
