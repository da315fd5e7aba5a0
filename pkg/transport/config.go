package transport

import (
	"log/slog"
	"net/http"
)

// Config is the stream transport configuration.
type Config struct {
	// Endpoint is the full chat completions URL
	// (e.g., "https://api.openai.com/v1/chat/completions").
	Endpoint string

	// Model is the model identifier sent with every request.
	Model string

	// Credentials supplies the API key. It is consulted on every Open so a
	// key stored mid-session is picked up without restarting.
	Credentials CredentialSource

	// HTTPClient overrides the default client. The default has no overall
	// timeout because streamed replies are bounded by the caller's context.
	HTTPClient *http.Client

	// Logger is the provided slog logger. Nil discards.
	Logger *slog.Logger
}

// CredentialSource resolves the bearer credential for a request.
type CredentialSource interface {
	APIKey() (string, error)
}

// StaticKey is a CredentialSource that always returns itself.
type StaticKey string

// APIKey returns k, or ErrMissingCredential when k is empty.
func (k StaticKey) APIKey() (string, error) {
	if k == "" {
		return "", ErrMissingCredential
	}
	return string(k), nil
}
