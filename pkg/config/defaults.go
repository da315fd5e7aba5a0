package config

const (
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel    = "gpt-4o"

	defaultHistoryWindow  = 5
	defaultGreeting       = "Hello! How can I help you?"
	defaultRequestTimeout = "0s"

	defaultMockListen = "127.0.0.1:8090"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			Endpoint: defaultEndpoint,
			Model:    defaultModel,
		},
		Chat: ChatConfig{
			HistoryWindow:  defaultHistoryWindow,
			Greeting:       defaultGreeting,
			RequestTimeout: defaultRequestTimeout,
		},
		Mock: MockConfig{
			Listen: defaultMockListen,
		},
	}
}
