package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent chatstream configuration stored as
// config.toml in the .chatstream/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version int          `toml:"version"`
	Client  ClientConfig `toml:"client"`
	Chat    ChatConfig   `toml:"chat"`
	Mock    MockConfig   `toml:"mock"`
}

// ClientConfig holds settings for the outbound chat completions request.
type ClientConfig struct {
	// Endpoint is the full URL of the chat completions endpoint.
	Endpoint string `toml:"endpoint,omitempty"`

	// Model is the model identifier sent with every request.
	Model string `toml:"model,omitempty"`
}

// ChatConfig holds conversation settings.
type ChatConfig struct {
	// HistoryWindow is how many of the most recent messages are sent with
	// each request.
	HistoryWindow uint `toml:"history_window,omitempty"`

	// Greeting seeds the conversation with an assistant message. Empty
	// disables it.
	Greeting string `toml:"greeting,omitempty"`

	// RequestTimeout bounds a single streamed reply, as a Go duration
	// string. "0s" means no timeout.
	RequestTimeout string `toml:"request_timeout,omitempty"`
}

// MockConfig holds settings for the local mock completions server.
type MockConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.endpoint": {
		get: func(c *Config) string { return c.Client.Endpoint },
		set: func(c *Config, v string) error { c.Client.Endpoint = v; return nil },
	},
	"client.model": {
		get: func(c *Config) string { return c.Client.Model },
		set: func(c *Config, v string) error { c.Client.Model = v; return nil },
	},
	"chat.history_window": {
		get: func(c *Config) string {
			if c.Chat.HistoryWindow == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Chat.HistoryWindow), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for chat.history_window: %w", err)
			}
			c.Chat.HistoryWindow = uint(n)
			return nil
		},
	},
	"chat.greeting": {
		get: func(c *Config) string { return c.Chat.Greeting },
		set: func(c *Config, v string) error { c.Chat.Greeting = v; return nil },
	},
	"chat.request_timeout": {
		get: func(c *Config) string { return c.Chat.RequestTimeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for chat.request_timeout: %w", err)
			}
			c.Chat.RequestTimeout = v
			return nil
		},
	},
	"mock.listen": {
		get: func(c *Config) string { return c.Mock.Listen },
		set: func(c *Config, v string) error { c.Mock.Listen = v; return nil },
	},
}
