// Package mockserver provides a local OpenAI-compatible chat completions
// server that streams deterministic replies. It is used for offline use of
// the chat client and for end-to-end tests of the streaming pipeline.
package mockserver

import (
	"strings"
	"time"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// Config is the mock server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "127.0.0.1:8090")
	ListenAddr string

	// APIKey, when set, is required as a bearer token on every completion
	// request. Requests without it get a 401.
	APIKey string

	// Model is reported in chunks when the request does not name one.
	Model string

	// FragmentSize splits the raw event stream into writes of at most this
	// many bytes, regardless of frame or character boundaries. Zero writes
	// one frame at a time.
	FragmentSize int

	// Delay is slept between writes.
	Delay time.Duration

	// Responder produces the reply text. Nil uses EchoResponder.
	Responder Responder
}

// Responder returns the full reply for a conversation.
type Responder func(messages []llm.Message) string

// EchoResponder replies with the last user message.
func EchoResponder(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return "Echo: " + messages[i].Content
		}
	}
	return "Echo:"
}

// splitWords cuts text into word-sized deltas, keeping separators attached
// so the pieces concatenate back to text.
func splitWords(text string) []string {
	if text == "" {
		return nil
	}
	return strings.SplitAfter(text, " ")
}
