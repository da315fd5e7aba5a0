package llm

// ChatRequest is the body POSTed to the chat completions endpoint.
type ChatRequest struct {
	// Conversation messages, oldest first
	Messages []Message `json:"messages"`

	// Model name (e.g., "gpt-4o")
	Model string `json:"model"`

	// Whether to stream the response. Always true for this client.
	Stream bool `json:"stream"`
}

// NewStreamingRequest builds a streaming ChatRequest for model over messages.
func NewStreamingRequest(model string, messages []Message) ChatRequest {
	return ChatRequest{
		Messages: messages,
		Model:    model,
		Stream:   true,
	}
}
