package llm

// ChatCompletionChunk is the JSON document carried by a single "data: " line
// of a streaming chat completion response.
type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"` // "chat.completion.chunk"
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice `json:"choices"`
	Usage             *Usage        `json:"usage,omitempty"`
}

// ChunkChoice is a single choice within a chunk.
// FinishReason is nil for intermediate chunks.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	Logprobs     any        `json:"logprobs,omitempty"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta is the incremental content of a choice. The first delta of a
// stream usually carries only the Role. Content is a pointer so that an
// absent field can be told apart from an empty string.
type ChunkDelta struct {
	Role    Role    `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Usage contains token counts, present on the final chunk when the upstream
// was asked to include them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// DeltaContent returns the incremental text of the first choice, or "" when
// the chunk has no choices or the first delta carries no content.
func (c *ChatCompletionChunk) DeltaContent() string {
	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == nil {
		return ""
	}
	return *c.Choices[0].Delta.Content
}

// NewDeltaChunk builds a chunk whose first choice carries text.
func NewDeltaChunk(id, model string, created int64, text string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{Delta: ChunkDelta{Content: &text}}},
	}
}
