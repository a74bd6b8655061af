package llm

// Delta carries the incremental part of a streamed choice.
type Delta struct {
	Role    Role   `json:"role,omitempty"`
	Content string `json:"content"`
}

// StreamChoice is one choice in a streaming chunk.
type StreamChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

// StreamChunk represents a single chunk of a streaming response
// (OpenAI-compatible SSE payload).
type StreamChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// Fragment returns the text carried by the first choice's delta.
func (c *StreamChunk) Fragment() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// Done reports whether the chunk signals the end of generation.
func (c *StreamChunk) Done() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}
