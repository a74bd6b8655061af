package llm

// ChatRequest represents a chat completion request (OpenAI-compatible).
type ChatRequest struct {
	Model    string    `json:"model"`            // Model name (e.g., "qwen-vl-max")
	Messages []Message `json:"messages"`         // Conversation history
	Stream   bool      `json:"stream,omitempty"` // Whether to stream the response

	// Generation options
	Temperature float64 `json:"temperature,omitempty"` // Creativity (0.0-2.0)
	MaxTokens   int     `json:"max_tokens,omitempty"`  // Max tokens to generate
}
