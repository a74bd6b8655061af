// Package llm provides internal representations of OpenAI-compatible chat
// completion requests and responses which are exchanged with an upstream
// inference API.
package llm

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single message in a conversation.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// NewSystemMessage creates a system message with plain text content.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: Text(text)}
}

// NewUserMessage creates a user message with plain text content.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: Text(text)}
}

// NewAssistantMessage creates an assistant message with plain text content.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: Text(text)}
}
