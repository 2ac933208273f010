package llm

import "strings"

// Role is the author of a chat turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    Role
	Content string
}

// CallStats represents statistics for a single completion call.
type CallStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// TotalDurationMs is the total wall-clock time for the request.
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// DefaultSystemPrompt is used when no persona is configured or the turns carry no system message.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// EmptyCompletionText replaces a successful completion that carried no text.
const EmptyCompletionText = "I apologize, but I could not generate a response."

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SplitSystem separates system turns from the conversation for vendors that
// take the system instruction out of band. Multiple system turns are joined
// with a blank line. An empty result falls back to DefaultSystemPrompt.
func SplitSystem(turns []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(turns))
	for _, t := range turns {
		if t.Role == RoleSystem {
			if s := strings.TrimSpace(t.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		rest = append(rest, t)
	}
	if len(system) == 0 {
		return DefaultSystemPrompt, rest
	}
	return strings.Join(system, "\n\n"), rest
}

func completionText(s string) string {
	if strings.TrimSpace(s) == "" {
		return EmptyCompletionText
	}
	return s
}
