package store

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is an immutable turn of a conversation.
// Messages are ordered by (CreatedTs, ID).
type Message struct {
	ID             int64
	ConversationID string
	Role           Role
	Content        string
	ImageRef       string
	CreatedTs      int64
}

type CreateMessage struct {
	ConversationID string
	Role           Role
	Content        string
	ImageRef       string
}

type FindMessage struct {
	ConversationID string
	// Limit keeps the first N rows in the requested order.
	Limit *int
	// Desc returns newest first.
	Desc bool
}
