package chat

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Turn is one inbound message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat turn as submitted by a client.
type Request struct {
	Messages       []Turn
	ConversationID string
	// OwnerID is the opaque owner reference supplied by the identity layer.
	OwnerID string
}

// DecodeRequest parses a JSON request body. A missing, null or non-list
// messages field is an invalid request.
func DecodeRequest(data []byte) (*Request, error) {
	var raw struct {
		Messages       json.RawMessage `json:"messages"`
		ConversationID string          `json:"conversationId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, invalid("malformed JSON body")
	}

	messages := bytes.TrimSpace(raw.Messages)
	if len(messages) == 0 || bytes.Equal(messages, []byte("null")) {
		return nil, invalid("messages is required")
	}
	if messages[0] != '[' {
		return nil, invalid("messages must be a list")
	}

	var turns []Turn
	if err := json.Unmarshal(messages, &turns); err != nil {
		return nil, invalid("messages must be a list of {role, content} objects")
	}

	return &Request{
		Messages:       turns,
		ConversationID: raw.ConversationID,
	}, nil
}
