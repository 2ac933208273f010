package v1

import (
	"github.com/hrygo/omnichat/store"
)

type conversationPayload struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	OwnerID      string `json:"ownerId,omitempty"`
	Pinned       bool   `json:"pinned"`
	Archived     bool   `json:"archived"`
	CreatedTs    int64  `json:"createdTs"`
	UpdatedTs    int64  `json:"updatedTs"`
	MessageCount int32  `json:"messageCount"`
}

type conversationDetail struct {
	conversationPayload
	Messages []messagePayload `json:"messages"`
}

type messagePayload struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	ImageRef  string `json:"imageRef,omitempty"`
	CreatedTs int64  `json:"createdTs"`
}

type listConversationsResponse struct {
	Conversations []conversationPayload `json:"conversations"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
	Provider       string `json:"provider,omitempty"`
	Model          string `json:"model,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

type updateConversationRequest struct {
	Title    *string `json:"title"`
	Pinned   *bool   `json:"pinned"`
	Archived *bool   `json:"archived"`
}

type providerPayload struct {
	Position int    `json:"position"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type listProvidersResponse struct {
	Providers []providerPayload `json:"providers"`
}

func convertConversationFromStore(c *store.Conversation) conversationPayload {
	return conversationPayload{
		ID:           c.ID,
		Title:        c.Title,
		OwnerID:      c.OwnerID,
		Pinned:       c.Pinned,
		Archived:     c.Archived,
		CreatedTs:    c.CreatedTs,
		UpdatedTs:    c.UpdatedTs,
		MessageCount: c.MessageCount,
	}
}

func convertMessagesFromStore(messages []*store.Message) []messagePayload {
	out := make([]messagePayload, 0, len(messages))
	for _, m := range messages {
		out = append(out, messagePayload{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			ImageRef:  m.ImageRef,
			CreatedTs: m.CreatedTs,
		})
	}
	return out
}
