package store

// Conversation is a titled thread of messages.
type Conversation struct {
	ID        string
	Title     string
	OwnerID   string
	Pinned    bool
	Archived  bool
	CreatedTs int64
	UpdatedTs int64

	// MessageCount is populated by ListConversations and GetConversation.
	MessageCount int32
}

type CreateConversation struct {
	// ID is generated when empty.
	ID      string
	OwnerID string
	Title   string
}

type FindConversation struct {
	ID       *string
	OwnerID  *string
	Pinned   *bool
	Archived *bool
	Limit    *int
}

type UpdateConversation struct {
	ID        string
	Title     *string
	Pinned    *bool
	Archived  *bool
	UpdatedTs *int64
}

type DeleteConversation struct {
	ID string
}
