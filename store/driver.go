package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by updates and deletes that match no conversation.
var ErrNotFound = errors.New("not found")

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	// Message model related methods.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
}
