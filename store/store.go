package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/omnichat/internal/profile"
)

// Store provides database access to conversations and messages.
//
// Writes are serialized per conversation, and message timestamps are clamped
// so that a conversation's messages never go backwards in time even when
// the wall clock does.
type Store struct {
	profile *profile.Profile
	driver  Driver

	locks *keyedMutex

	tsMu   sync.Mutex
	lastTs map[string]int64

	now func() time.Time
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		profile: profile,
		driver:  driver,
		locks:   newKeyedMutex(),
		lastTs:  make(map[string]int64),
		now:     time.Now,
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// GetConversation returns nil when the conversation does not exist.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// GetOrCreateConversation returns the conversation with create.ID, creating it when absent.
func (s *Store) GetOrCreateConversation(ctx context.Context, create *CreateConversation) (*Conversation, error) {
	id := create.ID
	if id == "" {
		id = shortuuid.New()
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now().UnixMilli()
	return s.driver.CreateConversation(ctx, &Conversation{
		ID:        id,
		Title:     create.Title,
		OwnerID:   create.OwnerID,
		CreatedTs: now,
		UpdatedTs: now,
	})
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	if update.UpdatedTs == nil {
		now := s.now().UnixMilli()
		update.UpdatedTs = &now
	}
	return s.driver.UpdateConversation(ctx, update)
}

// TouchConversation bumps the conversation's updated timestamp.
func (s *Store) TouchConversation(ctx context.Context, id string) error {
	now := s.now().UnixMilli()
	_, err := s.driver.UpdateConversation(ctx, &UpdateConversation{ID: id, UpdatedTs: &now})
	return err
}

// DeleteConversation deletes the conversation and all of its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.driver.DeleteConversation(ctx, &DeleteConversation{ID: id}); err != nil {
		return err
	}

	s.tsMu.Lock()
	delete(s.lastTs, id)
	s.tsMu.Unlock()
	return nil
}

// AppendMessage appends a message to an existing conversation.
func (s *Store) AppendMessage(ctx context.Context, create *CreateMessage) (*Message, error) {
	if create.ConversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	if !create.Role.Valid() {
		return nil, fmt.Errorf("invalid message role %q", create.Role)
	}

	unlock := s.locks.Lock(create.ConversationID)
	defer unlock()

	ts, err := s.nextTs(ctx, create.ConversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.driver.CreateMessage(ctx, &Message{
		ConversationID: create.ConversationID,
		Role:           create.Role,
		Content:        create.Content,
		ImageRef:       create.ImageRef,
		CreatedTs:      ts,
	})
	if err != nil {
		return nil, err
	}

	s.tsMu.Lock()
	s.lastTs[create.ConversationID] = ts
	s.tsMu.Unlock()
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// nextTs must be called with the conversation lock held.
func (s *Store) nextTs(ctx context.Context, conversationID string) (int64, error) {
	s.tsMu.Lock()
	last, ok := s.lastTs[conversationID]
	s.tsMu.Unlock()

	if !ok {
		one := 1
		latest, err := s.driver.ListMessages(ctx, &FindMessage{ConversationID: conversationID, Limit: &one, Desc: true})
		if err != nil {
			return 0, err
		}
		if len(latest) > 0 {
			last = latest[0].CreatedTs
		}
	}

	ts := s.now().UnixMilli()
	if ts < last {
		ts = last
	}
	return ts, nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the lock for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
