package chat

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aicontext "github.com/hrygo/omnichat/ai/context"
	"github.com/hrygo/omnichat/ai/core/llm"
	"github.com/hrygo/omnichat/ai/router"
	"github.com/hrygo/omnichat/internal/logging"
	"github.com/hrygo/omnichat/store"
)

// memStore is an in-memory ConversationStore that also serves history to the assembler.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]*store.Conversation
	messages      []*store.Message
	nextID        int64
	writes        int

	getErr    error
	appendErr error
	failAfter int // fail AppendMessage once this many messages were appended; 0 disables
}

func newMemStore() *memStore {
	return &memStore{conversations: map[string]*store.Conversation{}}
}

func (s *memStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	for _, m := range s.messages {
		if m.ConversationID == id {
			cp.MessageCount++
		}
	}
	return &cp, nil
}

func (s *memStore) GetOrCreateConversation(_ context.Context, create *store.CreateConversation) (*store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[create.ID]; ok {
		return c, nil
	}
	s.writes++
	c := &store.Conversation{ID: create.ID, Title: create.Title, OwnerID: create.OwnerID}
	s.conversations[c.ID] = c
	return c, nil
}

func (s *memStore) AppendMessage(_ context.Context, create *store.CreateMessage) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	if s.failAfter > 0 && len(s.messages) >= s.failAfter {
		return nil, assert.AnError
	}
	s.writes++
	s.nextID++
	m := &store.Message{
		ID:             s.nextID,
		ConversationID: create.ConversationID,
		Role:           create.Role,
		Content:        create.Content,
		CreatedTs:      s.nextID,
	}
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *memStore) TouchConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if c, ok := s.conversations[id]; ok {
		c.UpdatedTs++
	}
	return nil
}

func (s *memStore) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Message
	for _, m := range s.messages {
		if m.ConversationID == find.ConversationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if find.Desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if find.Limit != nil && len(out) > *find.Limit {
		out = out[:*find.Limit]
	}
	return out, nil
}

func (s *memStore) contents(conversationID string) []string {
	msgs, _ := s.ListMessages(context.Background(), &store.FindMessage{ConversationID: conversationID})
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Role)+":"+m.Content)
	}
	return out
}

// fakeGenerator records the prompt it was given.
type fakeGenerator struct {
	text   string
	err    error
	prompt []llm.Message
	calls  int
}

func (g *fakeGenerator) Generate(_ context.Context, turns []llm.Message) (*router.Result, error) {
	g.calls++
	g.prompt = turns
	if g.err != nil {
		return nil, g.err
	}
	return &router.Result{Text: g.text, Provider: "openai", Model: "gpt-4o-mini"}, nil
}

type fakeRecorder struct {
	statuses []string
	partial  int
	active   int
}

func (r *fakeRecorder) ChatStarted()  { r.active++ }
func (r *fakeRecorder) ChatFinished() { r.active-- }
func (r *fakeRecorder) RecordChatRequest(status string, _ time.Duration) {
	r.statuses = append(r.statuses, status)
}
func (r *fakeRecorder) RecordPartialPersistence() { r.partial++ }

func newTestOrchestrator(s *memStore, g *fakeGenerator, opts ...Option) *Orchestrator {
	return NewOrchestrator(s, aicontext.NewAssembler(s, aicontext.Config{}), g, opts...)
}

func TestChat_NewConversation(t *testing.T) {
	s := newMemStore()
	g := &fakeGenerator{text: "Hello! How can I help?"}
	rec := &fakeRecorder{}
	o := newTestOrchestrator(s, g, WithRecorder(rec))

	resp, err := o.Chat(context.Background(), &Request{
		Messages: []Turn{{Role: "user", Content: "Hi"}},
		OwnerID:  "u1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "Hello! How can I help?", resp.AssistantText)
	assert.Equal(t, "openai", resp.Provider)
	assert.NoError(t, resp.Warning)

	assert.Equal(t, []llm.Message{
		llm.SystemPrompt(llm.DefaultSystemPrompt),
		llm.UserMessage("Hi"),
	}, g.prompt)

	conv := s.conversations[resp.ConversationID]
	require.NotNil(t, conv)
	assert.Equal(t, "Hi", conv.Title)
	assert.Equal(t, "u1", conv.OwnerID)
	assert.Equal(t, []string{"user:Hi", "assistant:Hello! How can I help?"}, s.contents(resp.ConversationID))

	assert.Equal(t, []string{"success"}, rec.statuses)
	assert.Equal(t, 0, rec.active)
}

func TestChat_ExistingConversationUsesWindow(t *testing.T) {
	s := newMemStore()
	s.conversations["c1"] = &store.Conversation{ID: "c1", Title: "old"}
	for i := 1; i <= 12; i++ {
		role := store.RoleUser
		if i%2 == 0 {
			role = store.RoleAssistant
		}
		_, err := s.AppendMessage(context.Background(), &store.CreateMessage{
			ConversationID: "c1", Role: role, Content: fmt.Sprintf("m%d", i),
		})
		require.NoError(t, err)
	}
	g := &fakeGenerator{text: "reply"}
	o := newTestOrchestrator(s, g)

	resp, err := o.Chat(context.Background(), &Request{
		ConversationID: "c1",
		Messages:       []Turn{{Role: "user", Content: "next"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", resp.ConversationID)

	require.Len(t, g.prompt, 12)
	assert.Equal(t, llm.RoleSystem, g.prompt[0].Role)
	assert.Equal(t, "m3", g.prompt[1].Content)
	assert.Equal(t, llm.UserMessage("next"), g.prompt[11])

	contents := s.contents("c1")
	require.Len(t, contents, 14)
	assert.Equal(t, []string{"user:next", "assistant:reply"}, contents[12:])
	assert.Equal(t, "old", s.conversations["c1"].Title)
}

func TestChat_UnknownConversationIDCreatedWithThatID(t *testing.T) {
	s := newMemStore()
	o := newTestOrchestrator(s, &fakeGenerator{text: "ok"})

	resp, err := o.Chat(context.Background(), &Request{
		ConversationID: "client-chosen",
		Messages:       []Turn{{Role: "user", Content: "Hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "client-chosen", resp.ConversationID)
	assert.Contains(t, s.conversations, "client-chosen")
}

func TestChat_NewConversationStoresEveryInboundTurn(t *testing.T) {
	s := newMemStore()
	g := &fakeGenerator{text: "answer"}
	o := newTestOrchestrator(s, g)

	resp, err := o.Chat(context.Background(), &Request{
		Messages: []Turn{
			{Role: "user", Content: "q1"},
			{Role: "assistant", Content: "a1"},
			{Role: "user", Content: "q2"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, g.prompt, 4)
	assert.Equal(t, []string{"user:q1", "assistant:a1", "user:q2", "assistant:answer"}, s.contents(resp.ConversationID))
	assert.Equal(t, "q1", s.conversations[resp.ConversationID].Title)

	// The next turn sees the whole exchange as history.
	_, err = o.Chat(context.Background(), &Request{
		ConversationID: resp.ConversationID,
		Messages:       []Turn{{Role: "user", Content: "q3"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		llm.SystemPrompt(llm.DefaultSystemPrompt),
		llm.UserMessage("q1"),
		llm.AssistantMessage("a1"),
		llm.UserMessage("q2"),
		llm.AssistantMessage("answer"),
		llm.UserMessage("q3"),
	}, g.prompt)
}

func TestChat_StoredConversationAppendsTrailingUserTurns(t *testing.T) {
	s := newMemStore()
	s.conversations["c1"] = &store.Conversation{ID: "c1", Title: "old"}
	for _, m := range []store.CreateMessage{
		{ConversationID: "c1", Role: store.RoleUser, Content: "q1"},
		{ConversationID: "c1", Role: store.RoleAssistant, Content: "a1"},
	} {
		_, err := s.AppendMessage(context.Background(), &m)
		require.NoError(t, err)
	}
	g := &fakeGenerator{text: "answer"}
	o := newTestOrchestrator(s, g)

	_, err := o.Chat(context.Background(), &Request{
		ConversationID: "c1",
		Messages: []Turn{
			{Role: "user", Content: "q1"},
			{Role: "assistant", Content: "a1"},
			{Role: "user", Content: "q2"},
			{Role: "user", Content: "q3"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"user:q1", "assistant:a1", "user:q2", "user:q3", "assistant:answer",
	}, s.contents("c1"))
}

func TestChat_OtherOwnersConversationIsNotFound(t *testing.T) {
	s := newMemStore()
	s.conversations["c1"] = &store.Conversation{ID: "c1", OwnerID: "u1"}
	_, err := s.AppendMessage(context.Background(), &store.CreateMessage{
		ConversationID: "c1", Role: store.RoleUser, Content: "my secret is 1234",
	})
	require.NoError(t, err)
	writes := s.writes
	g := &fakeGenerator{text: "unused"}
	rec := &fakeRecorder{}
	o := newTestOrchestrator(s, g, WithRecorder(rec))

	resp, err := o.Chat(context.Background(), &Request{
		ConversationID: "c1",
		OwnerID:        "u2",
		Messages:       []Turn{{Role: "user", Content: "what was the secret?"}},
	})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Equal(t, 0, g.calls)
	assert.Equal(t, writes, s.writes)
	assert.Equal(t, []string{"not_found"}, rec.statuses)

	// Same owner and no owner both pass.
	for _, owner := range []string{"u1", ""} {
		_, err := o.Chat(context.Background(), &Request{
			ConversationID: "c1",
			OwnerID:        owner,
			Messages:       []Turn{{Role: "user", Content: "again"}},
		})
		require.NoError(t, err)
	}
}

func TestChat_InvalidRequestWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
	}{
		{"nil request", nil},
		{"empty messages", &Request{}},
		{"unknown role", &Request{Messages: []Turn{{Role: "robot", Content: "x"}}}},
		{"system role", &Request{Messages: []Turn{{Role: "system", Content: "x"}, {Role: "user", Content: "y"}}}},
		{"last turn not user", &Request{Messages: []Turn{{Role: "user", Content: "x"}, {Role: "assistant", Content: "y"}}}},
		{"blank last turn", &Request{Messages: []Turn{{Role: "user", Content: "   "}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newMemStore()
			g := &fakeGenerator{text: "unused"}
			o := newTestOrchestrator(s, g)

			resp, err := o.Chat(context.Background(), tt.req)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, 0, g.calls)
			assert.Equal(t, 0, s.writes)
		})
	}
}

func TestChat_ProviderUnavailableWritesNothing(t *testing.T) {
	s := newMemStore()
	g := &fakeGenerator{err: &router.ExhaustedError{Last: &llm.ProviderError{Kind: llm.KindRateLimited}}}
	rec := &fakeRecorder{}
	o := newTestOrchestrator(s, g, WithRecorder(rec))

	resp, err := o.Chat(context.Background(), &Request{Messages: []Turn{{Role: "user", Content: "Hi"}}})
	assert.Nil(t, resp)
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, router.ErrProviderUnavailable)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, StateCalling, chatErr.State)
	assert.Equal(t, "AI provider unavailable", chatErr.Message)

	assert.Equal(t, 0, s.writes)
	assert.Empty(t, s.conversations)
	assert.Equal(t, []string{"provider_unavailable"}, rec.statuses)
}

func TestChat_StoreErrorWhileResolving(t *testing.T) {
	s := newMemStore()
	s.getErr = assert.AnError
	g := &fakeGenerator{text: "unused"}
	o := newTestOrchestrator(s, g)

	_, err := o.Chat(context.Background(), &Request{
		ConversationID: "c1",
		Messages:       []Turn{{Role: "user", Content: "Hi"}},
	})
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, g.calls)
}

func TestChat_PartialPersistence(t *testing.T) {
	s := newMemStore()
	s.failAfter = 1 // user turn stored, assistant turn fails
	rec := &fakeRecorder{}
	o := newTestOrchestrator(s, &fakeGenerator{text: "reply"}, WithRecorder(rec))

	resp, err := o.Chat(context.Background(), &Request{Messages: []Turn{{Role: "user", Content: "Hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "reply", resp.AssistantText)
	assert.ErrorIs(t, resp.Warning, ErrPartialPersistence)
	assert.Equal(t, []string{"user:Hi"}, s.contents(resp.ConversationID))
	assert.Equal(t, 1, rec.partial)
	assert.Equal(t, []string{"partial_persistence"}, rec.statuses)
}

func TestChat_PersistsAfterCallerCancels(t *testing.T) {
	s := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	g := &cancellingGenerator{cancel: cancel}
	o := NewOrchestrator(s, aicontext.NewAssembler(s, aicontext.Config{}), g)

	resp, err := o.Chat(ctx, &Request{Messages: []Turn{{Role: "user", Content: "Hi"}}})
	require.NoError(t, err)
	assert.NoError(t, resp.Warning)
	assert.Len(t, s.contents(resp.ConversationID), 2)
}

// cancellingGenerator cancels the caller's context right after answering.
type cancellingGenerator struct {
	cancel context.CancelFunc
}

func (g *cancellingGenerator) Generate(context.Context, []llm.Message) (*router.Result, error) {
	g.cancel()
	return &router.Result{Text: "done", Provider: "openai", Model: "gpt-4o-mini"}, nil
}

func TestDecodeRequest(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"messages":[{"role":"user","content":"Hi"}],"conversationId":"c1"}`))
		require.NoError(t, err)
		assert.Equal(t, "c1", req.ConversationID)
		assert.Equal(t, []Turn{{Role: "user", Content: "Hi"}}, req.Messages)
	})

	for name, body := range map[string]string{
		"malformed":       `{"messages":`,
		"missing":         `{}`,
		"null":            `{"messages":null}`,
		"string":          `{"messages":"hello"}`,
		"object":          `{"messages":{"role":"user"}}`,
		"list of strings": `{"messages":["hello"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestTitleFor(t *testing.T) {
	long := "Tell me everything you know about the history of the Roman empire please"
	title := titleFor([]Turn{{Role: "user", Content: long}})
	assert.Equal(t, 50, len([]rune(title)))
	assert.Equal(t, "New conversation", titleFor([]Turn{{Role: "user", Content: "  "}}))
}

func TestChat_LogsContentPreviewOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := logging.ToContext(context.Background(), logger)

	long := strings.Repeat("a", 200) + "SECRET-TAIL"
	o := newTestOrchestrator(newMemStore(), &fakeGenerator{text: "ok"})
	_, err := o.Chat(ctx, &Request{Messages: []Turn{{Role: "user", Content: long}}})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "chat: turn received")
	assert.Contains(t, out, strings.Repeat("a", previewLen)+"...")
	assert.NotContains(t, out, "SECRET-TAIL")
}
