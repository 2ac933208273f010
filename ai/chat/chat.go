// Package chat runs a single chat turn: validate the request, assemble the
// prompt, call the provider chain and persist the exchange.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/omnichat/ai/core/llm"
	"github.com/hrygo/omnichat/ai/internal/strutil"
	"github.com/hrygo/omnichat/ai/router"
	"github.com/hrygo/omnichat/internal/logging"
	"github.com/hrygo/omnichat/store"
)

// State is a step of the per-request state machine.
type State string

const (
	StateIdle       State = "idle"
	StateResolving  State = "resolving"
	StateAssembling State = "assembling"
	StateCalling    State = "calling"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

const (
	titleMaxLen = 50
	// previewLen bounds message content written to logs.
	previewLen = 80

	defaultPersistTimeout = 10 * time.Second
)

// Generator produces a completion from an ordered candidate list.
type Generator interface {
	Generate(ctx context.Context, turns []llm.Message) (*router.Result, error)
}

// ContextBuilder assembles the prompt for a conversation.
type ContextBuilder interface {
	Build(ctx context.Context, conversationID string, newTurns []llm.Message) ([]llm.Message, error)
}

// ConversationStore is the part of the store a chat turn writes through.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	GetOrCreateConversation(ctx context.Context, create *store.CreateConversation) (*store.Conversation, error)
	AppendMessage(ctx context.Context, create *store.CreateMessage) (*store.Message, error)
	TouchConversation(ctx context.Context, id string) error
}

// Recorder receives per-turn outcomes. Optional.
type Recorder interface {
	ChatStarted()
	ChatFinished()
	RecordChatRequest(status string, latency time.Duration)
	RecordPartialPersistence()
}

// Response is the result of a successful turn.
type Response struct {
	ConversationID string
	AssistantText  string
	Provider       string
	Model          string
	// Warning is ErrPartialPersistence when the completion was produced but
	// not everything could be stored.
	Warning error
}

// Orchestrator runs chat turns. It is safe for concurrent use.
type Orchestrator struct {
	store          ConversationStore
	context        ContextBuilder
	generator      Generator
	recorder       Recorder
	persistTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPersistTimeout bounds the persistence phase.
func WithPersistTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.persistTimeout = d
		}
	}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(s ConversationStore, cb ContextBuilder, g Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:          s,
		context:        cb,
		generator:      g,
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// turn tracks one request through the state machine.
type turn struct {
	id             string
	conversationID string
	state          State
	start          time.Time
	logger         *slog.Logger
}

func (t *turn) enter(next State) {
	t.logger.Debug("chat: state transition",
		"conversation_id", t.conversationID,
		"from", t.state,
		"to", next,
	)
	t.state = next
}

// Chat runs one turn. Nothing is written to the store unless a provider
// returned a completion.
func (o *Orchestrator) Chat(ctx context.Context, req *Request) (resp *Response, err error) {
	t := &turn{id: shortuuid.New(), state: StateIdle, start: time.Now()}
	t.logger = logging.FromContext(ctx).With("turn", t.id)
	if o.recorder != nil {
		o.recorder.ChatStarted()
	}
	defer func() {
		o.finish(t, resp, err)
	}()

	t.enter(StateResolving)
	if req == nil {
		return nil, invalid("request body is required")
	}
	turns, err := validate(req.Messages)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("chat: turn received",
		"messages", len(turns),
		"last_message", strutil.Preview(turns[len(turns)-1].Content, previewLen),
	)

	conversationID := strings.TrimSpace(req.ConversationID)
	t.conversationID = conversationID
	historyID := ""
	hasHistory := false
	if conversationID != "" {
		conv, err := o.store.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, &Error{State: t.state, Kind: ErrStore, Message: "failed to load conversation", Err: err}
		}
		if conv != nil {
			if req.OwnerID != "" && conv.OwnerID != req.OwnerID {
				return nil, &Error{State: t.state, Kind: ErrConversationNotFound, Message: "conversation not found"}
			}
			historyID = conv.ID
			hasHistory = conv.MessageCount > 0
		}
	} else {
		// The row itself is only created once a completion exists.
		conversationID = shortuuid.New()
		t.conversationID = conversationID
	}

	t.enter(StateAssembling)
	prompt, err := o.context.Build(ctx, historyID, turns)
	if err != nil {
		return nil, &Error{State: t.state, Kind: ErrStore, Message: "failed to load conversation history", Err: err}
	}

	t.enter(StateCalling)
	result, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		t.logger.Error("chat: no provider produced a completion",
			"conversation_id", conversationID,
			"error", err,
		)
		return nil, &Error{State: t.state, Kind: ErrProviderUnavailable, Message: "AI provider unavailable", Err: err}
	}

	t.enter(StatePersisting)
	resp = &Response{
		ConversationID: conversationID,
		AssistantText:  result.Text,
		Provider:       result.Provider,
		Model:          result.Model,
	}
	if perr := o.persist(ctx, conversationID, req, unstoredTurns(req.Messages, hasHistory), result.Text); perr != nil {
		t.logger.Warn("chat: completion returned but not fully persisted",
			"conversation_id", conversationID,
			"error", perr,
		)
		resp.Warning = ErrPartialPersistence
		if o.recorder != nil {
			o.recorder.RecordPartialPersistence()
		}
	}
	return resp, nil
}

// persist creates the conversation if needed, appends the inbound turns not
// yet stored and the assistant reply, then touches the conversation. It runs
// detached from the caller's cancellation so a disconnect after the
// completion does not lose the exchange.
func (o *Orchestrator) persist(ctx context.Context, conversationID string, req *Request, inbound []Turn, reply string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.persistTimeout)
	defer cancel()

	conv, err := o.store.GetOrCreateConversation(ctx, &store.CreateConversation{
		ID:      conversationID,
		OwnerID: req.OwnerID,
		Title:   titleFor(req.Messages),
	})
	if err != nil {
		return err
	}

	for _, m := range inbound {
		if _, err := o.store.AppendMessage(ctx, &store.CreateMessage{
			ConversationID: conv.ID,
			Role:           store.Role(m.Role),
			Content:        m.Content,
		}); err != nil {
			return err
		}
	}
	if _, err := o.store.AppendMessage(ctx, &store.CreateMessage{
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        reply,
	}); err != nil {
		return err
	}
	return o.store.TouchConversation(ctx, conv.ID)
}

func (o *Orchestrator) finish(t *turn, resp *Response, err error) {
	status := "success"
	switch {
	case err != nil:
		t.enter(StateFailed)
		status = statusOf(err)
	case resp != nil && resp.Warning != nil:
		t.enter(StateDone)
		status = "partial_persistence"
	default:
		t.enter(StateDone)
	}

	if o.recorder != nil {
		o.recorder.RecordChatRequest(status, time.Since(t.start))
		o.recorder.ChatFinished()
	}
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrConversationNotFound):
		return "not_found"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrStore):
		return "store_error"
	default:
		return "error"
	}
}

// validate checks the inbound turns and converts them for the prompt.
func validate(messages []Turn) ([]llm.Message, error) {
	if len(messages) == 0 {
		return nil, invalid("messages must not be empty")
	}
	out := make([]llm.Message, 0, len(messages))
	for i, m := range messages {
		role := store.Role(m.Role)
		if role != store.RoleUser && role != store.RoleAssistant {
			return nil, invalid("messages[%d]: unknown role %q", i, m.Role)
		}
		out = append(out, llm.Message{Role: llm.Role(role), Content: m.Content})
	}
	last := messages[len(messages)-1]
	if last.Role != string(store.RoleUser) {
		return nil, invalid("last message must have role %q", store.RoleUser)
	}
	if strings.TrimSpace(last.Content) == "" {
		return nil, invalid("last message content must not be empty")
	}
	return out, nil
}

// unstoredTurns returns the inbound turns to append. A conversation without
// stored messages takes the whole request; otherwise only the user turns
// after the last assistant turn are new.
func unstoredTurns(messages []Turn, hasHistory bool) []Turn {
	if !hasHistory {
		return messages
	}
	return trailingUserTurns(messages)
}

// trailingUserTurns returns the user turns after the last assistant turn.
// Earlier turns were answered in a previous exchange.
func trailingUserTurns(messages []Turn) []Turn {
	start := 0
	for i, m := range messages {
		if m.Role == string(store.RoleAssistant) {
			start = i + 1
		}
	}
	return messages[start:]
}

func titleFor(messages []Turn) string {
	for _, m := range messages {
		if m.Role == string(store.RoleUser) {
			if title := strutil.Title(m.Content, titleMaxLen); title != "" {
				return title
			}
		}
	}
	return "New conversation"
}
