// Package context builds the prompt sent to a provider from persisted
// conversation history and the caller's new turns.
package context

import (
	"context"
	"fmt"

	"github.com/hrygo/omnichat/ai/core/llm"
	"github.com/hrygo/omnichat/internal/logging"
	"github.com/hrygo/omnichat/store"
)

// DefaultWindow is the number of prior messages included in a prompt.
const DefaultWindow = 10

// MessageLister is the slice of the store the assembler reads from.
type MessageLister interface {
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
}

// Config configures an Assembler.
type Config struct {
	Window       int    // default: DefaultWindow
	SystemPrompt string // default: llm.DefaultSystemPrompt
}

// Assembler builds bounded prompts.
type Assembler struct {
	store        MessageLister
	window       int
	systemPrompt string
}

// NewAssembler creates a new Assembler.
func NewAssembler(store MessageLister, cfg Config) *Assembler {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = llm.DefaultSystemPrompt
	}
	return &Assembler{
		store:        store,
		window:       cfg.Window,
		systemPrompt: cfg.SystemPrompt,
	}
}

// Window returns the configured history window.
func (a *Assembler) Window() int {
	return a.window
}

// Build returns [system, up to Window prior messages oldest first, newTurns...].
// Older messages beyond the window are left out of the prompt but stay stored.
// An empty conversationID reads no history.
func (a *Assembler) Build(ctx context.Context, conversationID string, newTurns []llm.Message) ([]llm.Message, error) {
	logger := logging.FromContext(ctx)
	var history []*store.Message
	if conversationID != "" {
		// One extra row tells us whether anything was cut.
		limit := a.window + 1
		recent, err := a.store.ListMessages(ctx, &store.FindMessage{
			ConversationID: conversationID,
			Limit:          &limit,
			Desc:           true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation history: %w", err)
		}
		if len(recent) > a.window {
			logger.Debug("context: history truncated",
				"conversation_id", conversationID,
				"window", a.window,
			)
			recent = recent[:a.window]
		}
		history = recent
	}

	turns := make([]llm.Message, 0, 1+len(history)+len(newTurns))
	turns = append(turns, llm.SystemPrompt(a.systemPrompt))
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		turns = append(turns, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	turns = append(turns, newTurns...)

	logger.Debug("context: prompt assembled",
		"conversation_id", conversationID,
		"history", len(history),
		"new_turns", len(newTurns),
	)
	return turns, nil
}
