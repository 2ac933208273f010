package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float32
}

func newAnthropicProvider(cfg *Config, httpClient *http.Client) *anthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Fallback across candidates replaces vendor-side retries.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.temperature(),
	}
}

func (p *anthropicProvider) Name() string  { return "anthropic" }
func (p *anthropicProvider) Model() string { return p.model }

func (p *anthropicProvider) Generate(ctx context.Context, turns []Message) (string, *CallStats, error) {
	system, rest := SplitSystem(turns)

	slog.Debug("LLM: chat request",
		"provider", "anthropic",
		"model", p.model,
		"messages_count", len(rest),
	)

	startTime := time.Now()
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(p.maxTokens),
		Temperature: anthropic.Float(float64(p.temperature)),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    anthropicMessages(rest),
	})
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", nil, newProviderError("anthropic", p.model, status, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	stats := &CallStats{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		TotalDurationMs:  time.Since(startTime).Milliseconds(),
	}

	return completionText(sb.String()), stats, nil
}

// anthropicMessages converts turns and merges consecutive turns of the same
// role, since the Messages API expects user and assistant to alternate. The
// first message must be a user turn, so leading assistant turns are dropped.
func anthropicMessages(turns []Message) []anthropic.MessageParam {
	type group struct {
		role  Role
		texts []string
	}
	var groups []group
	for _, t := range turns {
		role := RoleUser
		if t.Role == RoleAssistant {
			role = RoleAssistant
		}
		if n := len(groups); n > 0 && groups[n-1].role == role {
			groups[n-1].texts = append(groups[n-1].texts, t.Content)
			continue
		}
		groups = append(groups, group{role: role, texts: []string{t.Content}})
	}
	for len(groups) > 0 && groups[0].role == RoleAssistant {
		groups = groups[1:]
	}

	out := make([]anthropic.MessageParam, 0, len(groups))
	for _, g := range groups {
		block := anthropic.NewTextBlock(strings.Join(g.texts, "\n\n"))
		if g.role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
