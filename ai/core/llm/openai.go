package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// openAIProvider serves every vendor speaking the OpenAI chat completions protocol.
type openAIProvider struct {
	client      *openai.Client
	provider    string
	model       string
	maxTokens   int
	temperature float32
}

func newOpenAIProvider(cfg *Config, httpClient *http.Client) *openAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = httpClient

	return &openAIProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.temperature(),
	}
}

func (p *openAIProvider) Name() string  { return p.provider }
func (p *openAIProvider) Model() string { return p.model }

func (p *openAIProvider) Generate(ctx context.Context, turns []Message) (string, *CallStats, error) {
	slog.Debug("LLM: chat request",
		"provider", p.provider,
		"model", p.model,
		"messages_count", len(turns),
	)

	startTime := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: requestTemperature(p.temperature),
		Messages:    convertMessages(turns),
	})
	if err != nil {
		return "", nil, newProviderError(p.provider, p.model, openAIStatus(err), err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	totalDuration := time.Since(startTime)

	stats := &CallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		TotalDurationMs:  totalDuration.Milliseconds(),
	}

	slog.Debug("LLM: chat response received",
		"provider", p.provider,
		"content_length", len(content),
		"total_tokens", stats.TotalTokens,
		"duration_ms", stats.TotalDurationMs,
	)

	return completionText(content), stats, nil
}

// requestTemperature keeps an explicit zero on the wire. go-openai omits a
// zero Temperature, which vendors then treat as their own default of 1.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func convertMessages(turns []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(turns))
	for i, m := range turns {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}
