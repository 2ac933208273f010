package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/genai"
)

type geminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float32
}

func newGeminiProvider(ctx context.Context, cfg *Config, httpClient *http.Client) (*geminiProvider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, err
	}

	return &geminiProvider{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.temperature(),
	}, nil
}

func (p *geminiProvider) Name() string  { return "gemini" }
func (p *geminiProvider) Model() string { return p.model }

func (p *geminiProvider) Generate(ctx context.Context, turns []Message) (string, *CallStats, error) {
	system, rest := SplitSystem(turns)

	contents := make([]*genai.Content, 0, len(rest))
	for _, t := range rest {
		role := genai.RoleUser
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}

	slog.Debug("LLM: chat request",
		"provider", "gemini",
		"model", p.model,
		"messages_count", len(contents),
	)

	startTime := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(p.temperature),
		MaxOutputTokens:   int32(p.maxTokens),
	})
	if err != nil {
		return "", nil, newProviderError("gemini", p.model, geminiStatus(err), err)
	}

	stats := &CallStats{TotalDurationMs: time.Since(startTime).Milliseconds()}
	if u := resp.UsageMetadata; u != nil {
		stats.PromptTokens = int(u.PromptTokenCount)
		stats.CompletionTokens = int(u.CandidatesTokenCount)
		stats.TotalTokens = int(u.TotalTokenCount)
	}

	return completionText(resp.Text()), stats, nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
