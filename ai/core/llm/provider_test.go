package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		wantName string
		wantErr  bool
	}{
		{name: "openai", cfg: &Config{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k"}, wantName: "openai"},
		{name: "grok", cfg: &Config{Provider: "grok", Model: "grok-2-latest", APIKey: "k"}, wantName: "grok"},
		{name: "openrouter", cfg: &Config{Provider: "openrouter", Model: "openai/gpt-4o-mini", APIKey: "k"}, wantName: "openrouter"},
		{name: "zai", cfg: &Config{Provider: "zai", Model: "glm-4.5", APIKey: "k"}, wantName: "zai"},
		{name: "anthropic", cfg: &Config{Provider: "anthropic", Model: "claude-3-5-sonnet-latest", APIKey: "k"}, wantName: "anthropic"},
		{name: "gemini", cfg: &Config{Provider: "gemini", Model: "gemini-2.0-flash", APIKey: "k"}, wantName: "gemini"},
		{name: "unsupported", cfg: &Config{Provider: "unsupported", Model: "m"}, wantErr: true},
		{name: "missing model", cfg: &Config{Provider: "openai", APIKey: "k"}, wantErr: true},
		{name: "nil config", cfg: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
			assert.Equal(t, tt.cfg.Model, p.Model())
		})
	}
}

func TestKindFromStatus(t *testing.T) {
	assert.Equal(t, KindNotFound, KindFromStatus(http.StatusNotFound))
	assert.Equal(t, KindRateLimited, KindFromStatus(http.StatusTooManyRequests))
	assert.Equal(t, KindUnauthorized, KindFromStatus(http.StatusUnauthorized))
	assert.Equal(t, KindForbidden, KindFromStatus(http.StatusForbidden))
	assert.Equal(t, KindUnknown, KindFromStatus(http.StatusInternalServerError))
	assert.Equal(t, KindUnknown, KindFromStatus(0))
}

func TestSplitSystem(t *testing.T) {
	t.Run("joins system turns", func(t *testing.T) {
		system, rest := SplitSystem([]Message{
			SystemPrompt("Be brief."),
			UserMessage("Hi"),
			SystemPrompt("Answer in French."),
			AssistantMessage("Salut"),
		})
		assert.Equal(t, "Be brief.\n\nAnswer in French.", system)
		assert.Equal(t, []Message{UserMessage("Hi"), AssistantMessage("Salut")}, rest)
	})

	t.Run("falls back to default persona", func(t *testing.T) {
		system, rest := SplitSystem([]Message{UserMessage("Hi")})
		assert.Equal(t, DefaultSystemPrompt, system)
		assert.Len(t, rest, 1)
	})
}

type capturedRequest struct {
	Path string
	Body map[string]any
}

func fakeVendor(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			captured.Path = r.URL.Path
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &captured.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Generate(t *testing.T) {
	var captured capturedRequest
	srv := fakeVendor(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello!"}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
	}`, &captured)

	p, err := NewProvider(context.Background(), &Config{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	text, stats, err := p.Generate(context.Background(), []Message{
		SystemPrompt("Be brief."),
		UserMessage("Hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", text)
	assert.Equal(t, 15, stats.TotalTokens)

	assert.Equal(t, "/v1/chat/completions", captured.Path)
	assert.Equal(t, "gpt-4o-mini", captured.Body["model"])
	assert.EqualValues(t, 1000, captured.Body["max_tokens"])
	messages, ok := captured.Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestOpenAIProvider_Temperature(t *testing.T) {
	zero := float32(0)
	tests := []struct {
		name        string
		temperature *float32
		want        float64
	}{
		{name: "unset uses default", temperature: nil, want: 0.7},
		{name: "explicit zero is sent", temperature: &zero, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured capturedRequest
			srv := fakeVendor(t, http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`, &captured)

			p, err := NewProvider(context.Background(), &Config{
				Provider:    "openai",
				Model:       "gpt-4o-mini",
				APIKey:      "k",
				BaseURL:     srv.URL,
				Temperature: tt.temperature,
			})
			require.NoError(t, err)

			_, _, err = p.Generate(context.Background(), []Message{UserMessage("Hi")})
			require.NoError(t, err)

			require.Contains(t, captured.Body, "temperature")
			assert.InDelta(t, tt.want, captured.Body["temperature"], 0.0001)
		})
	}
}

func TestOpenAIProvider_EmptyCompletion(t *testing.T) {
	srv := fakeVendor(t, http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": ""}}]}`, nil)

	p, err := NewProvider(context.Background(), &Config{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	text, _, err := p.Generate(context.Background(), []Message{UserMessage("Hi")})
	require.NoError(t, err)
	assert.Equal(t, EmptyCompletionText, text)
}

func TestOpenAIProvider_ErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindForbidden},
		{http.StatusBadGateway, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := fakeVendor(t, tt.status, `{"error": {"message": "nope", "type": "invalid_request_error"}}`, nil)
			p, err := NewProvider(context.Background(), &Config{Provider: "grok", Model: "grok-2-latest", APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)

			_, _, err = p.Generate(context.Background(), []Message{UserMessage("Hi")})
			require.Error(t, err)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, tt.status, pe.VendorStatus)
			assert.Equal(t, "grok", pe.Provider)
		})
	}
}

func TestOpenAIProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	p, err := NewProvider(context.Background(), &Config{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err = p.Generate(ctx, []Message{UserMessage("Hi")})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindUnknown, pe.Kind)
	assert.True(t, pe.Timeout())
}

func TestAnthropicProvider_Generate(t *testing.T) {
	var captured capturedRequest
	srv := fakeVendor(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-sonnet-latest",
		"content": [{"type": "text", "text": "Hi there"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 4}
	}`, &captured)

	p, err := NewProvider(context.Background(), &Config{Provider: "anthropic", Model: "claude-3-5-sonnet-latest", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	text, stats, err := p.Generate(context.Background(), []Message{
		SystemPrompt("Be brief."),
		UserMessage("Hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	assert.Equal(t, 14, stats.TotalTokens)

	assert.Equal(t, "/v1/messages", captured.Path)
	system, ok := captured.Body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Equal(t, "Be brief.", system[0].(map[string]any)["text"])

	messages, ok := captured.Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
}

func TestAnthropicProvider_Unauthorized(t *testing.T) {
	srv := fakeVendor(t, http.StatusUnauthorized, `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`, nil)

	p, err := NewProvider(context.Background(), &Config{Provider: "anthropic", Model: "claude-3-5-sonnet-latest", APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, _, err = p.Generate(context.Background(), []Message{UserMessage("Hi")})
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestAnthropicMessages_MergesSameRole(t *testing.T) {
	out := anthropicMessages([]Message{
		UserMessage("one"),
		UserMessage("two"),
		AssistantMessage("three"),
		UserMessage("four"),
	})
	assert.Len(t, out, 3)
}

func TestAnthropicMessages_StartsWithUser(t *testing.T) {
	// A history window can begin on an assistant turn.
	out := anthropicMessages([]Message{
		AssistantMessage("earlier answer"),
		UserMessage("question"),
		AssistantMessage("answer"),
		UserMessage("follow-up"),
	})
	require.Len(t, out, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, out[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, out[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, out[2].Role)
}

func TestGeminiProvider_Generate(t *testing.T) {
	var captured capturedRequest
	srv := fakeVendor(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "Bonjour"}]}}],
		"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 2, "totalTokenCount": 5}
	}`, &captured)

	p, err := NewProvider(context.Background(), &Config{Provider: "gemini", Model: "gemini-2.0-flash", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	text, stats, err := p.Generate(context.Background(), []Message{
		SystemPrompt("Answer in French."),
		UserMessage("Hello"),
		AssistantMessage("Bonjour"),
		UserMessage("Again"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", text)
	assert.Equal(t, 5, stats.TotalTokens)

	assert.Contains(t, captured.Path, "gemini-2.0-flash:generateContent")
	contents, ok := captured.Body["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
	assert.NotNil(t, captured.Body["systemInstruction"])
}

func TestGeminiProvider_Forbidden(t *testing.T) {
	srv := fakeVendor(t, http.StatusForbidden, `{"error": {"code": 403, "message": "denied", "status": "PERMISSION_DENIED"}}`, nil)

	p, err := NewProvider(context.Background(), &Config{Provider: "gemini", Model: "gemini-2.0-flash", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, _, err = p.Generate(context.Background(), []Message{UserMessage("Hi")})
	assert.Equal(t, KindForbidden, KindOf(err))
}
