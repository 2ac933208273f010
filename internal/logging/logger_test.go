package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelError},
		{"", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.name, slog.LevelError))
		})
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, "prod", "")).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	dev := slog.New(NewHandler(&buf, "dev", ""))
	dev.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")

	buf.Reset()
	slog.New(NewHandler(&buf, "demo", "")).Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewHandler(&buf, "prod", "info"))

	assert.Same(t, slog.Default(), FromContext(context.Background()))

	ctx := ToContext(context.Background(), base)
	ctx = With(ctx, "request_id", "r-1")
	FromContext(ctx).Info("handled")

	assert.Contains(t, buf.String(), `"request_id":"r-1"`)
}
