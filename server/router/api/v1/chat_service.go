package v1

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/omnichat/ai/chat"
)

const (
	// maxChatBodyBytes bounds the request body read by CreateChat.
	maxChatBodyBytes = 1 << 20

	// chatQueueTimeout bounds how long a request waits for a free chat slot.
	chatQueueTimeout = 10 * time.Second
)

// CreateChat runs one chat turn.
func (s *APIV1Service) CreateChat(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxChatBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body").SetInternal(err)
	}
	if len(body) > maxChatBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	req, err := chat.DecodeRequest(body)
	if err != nil {
		return chatHTTPError(err)
	}
	req.OwnerID = ownerID(c)

	ctx := c.Request().Context()
	acquireCtx, cancel := context.WithTimeout(ctx, chatQueueTimeout)
	defer cancel()
	if err := s.chatSemaphore.Acquire(acquireCtx, 1); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server busy, retry later").SetInternal(err)
	}
	defer s.chatSemaphore.Release(1)

	resp, err := s.Chat.Chat(ctx, req)
	if err != nil {
		return chatHTTPError(err)
	}

	out := chatResponse{
		Response:       resp.AssistantText,
		ConversationID: resp.ConversationID,
		Provider:       resp.Provider,
		Model:          resp.Model,
	}
	if resp.Warning != nil {
		out.Warning = resp.Warning.Error()
	}
	return c.JSON(http.StatusOK, out)
}

// GetChat returns a conversation with its ordered messages.
func (s *APIV1Service) GetChat(c echo.Context) error {
	id := c.QueryParam("conversationId")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversationId is required")
	}
	return s.renderConversation(c, id)
}

// chatHTTPError maps orchestrator errors to client-safe HTTP errors.
func chatHTTPError(err error) error {
	var chatErr *chat.Error
	switch {
	case errors.Is(err, chat.ErrInvalidRequest):
		message := "invalid request"
		if errors.As(err, &chatErr) {
			message = chatErr.Message
		}
		return echo.NewHTTPError(http.StatusBadRequest, message)
	case errors.Is(err, chat.ErrConversationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, chat.ErrProviderUnavailable):
		// Vendor detail was already logged by the orchestrator.
		return echo.NewHTTPError(http.StatusInternalServerError, "AI provider unavailable")
	case errors.Is(err, chat.ErrStore):
		return echo.NewHTTPError(http.StatusInternalServerError, "storage unavailable").SetInternal(err)
	default:
		slog.Error("api: unexpected chat error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
