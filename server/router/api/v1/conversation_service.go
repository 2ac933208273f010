package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/omnichat/store"
)

// MaxConversationLimit is the maximum number of conversations returned by a list request.
const MaxConversationLimit = 200

func (s *APIV1Service) ListConversations(c echo.Context) error {
	find := &store.FindConversation{}
	if owner := ownerID(c); owner != "" {
		find.OwnerID = &owner
	}

	var err error
	if find.Pinned, err = boolQueryParam(c, "pinned"); err != nil {
		return err
	}
	if find.Archived, err = boolQueryParam(c, "archived"); err != nil {
		return err
	}

	limit := MaxConversationLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, MaxConversationLimit)
	}
	find.Limit = &limit

	conversations, err := s.Store.ListConversations(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations").SetInternal(err)
	}

	response := listConversationsResponse{
		Conversations: make([]conversationPayload, 0, len(conversations)),
	}
	for _, conv := range conversations {
		response.Conversations = append(response.Conversations, convertConversationFromStore(conv))
	}
	return c.JSON(http.StatusOK, response)
}

func (s *APIV1Service) GetConversation(c echo.Context) error {
	return s.renderConversation(c, c.Param("id"))
}

func (s *APIV1Service) UpdateConversation(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := s.findOwnedConversation(c, id); err != nil {
		return err
	}

	var req updateConversationRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Title == nil && req.Pinned == nil && req.Archived == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to update")
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "title must not be empty")
		}
		req.Title = &title
	}

	updated, err := s.Store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:       id,
		Title:    req.Title,
		Pinned:   req.Pinned,
		Archived: req.Archived,
	})
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update conversation").SetInternal(err)
	}
	return c.JSON(http.StatusOK, convertConversationFromStore(updated))
}

func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.findOwnedConversation(c, id); err != nil {
		return err
	}

	err := s.Store.DeleteConversation(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete conversation").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) renderConversation(c echo.Context, id string) error {
	conversation, err := s.findOwnedConversation(c, id)
	if err != nil {
		return err
	}

	messages, err := s.Store.ListMessages(c.Request().Context(), &store.FindMessage{ConversationID: conversation.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages").SetInternal(err)
	}

	detail := conversationDetail{
		conversationPayload: convertConversationFromStore(conversation),
		Messages:            convertMessagesFromStore(messages),
	}
	return c.JSON(http.StatusOK, detail)
}

// findOwnedConversation returns 404 for conversations that do not exist or
// belong to a different owner than the one named in the request.
func (s *APIV1Service) findOwnedConversation(c echo.Context, id string) (*store.Conversation, error) {
	if id == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}

	conversation, err := s.Store.GetConversation(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get conversation").SetInternal(err)
	}
	if conversation == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if owner := ownerID(c); owner != "" && conversation.OwnerID != owner {
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return conversation, nil
}

func boolQueryParam(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be a boolean")
	}
	return &v, nil
}
