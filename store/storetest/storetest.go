// Package storetest holds the behavior every store driver must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/omnichat/internal/profile"
	"github.com/hrygo/omnichat/store"
)

// NewDriverFunc returns a migrated, empty driver. It is called once per subtest.
type NewDriverFunc func(t *testing.T) store.Driver

// Run exercises a driver through store.Store.
func Run(t *testing.T, newDriver NewDriverFunc) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s *store.Store)
	}{
		{"GetMissingConversation", testGetMissingConversation},
		{"GetOrCreateConversation", testGetOrCreateConversation},
		{"MessagesOrdered", testMessagesOrdered},
		{"ListMessagesWindow", testListMessagesWindow},
		{"ListConversationsFilters", testListConversationsFilters},
		{"UpdateConversation", testUpdateConversation},
		{"UpdateMissingConversation", testUpdateMissingConversation},
		{"DeleteConversationCascades", testDeleteConversationCascades},
		{"ConcurrentAppends", testConcurrentAppends},
		{"RepeatedReadsIdentical", testRepeatedReadsIdentical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newDriver(t)
			s := store.New(driver, &profile.Profile{Mode: "dev"})
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func mustConversation(t *testing.T, s *store.Store, id, owner string) *store.Conversation {
	t.Helper()
	c, err := s.GetOrCreateConversation(context.Background(), &store.CreateConversation{ID: id, OwnerID: owner, Title: "title " + id})
	require.NoError(t, err)
	return c
}

func mustAppend(t *testing.T, s *store.Store, conversationID string, role store.Role, content string) *store.Message {
	t.Helper()
	m, err := s.AppendMessage(context.Background(), &store.CreateMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	})
	require.NoError(t, err)
	return m
}

func testGetMissingConversation(t *testing.T, s *store.Store) {
	c, err := s.GetConversation(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func testGetOrCreateConversation(t *testing.T, s *store.Store) {
	ctx := context.Background()
	created := mustConversation(t, s, "c1", "u1")
	assert.Equal(t, "c1", created.ID)
	assert.Equal(t, "u1", created.OwnerID)
	assert.Equal(t, "title c1", created.Title)
	assert.NotZero(t, created.CreatedTs)

	again, err := s.GetOrCreateConversation(ctx, &store.CreateConversation{ID: "c1", Title: "other"})
	require.NoError(t, err)
	assert.Equal(t, "title c1", again.Title)

	generated, err := s.GetOrCreateConversation(ctx, &store.CreateConversation{})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)
	assert.NotEqual(t, "c1", generated.ID)
}

func testMessagesOrdered(t *testing.T, s *store.Store) {
	ctx := context.Background()
	mustConversation(t, s, "c1", "")
	var want []string
	for i := 0; i < 6; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		content := fmt.Sprintf("m%d", i)
		m := mustAppend(t, s, "c1", role, content)
		assert.Positive(t, m.ID)
		want = append(want, content)
	}

	msgs, err := s.ListMessages(ctx, &store.FindMessage{ConversationID: "c1"})
	require.NoError(t, err)
	got := make([]string, 0, len(msgs))
	for i, m := range msgs {
		got = append(got, m.Content)
		if i > 0 {
			prev := msgs[i-1]
			assert.True(t, prev.CreatedTs < m.CreatedTs || (prev.CreatedTs == m.CreatedTs && prev.ID < m.ID),
				"messages out of order at %d", i)
		}
	}
	assert.Equal(t, want, got)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)

	conv, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int32(6), conv.MessageCount)
}

func testListMessagesWindow(t *testing.T, s *store.Store) {
	ctx := context.Background()
	mustConversation(t, s, "c1", "")
	mustConversation(t, s, "c2", "")
	for i := 0; i < 5; i++ {
		mustAppend(t, s, "c1", store.RoleUser, fmt.Sprintf("m%d", i))
	}
	mustAppend(t, s, "c2", store.RoleUser, "elsewhere")

	limit := 2
	msgs, err := s.ListMessages(ctx, &store.FindMessage{ConversationID: "c1", Limit: &limit, Desc: true})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m4", msgs[0].Content)
	assert.Equal(t, "m3", msgs[1].Content)

	msgs, err = s.ListMessages(ctx, &store.FindMessage{ConversationID: "c1", Limit: &limit})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m0", msgs[0].Content)

	msgs, err = s.ListMessages(ctx, &store.FindMessage{ConversationID: "missing"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testListConversationsFilters(t *testing.T, s *store.Store) {
	ctx := context.Background()
	mustConversation(t, s, "a", "u1")
	mustConversation(t, s, "b", "u1")
	mustConversation(t, s, "c", "u2")

	pinned := true
	_, err := s.UpdateConversation(ctx, &store.UpdateConversation{ID: "a", Pinned: &pinned})
	require.NoError(t, err)
	require.NoError(t, s.TouchConversation(ctx, "b"))

	owner := "u1"
	list, err := s.ListConversations(ctx, &store.FindConversation{OwnerID: &owner})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, c := range list {
		assert.Equal(t, "u1", c.OwnerID)
	}

	list, err = s.ListConversations(ctx, &store.FindConversation{Pinned: &pinned})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	one := 1
	list, err = s.ListConversations(ctx, &store.FindConversation{Limit: &one})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	all, err := s.ListConversations(ctx, &store.FindConversation{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].UpdatedTs, all[i].UpdatedTs)
	}
}

func testUpdateConversation(t *testing.T, s *store.Store) {
	ctx := context.Background()
	mustConversation(t, s, "c1", "u1")
	mustAppend(t, s, "c1", store.RoleUser, "hi")

	title := "Renamed"
	archived := true
	updated, err := s.UpdateConversation(ctx, &store.UpdateConversation{ID: "c1", Title: &title, Archived: &archived})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.True(t, updated.Archived)
	assert.False(t, updated.Pinned)
	assert.Equal(t, "u1", updated.OwnerID)
	assert.Equal(t, int32(1), updated.MessageCount)
}

func testUpdateMissingConversation(t *testing.T, s *store.Store) {
	title := "x"
	_, err := s.UpdateConversation(context.Background(), &store.UpdateConversation{ID: "missing", Title: &title})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteConversationCascades(t *testing.T, s *store.Store) {
	ctx := context.Background()
	mustConversation(t, s, "c1", "")
	mustConversation(t, s, "c2", "")
	mustAppend(t, s, "c1", store.RoleUser, "a")
	mustAppend(t, s, "c1", store.RoleAssistant, "b")
	mustAppend(t, s, "c2", store.RoleUser, "keep")

	require.NoError(t, s.DeleteConversation(ctx, "c1"))

	c, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, c)
	msgs, err := s.ListMessages(ctx, &store.FindMessage{ConversationID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = s.ListMessages(ctx, &store.FindMessage{ConversationID: "c2"})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	assert.ErrorIs(t, s.DeleteConversation(ctx, "c1"), store.ErrNotFound)
}

func testConcurrentAppends(t *testing.T, s *store.Store) {
	ctx := context.Background()
	mustConversation(t, s, "c1", "")

	const writers, perWriter = 4, 5
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.AppendMessage(ctx, &store.CreateMessage{
					ConversationID: "c1",
					Role:           store.RoleUser,
					Content:        fmt.Sprintf("w%d-%d", w, i),
				})
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, &store.FindMessage{ConversationID: "c1"})
	require.NoError(t, err)
	require.Len(t, msgs, writers*perWriter)

	// Each writer's own messages keep their relative order.
	next := make(map[int]int)
	for i, m := range msgs {
		var w, n int
		_, err := fmt.Sscanf(m.Content, "w%d-%d", &w, &n)
		require.NoError(t, err)
		assert.Equal(t, next[w], n, "writer %d out of order", w)
		next[w] = n + 1
		if i > 0 {
			assert.LessOrEqual(t, msgs[i-1].CreatedTs, m.CreatedTs)
			assert.Less(t, msgs[i-1].ID, m.ID)
		}
	}
}

func testRepeatedReadsIdentical(t *testing.T, s *store.Store) {
	ctx := context.Background()
	mustConversation(t, s, "c1", "")
	for i := 0; i < 3; i++ {
		mustAppend(t, s, "c1", store.RoleUser, fmt.Sprintf("m%d", i))
	}

	first, err := s.ListMessages(ctx, &store.FindMessage{ConversationID: "c1"})
	require.NoError(t, err)
	second, err := s.ListMessages(ctx, &store.FindMessage{ConversationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
