package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"rag-chat/internal/domain"
)

func openMemStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := OpenPebble("state", vfs.NewMem())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	clock := fixedNow
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestOpenPebble_EmptyPath(t *testing.T) {
	_, err := OpenPebble(" ", vfs.NewMem())
	require.Error(t, err)
}

func TestPebble_ThreadLifecycle(t *testing.T) {
	s := openMemStore(t)
	ctx := context.Background()

	th, err := s.CreateThread(ctx, domain.Thread{Title: "first", UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, domain.ThreadActive, th.Status)

	require.NoError(t, s.UpdateThreadTitle(ctx, th.ID, "renamed"))
	require.NoError(t, s.SetThreadStatus(ctx, th.ID, domain.ThreadArchived))

	got, err := s.GetThread(ctx, th.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Title)
	require.Equal(t, domain.ThreadArchived, got.Status)

	_, err = s.GetThread(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, s.UpdateThreadTitle(ctx, "missing", "x"), domain.ErrNotFound)
}

func TestPebble_ListThreadsNewestFirstWithCursor(t *testing.T) {
	s := openMemStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.CreateThread(ctx, domain.Thread{Title: fmt.Sprint(i), UserID: "u1"})
		require.NoError(t, err)
	}
	_, err := s.CreateThread(ctx, domain.Thread{Title: "other", UserID: "u2"})
	require.NoError(t, err)

	page, err := s.ListThreads(ctx, "u1", domain.PageRequest{NumItems: 2})
	require.NoError(t, err)
	require.False(t, page.IsDone)
	require.Equal(t, []string{"2", "1"}, titles(page.Items))

	page, err = s.ListThreads(ctx, "u1", domain.PageRequest{Cursor: page.ContinueCursor, NumItems: 2})
	require.NoError(t, err)
	require.True(t, page.IsDone)
	require.Equal(t, []string{"0"}, titles(page.Items))
}

func TestPebble_ListThreadsIsolatesUsersSharingAPrefix(t *testing.T) {
	s := openMemStore(t)
	ctx := context.Background()
	_, err := s.CreateThread(ctx, domain.Thread{Title: "mine", UserID: "alice"})
	require.NoError(t, err)
	_, err = s.CreateThread(ctx, domain.Thread{Title: "secret", UserID: "alice/evil"})
	require.NoError(t, err)
	_, err = s.CreateThread(ctx, domain.Thread{Title: "other", UserID: "alice2"})
	require.NoError(t, err)

	page, err := s.ListThreads(ctx, "alice", domain.PageRequest{NumItems: 10})
	require.NoError(t, err)
	require.True(t, page.IsDone)
	require.Equal(t, []string{"mine"}, titles(page.Items))
	for _, th := range page.Items {
		require.Equal(t, "alice", th.UserID)
	}

	page, err = s.ListThreads(ctx, "alice/evil", domain.PageRequest{NumItems: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"secret"}, titles(page.Items))
}

func TestPebble_ListThreadsEmpty(t *testing.T) {
	s := openMemStore(t)
	page, err := s.ListThreads(context.Background(), "nobody", domain.PageRequest{})
	require.NoError(t, err)
	require.True(t, page.IsDone)
	require.NotNil(t, page.Items)
	require.Empty(t, page.Items)
}

func TestPebble_BadCursor(t *testing.T) {
	s := openMemStore(t)
	_, err := s.ListThreads(context.Background(), "u1", domain.PageRequest{Cursor: "bTEvYWJj"})
	require.ErrorIs(t, err, domain.ErrBadCursor)
}

func TestPebble_MessagesOrdering(t *testing.T) {
	s := openMemStore(t)
	ctx := context.Background()
	th, err := s.CreateThread(ctx, domain.Thread{UserID: "u1"})
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		m, err := s.AppendMessage(ctx, domain.Message{ThreadID: th.ID, Role: domain.RoleUser, Text: fmt.Sprint(i)})
		require.NoError(t, err)
		require.Equal(t, i, m.Order)
	}

	page, err := s.ListMessages(ctx, th.ID, domain.PageRequest{NumItems: 5})
	require.NoError(t, err)
	require.Equal(t, 11, page.Items[0].Order)
	require.Equal(t, 7, page.Items[4].Order)

	recent, err := s.RecentMessages(ctx, th.ID, 3)
	require.NoError(t, err)
	require.Equal(t, []int{9, 10, 11}, []int{recent[0].Order, recent[1].Order, recent[2].Order})

	_, err = s.AppendMessage(ctx, domain.Message{ThreadID: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPebble_UpdateMessage(t *testing.T) {
	s := openMemStore(t)
	ctx := context.Background()
	th, err := s.CreateThread(ctx, domain.Thread{UserID: "u1"})
	require.NoError(t, err)
	m, err := s.AppendMessage(ctx, domain.Message{ThreadID: th.ID, Role: domain.RoleAssistant, Streaming: true, Status: domain.MessagePending})
	require.NoError(t, err)

	m.Text = "done"
	m.Streaming = false
	m.Status = domain.MessageComplete
	m.ContextUsed = []domain.ContextResult{{Key: "doc", Score: 0.8}}
	require.NoError(t, s.UpdateMessage(ctx, m))

	page, err := s.ListMessages(ctx, th.ID, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "done", page.Items[0].Text)
	require.False(t, page.Items[0].Streaming)
	require.Equal(t, "doc", page.Items[0].ContextUsed[0].Key)

	m.Order = 99
	require.ErrorIs(t, s.UpdateMessage(ctx, m), domain.ErrNotFound)
}

func titles(ts []domain.Thread) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Title
	}
	return out
}
