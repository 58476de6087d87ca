package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rag-chat/internal/domain"
)

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func newThreadService(t *testing.T, st *memState) *ThreadService {
	t.Helper()
	svc, err := NewThreadService(st, nil)
	require.NoError(t, err)
	return svc
}

func TestNewThreadService_ValidatesDependency(t *testing.T) {
	_, err := NewThreadService(nil, nil)
	require.Error(t, err)
}

func TestThreadCreate_DefaultsTitle(t *testing.T) {
	st := newMemState()
	svc := newThreadService(t, st)

	id, err := svc.Create(context.Background(), "u1", "   ")
	require.NoError(t, err)
	require.Equal(t, "New Chat", st.threads[id].Title)
	require.Equal(t, domain.ThreadActive, st.threads[id].Status)
	require.Equal(t, "u1", st.threads[id].UserID)

	id, err = svc.Create(context.Background(), "u1", " RAG Thread ")
	require.NoError(t, err)
	require.Equal(t, "RAG Thread", st.threads[id].Title)
}

func TestThreadCreate_Errors(t *testing.T) {
	st := newMemState()
	svc := newThreadService(t, st)

	_, err := svc.Create(context.Background(), "u1", strings.Repeat("x", maxTitleLength+1))
	expectError(t, err, ErrorInvalidInput, "title_too_long")

	st.createErr = errors.New("boom")
	_, err = svc.Create(context.Background(), "u1", "t")
	expectError(t, err, ErrorInternal, "thread_write_error")
}

func TestThreadList_MapsBadCursor(t *testing.T) {
	st := newMemState()
	st.listErr = domain.ErrBadCursor
	svc := newThreadService(t, st)
	_, err := svc.List(context.Background(), "u1", domain.PageRequest{Cursor: "x"})
	expectError(t, err, ErrorInvalidInput, "bad_cursor")
}

func TestThreadRename(t *testing.T) {
	st := newMemState().thread(domain.Thread{ID: "t1", UserID: "u1", Status: domain.ThreadActive})
	svc := newThreadService(t, st)
	ctx := context.Background()

	id, err := svc.Rename(ctx, "u1", "t1", "  Renamed ")
	require.NoError(t, err)
	require.Equal(t, "t1", id)
	require.Equal(t, "Renamed", st.threads["t1"].Title)

	_, err = svc.Rename(ctx, "u1", "t1", " ")
	expectError(t, err, ErrorInvalidInput, "empty_title")

	_, err = svc.Rename(ctx, "u2", "t1", "mine now")
	expectError(t, err, ErrorNotFound, "thread_not_found")

	_, err = svc.Rename(ctx, "u1", "missing", "x")
	expectError(t, err, ErrorNotFound, "thread_not_found")
}

func TestThreadArchive_IsIdempotent(t *testing.T) {
	st := newMemState().thread(domain.Thread{ID: "t1", UserID: "u1", Status: domain.ThreadActive})
	svc := newThreadService(t, st)
	ctx := context.Background()

	require.NoError(t, svc.Archive(ctx, "u1", "t1"))
	require.Equal(t, domain.ThreadArchived, st.threads["t1"].Status)
	require.NoError(t, svc.Archive(ctx, "u1", "t1"))
	require.Contains(t, st.threads, "t1", "archiving never deletes")

	expectError(t, svc.Archive(ctx, "u1", ""), ErrorInvalidInput, "empty_thread_id")
}

func TestThreadArchive_ReadError(t *testing.T) {
	st := newMemState()
	st.getErr = errors.New("throttled")
	svc := newThreadService(t, st)
	expectError(t, svc.Archive(context.Background(), "u1", "t1"), ErrorInternal, "thread_read_error")
}
