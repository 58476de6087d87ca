package tui

import (
	"context"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"rag-chat/internal/chat"
	"rag-chat/internal/domain"
	"rag-chat/internal/live"
)

const (
	requestTimeout = 30 * time.Second
	pruneInterval  = 500 * time.Millisecond

	threadsKey = "threads"
	entriesKey = "entries"
)

func messagesKey(threadID string) string { return "messages:" + threadID }

func chunksKey(entryID string) string { return "chunks:" + entryID }

func threadKey(t domain.Thread) string   { return t.ID }
func messageKey(m domain.Message) string { return m.ID }
func entryKey(e domain.Entry) string     { return e.ID }
func chunkKey(c domain.Chunk) string     { return c.EntryID + "#" + strconv.Itoa(c.Order) }

// liveMsg carries one subscription update into the event loop.
type liveMsg[T any] struct {
	sub    *live.Subscription[T]
	update live.Update[T]
	closed bool
}

// pageMsg carries the result of a LoadMore into the event loop.
type pageMsg[T any] struct {
	target *live.Paginated[T]
	page   domain.Page[T]
	err    error
}

type threadCreatedMsg struct {
	id        string
	bootstrap bool
	err       error
}

type threadRenamedMsg struct {
	id  string
	err error
}

type threadArchivedMsg struct {
	id  string
	err error
}

type sentMsg struct {
	pending chat.Pending
	err     error
}

type contextAddedMsg struct{ err error }

type pruneMsg struct{}

func await[T any](sub *live.Subscription[T]) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-sub.Updates()
		return liveMsg[T]{sub: sub, update: u, closed: !ok}
	}
}

func call(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return fn(ctx)
	}
}

func pruneTick() tea.Cmd {
	return tea.Tick(pruneInterval, func(time.Time) tea.Msg { return pruneMsg{} })
}

func loadMore[T any](p *live.Paginated[T], n int, fetch func(context.Context, domain.PageRequest) (domain.Page[T], error)) tea.Cmd {
	req, ok := p.LoadMore(n)
	if !ok {
		return nil
	}
	return call(func(ctx context.Context) tea.Msg {
		page, err := fetch(ctx, req)
		return pageMsg[T]{target: p, page: page, err: err}
	})
}

func applyPage[T any](msg pageMsg[T]) {
	if msg.err != nil {
		msg.target.Fail(msg.err)
		return
	}
	msg.target.Receive(msg.page)
}

func subscribeThreads(h *live.Hub, api chat.API, req domain.PageRequest) *live.Subscription[domain.Page[domain.Thread]] {
	return live.Subscribe(h, threadsKey, func(ctx context.Context) (domain.Page[domain.Thread], error) {
		return api.ListThreads(ctx, req)
	})
}

func subscribeMessages(h *live.Hub, api chat.API, threadID string, req domain.PageRequest) *live.Subscription[domain.Page[domain.Message]] {
	return live.Subscribe(h, messagesKey(threadID), func(ctx context.Context) (domain.Page[domain.Message], error) {
		return api.ListMessagesWithContext(ctx, threadID, req, true)
	})
}

func subscribeEntries(h *live.Hub, api chat.API, req domain.PageRequest) *live.Subscription[domain.Page[domain.Entry]] {
	return live.Subscribe(h, entriesKey, func(ctx context.Context) (domain.Page[domain.Entry], error) {
		return api.ListEntries(ctx, req)
	})
}

func subscribeChunks(h *live.Hub, api chat.API, entryID string, req domain.PageRequest) *live.Subscription[domain.Page[domain.Chunk]] {
	return live.Subscribe(h, chunksKey(entryID), func(ctx context.Context) (domain.Page[domain.Chunk], error) {
		return api.ListChunks(ctx, entryID, req)
	})
}
