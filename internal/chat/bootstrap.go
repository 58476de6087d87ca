package chat

import (
	"rag-chat/internal/domain"
	"rag-chat/internal/live"
)

// BootstrapTitle names the thread created when a user has none.
const BootstrapTitle = "RAG Thread"

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionWait
	ActionNavigate
	ActionCreate
)

// Action is what the screen should do next to land on a thread.
type Action struct {
	Kind     ActionKind
	ThreadID string
	Title    string
	// Replace navigates without leaving the root path in history.
	Replace bool
}

// Bootstrap picks the thread to show when the screen opens without one.
// A Bootstrap is single use: a new mount gets a new Bootstrap.
type Bootstrap struct {
	creating bool
	done     bool
}

func NewBootstrap() *Bootstrap { return &Bootstrap{} }

// Next is called on every update of the thread list query. It asks for at
// most one creation, and only after the first page has loaded.
func (b *Bootstrap) Next(status live.Status, threads []domain.Thread) Action {
	if b.done {
		return Action{Kind: ActionNone}
	}
	if b.creating {
		return Action{Kind: ActionWait}
	}
	if active := domain.ActiveThreads(threads); len(active) > 0 {
		b.done = true
		return Action{Kind: ActionNavigate, ThreadID: active[0].ID, Replace: true}
	}
	if status == live.LoadingFirstPage {
		return Action{Kind: ActionWait}
	}
	b.creating = true
	return Action{Kind: ActionCreate, Title: BootstrapTitle}
}

// Created reports the outcome of an ActionCreate. A failed creation is not
// retried by this Bootstrap.
func (b *Bootstrap) Created(threadID string, err error) Action {
	b.done = true
	if err != nil || threadID == "" {
		return Action{Kind: ActionNone}
	}
	return Action{Kind: ActionNavigate, ThreadID: threadID, Replace: true}
}

func (b *Bootstrap) Done() bool { return b.done }
