// Package chat holds the client-side state of the chat screen. Every type is
// owned by a single event loop; none of them perform I/O.
package chat

import (
	"context"

	"rag-chat/internal/domain"
)

// API is the backend surface the chat screen depends on.
type API interface {
	CreateThread(ctx context.Context, title string) (string, error)
	ListThreads(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Thread], error)
	RenameThread(ctx context.Context, threadID, title string) (string, error)
	ArchiveThread(ctx context.Context, threadID string) error

	AddContext(ctx context.Context, title, text string) error
	AskQuestion(ctx context.Context, threadID, prompt string) error
	ListMessagesWithContext(ctx context.Context, threadID string, req domain.PageRequest, stream bool) (domain.Page[domain.Message], error)
	ListEntries(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Entry], error)
	ListChunks(ctx context.Context, entryID string, req domain.PageRequest) (domain.Page[domain.Chunk], error)
}
