package usecase

import (
	"context"

	"rag-chat/internal/agent"
	"rag-chat/internal/domain"
)

// ThreadStore persists thread metadata.
type ThreadStore interface {
	CreateThread(ctx context.Context, t domain.Thread) (domain.Thread, error)
	GetThread(ctx context.Context, threadID string) (domain.Thread, error)
	ListThreads(ctx context.Context, userID string, req domain.PageRequest) (domain.Page[domain.Thread], error)
	UpdateThreadTitle(ctx context.Context, threadID, title string) error
	SetThreadStatus(ctx context.Context, threadID string, status domain.ThreadStatus) error
}

// MessageStore persists the messages of a thread.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	UpdateMessage(ctx context.Context, msg domain.Message) error
	ListMessages(ctx context.Context, threadID string, req domain.PageRequest) (domain.Page[domain.Message], error)
	RecentMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error)
}

// StateStore is implemented by repository.Client and repository.PebbleStore.
type StateStore interface {
	ThreadStore
	MessageStore
}

// VectorStore is implemented by vectorstore.Store.
type VectorStore interface {
	CreateEntry(ctx context.Context, key, title string) (domain.Entry, error)
	SaveChunks(ctx context.Context, entryID string, chunks []domain.Chunk, embeddings [][]float32) error
	SetEntryStatus(ctx context.Context, entryID string, status domain.EntryStatus) error
	PublishEntry(ctx context.Context, key, entryID string) (int, error)
	ListEntries(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Entry], error)
	ListChunks(ctx context.Context, entryID string, req domain.PageRequest) (domain.Page[domain.Chunk], error)
	Search(ctx context.Context, query []float32, limit int) ([]domain.ContextResult, error)
}

// Model is implemented by *agent.Agent.
type Model interface {
	Stream(ctx context.Context, call agent.Call, messages []domain.ChatMessage, onDelta func(string) error) (agent.Response, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RateLimiter is implemented by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(bucket, userID string) bool
}
