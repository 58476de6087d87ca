package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rag-chat/internal/domain"
	"rag-chat/internal/ratelimit"
	"rag-chat/internal/workflow"
)

const (
	defaultMaxPrompt     = 4000
	defaultSearchLimit   = 5
	defaultFlushInterval = 250 * time.Millisecond
	embedBatchSize       = 16
	embedConcurrency     = 4
	finalizeTimeout      = 10 * time.Second
)

// RAGConfig tunes chunking, retrieval and generation.
type RAGConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	SearchLimit     int
	MaxPromptLength int
	HistoryMessages int
	// FlushInterval bounds how often streamed text is written to the store.
	FlushInterval time.Duration
}

// RAGService adds context to the vector store and answers questions with it.
type RAGService struct {
	state   StateStore
	vectors VectorStore
	model   Model
	limiter RateLimiter
	runner  workflow.Runner
	cfg     RAGConfig
	chunker chunker
	log     *zap.Logger
	now     func() time.Time
}

func NewRAGService(state StateStore, vectors VectorStore, model Model, limiter RateLimiter, runner workflow.Runner, cfg RAGConfig, log *zap.Logger) (*RAGService, error) {
	if state == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if vectors == nil {
		return nil, errors.New("usecase: vector store must not be nil")
	}
	if model == nil {
		return nil, errors.New("usecase: model must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("usecase: rate limiter must not be nil")
	}
	if runner == nil {
		return nil, errors.New("usecase: workflow runner must not be nil")
	}
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = defaultMaxPrompt
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	if cfg.HistoryMessages < 0 {
		cfg.HistoryMessages = 0
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RAGService{
		state:   state,
		vectors: vectors,
		model:   model,
		limiter: limiter,
		runner:  runner,
		cfg:     cfg,
		chunker: newChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		log:     log,
		now:     time.Now,
	}, nil
}

// AddContext indexes text under title. Re-adding a title replaces the entry
// previously stored under it. The call either fully succeeds or leaves the
// new entry marked failed.
func (s *RAGService) AddContext(ctx context.Context, userID, title, text string) error {
	title = strings.TrimSpace(title)
	text = strings.TrimSpace(text)
	if title == "" {
		return newError(ErrorInvalidInput, "empty_title", nil)
	}
	if text == "" {
		return newError(ErrorInvalidInput, "empty_text", nil)
	}
	if !s.limiter.Allow(ratelimit.BucketAddContext, userID) {
		return newError(ErrorRateLimited, "rate_limited", nil)
	}

	entry, err := s.vectors.CreateEntry(ctx, title, title)
	if err != nil {
		return newError(ErrorInternal, "entry_write_error", err)
	}
	log := s.log.With(zap.String("entryId", entry.ID), zap.String("key", title), zap.String("userId", userID))

	removed, err := s.indexEntry(ctx, entry, text)
	if err != nil {
		dctx, cancel := detached(ctx)
		defer cancel()
		if serr := s.vectors.SetEntryStatus(dctx, entry.ID, domain.EntryFailed); serr != nil {
			log.Error("mark entry failed", zap.Error(serr))
		}
		log.Warn("add context failed", zap.Error(err))
		return err
	}

	log.Info("context added", zap.Int("replaced", removed))
	return nil
}

// indexEntry chunks, embeds and stores text, then publishes entry in place of
// any earlier entry with the same key. It returns how many entries were replaced.
func (s *RAGService) indexEntry(ctx context.Context, entry domain.Entry, text string) (int, error) {
	texts, err := s.chunker.split(text)
	if err != nil {
		return 0, newError(ErrorInternal, "chunk_error", err)
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{EntryID: entry.ID, Order: i, Text: t}
	}

	vecs := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			out, err := s.model.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vecs[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, upstreamError("embedding", err)
	}

	if err := s.vectors.SaveChunks(ctx, entry.ID, chunks, vecs); err != nil {
		return 0, newError(ErrorInternal, "chunk_write_error", err)
	}
	removed, err := s.vectors.PublishEntry(ctx, entry.Key, entry.ID)
	if err != nil {
		return 0, newError(ErrorInternal, "entry_write_error", err)
	}
	return removed, nil
}

// ListMessagesWithContext pages a thread's messages newest first. With stream
// false, messages still being generated are left out.
func (s *RAGService) ListMessagesWithContext(ctx context.Context, userID, threadID string, req domain.PageRequest, stream bool) (domain.Page[domain.Message], error) {
	if _, err := ownedThread(ctx, s.state, userID, threadID); err != nil {
		return domain.Page[domain.Message]{}, err
	}
	page, err := s.state.ListMessages(ctx, threadID, req)
	if err != nil {
		return domain.Page[domain.Message]{}, listError("message_list_error", err)
	}
	if !stream {
		kept := page.Items[:0]
		for _, m := range page.Items {
			if !m.Streaming {
				kept = append(kept, m)
			}
		}
		page.Items = kept
	}
	return page, nil
}

func (s *RAGService) ListEntries(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Entry], error) {
	page, err := s.vectors.ListEntries(ctx, req)
	if err != nil {
		return domain.Page[domain.Entry]{}, listError("entry_list_error", err)
	}
	return page, nil
}

func (s *RAGService) ListChunks(ctx context.Context, entryID string, req domain.PageRequest) (domain.Page[domain.Chunk], error) {
	if strings.TrimSpace(entryID) == "" {
		return domain.Page[domain.Chunk]{}, newError(ErrorInvalidInput, "empty_entry_id", nil)
	}
	page, err := s.vectors.ListChunks(ctx, entryID, req)
	if err != nil {
		return domain.Page[domain.Chunk]{}, listError("chunk_list_error", err)
	}
	return page, nil
}

// detached keeps ctx values but survives its cancellation for final writes.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}
