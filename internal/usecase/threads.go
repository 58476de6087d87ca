package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"rag-chat/internal/domain"
)

const (
	defaultThreadTitle = "New Chat"
	maxTitleLength     = 200
)

// ThreadService implements thread create, list, rename and archive.
type ThreadService struct {
	store ThreadStore
	log   *zap.Logger
}

func NewThreadService(store ThreadStore, log *zap.Logger) (*ThreadService, error) {
	if store == nil {
		return nil, errors.New("usecase: thread store must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ThreadService{store: store, log: log}, nil
}

// Create starts an active thread and returns its id. An empty title becomes "New Chat".
func (s *ThreadService) Create(ctx context.Context, userID, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultThreadTitle
	}
	if len(title) > maxTitleLength {
		return "", newError(ErrorInvalidInput, "title_too_long", nil)
	}
	t, err := s.store.CreateThread(ctx, domain.Thread{
		Title:  title,
		Status: domain.ThreadActive,
		UserID: userID,
	})
	if err != nil {
		return "", newError(ErrorInternal, "thread_write_error", err)
	}
	s.log.Info("thread created", zap.String("threadId", t.ID), zap.String("userId", userID))
	return t.ID, nil
}

// List returns the user's threads newest first, archived ones included.
func (s *ThreadService) List(ctx context.Context, userID string, req domain.PageRequest) (domain.Page[domain.Thread], error) {
	page, err := s.store.ListThreads(ctx, userID, req)
	if err != nil {
		return domain.Page[domain.Thread]{}, listError("thread_list_error", err)
	}
	return page, nil
}

func (s *ThreadService) Rename(ctx context.Context, userID, threadID, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", newError(ErrorInvalidInput, "empty_title", nil)
	}
	if len(title) > maxTitleLength {
		return "", newError(ErrorInvalidInput, "title_too_long", nil)
	}
	if _, err := ownedThread(ctx, s.store, userID, threadID); err != nil {
		return "", err
	}
	if err := s.store.UpdateThreadTitle(ctx, threadID, title); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", newError(ErrorNotFound, "thread_not_found", err)
		}
		return "", newError(ErrorInternal, "thread_write_error", err)
	}
	return threadID, nil
}

// Archive marks the thread archived. Threads are never deleted and archiving
// twice is not an error.
func (s *ThreadService) Archive(ctx context.Context, userID, threadID string) error {
	t, err := ownedThread(ctx, s.store, userID, threadID)
	if err != nil {
		return err
	}
	if t.Status == domain.ThreadArchived {
		return nil
	}
	if err := s.store.SetThreadStatus(ctx, threadID, domain.ThreadArchived); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return newError(ErrorNotFound, "thread_not_found", err)
		}
		return newError(ErrorInternal, "thread_write_error", err)
	}
	s.log.Info("thread archived", zap.String("threadId", threadID), zap.String("userId", userID))
	return nil
}

// ownedThread loads a thread and hides threads owned by someone else.
func ownedThread(ctx context.Context, store ThreadStore, userID, threadID string) (domain.Thread, error) {
	if strings.TrimSpace(threadID) == "" {
		return domain.Thread{}, newError(ErrorInvalidInput, "empty_thread_id", nil)
	}
	t, err := store.GetThread(ctx, threadID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Thread{}, newError(ErrorNotFound, "thread_not_found", err)
	}
	if err != nil {
		return domain.Thread{}, newError(ErrorInternal, "thread_read_error", err)
	}
	if t.UserID != userID {
		return domain.Thread{}, newError(ErrorNotFound, "thread_not_found", nil)
	}
	return t, nil
}
