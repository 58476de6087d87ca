package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rag-chat/internal/agent"
	"rag-chat/internal/domain"
	"rag-chat/internal/ratelimit"
)

const generationFailedText = "Sorry, something went wrong while generating a response."

// AskQuestion stores the user's prompt and hands answer generation to the
// workflow runner. The answer appears as a streaming assistant message.
func (s *RAGService) AskQuestion(ctx context.Context, userID, threadID, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return newError(ErrorInvalidInput, "empty_prompt", nil)
	}
	if len(prompt) > s.cfg.MaxPromptLength {
		return newError(ErrorInvalidInput, "prompt_too_long", nil)
	}
	thread, err := ownedThread(ctx, s.state, userID, threadID)
	if err != nil {
		return err
	}
	if !thread.Active() {
		return newError(ErrorNotFound, "thread_not_active", nil)
	}
	if !s.limiter.Allow(ratelimit.BucketAskQuestion, userID) {
		return newError(ErrorRateLimited, "rate_limited", nil)
	}

	userMsg, err := s.state.AppendMessage(ctx, domain.Message{
		ThreadID: threadID,
		Role:     domain.RoleUser,
		Text:     prompt,
		Status:   domain.MessageComplete,
	})
	if err != nil {
		return newError(ErrorInternal, "message_write_error", err)
	}

	job := func(jobCtx context.Context) error {
		return s.generate(jobCtx, userID, userMsg)
	}
	if err := s.runner.Submit(ctx, "generateAnswer", job); err != nil {
		return newError(ErrorInternal, "workflow_submit_error", err)
	}
	return nil
}

// generate retrieves context for the prompt and streams the model's answer
// into a new assistant message.
func (s *RAGService) generate(ctx context.Context, userID string, userMsg domain.Message) error {
	log := s.log.With(zap.String("threadId", userMsg.ThreadID), zap.String("userId", userID))

	reply, err := s.state.AppendMessage(ctx, domain.Message{
		ThreadID:  userMsg.ThreadID,
		Role:      domain.RoleAssistant,
		Streaming: true,
		Status:    domain.MessagePending,
	})
	if err != nil {
		return fmt.Errorf("usecase: create assistant message: %w", err)
	}

	results, history, err := s.retrieve(ctx, userMsg)
	if err != nil {
		return s.fail(ctx, log, reply, "", err)
	}
	reply.ContextUsed = results

	var (
		text      strings.Builder
		lastFlush = s.now()
	)
	onDelta := func(delta string) error {
		text.WriteString(delta)
		if s.now().Sub(lastFlush) < s.cfg.FlushInterval {
			return nil
		}
		lastFlush = s.now()
		partial := reply
		partial.Text = text.String()
		return s.state.UpdateMessage(ctx, partial)
	}

	call := agent.Call{ThreadID: userMsg.ThreadID, UserID: userID}
	resp, err := s.model.Stream(ctx, call, buildPromptMessages(results, history, userMsg.Text), onDelta)
	if err != nil {
		return s.fail(ctx, log, reply, text.String(), err)
	}

	reply.Text = resp.Text
	reply.Streaming = false
	reply.Status = domain.MessageComplete
	dctx, cancel := detached(ctx)
	defer cancel()
	if err := s.state.UpdateMessage(dctx, reply); err != nil {
		return fmt.Errorf("usecase: finalize assistant message: %w", err)
	}
	log.Info("answer generated",
		zap.Int("order", reply.Order),
		zap.Int("contextResults", len(results)),
		zap.Int("completionTokens", resp.Usage.CompletionTokens),
	)
	return nil
}

func (s *RAGService) retrieve(ctx context.Context, userMsg domain.Message) ([]domain.ContextResult, []domain.Message, error) {
	vecs, err := s.model.Embed(ctx, []string{userMsg.Text})
	if err != nil {
		return nil, nil, fmt.Errorf("usecase: embed prompt: %w", err)
	}
	results, err := s.vectors.Search(ctx, vecs[0], s.cfg.SearchLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("usecase: vector search: %w", err)
	}

	var history []domain.Message
	if s.cfg.HistoryMessages > 0 {
		// The prompt itself and the empty reply are among the newest messages.
		recent, err := s.state.RecentMessages(ctx, userMsg.ThreadID, s.cfg.HistoryMessages+2)
		if err != nil {
			return nil, nil, fmt.Errorf("usecase: load history: %w", err)
		}
		for _, m := range recent {
			if m.Order < userMsg.Order {
				history = append(history, m)
			}
		}
		if len(history) > s.cfg.HistoryMessages {
			history = history[len(history)-s.cfg.HistoryMessages:]
		}
	}
	return results, history, nil
}

// fail finalizes reply as failed, keeping any partial text.
func (s *RAGService) fail(ctx context.Context, log *zap.Logger, reply domain.Message, partial string, cause error) error {
	reply.Text = partial
	if strings.TrimSpace(partial) == "" {
		reply.Text = generationFailedText
	}
	reply.Streaming = false
	reply.Status = domain.MessageFailed
	dctx, cancel := detached(ctx)
	defer cancel()
	if err := s.state.UpdateMessage(dctx, reply); err != nil {
		log.Error("finalize failed assistant message", zap.Error(err))
	}
	if status, ok := upstreamStatusCode(cause); ok {
		log.Warn("generation failed", zap.Int("upstreamStatus", status), zap.Error(cause))
	}
	return fmt.Errorf("usecase: generate answer: %w", cause)
}
