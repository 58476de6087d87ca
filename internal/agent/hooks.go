package agent

import (
	"context"

	"go.uber.org/zap"
)

const rawPayloadLimit = 4 << 10

// RawRequestResponseLogger logs every model request/response pair so it can be
// looked up later. Very long payloads are truncated.
func RawRequestResponseLogger(log *zap.Logger) RawRequestResponseHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(_ context.Context, ev RawEvent) {
		fields := []zap.Field{
			zap.String("name", "rawRequestResponseHandler event"),
			zap.String("agentName", ev.AgentName),
			zap.String("threadId", ev.ThreadID),
			zap.String("userId", ev.UserID),
			zap.String("request", marshalTruncated(ev.Request, rawPayloadLimit)),
			zap.String("response", marshalTruncated(ev.Response, rawPayloadLimit)),
		}
		if ev.Err != nil {
			fields = append(fields, zap.Error(ev.Err))
		}
		log.Info("model call", fields...)
	}
}

// TokenCounter receives token counts from the usage handler.
type TokenCounter interface {
	ObserveTokens(provider, model string, prompt, completion int)
}

// UsageRecorder logs usage and forwards it to counter when non-nil.
func UsageRecorder(log *zap.Logger, counter TokenCounter) UsageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(_ context.Context, ev UsageEvent) {
		log.Debug("model usage",
			zap.String("agentName", ev.AgentName),
			zap.String("provider", ev.Provider),
			zap.String("model", ev.Model),
			zap.String("threadId", ev.ThreadID),
			zap.String("userId", ev.UserID),
			zap.Int("promptTokens", ev.Usage.PromptTokens),
			zap.Int("completionTokens", ev.Usage.CompletionTokens),
		)
		if counter != nil {
			counter.ObserveTokens(ev.Provider, ev.Model, ev.Usage.PromptTokens, ev.Usage.CompletionTokens)
		}
	}
}
