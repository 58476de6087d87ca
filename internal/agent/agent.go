// Package agent holds the language-model defaults shared by every RAG call and
// wraps a model provider with the debug and usage hooks.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"rag-chat/internal/domain"
)

const defaultTemperature = 1.0

// Request is a single chat completion call.
type Request struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
}

// Usage reports token accounting for one model call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Response is the final result of a streamed completion.
type Response struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Provider is a concrete language/embedding model backend.
type Provider interface {
	Name() string
	StreamChat(ctx context.Context, req Request, onDelta func(string) error) (Response, error)
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Call identifies who a model call is made on behalf of.
type Call struct {
	ThreadID string
	UserID   string
}

// RawEvent is handed to the raw request/response handler after every chat call.
type RawEvent struct {
	AgentName string
	ThreadID  string
	UserID    string
	Request   Request
	Response  Response
	Err       error
}

// RawRequestResponseHandler observes raw model traffic.
type RawRequestResponseHandler func(ctx context.Context, ev RawEvent)

// UsageEvent is handed to the usage handler after every successful chat call.
type UsageEvent struct {
	AgentName string
	Provider  string
	Model     string
	ThreadID  string
	UserID    string
	Usage     Usage
}

// UsageHandler records token usage.
type UsageHandler func(ctx context.Context, ev UsageEvent)

// Config is the default configuration applied to every call made by an Agent.
type Config struct {
	LanguageModel      string
	TextEmbeddingModel string
	Temperature        float64
	RawRequestResponse RawRequestResponseHandler
	Usage              UsageHandler
}

// Agent applies Config to a Provider.
type Agent struct {
	name     string
	provider Provider
	cfg      Config
	log      *zap.Logger
}

func New(name string, p Provider, cfg Config, log *zap.Logger) (*Agent, error) {
	if p == nil {
		return nil, errors.New("agent: provider must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("agent: name must not be empty")
	}
	if strings.TrimSpace(cfg.LanguageModel) == "" {
		return nil, errors.New("agent: language model must not be empty")
	}
	// Vector search needs this set.
	if strings.TrimSpace(cfg.TextEmbeddingModel) == "" {
		return nil, errors.New("agent: text embedding model must not be empty")
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{name: name, provider: p, cfg: cfg, log: log}, nil
}

// Name returns the agent name reported to hooks.
func (a *Agent) Name() string { return a.name }

// Stream runs a chat completion, forwarding text deltas to onDelta as they arrive.
func (a *Agent) Stream(ctx context.Context, call Call, messages []domain.ChatMessage, onDelta func(string) error) (Response, error) {
	req := Request{
		Model:       a.cfg.LanguageModel,
		Messages:    messages,
		Temperature: a.cfg.Temperature,
	}
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	resp, err := a.provider.StreamChat(ctx, req, onDelta)
	if a.cfg.RawRequestResponse != nil {
		a.cfg.RawRequestResponse(ctx, RawEvent{
			AgentName: a.name,
			ThreadID:  call.ThreadID,
			UserID:    call.UserID,
			Request:   req,
			Response:  resp,
			Err:       err,
		})
	}
	if err != nil {
		return Response{}, err
	}
	if a.cfg.Usage != nil {
		a.cfg.Usage(ctx, UsageEvent{
			AgentName: a.name,
			Provider:  a.provider.Name(),
			Model:     req.Model,
			ThreadID:  call.ThreadID,
			UserID:    call.UserID,
			Usage:     resp.Usage,
		})
	}
	return resp, nil
}

// Embed embeds texts with the configured embedding model.
func (a *Agent) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := a.provider.Embed(ctx, a.cfg.TextEmbeddingModel, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, errors.New("agent: embedding count does not match input count")
	}
	return vecs, nil
}

func marshalTruncated(v any, limit int) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	if len(b) > limit {
		return string(b[:limit]) + "…"
	}
	return string(b)
}
