// Package app wires configuration, stores, the model provider and the use
// cases into an HTTP handler. The Lambda entrypoint and `ragchat serve` both
// build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"rag-chat/handler"
	"rag-chat/internal/agent"
	"rag-chat/internal/config"
	"rag-chat/internal/integrations/gemini"
	"rag-chat/internal/integrations/openai"
	"rag-chat/internal/integrations/paramstore"
	"rag-chat/internal/metrics"
	"rag-chat/internal/ratelimit"
	"rag-chat/internal/usecase"
	"rag-chat/internal/vectorstore"
	"rag-chat/internal/workflow"
)

const (
	agentName      = "RAG Agent"
	geminiTokenKey = "gemini-token"
)

// Options carries the pieces that differ between the Lambda and the local server.
type Options struct {
	State    usecase.StateStore
	Provider agent.Provider
	Runner   workflow.Runner
	Registry prometheus.Registerer
	Log      *zap.Logger
}

type App struct {
	Handler *handler.Handler
	Metrics *metrics.Metrics
	vectors *vectorstore.Store
}

func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if opts.State == nil || opts.Provider == nil || opts.Runner == nil {
		return nil, errors.New("app: state, provider and runner are required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	var m *metrics.Metrics
	if opts.Registry != nil {
		var err error
		if m, err = metrics.New(opts.Registry); err != nil {
			return nil, fmt.Errorf("app: register metrics: %w", err)
		}
	}

	if dir := filepath.Dir(cfg.RAG.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: create vector store dir: %w", err)
		}
	}
	vectors, err := vectorstore.Open(cfg.RAG.DBPath, cfg.RAG.Dimensions, log.Named("vectorstore"))
	if err != nil {
		return nil, err
	}

	agentCfg := agent.Config{
		LanguageModel:      cfg.LLM.Model,
		TextEmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:        cfg.LLM.Temperature,
		Usage:              agent.UsageRecorder(log.Named("usage"), m),
	}
	if cfg.Log.DebugRaw {
		agentCfg.RawRequestResponse = agent.RawRequestResponseLogger(log.Named("raw"))
	}
	ag, err := agent.New(agentName, opts.Provider, agentCfg, log.Named("agent"))
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}

	threads, err := usecase.NewThreadService(opts.State, log.Named("threads"))
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}
	limiter := ratelimit.New(cfg.Limits.RatePerMinute, cfg.Limits.RateBurst, m)
	rag, err := usecase.NewRAGService(opts.State, vectors, ag, limiter, opts.Runner, usecase.RAGConfig{
		ChunkSize:       cfg.RAG.ChunkSize,
		ChunkOverlap:    cfg.RAG.ChunkOverlap,
		SearchLimit:     cfg.RAG.SearchLimit,
		MaxPromptLength: cfg.Limits.MaxPromptLength,
		HistoryMessages: cfg.Limits.HistoryMessages,
	}, log.Named("rag"))
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}

	h, err := handler.NewHandler(threads, rag, handler.WithLogger(log.Named("http")), handler.WithObserver(m))
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}
	return &App{Handler: h, Metrics: m, vectors: vectors}, nil
}

func (a *App) Close() error {
	return a.vectors.Close()
}

// NewProvider builds the configured model provider. An explicit llm.api_key
// wins; otherwise the key is read from the parameter store.
func NewProvider(ctx context.Context, cfg *config.Config, params *paramstore.Client) (agent.Provider, error) {
	key := strings.TrimSpace(cfg.LLM.APIKey)
	switch cfg.LLM.Provider {
	case "openai":
		opts := []openai.Option{}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		if key != "" {
			return openai.NewStaticClient(key, opts...)
		}
		if params == nil {
			return nil, errors.New("app: openai needs llm.api_key or a parameter store")
		}
		return openai.NewClient(params, params.Prefix(), opts...)
	case "gemini":
		if key == "" {
			if params == nil {
				return nil, errors.New("app: gemini needs llm.api_key or a parameter store")
			}
			var err error
			if key, err = params.Token(ctx, geminiTokenKey); err != nil {
				return nil, err
			}
		}
		return gemini.New(ctx, key, gemini.WithDimensions(cfg.RAG.Dimensions))
	default:
		return nil, fmt.Errorf("app: unknown llm provider %q", cfg.LLM.Provider)
	}
}

// NewRunner builds the workflow runner named by cfg.Workflow.Mode.
func NewRunner(cfg *config.Config, log *zap.Logger) workflow.Runner {
	if cfg.Workflow.Mode == "inline" {
		return workflow.NewInline(log)
	}
	return workflow.NewAsync(cfg.Workflow.Concurrency, cfg.Workflow.JobTimeout, log)
}
