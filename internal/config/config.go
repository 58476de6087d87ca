// Package config loads rag-chat settings from defaults, an optional TOML file,
// a .env file and RAGCHAT_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "RAGCHAT_"

// DefaultPath is tried when no explicit config file is given.
const DefaultPath = "./ragchat.toml"

// LambdaMountRoot is where Lambda mounts EFS access points. It is the only
// writable location shared by every instance of a function.
const LambdaMountRoot = "/mnt/"

type Config struct {
	Server   Server   `koanf:"server"`
	Backend  Backend  `koanf:"backend"`
	AWS      AWS      `koanf:"aws"`
	Store    Store    `koanf:"store"`
	LLM      LLM      `koanf:"llm"`
	RAG      RAG      `koanf:"rag"`
	Limits   Limits   `koanf:"limits"`
	Workflow Workflow `koanf:"workflow"`
	UI       UI       `koanf:"ui"`
	Log      Log      `koanf:"log"`
}

type Server struct {
	Addr string `koanf:"addr"`
}

// Backend holds the single value the client needs to reach the API.
type Backend struct {
	URL string `koanf:"url"`
}

type AWS struct {
	StateTable  string `koanf:"state_table"`
	ParamPrefix string `koanf:"param_prefix"`
}

type Store struct {
	Driver     string `koanf:"driver"`
	PebblePath string `koanf:"pebble_path"`
}

type LLM struct {
	Provider       string  `koanf:"provider"`
	Model          string  `koanf:"model"`
	EmbeddingModel string  `koanf:"embedding_model"`
	BaseURL        string  `koanf:"base_url"`
	APIKey         string  `koanf:"api_key"`
	Temperature    float64 `koanf:"temperature"`
}

type RAG struct {
	DBPath       string `koanf:"db_path"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
	SearchLimit  int    `koanf:"search_limit"`
	Dimensions   int    `koanf:"dimensions"`
}

type Limits struct {
	MaxPromptLength int     `koanf:"max_prompt_length"`
	HistoryMessages int     `koanf:"history_messages"`
	RatePerMinute   float64 `koanf:"rate_per_minute"`
	RateBurst       int     `koanf:"rate_burst"`
}

type Workflow struct {
	Mode        string        `koanf:"mode"`
	Concurrency int           `koanf:"concurrency"`
	JobTimeout  time.Duration `koanf:"job_timeout"`
}

type UI struct {
	Breakpoint   int           `koanf:"breakpoint"`
	Theme        string        `koanf:"theme"`
	PageSize     int           `koanf:"page_size"`
	PollInterval time.Duration `koanf:"poll_interval"`
	LogPath      string        `koanf:"log_path"`
}

type Log struct {
	Level    string `koanf:"level"`
	DebugRaw bool   `koanf:"debug_raw"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":              ":8080",
		"backend.url":              "http://localhost:8080",
		"aws.param_prefix":         "/rag-chat",
		"store.driver":             "pebble",
		"store.pebble_path":        "./data/state",
		"llm.provider":             "openai",
		"llm.model":                "gpt-4o-mini",
		"llm.embedding_model":      "text-embedding-3-small",
		"llm.temperature":          1.0,
		"rag.db_path":              "./data/rag.db",
		"rag.chunk_size":           800,
		"rag.chunk_overlap":        100,
		"rag.search_limit":         5,
		"rag.dimensions":           1536,
		"limits.max_prompt_length": 4000,
		"limits.history_messages":  20,
		"limits.rate_per_minute":   10.0,
		"limits.rate_burst":        5,
		"workflow.mode":            "async",
		"workflow.concurrency":     4,
		"workflow.job_timeout":     "2m",
		"ui.breakpoint":            120,
		"ui.theme":                 "auto",
		"ui.page_size":             20,
		"ui.poll_interval":         "1s",
		"ui.log_path":              "./ragchat-tui.log",
		"log.level":                "info",
		"log.debug_raw":            false,
	}
}

// Load builds a Config. An empty path falls back to DefaultPath when that file exists.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load(".env")

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps RAGCHAT_LLM__EMBEDDING_MODEL to llm.embedding_model.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "dynamodb", "pebble":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of dynamodb, pebble", c.Store.Driver))
	}
	if c.Store.Driver == "pebble" && strings.TrimSpace(c.Store.PebblePath) == "" {
		errs = append(errs, errors.New("store.pebble_path is required for the pebble driver"))
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of openai, gemini", c.LLM.Provider))
	}
	switch c.Workflow.Mode {
	case "inline", "async":
	default:
		errs = append(errs, fmt.Errorf("workflow.mode %q is not one of inline, async", c.Workflow.Mode))
	}
	switch c.UI.Theme {
	case "auto", "light", "dark":
	default:
		errs = append(errs, fmt.Errorf("ui.theme %q is not one of auto, light, dark", c.UI.Theme))
	}
	if strings.TrimSpace(c.LLM.Model) == "" || strings.TrimSpace(c.LLM.EmbeddingModel) == "" {
		errs = append(errs, errors.New("llm.model and llm.embedding_model are required"))
	}
	positive := map[string]int{
		"rag.chunk_size":           c.RAG.ChunkSize,
		"rag.search_limit":         c.RAG.SearchLimit,
		"rag.dimensions":           c.RAG.Dimensions,
		"limits.max_prompt_length": c.Limits.MaxPromptLength,
		"limits.rate_burst":        c.Limits.RateBurst,
		"workflow.concurrency":     c.Workflow.Concurrency,
		"ui.breakpoint":            c.UI.Breakpoint,
		"ui.page_size":             c.UI.PageSize,
	}
	for _, key := range slices.Sorted(maps.Keys(positive)) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, errors.New("rag.chunk_overlap must be in [0, rag.chunk_size)"))
	}
	if c.Limits.RatePerMinute <= 0 {
		errs = append(errs, errors.New("limits.rate_per_minute must be positive"))
	}
	if c.Limits.HistoryMessages < 0 {
		errs = append(errs, errors.New("limits.history_messages must not be negative"))
	}
	if c.UI.PollInterval <= 0 {
		errs = append(errs, errors.New("ui.poll_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateLambda checks the settings the Lambda entrypoint depends on on top of
// Validate. The deployment package is read-only and /tmp is private to one
// instance, so the vector database must live on an EFS mount.
func (c *Config) ValidateLambda() error {
	var errs []error
	if strings.TrimSpace(c.AWS.StateTable) == "" {
		errs = append(errs, errors.New("aws.state_table is required"))
	}
	p := filepath.Clean(c.RAG.DBPath)
	if !filepath.IsAbs(p) || !strings.HasPrefix(p, LambdaMountRoot) {
		errs = append(errs, fmt.Errorf("rag.db_path %q must be on an EFS mount under %s", c.RAG.DBPath, LambdaMountRoot))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: lambda: %w", errors.Join(errs...))
	}
	return nil
}
