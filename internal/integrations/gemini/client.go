// Package gemini adapts Google's GenAI SDK to agent.Provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"rag-chat/internal/agent"
	"rag-chat/internal/domain"
)

// modelsAPI is the subset of *genai.Models used by Client.
type modelsAPI interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Client generates chat completions and embeddings with Gemini models.
type Client struct {
	models     modelsAPI
	dimensions int32
}

type Option func(*Client)

// WithDimensions truncates embeddings to n dimensions.
func WithDimensions(n int) Option {
	return func(c *Client) {
		c.dimensions = int32(n)
	}
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newWithModels(client.Models, opts...), nil
}

func newWithModels(m modelsAPI, opts ...Option) *Client {
	c := &Client{models: m}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements agent.Provider.
func (c *Client) Name() string { return "gemini" }

// StreamChat implements agent.Provider. System messages become the system
// instruction; assistant turns map to the model role.
func (c *Client) StreamChat(ctx context.Context, in agent.Request, onDelta func(string) error) (agent.Response, error) {
	if in.Model == "" {
		return agent.Response{}, errors.New("gemini: model must not be empty")
	}
	system, contents := toContents(in.Messages)
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(in.Temperature)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	var (
		text strings.Builder
		out  agent.Response
	)
	for resp, err := range c.models.GenerateContentStream(ctx, in.Model, contents, cfg) {
		if err != nil {
			return agent.Response{}, fmt.Errorf("gemini: stream: %w", err)
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			out.Usage = agent.Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return agent.Response{}, err
		}
	}
	out.Text = text.String()
	return out, nil
}

// Embed implements agent.Provider.
func (c *Client) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if model == "" {
		return nil, errors.New("gemini: embedding model must not be empty")
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	var cfg *genai.EmbedContentConfig
	if c.dimensions > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(c.dimensions)}
	}
	res, err := c.models.EmbedContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, errors.New("gemini: embedding count does not match input count")
	}
	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini: missing embedding for input %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

func toContents(msgs []domain.ChatMessage) (string, []*genai.Content) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range msgs {
		switch domain.Role(m.Role) {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
