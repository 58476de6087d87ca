// Package client calls the rag-chat HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rag-chat/internal/chat"
	"rag-chat/internal/domain"
)

var _ chat.API = (*Client)(nil)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("api: %d %s (%s)", e.StatusCode, e.Code, e.Reason)
}

func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

type Client struct {
	baseURL    string
	httpClient *http.Client
	userID     string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserID sends id as X-User-Id on every request.
func WithUserID(id string) Option {
	return func(c *Client) { c.userID = strings.TrimSpace(id) }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: base url must not be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	c := &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) CreateThread(ctx context.Context, title string) (string, error) {
	var out struct {
		ThreadID string `json:"threadId"`
	}
	err := c.do(ctx, http.MethodPost, "/threads", nil, map[string]string{"title": title}, &out)
	return out.ThreadID, err
}

func (c *Client) ListThreads(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Thread], error) {
	var out domain.Page[domain.Thread]
	err := c.do(ctx, http.MethodGet, "/threads", pageQuery(req), nil, &out)
	return out, err
}

func (c *Client) RenameThread(ctx context.Context, threadID, title string) (string, error) {
	var out struct {
		ThreadID string `json:"threadId"`
	}
	err := c.do(ctx, http.MethodPatch, "/threads/"+url.PathEscape(threadID), nil, map[string]string{"title": title}, &out)
	return out.ThreadID, err
}

func (c *Client) ArchiveThread(ctx context.Context, threadID string) error {
	return c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/archive", nil, nil, nil)
}

func (c *Client) AddContext(ctx context.Context, title, text string) error {
	return c.do(ctx, http.MethodPost, "/context", nil, map[string]string{"title": title, "text": text}, nil)
}

func (c *Client) AskQuestion(ctx context.Context, threadID, prompt string) error {
	return c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", nil, map[string]string{"prompt": prompt}, nil)
}

func (c *Client) ListMessagesWithContext(ctx context.Context, threadID string, req domain.PageRequest, stream bool) (domain.Page[domain.Message], error) {
	q := pageQuery(req)
	q.Set("stream", strconv.FormatBool(stream))
	var out domain.Page[domain.Message]
	err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages", q, nil, &out)
	return out, err
}

func (c *Client) ListEntries(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Entry], error) {
	var out domain.Page[domain.Entry]
	err := c.do(ctx, http.MethodGet, "/entries", pageQuery(req), nil, &out)
	return out, err
}

func (c *Client) ListChunks(ctx context.Context, entryID string, req domain.PageRequest) (domain.Page[domain.Chunk], error) {
	var out domain.Page[domain.Chunk]
	err := c.do(ctx, http.MethodGet, "/entries/"+url.PathEscape(entryID)+"/chunks", pageQuery(req), nil, &out)
	return out, err
}

func pageQuery(req domain.PageRequest) url.Values {
	q := url.Values{}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.NumItems > 0 {
		q.Set("numItems", strconv.Itoa(req.NumItems))
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userID != "" {
		req.Header.Set("X-User-Id", c.userID)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		var payload struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Code, apiErr.Reason = payload.Error, payload.Reason
		}
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(res.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
