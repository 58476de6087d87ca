// Package paramstore reads secrets such as model API tokens from AWS SSM
// Parameter Store under a common path prefix.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is satisfied by *ssm.Client.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter returns the decrypted value of a parameter by full name.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client reads parameters below prefix and caches decoded tokens for the
// lifetime of the process.
type Client struct {
	api    ssmAPI
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: prefix must not be empty")
	}
	return &Client{api: api, prefix: prefix, tokens: map[string]string{}}, nil
}

// Prefix is the path every relative parameter name is resolved under.
func (c *Client) Prefix() string { return c.prefix }

// Path resolves a relative name such as "gemini-token" to its full parameter path.
func (c *Client) Path(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return ""
	}
	return c.prefix + "/" + name
}

// GetParameter implements Getter. name is a full parameter path.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

type tokenPayload struct {
	Token string `json:"token"`
}

// Token reads the relative parameter name, decodes its {"token": "..."} JSON
// value and caches the token. Failed reads are not cached.
func (c *Client) Token(ctx context.Context, name string) (string, error) {
	path := c.Path(name)
	if path == "" {
		return "", errors.New("paramstore: token name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.tokens[path]; ok {
		return tok, nil
	}
	raw, err := c.GetParameter(ctx, path)
	if err != nil {
		return "", err
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: decode token %q: %w", path, err)
	}
	tp.Token = strings.TrimSpace(tp.Token)
	if tp.Token == "" {
		return "", fmt.Errorf("paramstore: token %q is empty", path)
	}
	c.tokens[path] = tp.Token
	return tp.Token, nil
}
