package domain

import (
	"fmt"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole validates a wire role. The empty string is accepted and yields "".
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAssistant, RoleSystem, "":
		return r, nil
	default:
		return "", fmt.Errorf("domain: unknown role %q", s)
	}
}

// MessageStatus tracks generation progress of a message.
type MessageStatus string

const (
	MessagePending  MessageStatus = "pending"
	MessageComplete MessageStatus = "complete"
	MessageFailed   MessageStatus = "failed"
)

// ContextResult is one retrieval hit a response was conditioned on.
type ContextResult struct {
	EntryID string  `json:"entryId"`
	Key     string  `json:"key"`
	Score   float64 `json:"score"`
	Order   int     `json:"order"`
	Text    string  `json:"text"`
}

// Message is a single turn in a thread.
type Message struct {
	ID          string          `json:"_id"`
	ThreadID    string          `json:"threadId"`
	Role        Role            `json:"role,omitempty"`
	Text        string          `json:"text"`
	Streaming   bool            `json:"streaming"`
	Status      MessageStatus   `json:"status"`
	Order       int             `json:"order"`
	CreatedAt   time.Time       `json:"_creationTime"`
	ContextUsed []ContextResult `json:"contextUsed,omitempty"`
}

// ChatMessage is the provider-agnostic chat message shape sent to language models.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
