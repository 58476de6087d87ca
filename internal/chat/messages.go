package chat

import (
	"fmt"
	"sort"
	"time"

	"rag-chat/internal/domain"
)

const optimisticPrefix = "optimistic-"

// MessageView merges the server's messages for one thread with messages the
// client has sent but the server has not yet confirmed.
type MessageView struct {
	server     []domain.Message
	optimistic []domain.Message
	expanded   map[string]bool
	seq        int
}

func NewMessageView() *MessageView {
	return &MessageView{expanded: make(map[string]bool)}
}

// SetServer replaces the server state. Optimistic messages the server now
// holds are dropped.
func (v *MessageView) SetServer(msgs []domain.Message) {
	v.server = append([]domain.Message(nil), msgs...)
	kept := v.optimistic[:0]
	for _, o := range v.optimistic {
		if !v.confirmed(o) {
			kept = append(kept, o)
		}
	}
	v.optimistic = kept
}

func (v *MessageView) confirmed(o domain.Message) bool {
	for _, m := range v.server {
		if m.Text == o.Text && m.Order >= o.Order && ResolveRole(m) == domain.RoleUser {
			return true
		}
	}
	return false
}

// AddOptimistic inserts a pending user message after every known message.
func (v *MessageView) AddOptimistic(threadID, text string, now time.Time) domain.Message {
	v.seq++
	order := 0
	for _, m := range v.server {
		if m.Order >= order {
			order = m.Order + 1
		}
	}
	for _, m := range v.optimistic {
		if m.Order >= order {
			order = m.Order + 1
		}
	}
	msg := domain.Message{
		ID:        fmt.Sprintf("%s%d", optimisticPrefix, v.seq),
		ThreadID:  threadID,
		Role:      domain.RoleUser,
		Text:      text,
		Status:    domain.MessagePending,
		Order:     order,
		CreatedAt: now,
	}
	v.optimistic = append(v.optimistic, msg)
	return msg
}

func (v *MessageView) RemoveOptimistic(id string) {
	for i, m := range v.optimistic {
		if m.ID == id {
			v.optimistic = append(v.optimistic[:i], v.optimistic[i+1:]...)
			return
		}
	}
}

// Messages returns server and optimistic messages ordered by order, then
// creation time.
func (v *MessageView) Messages() []domain.Message {
	out := make([]domain.Message, 0, len(v.server)+len(v.optimistic))
	out = append(out, v.server...)
	out = append(out, v.optimistic...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (v *MessageView) Pending() int { return len(v.optimistic) }

func (v *MessageView) ToggleContext(messageID string) {
	if v.expanded[messageID] {
		delete(v.expanded, messageID)
		return
	}
	v.expanded[messageID] = true
}

func (v *MessageView) Expanded(messageID string) bool { return v.expanded[messageID] }

// Reset clears the view when switching threads.
func (v *MessageView) Reset() {
	v.server, v.optimistic = nil, nil
	v.expanded = make(map[string]bool)
}

// IsOptimistic reports whether id was assigned by AddOptimistic.
func IsOptimistic(id string) bool {
	return len(id) > len(optimisticPrefix) && id[:len(optimisticPrefix)] == optimisticPrefix
}
