package chat

import (
	"strings"
	"time"
)

// Pending is a send awaiting the backend's answer.
type Pending struct {
	ThreadID     string
	Prompt       string
	OptimisticID string
	previous     string
}

// Composer owns the prompt input.
type Composer struct {
	prompt string
	view   *MessageView
	notify Notifier
	now    func() time.Time
}

func NewComposer(view *MessageView, notify Notifier) *Composer {
	return &Composer{view: view, notify: orNop(notify), now: time.Now}
}

func (c *Composer) SetPrompt(s string) { c.prompt = s }

func (c *Composer) Prompt() string { return c.prompt }

func (c *Composer) CanSend(threadID string) bool {
	return threadID != "" && strings.TrimSpace(c.prompt) != ""
}

// Submit clears the input and shows the message before the backend has it.
// It reports false when there is nothing to send.
func (c *Composer) Submit(threadID string) (Pending, bool) {
	text := strings.TrimSpace(c.prompt)
	if text == "" {
		return Pending{}, false
	}
	if threadID == "" {
		c.notify.Notify(Notice{
			Level:       LevelError,
			Title:       "Thread ID is not set",
			Description: "Please create a thread first",
		})
		return Pending{}, false
	}
	p := Pending{ThreadID: threadID, Prompt: text, previous: c.prompt}
	c.prompt = ""
	p.OptimisticID = c.view.AddOptimistic(threadID, text, c.now()).ID
	return p, true
}

// Resolve settles a send. A failure puts the original text back in the
// input and withdraws the optimistic message.
func (c *Composer) Resolve(p Pending, err error) {
	if err == nil {
		return
	}
	c.prompt = p.previous
	c.view.RemoveOptimistic(p.OptimisticID)
	c.notify.Notify(Notice{
		Level:       LevelError,
		Title:       "Failed to send message",
		Description: err.Error(),
	})
}
