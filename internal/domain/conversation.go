package domain

import "time"

// ThreadStatus is the lifecycle state of a thread. Threads are archived, never deleted.
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadArchived ThreadStatus = "archived"
)

// Thread is a persisted conversation between a user and the assistant.
type Thread struct {
	ID        string       `json:"_id"`
	Title     string       `json:"title,omitempty"`
	Summary   string       `json:"summary,omitempty"`
	Status    ThreadStatus `json:"status"`
	UserID    string       `json:"userId,omitempty"`
	CreatedAt time.Time    `json:"_creationTime"`
}

// Active reports whether the thread can receive new messages.
func (t Thread) Active() bool {
	return t.Status == ThreadActive
}

// ActiveThreads keeps the active threads of ts in their original order.
func ActiveThreads(ts []Thread) []Thread {
	out := make([]Thread, 0, len(ts))
	for _, t := range ts {
		if t.Active() {
			out = append(out, t)
		}
	}
	return out
}
