package domain

import "time"

// EntryStatus is the indexing state of a context entry.
type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntryReady   EntryStatus = "ready"
	EntryFailed  EntryStatus = "failed"
)

// Entry is a named unit of context content added for retrieval.
type Entry struct {
	ID        string      `json:"entryId"`
	Key       string      `json:"key"`
	Title     string      `json:"title,omitempty"`
	Status    EntryStatus `json:"status"`
	CreatedAt time.Time   `json:"_creationTime"`
}

// Chunk is a sub-segment of an entry's text.
type Chunk struct {
	EntryID string `json:"entryId"`
	Order   int    `json:"order"`
	Text    string `json:"text"`
}
