package domain

// PageRequest asks for up to NumItems results after Cursor. An empty cursor starts at the top.
type PageRequest struct {
	Cursor   string
	NumItems int
}

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Items          []T    `json:"page"`
	ContinueCursor string `json:"continueCursor"`
	IsDone         bool   `json:"isDone"`
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize clamps NumItems into [1, MaxPageSize].
func (r PageRequest) Normalize() PageRequest {
	if r.NumItems <= 0 {
		r.NumItems = DefaultPageSize
	}
	if r.NumItems > MaxPageSize {
		r.NumItems = MaxPageSize
	}
	return r
}
