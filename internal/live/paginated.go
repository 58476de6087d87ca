package live

import "rag-chat/internal/domain"

// Status is the load state of a paginated query.
type Status int

const (
	LoadingFirstPage Status = iota
	CanLoadMore
	LoadingMore
	Exhausted
)

func (s Status) String() string {
	switch s {
	case LoadingFirstPage:
		return "LoadingFirstPage"
	case CanLoadMore:
		return "CanLoadMore"
	case LoadingMore:
		return "LoadingMore"
	case Exhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// Paginated accumulates the pages of a cursor-paginated query. The first page
// is kept live through Merge; later pages only arrive through LoadMore. It is
// owned by a single event loop and is not safe for concurrent use.
type Paginated[T any] struct {
	pageSize int
	key      func(T) string

	first    []T
	more     []T
	cursor   string
	status   Status
	err      error
	haveMore bool
}

func NewPaginated[T any](pageSize int, key func(T) string) *Paginated[T] {
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
	}
	return &Paginated[T]{pageSize: pageSize, key: key}
}

// FirstPageRequest is the request a live subscription polls.
func (p *Paginated[T]) FirstPageRequest() domain.PageRequest {
	return domain.PageRequest{NumItems: p.pageSize}
}

// Merge replaces the first page with a fresh server result.
func (p *Paginated[T]) Merge(first domain.Page[T]) {
	p.first = append([]T(nil), first.Items...)
	p.err = nil
	if p.haveMore {
		return
	}
	p.cursor = first.ContinueCursor
	if p.status == LoadingMore {
		return
	}
	p.status = statusFor(first)
}

// LoadMore returns the request for the next n items. It reports false unless
// the query is idle with more results available.
func (p *Paginated[T]) LoadMore(n int) (domain.PageRequest, bool) {
	if p.status != CanLoadMore {
		return domain.PageRequest{}, false
	}
	if n <= 0 {
		n = p.pageSize
	}
	p.status = LoadingMore
	return domain.PageRequest{Cursor: p.cursor, NumItems: n}, true
}

// Receive appends a page requested through LoadMore.
func (p *Paginated[T]) Receive(page domain.Page[T]) {
	if p.status != LoadingMore {
		return
	}
	p.more = append(p.more, page.Items...)
	p.cursor = page.ContinueCursor
	p.haveMore = true
	p.err = nil
	p.status = statusFor(page)
}

// Fail records a failed fetch. A failed LoadMore can be retried by the user.
func (p *Paginated[T]) Fail(err error) {
	p.err = err
	if p.status == LoadingMore {
		p.status = CanLoadMore
	}
}

func (p *Paginated[T]) Status() Status { return p.status }

func (p *Paginated[T]) Err() error { return p.err }

// Results returns the first page followed by loaded pages, without duplicates.
func (p *Paginated[T]) Results() []T {
	out := make([]T, 0, len(p.first)+len(p.more))
	seen := make(map[string]struct{}, cap(out))
	for _, items := range [][]T{p.first, p.more} {
		for _, item := range items {
			if p.key != nil {
				k := p.key(item)
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
			}
			out = append(out, item)
		}
	}
	return out
}

func statusFor[T any](page domain.Page[T]) Status {
	if page.IsDone {
		return Exhausted
	}
	return CanLoadMore
}
