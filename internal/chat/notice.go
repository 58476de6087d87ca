package chat

import "time"

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient user-facing notification.
type Notice struct {
	Level       Level
	Title       string
	Description string
}

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

type toast struct {
	Notice
	expires time.Time
}

// Notices is a bounded queue of expiring toasts.
type Notices struct {
	ttl   time.Duration
	max   int
	now   func() time.Time
	items []toast
}

func NewNotices(ttl time.Duration, max int) *Notices {
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	if max <= 0 {
		max = 3
	}
	return &Notices{ttl: ttl, max: max, now: time.Now}
}

// Notify implements Notifier. The oldest toast is dropped when the queue is full.
func (q *Notices) Notify(n Notice) {
	q.items = append(q.items, toast{Notice: n, expires: q.now().Add(q.ttl)})
	if over := len(q.items) - q.max; over > 0 {
		q.items = q.items[over:]
	}
}

// Prune drops expired toasts and reports whether any were removed.
func (q *Notices) Prune() bool {
	now := q.now()
	kept := q.items[:0]
	for _, t := range q.items {
		if now.Before(t.expires) {
			kept = append(kept, t)
		}
	}
	removed := len(kept) != len(q.items)
	q.items = kept
	return removed
}

// Active returns the live toasts, oldest first.
func (q *Notices) Active() []Notice {
	out := make([]Notice, len(q.items))
	for i, t := range q.items {
		out[i] = t.Notice
	}
	return out
}
