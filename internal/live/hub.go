// Package live turns polled API queries into push-style subscriptions.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

// Update is one delivery on a subscription. Err is set when the fetch failed.
type Update[T any] struct {
	Value T
	Err   error
}

type registration struct {
	refresh chan struct{}
}

func (r *registration) trigger() {
	select {
	case r.refresh <- struct{}{}:
	default:
	}
}

// Hub owns the polling goroutines of all subscriptions.
type Hub struct {
	interval time.Duration
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	subs map[string]map[*registration]struct{}
}

func NewHub(interval time.Duration, log *zap.Logger) *Hub {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]map[*registration]struct{}),
	}
}

// Refresh makes every subscription on key fetch now.
func (h *Hub) Refresh(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for r := range h.subs[key] {
		r.trigger()
	}
}

// Close stops all subscriptions and waits for their goroutines to exit.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) register(key string, r *registration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*registration]struct{})
	}
	h.subs[key][r] = struct{}{}
}

func (h *Hub) unregister(key string, r *registration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[key], r)
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
	}
}

// Subscription delivers a query result each time it changes.
type Subscription[T any] struct {
	key     string
	updates chan Update[T]
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *Subscription[T]) Key() string { return s.key }

// Updates is closed once the subscription stops.
func (s *Subscription[T]) Updates() <-chan Update[T] { return s.updates }

// Unsubscribe stops polling and waits for the goroutine to exit.
func (s *Subscription[T]) Unsubscribe() {
	s.cancel()
	<-s.done
}

// Subscribe polls fetch on the hub's interval and whenever key is refreshed.
// The first result is always delivered; later results only when they differ
// from the previous delivery.
func Subscribe[T any](h *Hub, key string, fetch func(context.Context) (T, error)) *Subscription[T] {
	ctx, cancel := context.WithCancel(h.ctx)
	sub := &Subscription[T]{
		key:     key,
		updates: make(chan Update[T]),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	reg := &registration{refresh: make(chan struct{}, 1)}
	h.register(key, reg)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(sub.done)
		defer close(sub.updates)
		defer h.unregister(key, reg)

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		var (
			last      Update[T]
			delivered bool
		)
		for {
			value, err := fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			next := Update[T]{Value: value, Err: err}
			if err != nil {
				h.log.Debug("live query failed", zap.String("key", key), zap.Error(err))
			}
			if !delivered || changed(last, next) {
				select {
				case sub.updates <- next:
					last, delivered = next, true
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-reg.refresh:
			case <-ctx.Done():
				return
			}
		}
	}()
	return sub
}

func changed[T any](prev, next Update[T]) bool {
	if (prev.Err == nil) != (next.Err == nil) {
		return true
	}
	if next.Err != nil {
		return prev.Err.Error() != next.Err.Error()
	}
	return !cmp.Equal(prev.Value, next.Value)
}
