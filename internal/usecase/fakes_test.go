package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rag-chat/internal/agent"
	"rag-chat/internal/domain"
)

// memState is an in-memory StateStore.
type memState struct {
	mu        sync.Mutex
	threads   map[string]domain.Thread
	messages  map[string][]domain.Message
	updates   []domain.Message
	n         int
	createErr error
	appendErr error
	getErr    error
	listErr   error
}

func newMemState() *memState {
	return &memState{threads: map[string]domain.Thread{}, messages: map[string][]domain.Message{}}
}

func (m *memState) CreateThread(_ context.Context, t domain.Thread) (domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return domain.Thread{}, m.createErr
	}
	if t.ID == "" {
		m.n++
		t.ID = fmt.Sprintf("t%d", m.n)
	}
	m.threads[t.ID] = t
	return t, nil
}

func (m *memState) GetThread(_ context.Context, id string) (domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Thread{}, m.getErr
	}
	t, ok := m.threads[id]
	if !ok {
		return domain.Thread{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memState) ListThreads(_ context.Context, userID string, _ domain.PageRequest) (domain.Page[domain.Thread], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return domain.Page[domain.Thread]{}, m.listErr
	}
	out := []domain.Thread{}
	for _, t := range m.threads {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return domain.Page[domain.Thread]{Items: out, IsDone: true}, nil
}

func (m *memState) UpdateThreadTitle(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Title = title
	m.threads[id] = t
	return nil
}

func (m *memState) SetThreadStatus(_ context.Context, id string, status domain.ThreadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	m.threads[id] = t
	return nil
}

func (m *memState) AppendMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return domain.Message{}, m.appendErr
	}
	msgs := m.messages[msg.ThreadID]
	msg.Order = len(msgs)
	msg.ID = fmt.Sprintf("%s-m%d", msg.ThreadID, msg.Order)
	msg.CreatedAt = time.Unix(int64(msg.Order), 0)
	m.messages[msg.ThreadID] = append(msgs, msg)
	return msg, nil
}

func (m *memState) UpdateMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[msg.ThreadID]
	if msg.Order >= len(msgs) {
		return domain.ErrNotFound
	}
	msgs[msg.Order] = msg
	m.updates = append(m.updates, msg)
	return nil
}

func (m *memState) ListMessages(_ context.Context, threadID string, _ domain.PageRequest) (domain.Page[domain.Message], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[threadID]
	out := make([]domain.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, msgs[i])
	}
	return domain.Page[domain.Message]{Items: out, IsDone: true}, nil
}

func (m *memState) RecentMessages(_ context.Context, threadID string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[threadID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}

func (m *memState) thread(t domain.Thread) *memState {
	m.threads[t.ID] = t
	return m
}

// memVectors is an in-memory VectorStore.
type memVectors struct {
	mu         sync.Mutex
	entries    []domain.Entry
	chunks     map[string][]domain.Chunk
	removed    []string
	results    []domain.ContextResult
	searchErr  error
	listErr    error
	publishErr error
	lastQuery  []float32
}

func newMemVectors() *memVectors {
	return &memVectors{chunks: map[string][]domain.Chunk{}}
}

func (v *memVectors) CreateEntry(_ context.Context, key, title string) (domain.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e := domain.Entry{ID: fmt.Sprintf("e%d", len(v.entries)+1), Key: key, Title: title, Status: domain.EntryPending}
	v.entries = append(v.entries, e)
	return e, nil
}

func (v *memVectors) SaveChunks(_ context.Context, entryID string, chunks []domain.Chunk, embeddings [][]float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("mismatch")
	}
	v.chunks[entryID] = chunks
	return nil
}

func (v *memVectors) SetEntryStatus(_ context.Context, entryID string, status domain.EntryStatus) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.entries {
		if v.entries[i].ID == entryID {
			v.entries[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (v *memVectors) PublishEntry(_ context.Context, key, keepID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.publishErr != nil {
		return 0, v.publishErr
	}
	found := false
	for i := range v.entries {
		if v.entries[i].ID == keepID && v.entries[i].Key == key {
			v.entries[i].Status = domain.EntryReady
			found = true
		}
	}
	if !found {
		return 0, domain.ErrNotFound
	}
	kept := v.entries[:0]
	n := 0
	for _, e := range v.entries {
		if e.Key == key && e.ID != keepID {
			v.removed = append(v.removed, e.ID)
			n++
			continue
		}
		kept = append(kept, e)
	}
	v.entries = kept
	return n, nil
}

func (v *memVectors) ListEntries(_ context.Context, _ domain.PageRequest) (domain.Page[domain.Entry], error) {
	if v.listErr != nil {
		return domain.Page[domain.Entry]{}, v.listErr
	}
	return domain.Page[domain.Entry]{Items: v.entries, IsDone: true}, nil
}

func (v *memVectors) ListChunks(_ context.Context, entryID string, _ domain.PageRequest) (domain.Page[domain.Chunk], error) {
	return domain.Page[domain.Chunk]{Items: v.chunks[entryID], IsDone: true}, nil
}

func (v *memVectors) Search(_ context.Context, query []float32, _ int) ([]domain.ContextResult, error) {
	v.lastQuery = query
	return v.results, v.searchErr
}

// fakeModel streams a fixed answer split into deltas.
type fakeModel struct {
	mu        sync.Mutex
	deltas    []string
	streamErr error
	embedErr  error
	embedded  [][]string
	prompts   [][]domain.ChatMessage
	calls     []agent.Call
}

func (f *fakeModel) Stream(_ context.Context, call agent.Call, messages []domain.ChatMessage, onDelta func(string) error) (agent.Response, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, messages)
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	var text string
	for _, d := range f.deltas {
		text += d
		if err := onDelta(d); err != nil {
			return agent.Response{}, err
		}
	}
	if f.streamErr != nil {
		return agent.Response{}, f.streamErr
	}
	return agent.Response{Text: text, Usage: agent.Usage{CompletionTokens: len(f.deltas)}}, nil
}

func (f *fakeModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embedded = append(f.embedded, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

type fakeLimiter struct {
	deny  bool
	asked []string
}

func (f *fakeLimiter) Allow(bucket, userID string) bool {
	f.asked = append(f.asked, bucket+":"+userID)
	return !f.deny
}

type statusErr struct{ code int }

func (e *statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatusCode() int { return e.code }
