package repository

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"rag-chat/internal/domain"
)

// Key layout:
//
//	t/<threadID>                       thread record
//	u/<hex(userID)>/<invCreated>/<threadID> user index, newest first
//	m/<threadID>/<invOrder>            message record, highest order first
const (
	pfxThread = "t/"
	pfxUser   = "u/"
	pfxMsg    = "m/"
)

type storedThread struct {
	domain.Thread
	NextOrder int `json:"nextOrder"`
}

// PebbleStore keeps threads and messages in an embedded Pebble database for
// local runs. It is the single-process counterpart of Client.
type PebbleStore struct {
	db    *pebble.DB
	now   func() time.Time
	newID func() string

	// mu serialises read-modify-write of thread records.
	mu sync.Mutex
}

// OpenPebble opens or creates the database at dir. A nil fs uses the OS filesystem.
func OpenPebble(dir string, fs vfs.FS) (*PebbleStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("repository: pebble path must not be empty")
	}
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("repository: open pebble: %w", err)
	}
	return &PebbleStore{db: db, now: time.Now, newID: newID}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func threadKey(id string) []byte {
	return []byte(pfxThread + id)
}

// userPrefix hex-encodes userID so no id can be a key prefix of another.
func userPrefix(userID string) string {
	return pfxUser + hex.EncodeToString([]byte(userID)) + "/"
}

func userIndexKey(t domain.Thread) []byte {
	inv := math.MaxInt64 - t.CreatedAt.UnixNano()
	return []byte(fmt.Sprintf("%s%019d/%s", userPrefix(t.UserID), inv, t.ID))
}

func msgKey(threadID string, order int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", pfxMsg, threadID, math.MaxInt32-order))
}

func (s *PebbleStore) CreateThread(_ context.Context, t domain.Thread) (domain.Thread, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	if t.Status == "" {
		t.Status = domain.ThreadActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.loadThread(t.ID); err == nil {
		return domain.Thread{}, fmt.Errorf("repository: CreateThread: thread %s already exists", t.ID)
	}
	b, err := json.Marshal(storedThread{Thread: t})
	if err != nil {
		return domain.Thread{}, fmt.Errorf("repository: CreateThread encode: %w", err)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(threadKey(t.ID), b, nil); err != nil {
		return domain.Thread{}, fmt.Errorf("repository: CreateThread: %w", err)
	}
	if err := batch.Set(userIndexKey(t), []byte(t.ID), nil); err != nil {
		return domain.Thread{}, fmt.Errorf("repository: CreateThread index: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return domain.Thread{}, fmt.Errorf("repository: CreateThread commit: %w", err)
	}
	return t, nil
}

func (s *PebbleStore) loadThread(id string) (storedThread, error) {
	v, closer, err := s.db.Get(threadKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return storedThread{}, domain.ErrNotFound
	}
	if err != nil {
		return storedThread{}, err
	}
	defer closer.Close()
	var st storedThread
	if err := json.Unmarshal(v, &st); err != nil {
		return storedThread{}, err
	}
	return st, nil
}

func (s *PebbleStore) saveThread(st storedThread) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Set(threadKey(st.ID), b, pebble.Sync)
}

func (s *PebbleStore) GetThread(_ context.Context, threadID string) (domain.Thread, error) {
	st, err := s.loadThread(threadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Thread{}, err
		}
		return domain.Thread{}, fmt.Errorf("repository: GetThread: %w", err)
	}
	return st.Thread, nil
}

func (s *PebbleStore) ListThreads(_ context.Context, userID string, req domain.PageRequest) (domain.Page[domain.Thread], error) {
	out := []domain.Thread{}
	page, err := s.scan(userPrefix(userID), req, func(_, v []byte) error {
		st, err := s.loadThread(string(v))
		if err != nil {
			return err
		}
		if st.UserID != userID {
			return nil
		}
		out = append(out, st.Thread)
		return nil
	})
	if err != nil {
		return domain.Page[domain.Thread]{}, fmt.Errorf("repository: ListThreads: %w", err)
	}
	return domain.Page[domain.Thread]{Items: out, ContinueCursor: page.cursor, IsDone: page.done}, nil
}

func (s *PebbleStore) UpdateThreadTitle(_ context.Context, threadID, title string) error {
	return s.mutateThread(threadID, func(st *storedThread) { st.Title = title })
}

func (s *PebbleStore) SetThreadStatus(_ context.Context, threadID string, status domain.ThreadStatus) error {
	return s.mutateThread(threadID, func(st *storedThread) { st.Status = status })
}

func (s *PebbleStore) mutateThread(threadID string, fn func(*storedThread)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadThread(threadID)
	if err != nil {
		return err
	}
	fn(&st)
	if err := s.saveThread(st); err != nil {
		return fmt.Errorf("repository: update thread %s: %w", threadID, err)
	}
	return nil
}

func (s *PebbleStore) AppendMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadThread(msg.ThreadID)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Order = st.NextOrder
	st.NextOrder++
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	tb, err := json.Marshal(st)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: AppendMessage encode thread: %w", err)
	}
	mb, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: AppendMessage encode: %w", err)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(threadKey(st.ID), tb, nil); err != nil {
		return domain.Message{}, err
	}
	if err := batch.Set(msgKey(msg.ThreadID, msg.Order), mb, nil); err != nil {
		return domain.Message{}, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return domain.Message{}, fmt.Errorf("repository: AppendMessage commit: %w", err)
	}
	return msg, nil
}

func (s *PebbleStore) UpdateMessage(_ context.Context, msg domain.Message) error {
	key := msgKey(msg.ThreadID, msg.Order)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("repository: UpdateMessage: %w", err)
	}
	var cur domain.Message
	err = json.Unmarshal(v, &cur)
	closer.Close()
	if err != nil {
		return fmt.Errorf("repository: UpdateMessage decode: %w", err)
	}
	cur.Text = msg.Text
	cur.Streaming = msg.Streaming
	cur.Status = msg.Status
	cur.ContextUsed = msg.ContextUsed
	b, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("repository: UpdateMessage encode: %w", err)
	}
	return s.db.Set(key, b, pebble.Sync)
}

func (s *PebbleStore) ListMessages(_ context.Context, threadID string, req domain.PageRequest) (domain.Page[domain.Message], error) {
	out := []domain.Message{}
	page, err := s.scan(pfxMsg+threadID+"/", req, func(_, v []byte) error {
		var m domain.Message
		if err := json.Unmarshal(v, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return domain.Page[domain.Message]{}, fmt.Errorf("repository: ListMessages: %w", err)
	}
	return domain.Page[domain.Message]{Items: out, ContinueCursor: page.cursor, IsDone: page.done}, nil
}

func (s *PebbleStore) RecentMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	page, err := s.ListMessages(ctx, threadID, domain.PageRequest{NumItems: limit})
	if err != nil {
		return nil, err
	}
	msgs := page.Items
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

type scanResult struct {
	cursor string
	done   bool
}

// scan visits up to req.NumItems keys under prefix, starting after the key
// encoded in req.Cursor.
func (s *PebbleStore) scan(prefix string, req domain.PageRequest, visit func(k, v []byte) error) (scanResult, error) {
	req = req.Normalize()
	lower := []byte(prefix)
	if req.Cursor != "" {
		after, err := base64.RawURLEncoding.DecodeString(req.Cursor)
		if err != nil || !strings.HasPrefix(string(after), prefix) {
			return scanResult{}, domain.ErrBadCursor
		}
		// The smallest key strictly greater than after.
		lower = append(after, 0)
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return scanResult{}, err
	}
	defer iter.Close()

	var last []byte
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if n == req.NumItems {
			return scanResult{cursor: base64.RawURLEncoding.EncodeToString(last)}, nil
		}
		if err := visit(iter.Key(), iter.Value()); err != nil {
			return scanResult{}, err
		}
		last = append(last[:0], iter.Key()...)
		n++
	}
	if err := iter.Error(); err != nil {
		return scanResult{}, err
	}
	return scanResult{done: true}, nil
}

func prefixUpperBound(prefix string) []byte {
	b := []byte(prefix)
	b[len(b)-1]++
	return b
}
