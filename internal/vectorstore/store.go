// Package vectorstore keeps context entries, their chunks and chunk embeddings
// in SQLite, searched with the sqlite-vec extension.
package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"rag-chat/internal/domain"
)

func init() {
	// Makes vec_* functions available on every mattn/go-sqlite3 connection.
	vec.Auto()
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	key        TEXT NOT NULL,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_key ON entries(key);
CREATE TABLE IF NOT EXISTS chunks (
	entry_id  TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	ord       INTEGER NOT NULL,
	text      TEXT NOT NULL,
	embedding BLOB NOT NULL,
	PRIMARY KEY (entry_id, ord)
);
`

// Store is a SQLite-backed entry and chunk store.
type Store struct {
	db         *sql.DB
	dimensions int
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
}

// Open opens the database at path, creating the schema if needed. dimensions
// is the expected embedding length; zero disables the check.
func Open(path string, dimensions int, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("vectorstore: path must not be empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open: %w", err)
	}
	// SQLite allows one writer.
	db.SetMaxOpenConns(1)

	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vectorstore: sqlite-vec not available: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vectorstore: create schema: %w", err)
	}
	log.Info("vector store opened", zap.String("path", path), zap.String("vecVersion", version), zap.Int("dimensions", dimensions))
	return &Store{
		db:         db,
		dimensions: dimensions,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateEntry inserts a pending entry.
func (s *Store) CreateEntry(ctx context.Context, key, title string) (domain.Entry, error) {
	e := domain.Entry{
		ID:        s.newID(),
		Key:       key,
		Title:     title,
		Status:    domain.EntryPending,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (id, key, title, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Key, e.Title, string(e.Status), e.CreatedAt.UnixMilli())
	if err != nil {
		return domain.Entry{}, fmt.Errorf("vectorstore: CreateEntry: %w", err)
	}
	return e, nil
}

// SaveChunks stores chunks with their embeddings in one transaction.
func (s *Store) SaveChunks(ctx context.Context, entryID string, chunks []domain.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("vectorstore: SaveChunks: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorstore: SaveChunks begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (entry_id, ord, text, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("vectorstore: SaveChunks prepare: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if s.dimensions > 0 && len(embeddings[i]) != s.dimensions {
			return fmt.Errorf("vectorstore: SaveChunks: chunk %d has %d dimensions, want %d", c.Order, len(embeddings[i]), s.dimensions)
		}
		blob, err := vec.SerializeFloat32(embeddings[i])
		if err != nil {
			return fmt.Errorf("vectorstore: SaveChunks serialize: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, entryID, c.Order, c.Text, blob); err != nil {
			return fmt.Errorf("vectorstore: SaveChunks insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vectorstore: SaveChunks commit: %w", err)
	}
	return nil
}

func (s *Store) SetEntryStatus(ctx context.Context, entryID string, status domain.EntryStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE entries SET status = ? WHERE id = ?`, string(status), entryID)
	if err != nil {
		return fmt.Errorf("vectorstore: SetEntryStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PublishEntry marks entryID ready and deletes every other entry sharing key
// in one transaction, so a search never sees two versions of a key. It
// returns the number of replaced entries.
func (s *Store) PublishEntry(ctx context.Context, key, entryID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: PublishEntry begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE entries SET status = ? WHERE id = ? AND key = ?`,
		string(domain.EntryReady), entryID, key)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: PublishEntry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, domain.ErrNotFound
	}
	res, err = tx.ExecContext(ctx, `DELETE FROM entries WHERE key = ? AND id <> ?`, key, entryID)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: PublishEntry delete: %w", err)
	}
	removed, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("vectorstore: PublishEntry commit: %w", err)
	}
	return int(removed), nil
}

// ListEntries returns entries in creation order.
func (s *Store) ListEntries(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Entry], error) {
	req = req.Normalize()
	offset, err := decodeOffset(req.Cursor)
	if err != nil {
		return domain.Page[domain.Entry]{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, title, status, created_at FROM entries ORDER BY seq LIMIT ? OFFSET ?`,
		req.NumItems+1, offset)
	if err != nil {
		return domain.Page[domain.Entry]{}, fmt.Errorf("vectorstore: ListEntries: %w", err)
	}
	defer rows.Close()

	out := []domain.Entry{}
	for rows.Next() {
		var (
			e       domain.Entry
			status  string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Key, &e.Title, &status, &created); err != nil {
			return domain.Page[domain.Entry]{}, fmt.Errorf("vectorstore: ListEntries scan: %w", err)
		}
		e.Status = domain.EntryStatus(status)
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Entry]{}, fmt.Errorf("vectorstore: ListEntries rows: %w", err)
	}
	return offsetPage(out, offset, req.NumItems), nil
}

// ListChunks returns an entry's chunks by order.
func (s *Store) ListChunks(ctx context.Context, entryID string, req domain.PageRequest) (domain.Page[domain.Chunk], error) {
	req = req.Normalize()
	offset, err := decodeOffset(req.Cursor)
	if err != nil {
		return domain.Page[domain.Chunk]{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, ord, text FROM chunks WHERE entry_id = ? ORDER BY ord LIMIT ? OFFSET ?`,
		entryID, req.NumItems+1, offset)
	if err != nil {
		return domain.Page[domain.Chunk]{}, fmt.Errorf("vectorstore: ListChunks: %w", err)
	}
	defer rows.Close()

	out := []domain.Chunk{}
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.EntryID, &c.Order, &c.Text); err != nil {
			return domain.Page[domain.Chunk]{}, fmt.Errorf("vectorstore: ListChunks scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Chunk]{}, fmt.Errorf("vectorstore: ListChunks rows: %w", err)
	}
	return offsetPage(out, offset, req.NumItems), nil
}

// Search returns the limit chunks of ready entries closest to query by cosine
// distance. Score is 1 - distance.
func (s *Store) Search(ctx context.Context, query []float32, limit int) ([]domain.ContextResult, error) {
	if limit <= 0 {
		limit = 5
	}
	blob, err := vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: Search serialize: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.entry_id, e.key, c.ord, c.text, vec_distance_cosine(c.embedding, ?) AS distance
		FROM chunks c
		JOIN entries e ON e.id = c.entry_id
		WHERE e.status = ?
		ORDER BY distance ASC
		LIMIT ?`, blob, string(domain.EntryReady), limit)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: Search: %w", err)
	}
	defer rows.Close()

	var out []domain.ContextResult
	for rows.Next() {
		var (
			r        domain.ContextResult
			distance float64
		)
		if err := rows.Scan(&r.EntryID, &r.Key, &r.Order, &r.Text, &distance); err != nil {
			return nil, fmt.Errorf("vectorstore: Search scan: %w", err)
		}
		r.Score = 1 - distance
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: Search rows: %w", err)
	}
	s.log.Debug("vector search", zap.Int("limit", limit), zap.Int("results", len(out)))
	return out, nil
}

func decodeOffset(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, domain.ErrBadCursor
	}
	return n, nil
}

// offsetPage trims the one-row lookahead used to detect the last page.
func offsetPage[T any](items []T, offset, size int) domain.Page[T] {
	if len(items) <= size {
		return domain.Page[T]{Items: items, IsDone: true}
	}
	return domain.Page[T]{
		Items:          items[:size],
		ContinueCursor: strconv.Itoa(offset + size),
	}
}
