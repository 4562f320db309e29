package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

var errCorpusClosed = errors.New("corpus store is closed")

// CorpusStore keeps every indexed chunk in corpus order plus a small
// key/value state table. It is the document collection the sparse
// retriever is built from and the lookup table behind dense hits.
type CorpusStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

const corpusSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	position    INTEGER NOT NULL,
	path        TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_documents_position ON documents(position);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// checkCorpusIntegrity validates an existing database file before use.
func checkCorpusIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// OpenCorpusStore opens or creates the corpus at path. An empty path opens
// an in-memory store. A corrupted file is removed and recreated empty.
func OpenCorpusStore(path string) (*CorpusStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create corpus dir: %w", err)
		}

		if verr := checkCorpusIntegrity(path); verr != nil {
			slog.Warn("corpus_store_corrupted",
				slog.String("path", path),
				slog.String("error", verr.Error()))
			if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
				return nil, fmt.Errorf("corpus corrupted at %s and cannot remove: %w (original error: %v)", path, rerr, verr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("corpus_store_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}

	// One connection: a single writer and a stable :memory: database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(corpusSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init corpus schema: %w", err)
	}

	return &CorpusStore{db: db, path: path}, nil
}

// Path returns the database file, or "" for in-memory stores.
func (s *CorpusStore) Path() string {
	return s.path
}

// ReplaceAll discards the current corpus and stores docs in the given order,
// in one transaction.
func (s *CorpusStore) ReplaceAll(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errCorpusClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO documents (id, position, path, chunk_index, content, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range docs {
		meta, err := encodeMetadata(d.Metadata)
		if err != nil {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, i, d.Path, d.ChunkIndex, d.Content, meta); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// All returns every document in corpus order.
func (s *CorpusStore) All(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errCorpusClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, chunk_index, content, metadata FROM documents ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// Get returns the documents with the given IDs, keyed by ID. Unknown IDs are
// absent from the map.
func (s *CorpusStore) Get(ctx context.Context, ids []string) (map[string]Document, error) {
	out := make(map[string]Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errCorpusClosed
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, chunk_index, content, metadata FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}

// Count returns the number of stored documents.
func (s *CorpusStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errCorpusClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// GetState returns the value for key, or "" when unset.
func (s *CorpusStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", errCorpusClosed
	}
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return v, nil
}

// SetState upserts a state value.
func (s *CorpusStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errCorpusClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *CorpusStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var (
			d    Document
			meta string
		)
		if err := rows.Scan(&d.ID, &d.Path, &d.ChunkIndex, &d.Content, &meta); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", d.ID, err)
			}
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}
