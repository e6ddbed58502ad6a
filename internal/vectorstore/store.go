// Package vectorstore persists embedded chunks, one SQLite database per
// corpus, and answers filtered similarity queries over them.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aixtools/kmcp/internal/corpus"
	"github.com/aixtools/kmcp/internal/document"
	"github.com/aixtools/kmcp/internal/log"
	"github.com/aixtools/kmcp/internal/metadata"
)

const dbFileName = "index.db"

// ErrNotIndexed marks operations against a corpus that has no index
// database yet.
var ErrNotIndexed = errors.New("directory is not indexed")

// EmbedFunc turns a batch of texts into embedding vectors.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedBatchSize bounds how many chunk texts go into one embed call.
const embedBatchSize = 64

// Store owns the per-corpus databases under a cache root. Database
// handles are opened lazily and cached until Close.
type Store struct {
	cacheRoot string
	embed     EmbedFunc
	logger    log.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// New creates a Store. embed is used for both documents and queries.
func New(cacheRoot string, embed EmbedFunc, logger log.Logger) *Store {
	return &Store{
		cacheRoot: cacheRoot,
		embed:     embed,
		logger:    logger.With("component", "vectorstore"),
		dbs:       make(map[string]*sql.DB),
	}
}

// DatabasePath returns where the corpus's database lives.
func (s *Store) DatabasePath(dir string) string {
	return filepath.Join(corpus.CacheDir(s.cacheRoot, dir), dbFileName)
}

// Indexed reports whether the corpus has an index database on disk.
func (s *Store) Indexed(dir string) bool {
	_, err := os.Stat(s.DatabasePath(dir))
	return err == nil
}

// open returns the cached handle for dir, opening it if needed. With
// create false a missing database file is ErrNotIndexed rather than an
// empty database left behind as a side effect.
func (s *Store) open(dir string, create bool) (*sql.DB, error) {
	key := corpus.Key(dir)

	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[key]; ok {
		return db, nil
	}

	dbPath := s.DatabasePath(dir)
	if !create {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotIndexed, dir)
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	s.dbs[key] = db
	return db, nil
}

// EnsureCollection creates the corpus's database and schema if needed.
func (s *Store) EnsureCollection(ctx context.Context, dir string) error {
	_, err := s.open(dir, true)
	return err
}

// UpsertFile replaces every chunk row of one file in a single
// transaction: embed all chunk texts, delete the old rows, insert the
// new ones. Returns how many chunks were written.
func (s *Store) UpsertFile(ctx context.Context, dir, path, kind string, chunks []document.Chunk, doc metadata.Document) (int, error) {
	db, err := s.open(dir, true)
	if err != nil {
		return 0, err
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", path, err)
	}

	tags := encodeTags(doc.Tags)
	meta, err := encodeMetadata(doc.Fields)
	if err != nil {
		return 0, fmt.Errorf("failed to encode metadata for %s: %w", path, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE path = ?", path); err != nil {
		return 0, fmt.Errorf("failed to delete old chunks for %s: %w", path, err)
	}

	const insert = `INSERT INTO chunks (id, path, ordinal, kind, content, tags, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for i, chunk := range chunks {
		_, err := tx.ExecContext(ctx, insert,
			uuid.New().String(), path, chunk.Ordinal, kind, chunk.Text,
			tags, meta, float32ToBytes(vectors[i]))
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk %d of %s: %w", chunk.Ordinal, path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunks for %s: %w", path, err)
	}
	return len(chunks), nil
}

func (s *Store) embedChunks(ctx context.Context, chunks []document.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := s.embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// RemoveFile deletes every chunk row of one file.
func (s *Store) RemoveFile(ctx context.Context, dir, path string) error {
	db, err := s.open(dir, false)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM chunks WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to remove chunks for %s: %w", path, err)
	}
	return nil
}

// Stats summarizes one corpus index.
type Stats struct {
	Collection string `json:"collection"`
	ChunkCount int    `json:"chunk_count"`
	FileCount  int    `json:"file_count"`
}

// Stats returns chunk and file counts for the corpus.
func (s *Store) Stats(ctx context.Context, dir string) (Stats, error) {
	db, err := s.open(dir, false)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Collection: corpus.Key(dir)}
	row := db.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(DISTINCT path) FROM chunks")
	if err := row.Scan(&st.ChunkCount, &st.FileCount); err != nil {
		return Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}
	return st, nil
}

// ListTags returns every tag in the corpus with the number of chunks
// carrying it.
func (s *Store) ListTags(ctx context.Context, dir string) (map[string]int, error) {
	db, err := s.open(dir, false)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT tags FROM chunks WHERE tags != ''")
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("failed to scan tags: %w", err)
		}
		for _, tag := range decodeTags(encoded) {
			counts[tag]++
		}
	}
	return counts, rows.Err()
}

// ListMetadataFields returns the union of metadata field names present
// in the corpus, sorted.
func (s *Store) ListMetadataFields(ctx context.Context, dir string) ([]string, error) {
	db, err := s.open(dir, false)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT DISTINCT metadata FROM chunks WHERE metadata != '{}'")
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			continue
		}
		for name := range fields {
			set[name] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Drop closes and deletes the corpus's database file. Dropping a corpus
// that was never indexed is not an error.
func (s *Store) Drop(ctx context.Context, dir string) error {
	key := corpus.Key(dir)

	s.mu.Lock()
	if db, ok := s.dbs[key]; ok {
		if err := db.Close(); err != nil {
			s.logger.Warn("failed to close database before drop", "dir", dir, "error", err)
		}
		delete(s.dbs, key)
	}
	s.mu.Unlock()

	dbPath := s.DatabasePath(dir)
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// Close releases every cached database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for key, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(s.dbs, key)
	}
	return errors.Join(errs...)
}

// encodeTags lowercases and joins tags with comma delimiters on both
// ends, the form the tag filter's instr match relies on.
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	lower := make([]string, len(tags))
	for i, t := range tags {
		lower[i] = strings.ToLower(t)
	}
	return "," + strings.Join(lower, ",") + ","
}

func decodeTags(encoded string) []string {
	trimmed := strings.Trim(encoded, ",")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ",")
}

// encodeMetadata marshals fields with lowercased keys so json_extract
// lookups are case-insensitive.
func encodeMetadata(fields map[string]metadata.Value) (string, error) {
	lower := make(map[string]metadata.Value, len(fields))
	for name, v := range fields {
		lower[strings.ToLower(name)] = v
	}
	raw, err := json.Marshal(lower)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
