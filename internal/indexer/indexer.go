// Package indexer orchestrates the indexing pipeline: change
// detection, loading, chunking, metadata extraction, and vector-store
// writes, plus the search fan-out over registered knowledge bases.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/aixtools/kmcp/internal/config"
	"github.com/aixtools/kmcp/internal/corpus"
	"github.com/aixtools/kmcp/internal/document"
	"github.com/aixtools/kmcp/internal/log"
	"github.com/aixtools/kmcp/internal/metadata"
	"github.com/aixtools/kmcp/internal/registry"
	"github.com/aixtools/kmcp/internal/tracker"
	"github.com/aixtools/kmcp/internal/vectorstore"
)

// Sentinel errors for input problems the caller must fix.
var (
	ErrNotDirectory = errors.New("not a directory")
	ErrEmptyQuery   = errors.New("query must not be empty")
	ErrFileTooLarge = errors.New("file exceeds size limit")
	ErrBusy         = errors.New("corpus is locked by another process")
)

// VectorStore is the slice of the vector store the orchestrator needs.
// *vectorstore.Store satisfies it.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dir string) error
	UpsertFile(ctx context.Context, dir, path, kind string, chunks []document.Chunk, doc metadata.Document) (int, error)
	RemoveFile(ctx context.Context, dir, path string) error
	Search(ctx context.Context, dir, query string, filter *vectorstore.Filter, limit int, threshold float64) ([]vectorstore.Result, error)
	Stats(ctx context.Context, dir string) (vectorstore.Stats, error)
	ListTags(ctx context.Context, dir string) (map[string]int, error)
	ListMetadataFields(ctx context.Context, dir string) ([]string, error)
	Drop(ctx context.Context, dir string) error
	Indexed(dir string) bool
}

// FileError records one file that could not be indexed.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// IndexResult aggregates one index run.
type IndexResult struct {
	Directory      string      `json:"directory"`
	FilesProcessed int         `json:"files_processed"`
	ChunksWritten  int         `json:"chunks_written"`
	FilesSkipped   int         `json:"files_skipped"`
	Removed        int         `json:"removed"`
	Errors         []FileError `json:"errors,omitempty"`
}

// Service coordinates tracker, store, and registry for every operation
// the tool surface exposes.
type Service struct {
	cfg      *config.Config
	store    VectorStore
	tracker  *tracker.Tracker
	registry *registry.Registry
	chunker  *document.Chunker
	logger   log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Service.
func New(cfg *config.Config, store VectorStore, tr *tracker.Tracker, reg *registry.Registry, logger log.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		tracker:  tr,
		registry: reg,
		chunker: document.NewChunker(
			document.WithMaxTokens(cfg.ChunkSize),
			document.WithOverlapTokens(cfg.ChunkOverlap),
			document.WithMinChunkChars(cfg.MinChunkChars),
		),
		logger: logger.With("component", "indexer"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// resolveDir maps a knowledge-base name or a directory path to one
// concrete directory. A registered name resolves to its first path.
func (s *Service) resolveDir(nameOrPath string) (string, error) {
	paths, err := s.registry.Resolve(nameOrPath)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("%s has no paths", nameOrPath)
	}
	return paths[0], nil
}

// corpusLock returns the in-process mutex for one corpus. Index runs on
// the same corpus serialize on it; different corpora proceed in
// parallel.
func (s *Service) corpusLock(dir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := corpus.Key(dir)
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// Index brings one corpus's collection up to date with the directory
// contents. With force true every present file is reindexed; removed
// files are pruned either way. Per-file failures are recorded in the
// result and do not abort the run.
func (s *Service) Index(ctx context.Context, dir string, recursive, force bool) (*IndexResult, error) {
	abs, err := s.resolveDir(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	lock := s.corpusLock(abs)
	lock.Lock()
	defer lock.Unlock()

	cacheDir := corpus.CacheDir(s.cfg.CacheRoot, abs)
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	// Cross-process exclusion: another kmcp process indexing the same
	// corpus waits here.
	fl := flock.New(filepath.Join(cacheDir, ".lock"))
	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire corpus lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrBusy, abs)
	}
	defer fl.Unlock() //nolint:errcheck

	// Diff after taking the lock, so a concurrent run that just
	// finished is not re-done.
	var diff tracker.Diff
	if force {
		diff, err = s.tracker.ForceAll(abs, recursive)
	} else {
		diff, err = s.tracker.Diff(abs, recursive)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.EnsureCollection(ctx, abs); err != nil {
		return nil, err
	}

	result := &IndexResult{Directory: abs}
	for _, path := range diff.Changed {
		n, err := s.indexFile(ctx, abs, path)
		if err != nil {
			s.logger.Warn("skipping file", "path", path, "error", err)
			result.FilesSkipped++
			result.Errors = append(result.Errors, FileError{Path: path, Error: err.Error()})
			continue
		}
		result.FilesProcessed++
		result.ChunksWritten += n
	}

	for _, path := range diff.Removed {
		if err := s.store.RemoveFile(ctx, abs, path); err != nil {
			result.Errors = append(result.Errors, FileError{Path: path, Error: err.Error()})
			continue
		}
		if err := s.tracker.Forget(abs, path); err != nil {
			result.Errors = append(result.Errors, FileError{Path: path, Error: err.Error()})
			continue
		}
		result.Removed++
	}

	if err := s.tracker.Touch(abs); err != nil {
		s.logger.Warn("failed to update last-checked", "dir", abs, "error", err)
	}

	s.logger.Info("index run complete", "dir", abs,
		"processed", result.FilesProcessed, "chunks", result.ChunksWritten,
		"skipped", result.FilesSkipped, "removed", result.Removed)
	return result, nil
}

// indexFile runs the per-file pipeline: load, chunk, extract, upsert,
// commit fingerprint.
func (s *Service) indexFile(ctx context.Context, dir, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat: %w", err)
	}
	if info.Size() > s.cfg.MaxFileSizeBytes() {
		return 0, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	kind := document.Detect(path)
	loaded, err := document.Load(path, kind, document.LoadOptions{
		SkipOutputs: s.cfg.SkipNotebookOutputs,
	})
	if err != nil {
		return 0, err
	}

	chunks := s.chunker.Chunk(loaded.Text, kind)
	for i := range chunks {
		chunks[i].SourcePath = path
	}

	doc := metadata.Extract(loaded.TagSource)
	if nb := loaded.Notebook; nb != nil {
		mergeNotebookFields(&doc, nb)
	}

	n, err := s.store.UpsertFile(ctx, dir, path, kind.String(), chunks, doc)
	if err != nil {
		return 0, err
	}

	fp, err := tracker.Compute(path)
	if err != nil {
		return 0, err
	}
	if err := s.tracker.Commit(dir, path, fp); err != nil {
		return 0, err
	}
	return n, nil
}

// mergeNotebookFields folds notebook-level facts into the metadata
// fields. Header fields of the same name win.
func mergeNotebookFields(doc *metadata.Document, nb *document.NotebookInfo) {
	set := func(name string, v metadata.Value) {
		if _, ok := doc.Field(name); !ok {
			doc.Fields[name] = v
		}
	}
	if nb.KernelSpec != "" {
		set("kernel_spec", metadata.String(nb.KernelSpec))
	}
	set("cell_count", metadata.Number(float64(nb.CellCount)))
	set("code_cell_count", metadata.Number(float64(nb.CodeCells)))
	set("markdown_cell_count", metadata.Number(float64(nb.MarkdownCells)))
}

// RefreshAll runs an incremental index over every registered corpus
// that was indexed before, in parallel bounded by the configured worker
// count.
func (s *Service) RefreshAll(ctx context.Context, recursive bool) ([]*IndexResult, error) {
	paths, err := s.registry.AllPaths()
	if err != nil {
		return nil, err
	}

	var (
		resMu   sync.Mutex
		results []*IndexResult
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for _, dir := range paths {
		if !s.tracker.HasManifest(dir) {
			continue
		}
		g.Go(func() error {
			res, err := s.Index(ctx, dir, recursive, false)
			if err != nil {
				s.logger.Warn("refresh failed", "dir", dir, "error", err)
				return nil
			}
			resMu.Lock()
			results = append(results, res)
			resMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) workers() int {
	if s.cfg.IndexWorkers > 0 {
		return s.cfg.IndexWorkers
	}
	return 4
}

// maybeRefresh runs a throttled incremental index before a search.
// Only previously indexed corpora refresh, and only when the configured
// interval has elapsed since the last check.
func (s *Service) maybeRefresh(ctx context.Context, dir string, recursive bool) {
	if !s.cfg.AutoRefresh || !s.tracker.HasManifest(dir) {
		return
	}
	if time.Since(s.tracker.LastChecked(dir)) < s.cfg.RefreshInterval() {
		return
	}
	if _, err := s.Index(ctx, dir, recursive, false); err != nil {
		s.logger.Warn("auto-refresh failed", "dir", dir, "error", err)
	}
}
