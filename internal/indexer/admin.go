package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/aixtools/kmcp/internal/corpus"
	"github.com/aixtools/kmcp/internal/vectorstore"
)

// IndexInfo summarizes one indexed corpus.
type IndexInfo struct {
	CorpusID    string    `json:"corpus_id"`
	Directory   string    `json:"directory"`
	FileCount   int       `json:"file_count"`
	ChunkCount  int       `json:"chunk_count"`
	LastChecked time.Time `json:"last_checked"`
}

// ListIndexes reports every corpus with a manifest under the cache
// root, with chunk counts where the database is readable.
func (s *Service) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	corpora, err := s.tracker.All()
	if err != nil {
		return nil, err
	}

	infos := make([]IndexInfo, 0, len(corpora))
	for _, c := range corpora {
		info := IndexInfo{
			CorpusID:    corpus.Key(c.Directory),
			Directory:   c.Directory,
			FileCount:   c.FileCount,
			LastChecked: c.LastChecked,
		}
		stats, err := s.store.Stats(ctx, c.Directory)
		if err != nil {
			if !errors.Is(err, vectorstore.ErrNotIndexed) {
				s.logger.Warn("failed to read index stats", "dir", c.Directory, "error", err)
			}
		} else {
			info.ChunkCount = stats.ChunkCount
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Directory < infos[j].Directory })
	return infos, nil
}

// Tags returns tag counts for one corpus, or summed over every indexed
// corpus when dir is empty.
func (s *Service) Tags(ctx context.Context, dir string) (map[string]int, error) {
	if dir != "" {
		abs, err := s.resolveDir(dir)
		if err != nil {
			return nil, err
		}
		return s.store.ListTags(ctx, abs)
	}

	corpora, err := s.tracker.All()
	if err != nil {
		return nil, err
	}

	total := make(map[string]int)
	for _, c := range corpora {
		counts, err := s.store.ListTags(ctx, c.Directory)
		if err != nil {
			if errors.Is(err, vectorstore.ErrNotIndexed) {
				continue
			}
			return nil, err
		}
		for tag, n := range counts {
			total[tag] += n
		}
	}
	return total, nil
}

// MetadataFields returns the metadata field names of one corpus, or the
// union across every indexed corpus when dir is empty.
func (s *Service) MetadataFields(ctx context.Context, dir string) ([]string, error) {
	if dir != "" {
		abs, err := s.resolveDir(dir)
		if err != nil {
			return nil, err
		}
		return s.store.ListMetadataFields(ctx, abs)
	}

	corpora, err := s.tracker.All()
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	for _, c := range corpora {
		fields, err := s.store.ListMetadataFields(ctx, c.Directory)
		if err != nil {
			if errors.Is(err, vectorstore.ErrNotIndexed) {
				continue
			}
			return nil, err
		}
		for _, f := range fields {
			set[f] = true
		}
	}

	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields, nil
}

// Drop removes a corpus's collection, manifest, and cache directory.
// Half-removed state is logged and the removal continues.
func (s *Service) Drop(ctx context.Context, dir string) error {
	abs, err := s.resolveDir(dir)
	if err != nil {
		return err
	}

	lock := s.corpusLock(abs)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Drop(ctx, abs); err != nil {
		s.logger.Warn("failed to drop collection", "dir", abs, "error", err)
	}
	if err := s.tracker.Drop(abs); err != nil {
		s.logger.Warn("failed to drop manifest", "dir", abs, "error", err)
	}
	if err := os.RemoveAll(corpus.CacheDir(s.cfg.CacheRoot, abs)); err != nil {
		return fmt.Errorf("failed to remove cache dir: %w", err)
	}

	s.logger.Info("dropped index", "dir", abs)
	return nil
}

// PathStatus is one directory of a knowledge base with its on-disk and
// index state.
type PathStatus struct {
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Indexed bool   `json:"indexed"`
}

// KnowledgeBaseInfo is one registry entry with per-path status.
type KnowledgeBaseInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Paths       []PathStatus `json:"paths"`
}

// KnowledgeBases lists every registered knowledge base and whether each
// of its directories exists and is indexed.
func (s *Service) KnowledgeBases(ctx context.Context) ([]KnowledgeBaseInfo, error) {
	bases, err := s.registry.Load()
	if err != nil {
		return nil, err
	}

	infos := make([]KnowledgeBaseInfo, 0, len(bases))
	for _, base := range bases {
		info := KnowledgeBaseInfo{
			Name:        base.Name,
			Description: base.Description,
			Tags:        base.Tags,
		}
		for _, p := range base.Paths {
			st, err := os.Stat(p)
			info.Paths = append(info.Paths, PathStatus{
				Path:    p,
				Exists:  err == nil && st.IsDir(),
				Indexed: s.store.Indexed(p),
			})
		}
		infos = append(infos, info)
	}
	return infos, nil
}
