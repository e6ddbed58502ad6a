package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aixtools/kmcp/internal/vectorstore"
)

// Query is one search request. An empty Directory fans out over every
// registered knowledge base. Limit 0 and a negative Threshold fall back
// to the configured defaults.
type Query struct {
	Text      string
	Directory string
	Tags      []string
	Metadata  map[string]any
	Limit     int
	Threshold float64
	Recursive bool
}

// Hit is one search result with the corpus it came from.
type Hit struct {
	vectorstore.Result
	Directory string `json:"directory"`
}

// SearchResponse is the merged outcome of a search.
type SearchResponse struct {
	Hits            []Hit    `json:"results"`
	SearchedCorpora []string `json:"searched_corpora"`
	Notes           []string `json:"notes,omitempty"`
}

// Search answers a query against one corpus or, when no directory is
// given, against every registered one, merging results by score.
func (s *Service) Search(ctx context.Context, q Query) (*SearchResponse, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = s.cfg.DefaultSearchLimit
	}
	if q.Threshold < 0 {
		q.Threshold = s.cfg.DefaultSimilarityThreshold
	}

	filter, err := vectorstore.BuildFilter(q.Tags, q.Metadata)
	if err != nil {
		return nil, err
	}

	if q.Directory != "" {
		dir, err := s.resolveDir(q.Directory)
		if err != nil {
			return nil, err
		}
		s.maybeRefresh(ctx, dir, q.Recursive)

		results, err := s.store.Search(ctx, dir, q.Text, filter, q.Limit, q.Threshold)
		if err != nil {
			return nil, err
		}
		return &SearchResponse{
			Hits:            toHits(results, dir),
			SearchedCorpora: []string{dir},
		}, nil
	}

	return s.searchAll(ctx, q, filter)
}

// searchAll scatter-gathers the query over all registered directories.
// Registered-but-unindexed corpora are skipped with a note rather than
// failing the whole search.
func (s *Service) searchAll(ctx context.Context, q Query, filter *vectorstore.Filter) (*SearchResponse, error) {
	dirs, err := s.registry.AllPaths()
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{}
	if len(dirs) == 0 {
		resp.Notes = append(resp.Notes, "no knowledge bases registered")
		return resp, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for _, dir := range dirs {
		g.Go(func() error {
			s.maybeRefresh(gctx, dir, q.Recursive)

			results, err := s.store.Search(gctx, dir, q.Text, filter, q.Limit, q.Threshold)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, vectorstore.ErrNotIndexed):
				resp.Notes = append(resp.Notes, fmt.Sprintf("skipped %s: not indexed", dir))
				return nil
			case err != nil:
				return fmt.Errorf("search %s: %w", dir, err)
			}
			resp.SearchedCorpora = append(resp.SearchedCorpora, dir)
			resp.Hits = append(resp.Hits, toHits(results, dir)...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(resp.Hits, func(i, j int) bool {
		return resp.Hits[i].Score > resp.Hits[j].Score
	})
	if len(resp.Hits) > q.Limit {
		resp.Hits = resp.Hits[:q.Limit]
	}
	sort.Strings(resp.SearchedCorpora)
	sort.Strings(resp.Notes)
	return resp, nil
}

func toHits(results []vectorstore.Result, dir string) []Hit {
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Result: r, Directory: dir}
	}
	return hits
}
