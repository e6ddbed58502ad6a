package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/aixtools/kmcp/internal/document"
	"github.com/aixtools/kmcp/internal/log"
	"github.com/aixtools/kmcp/internal/metadata"
	"github.com/aixtools/kmcp/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), testutil.LetterEmbed, log.NewNop())
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func chunksOf(texts ...string) []document.Chunk {
	chunks := make([]document.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = document.Chunk{Text: text, Ordinal: i}
	}
	return chunks
}

func TestUpsertFileAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := "/corpus/alpha"

	doc := metadata.NewDocument()
	doc.Tags = []string{"#backtest"}
	n, err := s.UpsertFile(ctx, dir, "/corpus/alpha/a.md", "markdown",
		chunksOf("momentum strategy returns", "volatility regime analysis"), doc)
	if err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	if n != 2 {
		t.Errorf("UpsertFile() = %d chunks, want 2", n)
	}

	results, err := s.Search(ctx, dir, "momentum strategy", nil, 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Text != "momentum strategy returns" {
		t.Errorf("best match = %q, want the momentum chunk", results[0].Text)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by descending score")
	}
	if results[0].Kind != "markdown" {
		t.Errorf("Kind = %q, want markdown", results[0].Kind)
	}
	if len(results[0].Tags) != 1 || results[0].Tags[0] != "#backtest" {
		t.Errorf("Tags = %v, want [#backtest]", results[0].Tags)
	}
}

func TestUpsertFile_ReplacesOldChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := "/corpus/alpha"
	path := "/corpus/alpha/a.md"

	if _, err := s.UpsertFile(ctx, dir, path, "markdown",
		chunksOf("one", "two", "three"), metadata.NewDocument()); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	if _, err := s.UpsertFile(ctx, dir, path, "markdown",
		chunksOf("only chunk left"), metadata.NewDocument()); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}

	st, err := s.Stats(ctx, dir)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.ChunkCount != 1 || st.FileCount != 1 {
		t.Errorf("Stats = %+v, want 1 chunk / 1 file", st)
	}
}

func TestSearch_NotIndexed(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Search(context.Background(), "/never/indexed", "query", nil, 10, 0)
	if !errors.Is(err, ErrNotIndexed) {
		t.Errorf("Search() error = %v, want ErrNotIndexed", err)
	}

	_, err = s.Stats(context.Background(), "/never/indexed")
	if !errors.Is(err, ErrNotIndexed) {
		t.Errorf("Stats() error = %v, want ErrNotIndexed", err)
	}
}

func TestSearch_TagFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := "/corpus/alpha"

	tagged := metadata.NewDocument()
	tagged.Tags = []string{"#backtest", "#qubx"}
	untagged := metadata.NewDocument()
	untagged.Tags = []string{"#research"}

	if _, err := s.UpsertFile(ctx, dir, "/a.md", "markdown",
		chunksOf("shared vocabulary text"), tagged); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	if _, err := s.UpsertFile(ctx, dir, "/b.md", "markdown",
		chunksOf("shared vocabulary text"), untagged); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}

	f, err := BuildFilter([]string{"#backtest"}, nil)
	if err != nil {
		t.Fatalf("BuildFilter() error = %v", err)
	}
	results, err := s.Search(ctx, dir, "shared vocabulary", f, 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Path != "/a.md" {
		t.Errorf("results = %+v, want only /a.md", results)
	}

	// Both tags must hold: conjunction, not union.
	f, err = BuildFilter([]string{"#backtest", "#research"}, nil)
	if err != nil {
		t.Fatalf("BuildFilter() error = %v", err)
	}
	results, err = s.Search(ctx, dir, "shared vocabulary", f, 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want none for conjunctive tags", results)
	}
}

func TestSearch_MetadataFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := "/corpus/alpha"

	good := metadata.NewDocument()
	good.Fields["Type"] = metadata.String("BACKTEST")
	good.Fields["sharpe"] = metadata.Number(2.35)
	bad := metadata.NewDocument()
	bad.Fields["Type"] = metadata.String("RESEARCH")
	bad.Fields["sharpe"] = metadata.Number(0.4)

	if _, err := s.UpsertFile(ctx, dir, "/good.md", "markdown",
		chunksOf("identical content here"), good); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	if _, err := s.UpsertFile(ctx, dir, "/bad.md", "markdown",
		chunksOf("identical content here"), bad); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}

	tests := []struct {
		name string
		meta map[string]any
		want []string
	}{
		{"equality", map[string]any{"type": "BACKTEST"}, []string{"/good.md"}},
		{"equality original casing", map[string]any{"Type": "BACKTEST"}, []string{"/good.md"}},
		{"numeric predicate", map[string]any{"sharpe > 1.5": nil}, []string{"/good.md"}},
		{"predicate excludes all", map[string]any{"sharpe > 99": nil}, nil},
		{"conjunction", map[string]any{"Type": "BACKTEST", "sharpe > 1.5": nil}, []string{"/good.md"}},
		{"conflicting conjunction", map[string]any{"Type": "RESEARCH", "sharpe > 1.5": nil}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := BuildFilter(nil, tt.meta)
			if err != nil {
				t.Fatalf("BuildFilter() error = %v", err)
			}
			results, err := s.Search(ctx, dir, "identical content", f, 10, 0)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			var paths []string
			for _, r := range results {
				paths = append(paths, r.Path)
			}
			if len(paths) != len(tt.want) {
				t.Fatalf("paths = %v, want %v", paths, tt.want)
			}
			for i := range tt.want {
				if paths[i] != tt.want[i] {
					t.Errorf("paths = %v, want %v", paths, tt.want)
				}
			}
		})
	}
}

func TestSearch_ThresholdAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := "/corpus/alpha"

	if _, err := s.UpsertFile(ctx, dir, "/a.md", "markdown",
		chunksOf("alpha alpha alpha", "zzz qqq xxx", "alpha beta"), metadata.NewDocument()); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}

	all, err := s.Search(ctx, dir, "alpha", nil, 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	// Raising the threshold can only shrink the result set.
	strict, err := s.Search(ctx, dir, "alpha", nil, 10, 0.9)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(strict) > len(all) {
		t.Errorf("threshold raised result count: %d > %d", len(strict), len(all))
	}
	for _, r := range strict {
		if r.Score < 0.9 {
			t.Errorf("result below threshold: %+v", r)
		}
	}

	one, err := s.Search(ctx, dir, "alpha", nil, 1, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(one) != 1 {
		t.Fatalf("limit ignored: got %d results", len(one))
	}
	if len(all) > 0 && one[0].ID != all[0].ID {
		t.Error("limit did not keep the best result")
	}
}

func TestRemoveFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := "/corpus/alpha"

	if _, err := s.UpsertFile(ctx, dir, "/a.md", "markdown",
		chunksOf("some indexed content"), metadata.NewDocument()); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	if err := s.RemoveFile(ctx, dir, "/a.md"); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}

	st, err := s.Stats(ctx, dir)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.ChunkCount != 0 {
		t.Errorf("ChunkCount = %d after removal, want 0", st.ChunkCount)
	}
}

func TestListTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := "/corpus/alpha"

	doc := metadata.NewDocument()
	doc.Tags = []string{"#backtest", "#qubx"}
	if _, err := s.UpsertFile(ctx, dir, "/a.md", "markdown",
		chunksOf("chunk one", "chunk two"), doc); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}

	other := metadata.NewDocument()
	other.Tags = []string{"#backtest"}
	if _, err := s.UpsertFile(ctx, dir, "/b.md", "markdown",
		chunksOf("chunk three"), other); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}

	counts, err := s.ListTags(ctx, dir)
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if counts["#backtest"] != 3 || counts["#qubx"] != 2 {
		t.Errorf("counts = %v, want #backtest:3 #qubx:2", counts)
	}
}

func TestListMetadataFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := "/corpus/alpha"

	a := metadata.NewDocument()
	a.Fields["Sharpe"] = metadata.Number(2.0)
	b := metadata.NewDocument()
	b.Fields["strategy"] = metadata.String("Momentum")

	if _, err := s.UpsertFile(ctx, dir, "/a.md", "markdown", chunksOf("aaa bbb"), a); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	if _, err := s.UpsertFile(ctx, dir, "/b.md", "markdown", chunksOf("ccc ddd"), b); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}

	fields, err := s.ListMetadataFields(ctx, dir)
	if err != nil {
		t.Fatalf("ListMetadataFields() error = %v", err)
	}
	want := []string{"sharpe", "strategy"}
	if len(fields) != len(want) || fields[0] != want[0] || fields[1] != want[1] {
		t.Errorf("fields = %v, want %v", fields, want)
	}
}

func TestDrop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := "/corpus/alpha"

	if err := s.Drop(ctx, dir); err != nil {
		t.Fatalf("Drop() on unindexed corpus: %v", err)
	}

	if _, err := s.UpsertFile(ctx, dir, "/a.md", "markdown",
		chunksOf("some content"), metadata.NewDocument()); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	if !s.Indexed(dir) {
		t.Fatal("Indexed = false after upsert")
	}

	if err := s.Drop(ctx, dir); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if s.Indexed(dir) {
		t.Error("Indexed = true after Drop")
	}
}

func TestUpsertFile_EmbedFailure(t *testing.T) {
	s := New(t.TempDir(), testutil.FailingEmbed, log.NewNop())
	defer s.Close()

	_, err := s.UpsertFile(context.Background(), "/corpus/alpha", "/a.md", "markdown",
		chunksOf("text"), metadata.NewDocument())
	if err == nil {
		t.Fatal("UpsertFile() error = nil with failing embedder")
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3e7, 0}
	got := bytesToFloat32(float32ToBytes(vec))
	if len(got) != len(vec) {
		t.Fatalf("len = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	parallel, err := cosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6})
	if err != nil {
		t.Fatalf("cosineSimilarity() error = %v", err)
	}
	if math.Abs(parallel-1) > 1e-9 {
		t.Errorf("parallel vectors score %v, want 1", parallel)
	}

	orthogonal, err := cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("cosineSimilarity() error = %v", err)
	}
	if math.Abs(orthogonal) > 1e-9 {
		t.Errorf("orthogonal vectors score %v, want 0", orthogonal)
	}

	if _, err := cosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("dimension mismatch accepted")
	}
	if _, err := cosineSimilarity([]float32{0, 0}, []float32{1, 1}); err == nil {
		t.Error("zero vector accepted")
	}
}

func TestManyChunksBatchEmbedding(t *testing.T) {
	var calls int
	counting := func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if len(texts) > embedBatchSize {
			return nil, fmt.Errorf("batch of %d exceeds limit", len(texts))
		}
		return testutil.LetterEmbed(ctx, texts)
	}

	s := New(t.TempDir(), counting, log.NewNop())
	defer s.Close()

	texts := make([]string, embedBatchSize+10)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk number %d content", i)
	}
	n, err := s.UpsertFile(context.Background(), "/corpus/alpha", "/big.md", "markdown",
		chunksOf(texts...), metadata.NewDocument())
	if err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	if n != len(texts) {
		t.Errorf("chunks written = %d, want %d", n, len(texts))
	}
	if calls != 2 {
		t.Errorf("embed calls = %d, want 2", calls)
	}
}
