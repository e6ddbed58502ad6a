package vectorstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/aixtools/kmcp/internal/metadata"
)

// Result is one matched chunk.
type Result struct {
	ID       string                    `json:"id"`
	Path     string                    `json:"path"`
	Ordinal  int                       `json:"ordinal"`
	Kind     string                    `json:"kind"`
	Text     string                    `json:"text"`
	Tags     []string                  `json:"tags,omitempty"`
	Metadata map[string]metadata.Value `json:"metadata,omitempty"`
	Score    float64                   `json:"score"`
}

// Search embeds the query, narrows candidates with the filter's SQL
// conditions, scores the survivors by cosine similarity, and returns
// the top limit results at or above threshold, best first.
func (s *Store) Search(ctx context.Context, dir, query string, filter *Filter, limit int, threshold float64) ([]Result, error) {
	db, err := s.open(dir, false)
	if err != nil {
		return nil, err
	}

	vectors, err := s.embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	queryVec := vectors[0]

	where, args := filter.whereClause()
	rows, err := db.QueryContext(ctx,
		"SELECT id, path, ordinal, kind, content, tags, metadata, embedding FROM chunks"+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var tags, meta string
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Path, &r.Ordinal, &r.Kind, &r.Text, &tags, &meta, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		score, err := cosineSimilarity(queryVec, bytesToFloat32(blob))
		if err != nil {
			s.logger.Warn("skipping chunk with bad embedding", "id", r.ID, "error", err)
			continue
		}
		if score < threshold {
			continue
		}

		r.Score = score
		r.Tags = decodeTags(tags)
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			s.logger.Warn("skipping unreadable chunk metadata", "id", r.ID, "error", err)
			r.Metadata = nil
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vector")
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude vector")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// float32ToBytes encodes a vector as little-endian float32 bytes.
func float32ToBytes(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
