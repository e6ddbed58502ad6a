// Package testutil provides shared test support: a deterministic
// embedder so similarity rankings are stable without a model, and a
// buffered logger for asserting on log output.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aixtools/kmcp/internal/log"
)

// LetterEmbed maps text to a 26-dimension letter-frequency vector.
// Texts sharing letters score high on cosine similarity, which gives
// tests real, reproducible rankings.
func LetterEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 26)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' {
				vec[r-'a']++
			}
		}
		out[i] = vec
	}
	return out, nil
}

// FailingEmbed always fails. For exercising embedder error paths.
func FailingEmbed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errors.New("embedder unavailable")
}

// BufferLogger returns a debug-level logger writing to the returned
// buffer.
func BufferLogger() (log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.NewWithWriter(&buf, log.Config{Level: slog.LevelDebug}), &buf
}
