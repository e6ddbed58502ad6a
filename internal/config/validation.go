package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and credentials
	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey, ProviderGemini)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: ollama_host must be an http(s) URL, got %q", ErrInvalidOllamaHost, c.OllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q, must be one of: %s, %s",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Dimension bound matches the widest models in common use.
	if c.VectorDimension < 1 || c.VectorDimension > 8192 {
		return fmt.Errorf("%w: vector_dimension must be between 1 and 8192, got %d",
			ErrInvalidEmbedderModel, c.VectorDimension)
	}

	// 2. Cache layout
	if c.CacheRoot == "" {
		return fmt.Errorf("%w: cache_root cannot be empty", ErrInvalidCacheRoot)
	}

	// 3. Chunking
	if c.ChunkSize < 16 || c.ChunkSize > 8192 {
		return fmt.Errorf("%w: chunk_size must be between 16 and 8192 tokens, got %d",
			ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if c.MinChunkChars < 0 {
		return fmt.Errorf("%w: min_chunk_chars cannot be negative, got %d",
			ErrInvalidChunking, c.MinChunkChars)
	}
	if c.MaxFileSizeMB < 1 {
		return fmt.Errorf("%w: max_file_size_mb must be at least 1, got %d",
			ErrInvalidChunking, c.MaxFileSizeMB)
	}

	// 4. Search defaults
	if c.DefaultSearchLimit < 1 || c.DefaultSearchLimit > 1000 {
		return fmt.Errorf("%w: default_search_limit must be between 1 and 1000, got %d",
			ErrInvalidSearchDefaults, c.DefaultSearchLimit)
	}
	if c.DefaultSimilarityThreshold < 0 || c.DefaultSimilarityThreshold > 1 {
		return fmt.Errorf("%w: default_similarity_threshold must be between 0 and 1, got %.2f",
			ErrInvalidSearchDefaults, c.DefaultSimilarityThreshold)
	}

	// 5. Fan-out bounds
	if c.IndexWorkers < 0 || c.IndexWorkers > 256 {
		return fmt.Errorf("%w: index_workers must be between 0 and 256, got %d",
			ErrInvalidWorkerCount, c.IndexWorkers)
	}
	if c.AutoRefreshInterval < 0 {
		return fmt.Errorf("%w: auto_refresh_interval cannot be negative, got %d",
			ErrInvalidSearchDefaults, c.AutoRefreshInterval)
	}
	if c.EmbedRateLimit < 0 {
		return fmt.Errorf("%w: embed_rate_limit cannot be negative, got %.2f",
			ErrInvalidSearchDefaults, c.EmbedRateLimit)
	}

	return nil
}
