// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (KMCP_* overrides)
//  2. Config file (~/.kmcp/config.yaml)
//  3. Default values
//
// Main categories:
//   - Embedder: provider, model, vector dimension
//   - RAG: cache root, chunking, auto-refresh, search defaults
//   - Registry: location of the knowledge-base registry file
//
// Validation lives in validation.go: every loaded config is range-checked
// before use, with sentinel errors for errors.Is checks.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model name is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidCacheRoot indicates the cache root path is invalid.
	ErrInvalidCacheRoot = errors.New("invalid cache root")

	// ErrInvalidChunking indicates the chunk size/overlap combination is invalid.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidSearchDefaults indicates limit/threshold defaults are out of range.
	ErrInvalidSearchDefaults = errors.New("invalid search defaults")

	// ErrInvalidWorkerCount indicates the index worker count is out of range.
	ErrInvalidWorkerCount = errors.New("invalid worker count")
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the store records the dimension per corpus.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultOllamaEmbedderModel is the default local embedder model.
	DefaultOllamaEmbedderModel = "nomic-embed-text"

	// DefaultVectorDimension is the embedding width both default models
	// are configured to produce.
	DefaultVectorDimension = 768
)

// Config stores application configuration.
type Config struct {
	// Embedding provider configuration
	Provider        string `mapstructure:"provider" json:"provider"` // "gemini" (default) or "ollama"
	EmbedderModel   string `mapstructure:"embedder_model" json:"embedder_model"`
	VectorDimension int    `mapstructure:"vector_dimension" json:"vector_dimension"`
	OllamaHost      string `mapstructure:"ollama_host" json:"ollama_host"`

	// EmbedRateLimit caps embedding calls per second (0 = unlimited).
	EmbedRateLimit float64 `mapstructure:"embed_rate_limit" json:"embed_rate_limit"`

	// Knowledge cache layout
	CacheRoot    string `mapstructure:"cache_root" json:"cache_root"`       // per-corpus store + manifest root
	RegistryFile string `mapstructure:"registry_file" json:"registry_file"` // knowledges.yaml

	// Chunking
	ChunkSize     int `mapstructure:"chunk_size" json:"chunk_size"`         // tokens per chunk
	ChunkOverlap  int `mapstructure:"chunk_overlap" json:"chunk_overlap"`   // tokens shared between chunks
	MinChunkChars int `mapstructure:"min_chunk_chars" json:"min_chunk_chars"`
	MaxFileSizeMB int `mapstructure:"max_file_size_mb" json:"max_file_size_mb"`

	// Notebook handling
	SkipNotebookOutputs bool `mapstructure:"skip_notebook_outputs" json:"skip_notebook_outputs"`

	// Auto-refresh
	AutoRefresh         bool `mapstructure:"auto_refresh" json:"auto_refresh"`
	AutoRefreshInterval int  `mapstructure:"auto_refresh_interval" json:"auto_refresh_interval"` // seconds

	// Search defaults
	DefaultSearchLimit         int     `mapstructure:"default_search_limit" json:"default_search_limit"`
	DefaultSimilarityThreshold float64 `mapstructure:"default_similarity_threshold" json:"default_similarity_threshold"`

	// IndexWorkers bounds multi-corpus fan-out (refresh-all, search-all).
	// 0 means runtime.NumCPU at the point of use.
	IndexWorkers int `mapstructure:"index_workers" json:"index_workers"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".kmcp")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)

	v.SetEnvPrefix("KMCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("vector_dimension", DefaultVectorDimension)
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("embed_rate_limit", 0.0)

	v.SetDefault("cache_root", filepath.Join(configDir, "knowledge"))
	v.SetDefault("registry_file", filepath.Join(configDir, "knowledges.yaml"))

	v.SetDefault("chunk_size", 512)
	v.SetDefault("chunk_overlap", 100)
	v.SetDefault("min_chunk_chars", 50)
	v.SetDefault("max_file_size_mb", 10)
	v.SetDefault("skip_notebook_outputs", false)

	v.SetDefault("auto_refresh", true)
	v.SetDefault("auto_refresh_interval", 300)

	v.SetDefault("default_search_limit", 10)
	v.SetDefault("default_similarity_threshold", 0.5)
	v.SetDefault("index_workers", 0)
}

// RefreshInterval returns the auto-refresh throttle as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.AutoRefreshInterval) * time.Second
}

// MaxFileSizeBytes returns the oversized-file cutoff in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}
