package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"golang.org/x/time/rate"

	"github.com/aixtools/kmcp/internal/config"
	"github.com/aixtools/kmcp/internal/log"
)

// NewEmbedder initializes Genkit with the configured provider and
// returns an EmbedFunc over it. When cfg.EmbedRateLimit is positive,
// embed calls are rate limited to that many per second.
func NewEmbedder(ctx context.Context, cfg *config.Config, logger log.Logger) (EmbedFunc, error) {
	embedder, err := provideEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.EmbedRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRateLimit), 1)
	}

	return func(ctx context.Context, texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return nil, nil
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		docs := make([]*ai.Document, len(texts))
		for i, text := range texts {
			docs[i] = ai.DocumentFromText(text, nil)
		}

		resp, err := embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
		if err != nil {
			return nil, fmt.Errorf("embed failed: %w", err)
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts",
				len(resp.Embeddings), len(texts))
		}

		vectors := make([][]float32, len(resp.Embeddings))
		for i, e := range resp.Embeddings {
			vectors[i] = e.Embedding
		}
		return vectors, nil
	}, nil
}

// provideEmbedder initializes Genkit with the configured provider
// plugin and looks up its embedder. Each provider registers embedders
// differently: gemini by model name, ollama keyed by server address
// after explicit registration.
func provideEmbedder(ctx context.Context, cfg *config.Config, logger log.Logger) (ai.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, errors.New("failed to initialize genkit with ollama provider")
		}
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized embedder", "provider", "ollama",
			"model", cfg.EmbedderModel, "host", cfg.OllamaHost)
		return ollama.Embedder(g, cfg.OllamaHost), nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("failed to initialize genkit with gemini provider")
		}
		logger.Info("initialized embedder", "provider", "gemini", "model", cfg.EmbedderModel)
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), nil
	}
}
