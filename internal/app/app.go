// Package app provides application initialization and dependency
// wiring.
//
// App is the container that assembles all components: configuration,
// logging, the embedder, the vector store, the change tracker, the
// knowledge-base registry, and the indexing service on top of them.
package app

import (
	"context"
	"fmt"

	"github.com/aixtools/kmcp/internal/config"
	"github.com/aixtools/kmcp/internal/indexer"
	"github.com/aixtools/kmcp/internal/log"
	"github.com/aixtools/kmcp/internal/registry"
	"github.com/aixtools/kmcp/internal/tracker"
	"github.com/aixtools/kmcp/internal/vectorstore"
)

// App is the core application container.
type App struct {
	Config  *config.Config
	Logger  log.Logger
	Store   *vectorstore.Store
	Service *indexer.Service
}

// Setup loads configuration, validates it, and wires every component.
// Call Close() to release the vector-store handles.
func Setup(ctx context.Context, logger log.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return SetupWithConfig(ctx, cfg, logger)
}

// SetupWithConfig wires the application around an already loaded
// configuration.
func SetupWithConfig(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	embed, err := vectorstore.NewEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}

	store := vectorstore.New(cfg.CacheRoot, embed, logger)
	svc := indexer.New(cfg, store,
		tracker.New(cfg.CacheRoot, logger),
		registry.New(cfg.RegistryFile, logger),
		logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Service: svc,
	}, nil
}

// Close releases all resources held by the application.
func (a *App) Close() error {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			return fmt.Errorf("closing vector store: %w", err)
		}
	}
	return nil
}
