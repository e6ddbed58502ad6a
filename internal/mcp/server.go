// Package mcp exposes the knowledge engine as MCP tools over the
// official SDK.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aixtools/kmcp/internal/indexer"
	"github.com/aixtools/kmcp/internal/log"
)

// Server wraps the MCP SDK server around the indexing service.
type Server struct {
	mcpServer *mcp.Server
	service   *indexer.Service
	logger    log.Logger
}

// Config holds MCP server identity.
type Config struct {
	Name    string
	Version string
}

// NewServer creates the MCP server and registers every knowledge tool.
func NewServer(cfg Config, service *indexer.Service, logger log.Logger) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		service: service,
		logger:  logger.With("component", "mcp"),
	}

	if err := s.registerKnowledgeTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport. Blocking.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting")
	return s.mcpServer.Run(ctx, transport)
}

// jsonResult renders a payload as a single JSON text content block.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil
}
