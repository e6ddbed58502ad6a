package mcp

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aixtools/kmcp/internal/indexer"
)

// Tool names of the knowledge surface.
const (
	ToolIndexDirectory    = "knowledge_index_directory"
	ToolSearch            = "knowledge_search"
	ToolListIndexes       = "knowledge_list_indexes"
	ToolRefreshIndex      = "knowledge_refresh_index"
	ToolGetTags           = "knowledge_get_tags"
	ToolGetMetadataFields = "knowledge_get_metadata_fields"
	ToolDropIndex         = "knowledge_drop_index"
	ToolListKnowledges    = "knowledge_list_knowledges"
)

// IndexDirectoryInput is the input for knowledge_index_directory.
type IndexDirectoryInput struct {
	Directory string `json:"directory" jsonschema:"Directory path or registered knowledge-base name to index"`
	Recursive *bool  `json:"recursive,omitempty" jsonschema:"Recurse into subdirectories (default true)"`
	Force     bool   `json:"force,omitempty" jsonschema:"Reindex every file even if unchanged"`
}

// SearchInput is the input for knowledge_search.
type SearchInput struct {
	Query     string         `json:"query" jsonschema:"Search text"`
	Directory string         `json:"directory,omitempty" jsonschema:"Directory or knowledge-base name to search; empty searches all registered knowledge bases"`
	Tags      []string       `json:"tags,omitempty" jsonschema:"Tags every result must carry"`
	Metadata  map[string]any `json:"metadata_filters,omitempty" jsonschema:"Field equality values or comparison predicate keys with null values"`
	Limit     int            `json:"limit,omitempty" jsonschema:"Maximum results (default from config)"`
	Threshold *float64       `json:"threshold,omitempty" jsonschema:"Minimum similarity score between 0 and 1 (default from config)"`
}

// DirectoryInput selects one corpus, or all when empty.
type DirectoryInput struct {
	Directory string `json:"directory,omitempty" jsonschema:"Directory or knowledge-base name; empty means every indexed corpus"`
}

// RefreshInput is the input for knowledge_refresh_index.
type RefreshInput struct {
	Directory string `json:"directory,omitempty" jsonschema:"Directory or knowledge-base name to refresh; empty refreshes every registered and previously indexed corpus"`
	Recursive *bool  `json:"recursive,omitempty" jsonschema:"Recurse into subdirectories (default true)"`
}

// DropInput is the input for knowledge_drop_index.
type DropInput struct {
	Directory string `json:"directory" jsonschema:"Directory or knowledge-base name whose index to remove"`
}

// EmptyInput is for tools without parameters.
type EmptyInput struct{}

// registerKnowledgeTools registers all knowledge tools to the MCP server.
// Tools: knowledge_index_directory, knowledge_search, knowledge_list_indexes,
// knowledge_refresh_index, knowledge_get_tags, knowledge_get_metadata_fields,
// knowledge_drop_index, knowledge_list_knowledges
func (s *Server) registerKnowledgeTools() error {
	indexSchema, err := jsonschema.For[IndexDirectoryInput](nil)
	if err != nil {
		return fmt.Errorf("schema for index tool: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolIndexDirectory,
		Description: "Index a directory of knowledge files (markdown, source code, notebooks) for semantic search. " +
			"Incremental: only new and changed files are re-embedded.",
		InputSchema: indexSchema,
	}, s.IndexDirectory)

	searchSchema, err := jsonschema.For[SearchInput](nil)
	if err != nil {
		return fmt.Errorf("schema for search tool: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolSearch,
		Description: "Search indexed knowledge using semantic similarity, with optional tag and metadata filters. " +
			"Searches one directory, or every registered knowledge base when directory is omitted.",
		InputSchema: searchSchema,
	}, s.Search)

	emptySchema, err := jsonschema.For[EmptyInput](nil)
	if err != nil {
		return fmt.Errorf("schema for parameterless tools: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListIndexes,
		Description: "List every indexed corpus with its file count, chunk count, and last-checked time.",
		InputSchema: emptySchema,
	}, s.ListIndexes)

	refreshSchema, err := jsonschema.For[RefreshInput](nil)
	if err != nil {
		return fmt.Errorf("schema for refresh tool: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolRefreshIndex,
		Description: "Incrementally refresh one index, or every registered index when directory is omitted.",
		InputSchema: refreshSchema,
	}, s.RefreshIndex)

	dirSchema, err := jsonschema.For[DirectoryInput](nil)
	if err != nil {
		return fmt.Errorf("schema for directory tools: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolGetTags,
		Description: "List tags present in a corpus with chunk counts; aggregated across all corpora when directory is omitted.",
		InputSchema: dirSchema,
	}, s.GetTags)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolGetMetadataFields,
		Description: "List metadata field names usable in search filters; union across all corpora when directory is omitted.",
		InputSchema: dirSchema,
	}, s.GetMetadataFields)

	dropSchema, err := jsonschema.For[DropInput](nil)
	if err != nil {
		return fmt.Errorf("schema for drop tool: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolDropIndex,
		Description: "Remove a directory's index, including its vector collection and tracking manifest.",
		InputSchema: dropSchema,
	}, s.DropIndex)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListKnowledges,
		Description: "List registered knowledge bases with their paths, descriptions, and index status.",
		InputSchema: emptySchema,
	}, s.ListKnowledges)

	return nil
}

// IndexDirectory handles knowledge_index_directory.
func (s *Server) IndexDirectory(ctx context.Context, _ *mcp.CallToolRequest, input IndexDirectoryInput) (*mcp.CallToolResult, any, error) {
	recursive := input.Recursive == nil || *input.Recursive

	result, err := s.service.Index(ctx, input.Directory, recursive, input.Force)
	if err != nil {
		return nil, nil, fmt.Errorf("index failed: %w", err)
	}
	res, err := jsonResult(result)
	return res, nil, err
}

// Search handles knowledge_search.
func (s *Server) Search(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	threshold := -1.0
	if input.Threshold != nil {
		threshold = *input.Threshold
	}

	resp, err := s.service.Search(ctx, indexer.Query{
		Text:      input.Query,
		Directory: input.Directory,
		Tags:      input.Tags,
		Metadata:  input.Metadata,
		Limit:     input.Limit,
		Threshold: threshold,
		Recursive: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("search failed: %w", err)
	}
	res, err := jsonResult(resp)
	return res, nil, err
}

// ListIndexes handles knowledge_list_indexes.
func (s *Server) ListIndexes(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	infos, err := s.service.ListIndexes(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list indexes failed: %w", err)
	}
	res, err := jsonResult(infos)
	return res, nil, err
}

// RefreshIndex handles knowledge_refresh_index.
func (s *Server) RefreshIndex(ctx context.Context, _ *mcp.CallToolRequest, input RefreshInput) (*mcp.CallToolResult, any, error) {
	recursive := input.Recursive == nil || *input.Recursive

	if input.Directory != "" {
		result, err := s.service.Index(ctx, input.Directory, recursive, false)
		if err != nil {
			return nil, nil, fmt.Errorf("refresh failed: %w", err)
		}
		res, err := jsonResult(result)
		return res, nil, err
	}

	results, err := s.service.RefreshAll(ctx, recursive)
	if err != nil {
		return nil, nil, fmt.Errorf("refresh all failed: %w", err)
	}
	res, err := jsonResult(results)
	return res, nil, err
}

// GetTags handles knowledge_get_tags.
func (s *Server) GetTags(ctx context.Context, _ *mcp.CallToolRequest, input DirectoryInput) (*mcp.CallToolResult, any, error) {
	tags, err := s.service.Tags(ctx, input.Directory)
	if err != nil {
		return nil, nil, fmt.Errorf("get tags failed: %w", err)
	}
	res, err := jsonResult(tags)
	return res, nil, err
}

// GetMetadataFields handles knowledge_get_metadata_fields.
func (s *Server) GetMetadataFields(ctx context.Context, _ *mcp.CallToolRequest, input DirectoryInput) (*mcp.CallToolResult, any, error) {
	fields, err := s.service.MetadataFields(ctx, input.Directory)
	if err != nil {
		return nil, nil, fmt.Errorf("get metadata fields failed: %w", err)
	}
	res, err := jsonResult(fields)
	return res, nil, err
}

// DropIndex handles knowledge_drop_index.
func (s *Server) DropIndex(ctx context.Context, _ *mcp.CallToolRequest, input DropInput) (*mcp.CallToolResult, any, error) {
	if input.Directory == "" {
		return nil, nil, fmt.Errorf("directory is required")
	}
	if err := s.service.Drop(ctx, input.Directory); err != nil {
		return nil, nil, fmt.Errorf("drop failed: %w", err)
	}
	res, err := jsonResult(map[string]string{"status": "dropped", "directory": input.Directory})
	return res, nil, err
}

// ListKnowledges handles knowledge_list_knowledges.
func (s *Server) ListKnowledges(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	infos, err := s.service.KnowledgeBases(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list knowledge bases failed: %w", err)
	}
	res, err := jsonResult(infos)
	return res, nil, err
}
