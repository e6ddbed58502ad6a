// Package cmd provides the kmcp CLI.
//
// Commands:
//   - index / refresh / drop: manage per-directory indexes
//   - search: semantic search with tag and metadata filters
//   - indexes / tags / fields / knowledges: inspect indexed state
//   - mcp: Model Context Protocol server on stdio
//
// Every command prints its result as JSON on stdout; logs go to
// stderr so the MCP transport and shell pipelines stay clean.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aixtools/kmcp/internal/app"
	"github.com/aixtools/kmcp/internal/log"
	"github.com/aixtools/kmcp/internal/vectorstore"
)

// ErrPartial marks an index run that finished with per-file failures.
var ErrPartial = errors.New("completed with errors")

var rootCmd = &cobra.Command{
	Use:   "kmcp",
	Short: "kmcp - incremental knowledge indexing and semantic search",
	Long: `kmcp indexes directories of markdown, source code, and notebooks
into per-directory vector collections and answers semantic search
queries over them, with tag and metadata filtering.

Run "kmcp mcp" to expose the same operations as MCP tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. The returned error maps to the
// process exit code via ExitCode.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps a command error to the process exit code:
// 0 success, 1 config or input error, 2 partial success, 3 not indexed.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrPartial):
		return 2
	case errors.Is(err, vectorstore.ErrNotIndexed):
		return 3
	default:
		return 1
	}
}

// newLogger builds the process logger. DEBUG in the environment
// lowers the level.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// withApp wires the application, runs fn under a signal-aware context,
// and tears everything down afterwards.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	a, err := app.Setup(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
