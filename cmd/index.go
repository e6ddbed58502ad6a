package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aixtools/kmcp/internal/app"
	"github.com/aixtools/kmcp/internal/indexer"
)

func init() {
	indexCmd.Flags().BoolVar(&indexRecursive, "recursive", true, "recurse into subdirectories")
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "reindex every file even if unchanged")
	refreshCmd.Flags().BoolVar(&indexRecursive, "recursive", true, "recurse into subdirectories")
	rootCmd.AddCommand(indexCmd, refreshCmd, dropCmd)
}

var (
	indexRecursive bool
	indexForce     bool
)

var indexCmd = &cobra.Command{
	Use:   "index <directory|name>",
	Short: "Index a directory of knowledge files",
	Long: `Index walks a directory, detects new, changed, and removed files via
content hashes, and writes chunk embeddings to the directory's vector
collection. The argument is a path or a registered knowledge-base name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			result, err := a.Service.Index(ctx, args[0], indexRecursive, indexForce)
			if err != nil {
				return err
			}
			if err := printJSON(result); err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%w: %d file(s) failed", ErrPartial, len(result.Errors))
			}
			return nil
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [directory|name]",
	Short: "Incrementally refresh one index, or every registered one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			if len(args) == 1 {
				result, err := a.Service.Index(ctx, args[0], indexRecursive, false)
				if err != nil {
					return err
				}
				if err := printJSON(result); err != nil {
					return err
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("%w: %d file(s) failed", ErrPartial, len(result.Errors))
				}
				return nil
			}

			results, err := a.Service.RefreshAll(ctx, indexRecursive)
			if err != nil {
				return err
			}
			if err := printJSON(results); err != nil {
				return err
			}
			if failed := failedFiles(results); failed > 0 {
				return fmt.Errorf("%w: %d file(s) failed", ErrPartial, failed)
			}
			return nil
		})
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <directory|name>",
	Short: "Remove a directory's index and cached data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			if err := a.Service.Drop(ctx, args[0]); err != nil {
				return err
			}
			return printJSON(map[string]string{"status": "dropped", "directory": args[0]})
		})
	},
}

// failedFiles sums per-file errors across index results.
func failedFiles(results []*indexer.IndexResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Errors)
	}
	return n
}
