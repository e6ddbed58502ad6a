package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aixtools/kmcp/internal/app"
	"github.com/aixtools/kmcp/internal/indexer"
)

func init() {
	searchCmd.Flags().StringVarP(&searchDir, "dir", "d", "", "directory or knowledge-base name to search (default: all registered)")
	searchCmd.Flags().StringArrayVarP(&searchTags, "tag", "t", nil, "tag every result must carry (repeatable)")
	searchCmd.Flags().StringArrayVarP(&searchFilters, "filter", "f", nil, `metadata filter: "field=value" or a predicate like "sharpe > 1.5" (repeatable)`)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default from config)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", -1, "minimum similarity score 0..1 (default from config)")
	rootCmd.AddCommand(searchCmd)
}

var (
	searchDir       string
	searchTags      []string
	searchFilters   []string
	searchLimit     int
	searchThreshold float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed knowledge by semantic similarity",
	Long: `Search embeds the query and ranks stored chunks by cosine similarity.
Without --dir every registered knowledge base is searched and results
are merged by score.

Examples:
  kmcp search "momentum backtest results"
  kmcp search "rebalancing" --dir ~/notes --tag '#strategy'
  kmcp search "winners" --filter "sharpe > 1.5" --filter type=BACKTEST`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := parseFilters(searchFilters)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			resp, err := a.Service.Search(ctx, indexer.Query{
				Text:      args[0],
				Directory: searchDir,
				Tags:      searchTags,
				Metadata:  meta,
				Limit:     searchLimit,
				Threshold: searchThreshold,
				Recursive: true,
			})
			if err != nil {
				return err
			}
			return printJSON(resp)
		})
	},
}

// parseFilters turns --filter values into the metadata-filter map the
// service expects: "field=value" becomes an equality (numbers and
// booleans typed), anything else is passed through as a predicate
// expression and validated downstream.
func parseFilters(filters []string) (map[string]any, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(filters))
	for _, f := range filters {
		field, value, ok := strings.Cut(f, "=")
		if !ok {
			meta[f] = nil
			continue
		}
		field = strings.TrimSpace(field)
		value = strings.TrimSpace(value)
		if field == "" || value == "" {
			return nil, fmt.Errorf("invalid filter %q, want field=value", f)
		}
		meta[field] = typedValue(value)
	}
	return meta, nil
}

func typedValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
