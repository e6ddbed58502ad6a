package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aixtools/kmcp/internal/app"
)

func init() {
	rootCmd.AddCommand(indexesCmd, tagsCmd, fieldsCmd, knowledgesCmd)
}

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List indexed directories with file and chunk counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			infos, err := a.Service.ListIndexes(ctx)
			if err != nil {
				return err
			}
			return printJSON(infos)
		})
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags [directory|name]",
	Short: "List tags with chunk counts, one corpus or all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			tags, err := a.Service.Tags(ctx, dir)
			if err != nil {
				return err
			}
			return printJSON(tags)
		})
	},
}

var fieldsCmd = &cobra.Command{
	Use:   "fields [directory|name]",
	Short: "List metadata field names usable in search filters",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			fields, err := a.Service.MetadataFields(ctx, dir)
			if err != nil {
				return err
			}
			return printJSON(fields)
		})
	},
}

var knowledgesCmd = &cobra.Command{
	Use:   "knowledges",
	Short: "List registered knowledge bases with index status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			bases, err := a.Service.KnowledgeBases(ctx)
			if err != nil {
				return err
			}
			return printJSON(bases)
		})
	},
}
