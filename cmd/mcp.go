package cmd

import (
	"context"
	"fmt"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/aixtools/kmcp/internal/app"
	"github.com/aixtools/kmcp/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Starts a Model Context Protocol server exposing the knowledge tools
over stdio, for use from Claude Desktop, Cursor, and other MCP hosts.
Logs go to stderr; stdout carries the JSON-RPC stream.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			server, err := mcp.NewServer(mcp.Config{
				Name:    "kmcp",
				Version: AppVersion,
			}, a.Service, a.Logger)
			if err != nil {
				return fmt.Errorf("creating MCP server: %w", err)
			}

			a.Logger.Info("MCP server ready", "name", "kmcp", "version", AppVersion, "transport", "stdio")

			if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			a.Logger.Info("MCP server shut down gracefully")
			return nil
		})
	},
}
