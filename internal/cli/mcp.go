package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	flmcp "forgeloop/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the forgeloop MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forgeloop MCP server on stdio",
	Long: `Start the forgeloop MCP server on stdio transport.

The server exposes orchestration as MCP tools that AI coding assistants
can call: project_status, create_project, trigger_build, list_events,
list_agents.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil || Registry == nil || Bus == nil {
			return fmt.Errorf("services not initialized")
		}

		srv := flmcp.NewServer(Controller, Registry, Bus, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
