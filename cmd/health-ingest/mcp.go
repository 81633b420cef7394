// ABOUTME: CLI command for starting the MCP server.
// ABOUTME: Runs a stdio-based MCP server for AI assistant integration.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harperreed/health-ingest/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

The server communicates via stdin/stdout; logs go to stderr.

CONFIGURATION:

  {
    "mcpServers": {
      "health-ingest": {
        "command": "health-ingest",
        "args": ["mcp"]
      }
    }
  }

AVAILABLE TOOLS:

  ingest_payload   Store a Health Auto Export JSON payload
  list_payloads    List stored payloads
  get_payload      Get a payload with its metrics and workouts
  delete_payload   Delete a payload by ID or prefix
  get_stats        Row counts per table

AVAILABLE RESOURCES:

  health://recent  Last 10 stored payloads
  health://stats   Row counts per table`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(db, coordinator, log, version)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
