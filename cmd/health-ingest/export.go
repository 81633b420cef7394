// ABOUTME: CLI command for exporting stored payloads.
// ABOUTME: Supports JSON and YAML export of one payload or all of them.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportID     string
)

var exportCmd = &cobra.Command{
	Use:   "export <format>",
	Short: "Export stored health data",
	Long: `Export stored payloads with every metric record and workout.

FORMATS:

  json       Full JSON export (suitable for backup)
  yaml       YAML export (human-readable)

OPTIONS:

  --output, -o   Write to file instead of stdout
  --id           Export a single payload by ID or ID prefix

EXAMPLES:

  health-ingest export json                    # Export everything as JSON
  health-ingest export json -o backup.json     # Save to file
  health-ingest export yaml --id abc12345      # One payload as YAML`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"json", "yaml"},
	RunE: func(cmd *cobra.Command, args []string) error {
		format := args[0]
		if format != "json" && format != "yaml" {
			return fmt.Errorf("unknown format: %s (use json or yaml)", format)
		}

		export, err := db.Export(cmd.Context(), exportID)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		export.Tool = "health-ingest " + version

		var data []byte
		if format == "json" {
			data, err = export.JSON()
		} else {
			data, err = export.YAML()
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, data, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ Exported to %s", exportOutput))
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportID, "id", "", "export a single payload by ID or prefix")
	rootCmd.AddCommand(exportCmd)
}
