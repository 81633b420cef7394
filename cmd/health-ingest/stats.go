// ABOUTME: CLI command printing row counts for every storage table.
package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per table",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := db.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read stats: %w", err)
		}

		tables := make([]string, 0, len(stats))
		for table := range stats {
			tables = append(tables, table)
		}
		sort.Strings(tables)

		faint := color.New(color.Faint)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint(padRight("backend", 28)), cfg.GetBackend())
		for _, table := range tables {
			n := stats[table]
			line := fmt.Sprintf("%s %d", padRight(table, 28), n)
			if n == 0 {
				line = faint.Sprint(line)
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
