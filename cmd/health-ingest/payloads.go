// ABOUTME: CLI commands for browsing and deleting stored payloads.
// ABOUTME: Payloads are addressed by full ID or ID prefix.
package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listLimit int

var payloadsCmd = &cobra.Command{
	Use:     "payloads",
	Aliases: []string{"payload", "p"},
	Short:   "Manage stored payloads",
}

var payloadsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List stored payloads",
	Long: `List stored payloads, newest first.

OUTPUT FORMAT:

  Each line shows: ID  RECEIVED  METRICS  WORKOUTS  FINGERPRINT

  The ID is an 8-character prefix you can use with show and delete.

EXAMPLES:

  health-ingest payloads list          # Show last 20 payloads
  health-ingest payloads ls -n 50      # Show last 50 payloads`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payloads, err := db.ListPayloads(cmd.Context(), listLimit)
		if err != nil {
			return fmt.Errorf("failed to list payloads: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(payloads) == 0 {
			fmt.Fprintln(out, "No payloads stored.")
			return nil
		}

		faint := color.New(color.Faint)
		for _, p := range payloads {
			fmt.Fprintf(out, "%s %s %s %s %s\n",
				faint.Sprint(p.ID.String()[:8]),
				faint.Sprint(p.ReceivedAt.Local().Format("2006-01-02 15:04")),
				padRight(fmt.Sprintf("%d metrics", p.Metrics), 12),
				padRight(fmt.Sprintf("%d workouts", p.Workouts), 12),
				faint.Sprint(truncate(p.Fingerprint, 16)))
		}
		return nil
	},
}

var payloadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a payload with its metrics and workouts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := db.GetPayload(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		faint := color.New(color.Faint)
		bold := color.New(color.Bold)

		fmt.Fprintf(out, "%s %s\n", bold.Sprint("Payload"), p.ID)
		fmt.Fprintf(out, "  received    %s\n", p.ReceivedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  fingerprint %s\n", p.Fingerprint)

		if len(p.MetricList) > 0 {
			fmt.Fprintf(out, "\n%s\n", bold.Sprint("Metrics"))
			for _, m := range p.MetricList {
				fmt.Fprintf(out, "  %s %s %s %s\n",
					faint.Sprint(m.ID.String()[:8]),
					padRight(m.Name, 28),
					padRight(fmt.Sprintf("%d records", m.Records), 14),
					faint.Sprintf("%s (%s)", m.Table, m.Units))
			}
		}

		if len(p.WorkoutList) > 0 {
			fmt.Fprintf(out, "\n%s\n", bold.Sprint("Workouts"))
			for _, w := range p.WorkoutList {
				fmt.Fprintf(out, "  %s %s %s %s\n",
					faint.Sprint(w.ID.String()[:8]),
					padRight(w.Name, 28),
					faint.Sprint(w.Start.Local().Format("2006-01-02 15:04")),
					faint.Sprintf("%d values, %d points, %d route", w.Values, w.Points, w.Route))
			}
		}
		return nil
	},
}

var payloadsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"del", "rm"},
	Short:   "Delete a payload and everything stored from it",
	Long: `Delete a payload by its ID or ID prefix.

All metric groups, records and workouts that came from the payload are
removed with it. Ingesting the same export again afterwards stores it anew.

CAUTION:

  This permanently deletes the payload. There is no undo.
  If the prefix matches multiple payloads, an error is returned.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := db.GetPayload(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if err := db.DeletePayload(cmd.Context(), p.ID.String()); err != nil {
			return fmt.Errorf("failed to delete payload: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("✗ Deleted payload %s", p.ID.String()[:8]))
		fmt.Fprintf(cmd.OutOrStdout(), "  %d metrics, %d workouts\n", p.Metrics, p.Workouts)
		return nil
	},
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func init() {
	payloadsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "max number of results")
	payloadsCmd.AddCommand(payloadsListCmd, payloadsShowCmd, payloadsDeleteCmd)
	rootCmd.AddCommand(payloadsCmd)
}
