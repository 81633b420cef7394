// ABOUTME: CLI commands for the spool of MQTT messages that could not be stored.
// ABOUTME: Shows how many are waiting and replays them on demand.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/health-ingest/internal/spool"
)

var spoolCmd = &cobra.Command{
	Use:   "spool",
	Short: "Inspect and replay spooled MQTT messages",
	Long: `Messages received over MQTT while storage was failing are kept in a
local spool and replayed by 'serve'. These commands work on the spool
directly; stop 'serve' first, the spool allows one process at a time.`,
}

var spoolStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the number of spooled messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := spool.Open(cfg.GetSpoolDir(), log)
		if err != nil {
			return err
		}
		defer sp.Close()

		n, err := sp.Len()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d spooled %s\n", n, color.New(color.Faint).Sprint(cfg.GetSpoolDir()))
		return nil
	},
}

var spoolReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Ingest every spooled message now",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := spool.Open(cfg.GetSpoolDir(), log)
		if err != nil {
			return err
		}
		defer sp.Close()

		stats, err := sp.Replay(cmd.Context(), coordinator)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s stored %d, dropped %d, remaining %d\n",
			color.GreenString("✓"), stats.Stored, stats.Dropped, stats.Remaining)
		return err
	},
}

func init() {
	spoolCmd.AddCommand(spoolStatusCmd, spoolReplayCmd)
	rootCmd.AddCommand(spoolCmd)
}
