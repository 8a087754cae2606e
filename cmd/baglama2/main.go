// Command baglama2 is the CLI entry point for the pageview-tracking
// pipeline (spec §6 EXTERNAL INTERFACES): run, next, next_all_seq,
// next_all, and backfill.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string
var jsonLogs bool
var debugLogs bool

var rootCmd = &cobra.Command{
	Use:   "baglama2",
	Short: "baglama2 - Wikimedia Commons pageview tracker",
	Long: `baglama2 computes, per curated file group and calendar month, the
total Wikimedia pageviews of every article embedding a member file.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json (default: ./config.json, then the project data path)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of text")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "enable debug-level logging")

	rootCmd.AddCommand(runCmd, nextCmd, nextAllSeqCmd, nextAllCmd, backfillCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
