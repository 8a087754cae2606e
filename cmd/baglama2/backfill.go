package main

import (
	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill <year> <month>",
	Short: "Advance forward from the given month, running next_all at each step, until the current month",
	Args:  cobra.ExactArgs(2),
	RunE:  runBackfill,
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ym, err := resolveYearMonth(args[0], args[1])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.scheduler.Backfill(cmd.Context(), ym)
}
