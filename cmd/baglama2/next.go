package main

import (
	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next <year> <month|lm>",
	Short: "Run a single random eligible job for the given month",
	Args:  cobra.ExactArgs(2),
	RunE:  runNext,
}

var nextAllSeqCmd = &cobra.Command{
	Use:   "next_all_seq <year> <month|lm> [suppress_clear]",
	Short: "Run every eligible job for the given month, one at a time",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runNextAllSeq,
}

var nextAllCmd = &cobra.Command{
	Use:   "next_all <year> <month|lm> [suppress_clear]",
	Short: "Run every eligible job for the given month, up to max_concurrent_jobs at once",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runNextAll,
}

func runNext(cmd *cobra.Command, args []string) error {
	ym, err := resolveYearMonth(args[0], args[1])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.scheduler.Next(cmd.Context(), ym)
}

func runNextAllSeq(cmd *cobra.Command, args []string) error {
	ym, err := resolveYearMonth(args[0], args[1])
	if err != nil {
		return err
	}
	suppressClear := len(args) == 3 && args[2] == "suppress_clear"

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if a.scheduler.Maintenance != nil {
		if err := a.scheduler.Maintenance.ClearStaleStatuses(cmd.Context(), ym, suppressClear); err != nil {
			return err
		}
	}
	return a.scheduler.NextAllSeq(cmd.Context(), ym)
}

func runNextAll(cmd *cobra.Command, args []string) error {
	ym, err := resolveYearMonth(args[0], args[1])
	if err != nil {
		return err
	}
	suppressClear := len(args) == 3 && args[2] == "suppress_clear"

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.scheduler.NextAll(cmd.Context(), ym, suppressClear)
}
