package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magnusmanske/baglama2-go/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run <group_id> <year> <month|lm>",
	Short: "Run the pipeline for one named group and month",
	Args:  cobra.ExactArgs(3),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	var groupIDRaw uint64
	if _, err := fmt.Sscanf(args[0], "%d", &groupIDRaw); err != nil {
		return fmt.Errorf("baglama2: invalid group_id %q", args[0])
	}
	groupID, err := types.NewGroupId(groupIDRaw)
	if err != nil {
		return err
	}
	ym, err := resolveYearMonth(args[1], args[2])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.scheduler.Run(cmd.Context(), groupID, ym)
}
