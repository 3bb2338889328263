package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mxllabs/mxl"
	"github.com/mxllabs/mxl/internal/output"
)

type gcReport struct {
	Removed int `json:"removed"`
}

func addGCCommand(parent *cobra.Command) {
	gcCmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete flows with no live writer",
		Long:  "Sweep the domain for flows whose writer exited without releasing cleanly and remove them.",
		Args:  cobra.NoArgs,
		RunE:  runGC,
	}
	parent.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	domain, err := resolveDomain()
	if err != nil {
		return err
	}

	inst, err := mxl.NewInstance(domain)
	if err != nil {
		return fmt.Errorf("opening domain: %w", err)
	}
	defer inst.Close()

	removed := inst.GarbageCollectFlows()

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), gcReport{Removed: removed})
	}

	if output.IsQuiet() && removed == 0 {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale flow(s).\n", removed)
	return nil
}
