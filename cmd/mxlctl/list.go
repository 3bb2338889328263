package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mxllabs/mxl"
	"github.com/mxllabs/mxl/internal/flowdesc"
	"github.com/mxllabs/mxl/internal/output"
)

// flowSummary is one row of `mxlctl list`'s output.
type flowSummary struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Format string `json:"format"`
	Active bool   `json:"active"`
}

func addListCommand(parent *cobra.Command) {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List flows in the domain",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	parent.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	domain, err := resolveDomain()
	if err != nil {
		return err
	}

	inst, err := mxl.NewInstance(domain)
	if err != nil {
		return fmt.Errorf("opening domain: %w", err)
	}
	defer inst.Close()

	ids, err := inst.ListFlows()
	if err != nil {
		return fmt.Errorf("listing flows: %w", err)
	}

	summaries := make([]flowSummary, 0, len(ids))
	for _, id := range ids {
		s := flowSummary{ID: id.String(), Active: inst.IsFlowActive(id)}
		raw, err := inst.GetFlowDef(id)
		if err == nil {
			if desc, err := flowdesc.Parse(raw); err == nil {
				s.Label = desc.Label
				s.Format = desc.Format.String()
			}
		}
		summaries = append(summaries, s)
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), summaries)
	}

	if len(summaries) == 0 {
		if !output.IsQuiet() {
			fmt.Fprintln(cmd.OutOrStdout(), "No flows in domain.")
		}
		return nil
	}

	for _, s := range summaries {
		status := "inactive"
		if s.Active {
			status = "active"
		}
		label := s.Label
		if label == "" {
			label = "(unlabeled)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %-8s %s\n", s.ID, s.Format, status, label)
	}
	return nil
}
