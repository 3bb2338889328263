package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/mxllabs/mxl"
	"github.com/mxllabs/mxl/internal/output"
)

// CheckResult holds the result of a single doctor check, mirroring the
// teacher's doctor report shape (internal/cmd/doctor.go).
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warning", "error"
	Detail string `json:"detail"`
}

// DoctorReport holds the complete doctor output.
type DoctorReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []CheckResult `json:"checks"`
}

func addDoctorCommand(parent *cobra.Command) {
	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check domain and CLI environment health",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
	parent.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	domain, domainErr := resolveDomain()

	checks := []CheckResult{
		checkDomainResolved(domain, domainErr),
	}
	if domainErr == nil {
		checks = append(checks, checkDomainOpens(domain), checkDiskSpace(domain))
	}

	healthy := true
	for _, c := range checks {
		if c.Status == "error" {
			healthy = false
			break
		}
	}

	report := DoctorReport{Healthy: healthy, Checks: checks}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), report)
	}

	if output.IsQuiet() && healthy {
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), "MXL Doctor")
	fmt.Fprintln(cmd.OutOrStdout())

	var warnings, errors int
	for _, c := range checks {
		symbol := "✓"
		switch c.Status {
		case "warning":
			symbol = "⚠"
			warnings++
		case "error":
			symbol = "✗"
			errors++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %-12s %s\n", symbol, c.Name, c.Detail)
	}

	fmt.Fprintln(cmd.OutOrStdout())
	switch {
	case errors > 0:
		fmt.Fprintf(cmd.OutOrStdout(), "Problems found (%s).\n", pluralize(errors, "error"))
	case warnings > 0:
		fmt.Fprintf(cmd.OutOrStdout(), "Everything looks good (%s).\n", pluralize(warnings, "warning"))
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "Everything looks good.")
	}
	return nil
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func checkDomainResolved(domain string, err error) CheckResult {
	if err != nil {
		return CheckResult{Name: "Domain", Status: "error", Detail: err.Error()}
	}
	return CheckResult{Name: "Domain", Status: "ok", Detail: shortenHome(domain)}
}

func checkDomainOpens(domain string) CheckResult {
	inst, err := mxl.NewInstance(domain)
	if err != nil {
		return CheckResult{Name: "Flow manager", Status: "error", Detail: err.Error()}
	}
	defer inst.Close()

	ids, err := inst.ListFlows()
	if err != nil {
		return CheckResult{Name: "Flow manager", Status: "warning", Detail: fmt.Sprintf("could not list flows: %s", err)}
	}
	return CheckResult{Name: "Flow manager", Status: "ok", Detail: fmt.Sprintf("%d flow(s)", len(ids))}
}

func checkDiskSpace(domain string) CheckResult {
	var stat unix.Statfs_t
	target := domain
	if _, err := os.Stat(target); err != nil {
		target = filepath.Dir(target)
	}
	if err := unix.Statfs(target, &stat); err != nil {
		return CheckResult{Name: "Disk", Status: "warning", Detail: fmt.Sprintf("could not check: %s", err)}
	}

	freeBytes := stat.Bavail * uint64(stat.Bsize)
	freeGB := float64(freeBytes) / (1024 * 1024 * 1024)

	status := "ok"
	if freeGB < 1.0 {
		status = "warning"
	}
	return CheckResult{Name: "Disk", Status: status, Detail: fmt.Sprintf("%.1f GB free in %s", freeGB, shortenHome(domain))}
}

func shortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
