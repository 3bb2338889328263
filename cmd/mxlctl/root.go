// Package main implements mxlctl: the command-line tool for inspecting
// and administering an MXL domain (list flows, show flow info,
// garbage-collect, and diagnose environment health). Cobra builds the
// command tree; the --json/--quiet/--verbose flag trio is wired through
// internal/output from a single PersistentPreRunE gate.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mxllabs/mxl/internal/config"
	"github.com/mxllabs/mxl/internal/output"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var (
	jsonFlag    bool
	verboseFlag bool
	quietFlag   bool
	domainFlag  string
	configDir   string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mxlctl",
		Short:         "Inspect and administer an MXL domain",
		Long:          "mxlctl — list flows, show flow info, garbage-collect stale flows, and diagnose domain health.",
		Version:       fmt.Sprintf("mxlctl v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verboseFlag && quietFlag {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			if jsonFlag {
				quietFlag = true
			}
			output.SetFlags(jsonFlag, quietFlag, verboseFlag)
			config.SetConfigDir(configDir)
			return nil
		},
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pflags := rootCmd.PersistentFlags()
	pflags.BoolVarP(&jsonFlag, "json", "j", false, "Output as JSON")
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "Extra detail to stderr")
	pflags.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	pflags.StringVarP(&domainFlag, "domain", "d", "", "Domain directory (default: MXL_DOMAIN, .mxlrc, or config default_domain)")
	pflags.StringVar(&configDir, "config-dir", "", "Override mxlctl config directory (default: ~/.mxl)")

	if v := os.Getenv("MXL_HOME"); v != "" && configDir == "" {
		configDir = v
	}
	if os.Getenv("MXL_JSON") == "1" {
		jsonFlag = true
	}

	return rootCmd
}

// NewRootCmd assembles the full mxlctl command tree.
func NewRootCmd() *cobra.Command {
	cmd := newRootCmd()
	addListCommand(cmd)
	addInfoCommand(cmd)
	addGCCommand(cmd)
	addDoctorCommand(cmd)
	return cmd
}

// resolveDomain resolves the active domain from --domain, MXL_DOMAIN, or
// the layered config fallback (spec §6.4).
func resolveDomain() (string, error) {
	return config.ResolveDomain(domainFlag, os.Getenv("MXL_DOMAIN"))
}
