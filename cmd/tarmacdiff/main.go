// tarmacdiff checks TARMAC traces and diffs a candidate trace against a
// reference trace.
//
// Usage:
//
//	tarmacdiff lint <trace>                           # parse a trace and count its records
//	tarmacdiff diff --ref <trace> --candidate <trace> # verify candidate against reference
//	tarmacdiff index <trace> --db <dir>               # build a start-PC index
//	tarmacdiff version
//
// The exit status is 1 for malformed input and 2 when a diff was stopped by
// the exit policy.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/tarmac/log"
	"github.com/colorfulnotion/tarmac/tarmacerrors"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, tarmacerrors.ErrTerminatedByPolicy) {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	var (
		logLevel string
		debug    string
		jsonLog  bool
	)
	rootCmd := &cobra.Command{
		Use:           "tarmacdiff",
		Short:         "TARMAC trace verifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if jsonLog {
				err = log.InitJSONLogger(cmd.ErrOrStderr(), logLevel)
			} else {
				err = log.InitLogger(logLevel)
			}
			if err != nil {
				return err
			}
			log.EnableModules(debug)
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&debug, "debug", "", "Comma separated modules with debug logging enabled, or \"all\"")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "Write logs as JSON")

	rootCmd.AddCommand(newLintCmd(), newDiffCmd(), newIndexCmd(), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tarmacdiff %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}
