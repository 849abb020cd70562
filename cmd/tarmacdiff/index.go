package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/tarmac/tarmac"
	"github.com/colorfulnotion/tarmac/traceindex"
)

func newIndexCmd() *cobra.Command {
	var (
		dbPath string
		cpuID  bool
	)
	cmd := &cobra.Command{
		Use:   "index <trace>",
		Short: "Index the instruction addresses of an uncompressed trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = args[0] + ".idx"
			}
			st, err := traceindex.Build(args[0], dbPath, tarmac.Options{CPUID: cpuID})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d instructions, %d distinct PCs, into %s\n", st.Instructions, st.UniquePCs, dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Index directory (default <trace>.idx)")
	cmd.Flags().BoolVar(&cpuID, "cpu-id", false, "Trace lines carry a cpu<N> column")
	return cmd
}
