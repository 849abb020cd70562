package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/colorfulnotion/tarmac/armreg"
	"github.com/colorfulnotion/tarmac/tarmac"
)

type lintStats struct {
	instructions uint64
	registers    uint64
	memory       uint64
	unknownRegs  []string
}

func lintTrace(r *tarmac.Reader) (*lintStats, error) {
	st := &lintStats{}
	misc := armreg.MiscRegs()
	seen := make(map[string]bool)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, err
		}
		switch rec.Kind {
		case tarmac.KindInstruction:
			st.instructions++
		case tarmac.KindRegister:
			st.registers++
			name := strings.ToLower(rec.Reg.Name)
			if rec.Reg.RegKind == tarmac.RegMisc && !seen[name] {
				seen[name] = true
				if _, ok := misc.Lookup(name); !ok {
					st.unknownRegs = append(st.unknownRegs, name)
				}
			}
		case tarmac.KindMemory:
			st.memory++
		}
	}
	slices.Sort(st.unknownRegs)
	return st, nil
}

func newLintCmd() *cobra.Command {
	var (
		cpuID     bool
		maxVecLen int
	)
	cmd := &cobra.Command{
		Use:   "lint <trace>",
		Short: "Parse a trace and report its record counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := tarmac.Open(args[0], tarmac.Options{CPUID: cpuID, MaxVectorLength: maxVecLen})
			if err != nil {
				return err
			}
			defer r.Close()

			st, err := lintTrace(r)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d instructions, %d register writes, %d memory writes\n", args[0], st.instructions, st.registers, st.memory)
			if len(st.unknownRegs) > 0 {
				fmt.Fprintf(out, "unknown registers (not checked): %s\n", strings.Join(st.unknownRegs, ", "))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&cpuID, "cpu-id", false, "Trace lines carry a cpu<N> column")
	cmd.Flags().IntVar(&maxVecLen, "max-vector-length", tarmac.DefaultMaxVectorLength, "SVE vector length limit in quadwords")
	return cmd
}
