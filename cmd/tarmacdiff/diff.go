package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/colorfulnotion/tarmac/eventq"
	"github.com/colorfulnotion/tarmac/log"
	"github.com/colorfulnotion/tarmac/refhost"
	"github.com/colorfulnotion/tarmac/report"
	"github.com/colorfulnotion/tarmac/tarmac"
	"github.com/colorfulnotion/tarmac/tarmacerrors"
	"github.com/colorfulnotion/tarmac/telemetry"
	"github.com/colorfulnotion/tarmac/verifier"
)

type diffFlags struct {
	configPath   string
	ref          string
	candidate    string
	startPC      string
	exitOnDiff   bool
	exitOnInsn   bool
	memWrCheck   bool
	ignoreMem    []string
	cpuID        bool
	maxVecLen    int
	delay        uint64
	deferAll     bool
	stateDiff    bool
	indexPath    string
	reportJSONL  string
	otlpEndpoint string
	ticksPerInst uint64
}

// parseAddrRange parses "start-end" into a half-open range.
func parseAddrRange(s string) (verifier.AddrRange, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return verifier.AddrRange{}, fmt.Errorf("address range %q: want start-end", s)
	}
	start, err := strconv.ParseUint(strings.TrimSpace(lo), 0, 64)
	if err != nil {
		return verifier.AddrRange{}, fmt.Errorf("address range %q: %w", s, err)
	}
	end, err := strconv.ParseUint(strings.TrimSpace(hi), 0, 64)
	if err != nil {
		return verifier.AddrRange{}, fmt.Errorf("address range %q: %w", s, err)
	}
	return verifier.AddrRange{Start: start, End: end}, nil
}

// config builds the session config: defaults, then the YAML file, then any
// flag set on the command line.
func (f *diffFlags) config(cmd *cobra.Command) (verifier.Config, error) {
	cfg := verifier.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = verifier.LoadConfig(f.configPath); err != nil {
			return cfg, err
		}
	}
	changed := cmd.Flags().Changed
	if changed("ref") {
		cfg.TracePath = f.ref
	}
	if changed("start-pc") {
		pc, err := strconv.ParseUint(f.startPC, 0, 64)
		if err != nil {
			return cfg, fmt.Errorf("bad --start-pc %q: %w", f.startPC, err)
		}
		cfg.StartPC = pc
	}
	if changed("exit-on-diff") {
		cfg.ExitOnDiff = f.exitOnDiff
	}
	if changed("exit-on-insn-diff") {
		cfg.ExitOnInsnDiff = f.exitOnInsn
	}
	if changed("mem-wr-check") {
		cfg.MemWrCheck = f.memWrCheck
	}
	if changed("ignore-mem-addr") {
		cfg.IgnoreMemAddr = nil
		for _, s := range f.ignoreMem {
			r, err := parseAddrRange(s)
			if err != nil {
				return cfg, err
			}
			cfg.IgnoreMemAddr = append(cfg.IgnoreMemAddr, r)
		}
	}
	if changed("cpu-id") {
		cfg.CPUID = f.cpuID
	}
	if changed("max-vector-length") {
		cfg.MaxVectorLength = f.maxVecLen
	}
	if changed("deferred-delay") {
		cfg.DeferredCheckDelay = f.delay
	}
	if changed("defer-all") {
		cfg.DeferAllRegisters = f.deferAll
	}
	if changed("state-diff") {
		cfg.StateDiff = f.stateDiff
	}
	if changed("index") {
		cfg.IndexPath = f.indexPath
	}
	return cfg, cfg.Validate()
}

func newDiffCmd() *cobra.Command {
	f := &diffFlags{}
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Verify a candidate trace against a reference trace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd)
			if err != nil {
				return err
			}
			if f.candidate == "" {
				return errors.New("--candidate is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDiff(ctx, cmd, cfg, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML config file; flags override its values")
	fl.StringVar(&f.ref, "ref", "", "Reference trace")
	fl.StringVar(&f.candidate, "candidate", "", "Candidate trace replayed as the simulator")
	fl.StringVar(&f.startPC, "start-pc", "0", "Start verifying when this PC retires (0 = immediately)")
	fl.BoolVar(&f.exitOnDiff, "exit-on-diff", false, "Stop at the first mismatch")
	fl.BoolVar(&f.exitOnInsn, "exit-on-insn-diff", false, "Stop at the first PC or opcode mismatch")
	fl.BoolVar(&f.memWrCheck, "mem-wr-check", false, "Check memory writes")
	fl.StringSliceVar(&f.ignoreMem, "ignore-mem-addr", nil, "Memory write range never checked, as start-end (repeatable)")
	fl.BoolVar(&f.cpuID, "cpu-id", false, "Trace lines carry a cpu<N> column")
	fl.IntVar(&f.maxVecLen, "max-vector-length", tarmac.DefaultMaxVectorLength, "SVE vector length limit in quadwords")
	fl.Uint64Var(&f.delay, "deferred-delay", 1, "Ticks between an exception-raising instruction and its deferred register check")
	fl.BoolVar(&f.deferAll, "defer-all", false, "Defer every register check")
	fl.BoolVar(&f.stateDiff, "state-diff", false, "Print a JSON diff of mismatching registers")
	fl.StringVar(&f.indexPath, "index", "", "Trace index built by \"tarmacdiff index\"")
	fl.StringVar(&f.reportJSONL, "report-jsonl", "", "Write mismatches as JSON lines to this file")
	fl.StringVar(&f.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP endpoint (host:port) for run traces")
	fl.Uint64Var(&f.ticksPerInst, "ticks-per-inst", refhost.DefaultTicksPerInst, "Simulated ticks between replayed instructions")
	return cmd
}

func runDiff(ctx context.Context, cmd *cobra.Command, cfg verifier.Config, f *diffFlags) (err error) {
	shutdown, err := telemetry.Setup(ctx, f.otlpEndpoint, Version)
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			log.Warn(log.CLI, "telemetry shutdown failed", "err", serr)
		}
	}()
	ctx, span := telemetry.Tracer().Start(ctx, "tarmacdiff.diff", trace.WithAttributes(
		attribute.String("ref", cfg.TracePath),
		attribute.String("candidate", f.candidate),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	out := cmd.OutOrStdout()
	collector := report.NewCollector(out)
	if f.reportJSONL != "" {
		w, err := report.CreateJSONLWriter(f.reportJSONL)
		if err != nil {
			return err
		}
		defer w.Close()
		collector.SetJSONL(w)
	}

	q := eventq.New()
	s, err := verifier.NewSession(cfg, q, verifier.WithCollector(collector))
	if err != nil {
		return err
	}
	defer s.Close()

	cand, err := tarmac.Open(f.candidate, cfg.ReaderOptions())
	if err != nil {
		return err
	}
	defer cand.Close()

	rp := refhost.New(cand, q, s)
	rp.TicksPerInst = f.ticksPerInst
	res, err := rp.Run(ctx)
	fmt.Fprintln(out, s.Summary())

	st := collector.Stats()
	span.SetAttributes(
		attribute.Int64("instructions.replayed", int64(res.Instructions)),
		attribute.Int64("instructions.verified", int64(st.Instructions)),
		attribute.Int64("instructions.mismatched", int64(st.Mismatched)),
		attribute.String("session.state", s.State().String()),
	)
	if err != nil {
		return err
	}
	if err := collector.Err(); err != nil {
		return fmt.Errorf("writing %s: %w", f.reportJSONL, err)
	}
	if res.Exited {
		return fmt.Errorf("%s: %w", res.ExitReason, tarmacerrors.ErrTerminatedByPolicy)
	}
	return nil
}
