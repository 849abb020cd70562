package verifier

import (
	"errors"
	"fmt"
	"io"

	"github.com/colorfulnotion/tarmac/armreg"
	"github.com/colorfulnotion/tarmac/disasm"
	"github.com/colorfulnotion/tarmac/log"
	"github.com/colorfulnotion/tarmac/report"
	"github.com/colorfulnotion/tarmac/tarmac"
)

// Record verifies one retired instruction. Its mismatch flags accumulate
// findings from the immediate comparison and from a deferred check, if one
// is scheduled.
type Record struct {
	s    *Session
	tc   ThreadContext
	inst RetiredInst
	when Tick

	trace *tarmac.InstRecord

	mismatch             bool
	mismatchOnPcOrOpcode bool
	headerPrinted        bool
	verified             bool
	finalized            bool

	hostState  map[string]string
	traceState map[string]string
}

// regCheck is a trace register write resolved to a host register.
type regCheck struct {
	rec   *tarmac.RegRecord
	kind  tarmac.RegKind
	index int
}

// Mismatch reports whether any finding has been recorded so far.
func (r *Record) Mismatch() bool {
	return r.mismatch
}

// MismatchOnPcOrOpcode reports whether the PC or opcode diverged.
func (r *Record) MismatchOnPcOrOpcode() bool {
	return r.mismatchOnPcOrOpcode
}

// Finalized reports whether the record has been counted and the exit policy
// applied. Records with a deferred check finalize when it runs.
func (r *Record) Finalized() bool {
	return r.finalized
}

// Trace returns the trace instruction record matched to this instruction, or
// nil if none was consumed.
func (r *Record) Trace() *tarmac.InstRecord {
	return r.trace
}

// Verify compares the retired instruction against the next instruction group
// of the trace. Mismatches are reported, not returned; the error is only set
// when the trace cannot be read. Only the first call on a record has any
// effect.
func (r *Record) Verify() error {
	s := r.s
	if r.verified || s.exited || s.state != Started {
		return nil
	}
	r.verified = true

	// only the last micro-op of a macro-op consumes the trace group
	switch r.inst.Micro {
	case Microop:
		s.macroopInProgress = true
		return nil
	case LastMicroop:
		s.macroopInProgress = false
	case NotMicroop:
		if s.macroopInProgress {
			s.macroopInProgress = false
			if err := s.discardGroup(); err != nil {
				if errors.Is(err, io.EOF) {
					s.endOfTrace()
					return nil
				}
				return s.fail(err)
			}
		}
	}

	trace, err := s.nextInstruction()
	if errors.Is(err, io.EOF) {
		s.endOfTrace()
		return nil
	}
	if err != nil {
		return s.fail(err)
	}
	r.trace = trace
	r.compareInst()

	s.pending.Reset()
	for {
		rec, err := s.reader.Peek()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.fail(err)
		}
		if rec.Kind == tarmac.KindInstruction {
			break
		}
		s.reader.Next()
		switch rec.Kind {
		case tarmac.KindRegister:
			if err := s.pending.Add(rec.Reg); err != nil {
				return s.fail(err)
			}
		case tarmac.KindMemory:
			r.checkMem(rec.Mem)
		}
	}

	now, deferred := r.resolveRegs()
	for _, c := range now {
		r.compareReg(c, false)
	}
	if len(deferred) > 0 {
		s.scheduleDeferred(r, deferred)
		return nil
	}
	r.finalize()
	return nil
}

func (r *Record) compareInst() {
	pc, opcode, _ := r.inst.attributed()
	t := r.trace
	if pc != t.PC {
		r.mismatchOnPcOrOpcode = true
		r.report(report.FindingPC, "pc", fmt.Sprintf("%#x", pc), fmt.Sprintf("%#x", t.PC), false)
	}
	if opcode != t.Opcode {
		r.mismatchOnPcOrOpcode = true
		r.report(report.FindingOpcode, "opcode", fmt.Sprintf("%#x", opcode), fmt.Sprintf("%#x", t.Opcode), false)
	}
	if r.inst.ISet != tarmac.ISetUnsupported && r.inst.ISet != t.ISet {
		r.mismatch = true
		r.report(report.FindingISet, "iset", r.inst.ISet.String(), t.ISet.String(), false)
	}
	if r.mismatchOnPcOrOpcode {
		r.mismatch = true
	}
}

// resolveRegs maps the pending register records to host registers and
// splits them into those compared now and those deferred until exception
// entry has settled.
func (r *Record) resolveRegs() (now, deferred []regCheck) {
	s := r.s
	for _, rec := range s.pending.Records() {
		c := regCheck{rec: rec, kind: rec.RegKind, index: rec.Index}
		late := false
		switch rec.RegKind {
		case tarmac.RegR:
			late = armreg.IsLateSettlingIntReg(rec.Index)
		case tarmac.RegMisc:
			misc, ok := s.miscRegs.Lookup(rec.Name)
			if !ok {
				s.warnSkippedReg(rec.Name, "unknown register name")
				continue
			}
			c.index = int(misc)
			late = armreg.IsLateSettling(misc)
		}
		if s.cfg.DeferAllRegisters || (late && r.inst.Faults) {
			deferred = append(deferred, c)
		} else {
			now = append(now, c)
		}
	}
	return now, deferred
}

// finalize counts the record and applies the exit policy.
func (r *Record) finalize() {
	if r.finalized {
		return
	}
	r.finalized = true
	s := r.s
	if s.cfg.StateDiff && len(r.traceState) > 0 && r.mismatch {
		diff, err := report.StateDiff(r.hostState, r.traceState, false)
		if err != nil {
			log.Warn(log.Comparator, "register state diff failed", "err", err)
		} else if diff != "" {
			s.collector.Note(diff)
		}
	}
	s.collector.EndInstruction(r.mismatch)
	if s.exited {
		return
	}
	pc, _, _ := r.inst.attributed()
	switch {
	case r.mismatchOnPcOrOpcode && (s.cfg.ExitOnDiff || s.cfg.ExitOnInsnDiff):
		s.exit(fmt.Sprintf("PC/opcode mismatch at %#x (seq %d)", pc, r.trace.Seq))
	case r.mismatch && s.cfg.ExitOnDiff:
		s.exit(fmt.Sprintf("mismatch at %#x (seq %d)", pc, r.trace.Seq))
	}
}

// report prints one finding, preceded by the instruction header the first
// time the record reports anything.
func (r *Record) report(kind report.FindingKind, field, host, trace string, deferred bool) {
	s := r.s
	pc, opcode, dis := r.inst.attributed()
	if !r.headerPrinted {
		r.headerPrinted = true
		if dis == "" {
			dis = disasm.Decode(opcode, r.inst.ISet)
		}
		traceDis := r.trace.Disasm
		if traceDis == "" {
			traceDis = disasm.Decode(r.trace.Opcode, r.trace.ISet)
		}
		s.collector.Header(
			report.Inst{Tick: r.when, PC: pc, Opcode: opcode, ISet: r.inst.ISet.String(), Disasm: dis},
			report.Inst{Tick: r.trace.Time, Seq: r.trace.Seq, PC: r.trace.PC, Opcode: r.trace.Opcode, ISet: r.trace.ISet.String(), Disasm: traceDis},
		)
	}
	tick := r.when
	if deferred {
		tick = s.host.Now()
	}
	s.collector.Diff(report.Mismatch{
		Tick:     tick,
		Seq:      r.trace.Seq,
		PC:       fmt.Sprintf("%#x", pc),
		Kind:     kind,
		Field:    field,
		Host:     host,
		Trace:    trace,
		Deferred: deferred,
	})
	log.Debug(log.Comparator, "mismatch", "seq", r.trace.Seq, "field", field, "host", host, "trace", trace)
}
