package refhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/colorfulnotion/tarmac/eventq"
	"github.com/colorfulnotion/tarmac/log"
	"github.com/colorfulnotion/tarmac/tarmac"
	"github.com/colorfulnotion/tarmac/verifier"
)

// DefaultTicksPerInst spaces retired instructions far enough apart for the
// default deferred check delay to fire before the next one.
const DefaultTicksPerInst = 500

// Result summarizes a replay.
type Result struct {
	Instructions uint64
	EndTick      eventq.Tick
	Exited       bool
	ExitReason   string
}

// Replayer retires the instructions of a candidate trace, in order, into a
// verification session.
type Replayer struct {
	candidate *tarmac.Reader
	queue     *eventq.Queue
	session   *verifier.Session
	machine   *Machine

	TicksPerInst eventq.Tick
}

// New returns a replayer. The session must have been created with queue as
// its host.
func New(candidate *tarmac.Reader, queue *eventq.Queue, session *verifier.Session) *Replayer {
	return &Replayer{
		candidate:    candidate,
		queue:        queue,
		session:      session,
		machine:      NewMachine(),
		TicksPerInst: DefaultTicksPerInst,
	}
}

func (r *Replayer) Machine() *Machine {
	return r.machine
}

// Run replays until the candidate trace ends, the session stops the
// simulation, or ctx is cancelled. Deferred checks still due at the end of
// the candidate trace are run before returning.
func (r *Replayer) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	for !r.queue.Exited() {
		if err := ctx.Err(); err != nil {
			return r.finish(res), err
		}
		inst, err := r.nextGroup()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.finish(res), fmt.Errorf("candidate trace: %w", err)
		}

		retired := verifier.RetiredInst{
			PC:     inst.PC,
			Opcode: inst.Opcode,
			ISet:   inst.ISet,
			Disasm: inst.Disasm,
			Faults: raisesException(inst.Disasm),
		}
		if rec := r.session.InstRecord(r.machine, retired); rec != nil {
			if err := rec.Verify(); err != nil {
				return r.finish(res), err
			}
		}
		res.Instructions++
		if res.Instructions%100000 == 0 {
			log.Debug(log.RefHost, "replay progress", "instructions", res.Instructions, "tick", r.queue.Now())
		}
		r.queue.RunUntil(r.queue.Now() + r.TicksPerInst)
	}
	r.queue.Drain()
	return r.finish(res), nil
}

func (r *Replayer) finish(res *Result) *Result {
	res.EndTick = r.queue.Now()
	res.Exited = r.queue.Exited()
	res.ExitReason = r.queue.ExitReason()
	log.Info(log.RefHost, "replay finished", "instructions", res.Instructions, "tick", res.EndTick, "exited", res.Exited)
	return res
}

// nextGroup reads the next candidate instruction and applies the register
// and memory writes that follow it.
func (r *Replayer) nextGroup() (*tarmac.InstRecord, error) {
	var inst *tarmac.InstRecord
	for inst == nil {
		rec, err := r.candidate.Next()
		if err != nil {
			return nil, err
		}
		if rec.Kind == tarmac.KindInstruction {
			inst = rec.Inst
		}
	}
	for {
		rec, err := r.candidate.Peek()
		if errors.Is(err, io.EOF) {
			return inst, nil
		}
		if err != nil {
			return nil, err
		}
		if rec.Kind == tarmac.KindInstruction {
			return inst, nil
		}
		r.candidate.Next()
		switch rec.Kind {
		case tarmac.KindRegister:
			if !r.machine.ApplyRegister(rec.Reg) {
				log.Trace(log.RefHost, "unknown register in candidate", "name", rec.Reg.Name)
			}
		case tarmac.KindMemory:
			r.machine.ApplyMemory(rec.Mem)
		}
	}
}

// raisesException reports whether a disassembled instruction is an
// exception-generating call.
func raisesException(disasm string) bool {
	fields := strings.Fields(disasm)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SVC", "SWI", "HVC", "SMC":
		return true
	}
	return false
}
