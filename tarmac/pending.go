package tarmac

import (
	"fmt"

	"github.com/colorfulnotion/tarmac/tarmacerrors"
)

// MaxPendingRegs bounds the register records collected for one instruction.
const MaxPendingRegs = 64

// PendingRegisterList holds the register records of the instruction under
// verification, in trace order.
type PendingRegisterList struct {
	regs []*RegRecord
}

// Add appends a record. Overflow means the trace is malformed.
func (l *PendingRegisterList) Add(r *RegRecord) error {
	if len(l.regs) >= MaxPendingRegs {
		return fmt.Errorf("instruction seq %d line %d: %w", r.Seq, r.Line, tarmacerrors.ErrTooManyRegisterWrites)
	}
	l.regs = append(l.regs, r)
	return nil
}

func (l *PendingRegisterList) Records() []*RegRecord {
	return l.regs
}

func (l *PendingRegisterList) Len() int {
	return len(l.regs)
}

// Reset empties the list for the next instruction.
func (l *PendingRegisterList) Reset() {
	clear(l.regs)
	l.regs = l.regs[:0]
}
