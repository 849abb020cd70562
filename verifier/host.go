package verifier

import "github.com/colorfulnotion/tarmac/tarmac"

// Tick is a point in simulated time.
type Tick = uint64

// ThreadContext gives side-effect free access to the architectural state of
// the hardware thread that retired an instruction.
type ThreadContext interface {
	// ReadRegister returns the value of a register as 64-bit chunks, least
	// significant first. Misc registers are indexed by armreg.MiscReg. ok is
	// false when the host does not model the register.
	ReadRegister(kind tarmac.RegKind, index int) (value []uint64, ok bool)
	// ReadMemNoEffect reads memory without updating caches or statistics. ok
	// is false when the access faults and should be ignored.
	ReadMemNoEffect(addr uint64, size int) (data []byte, ok bool)
}

// Host is the event kernel of the simulator being verified.
type Host interface {
	Now() Tick
	// Schedule runs fn at simulated time when. Callbacks for equal times run
	// in scheduling order.
	Schedule(when Tick, fn func())
	ExitSimLoop(reason string)
}

// MicroKind says where an instruction sits in a macro-op.
type MicroKind int

const (
	NotMicroop MicroKind = iota
	Microop
	LastMicroop
)

func (k MicroKind) String() string {
	switch k {
	case Microop:
		return "microop"
	case LastMicroop:
		return "last-microop"
	default:
		return "instruction"
	}
}

// MacroInst is the architectural instruction a micro-op belongs to.
type MacroInst struct {
	PC     uint64
	Opcode uint32
	Disasm string
}

// RetiredInst describes an instruction the host has just retired.
type RetiredInst struct {
	PC     uint64
	Opcode uint32
	ISet   tarmac.ISetState
	Disasm string
	Micro  MicroKind
	Macro  *MacroInst
	// Faults is set when the instruction raised an exception, so exception
	// entry registers settle after retirement.
	Faults bool
}

// attributed returns the PC, opcode and disassembly mismatches are reported
// against.
func (i *RetiredInst) attributed() (uint64, uint32, string) {
	if i.Macro != nil {
		return i.Macro.PC, i.Macro.Opcode, i.Macro.Disasm
	}
	return i.PC, i.Opcode, i.Disasm
}
