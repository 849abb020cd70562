package tarmac

import "fmt"

// Kind classifies a decoded trace line.
type Kind int

const (
	KindNone Kind = iota
	KindInstruction
	KindRegister
	KindMemory
)

func (k Kind) String() string {
	switch k {
	case KindInstruction:
		return "instruction"
	case KindRegister:
		return "register"
	case KindMemory:
		return "memory"
	default:
		return "none"
	}
}

// ISetState is the instruction set an instruction was executed in.
type ISetState int

const (
	ISetUnsupported ISetState = iota
	ISetARM
	ISetThumb
	ISetA64
)

func (s ISetState) String() string {
	switch s {
	case ISetARM:
		return "ARM (A32)"
	case ISetThumb:
		return "Thumb (A32)"
	case ISetA64:
		return "A64"
	default:
		return "Unsupported"
	}
}

// RegKind is the register file a register record refers to.
type RegKind int

const (
	RegR RegKind = iota
	RegX
	RegS
	RegD
	RegQ
	RegZ
	RegP
	RegMisc
)

func (k RegKind) String() string {
	switch k {
	case RegR:
		return "R"
	case RegX:
		return "X"
	case RegS:
		return "S"
	case RegD:
		return "D"
	case RegQ:
		return "Q"
	case RegZ:
		return "Z"
	case RegP:
		return "P"
	default:
		return "MISC"
	}
}

// ReprLen bounds the textual register name kept in a RegRecord.
const ReprLen = 16

// InstRecord is an instruction line: "IT (seq) addr opcode iset mode : disasm".
type InstRecord struct {
	Time   uint64
	Seq    uint64
	PC     uint64
	Phys   uint64
	Opcode uint32
	ISet   ISetState
	Mode   string
	Taken  bool
	Disasm string
	CPU    int
	Line   int
}

// RegRecord is a register write. Values holds 64-bit chunks, least
// significant first. Index is -1 for misc registers, which are resolved by
// name.
type RegRecord struct {
	Name    string
	RegKind RegKind
	Index   int
	Values  []uint64
	Seq     uint64
	Line    int
}

// MemFlags describe how a memory write was performed.
type MemFlags uint8

const (
	MemHasPhys MemFlags = 1 << iota
	MemNonSecure
)

// MemRecord is a memory write ("MW<size>"). Data is little-endian.
type MemRecord struct {
	Addr  uint64
	Phys  uint64
	Size  int
	Data  []byte
	Flags MemFlags
	Seq   uint64
	Line  int
}

// Value returns the written data as an integer; sizes above 8 bytes are
// truncated.
func (m *MemRecord) Value() uint64 {
	var v uint64
	for i := len(m.Data) - 1; i >= 0; i-- {
		if i < 8 {
			v = v<<8 | uint64(m.Data[i])
		}
	}
	return v
}

// Record is one decoded trace line. Exactly one of Inst, Reg and Mem is set,
// matching Kind.
type Record struct {
	Kind Kind
	Inst *InstRecord
	Reg  *RegRecord
	Mem  *MemRecord
}

func instRecord(r *InstRecord) Record { return Record{Kind: KindInstruction, Inst: r} }
func regRecord(r *RegRecord) Record   { return Record{Kind: KindRegister, Reg: r} }
func memRecord(r *MemRecord) Record   { return Record{Kind: KindMemory, Mem: r} }

// Seq returns the sequence number of the instruction the record belongs to.
func (r Record) Seq() uint64 {
	switch r.Kind {
	case KindInstruction:
		return r.Inst.Seq
	case KindRegister:
		return r.Reg.Seq
	case KindMemory:
		return r.Mem.Seq
	}
	return 0
}

func (r Record) String() string {
	switch r.Kind {
	case KindInstruction:
		return fmt.Sprintf("I (%d) %#x %08x %s", r.Inst.Seq, r.Inst.PC, r.Inst.Opcode, r.Inst.Disasm)
	case KindRegister:
		return fmt.Sprintf("R %s %s", r.Reg.Name, FormatValues(r.Reg.Values))
	case KindMemory:
		return fmt.Sprintf("MW%d %#x %x", r.Mem.Size, r.Mem.Addr, r.Mem.Value())
	}
	return "none"
}

// FormatValues renders register chunks most significant first, 16 hex
// digits per chunk.
func FormatValues(values []uint64) string {
	if len(values) == 0 {
		return "0"
	}
	s := ""
	for i := len(values) - 1; i >= 0; i-- {
		s += fmt.Sprintf("%016x", values[i])
	}
	return s
}
