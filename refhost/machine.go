// Package refhost drives a verifier.Session from a second TARMAC trace, so
// two traces of the same program can be diffed with the full verifier.
package refhost

import (
	"github.com/colorfulnotion/tarmac/armreg"
	"github.com/colorfulnotion/tarmac/tarmac"
)

type regKey struct {
	kind  tarmac.RegKind
	index int
}

// Machine is the architectural state rebuilt from a trace: registers keyed
// by file and index, and sparse byte-addressed memory. It implements
// verifier.ThreadContext.
type Machine struct {
	regs map[regKey][]uint64
	mem  map[uint64]byte
	misc armreg.MiscRegMap
}

func NewMachine() *Machine {
	return &Machine{
		regs: make(map[regKey][]uint64),
		mem:  make(map[uint64]byte),
		misc: armreg.MiscRegs(),
	}
}

// SetRegister stores a register value, least significant chunk first.
func (m *Machine) SetRegister(kind tarmac.RegKind, index int, value []uint64) {
	m.regs[regKey{kind, index}] = append([]uint64(nil), value...)
}

// ApplyRegister stores a traced register write. It returns false for misc
// register names the machine cannot resolve.
func (m *Machine) ApplyRegister(rec *tarmac.RegRecord) bool {
	index := rec.Index
	if rec.RegKind == tarmac.RegMisc {
		r, ok := m.misc.Lookup(rec.Name)
		if !ok {
			return false
		}
		index = int(r)
	}
	m.SetRegister(rec.RegKind, index, rec.Values)
	return true
}

// ApplyMemory stores a traced memory write.
func (m *Machine) ApplyMemory(rec *tarmac.MemRecord) {
	m.Write(rec.Addr, rec.Data)
}

func (m *Machine) Write(addr uint64, data []byte) {
	for i, b := range data {
		m.mem[addr+uint64(i)] = b
	}
}

// ReadRegister returns zero for registers never written.
func (m *Machine) ReadRegister(kind tarmac.RegKind, index int) ([]uint64, bool) {
	if v, ok := m.regs[regKey{kind, index}]; ok {
		return v, true
	}
	return []uint64{0}, true
}

// ReadMemNoEffect returns zero for bytes never written.
func (m *Machine) ReadMemNoEffect(addr uint64, size int) ([]byte, bool) {
	out := make([]byte, size)
	for i := range out {
		out[i] = m.mem[addr+uint64(i)]
	}
	return out, true
}
