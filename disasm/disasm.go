// Package disasm renders raw opcodes for mismatch reports.
package disasm

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/colorfulnotion/tarmac/tarmac"
)

// Decode disassembles opcode in the given instruction set. Encodings the
// decoders reject, and Thumb, fall back to a raw ".inst" directive.
func Decode(opcode uint32, iset tarmac.ISetState) string {
	var src [4]byte
	binary.LittleEndian.PutUint32(src[:], opcode)
	switch iset {
	case tarmac.ISetA64:
		if inst, err := arm64asm.Decode(src[:]); err == nil {
			return inst.String()
		}
	case tarmac.ISetARM:
		if inst, err := armasm.Decode(src[:], armasm.ModeARM); err == nil {
			return inst.String()
		}
	}
	return raw(opcode, iset)
}

func raw(opcode uint32, iset tarmac.ISetState) string {
	if iset == tarmac.ISetThumb && opcode <= 0xffff {
		return fmt.Sprintf(".inst.n 0x%04x", opcode)
	}
	return fmt.Sprintf(".inst 0x%08x", opcode)
}
