package verifier

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/colorfulnotion/tarmac/report"
	"github.com/colorfulnotion/tarmac/tarmac"
)

// compareReg reads a register from the live thread context and compares it
// with the trace value at the register's natural width.
func (r *Record) compareReg(c regCheck, deferred bool) {
	s := r.s
	host, ok := r.tc.ReadRegister(c.kind, c.index)
	if !ok {
		s.warnSkippedReg(c.rec.Name, "host does not model it")
		return
	}
	width := s.opts.RegWidth(c.kind)
	mask := naturalMask(c)
	want := normalize(c.rec.Values, width, mask)
	got := normalize(host, width, mask)

	hostStr, traceStr := "0x"+tarmac.FormatValues(got), "0x"+tarmac.FormatValues(want)
	if s.cfg.StateDiff {
		if r.hostState == nil {
			r.hostState = make(map[string]string)
			r.traceState = make(map[string]string)
		}
		r.hostState[c.rec.Name] = hostStr
		r.traceState[c.rec.Name] = traceStr
	}
	for i := range want {
		if want[i] != got[i] {
			r.mismatch = true
			r.report(report.FindingRegister, c.rec.Name, hostStr, traceStr, deferred)
			return
		}
	}
}

// naturalMask returns the mask applied to the low chunk: 32-bit registers
// ignore whatever the host keeps in the upper half.
func naturalMask(c regCheck) uint64 {
	switch c.kind {
	case tarmac.RegR, tarmac.RegS:
		return 0xffffffff
	case tarmac.RegX:
		if strings.HasPrefix(strings.ToLower(c.rec.Name), "w") {
			return 0xffffffff
		}
	}
	return ^uint64(0)
}

// normalize pads or truncates v to width chunks. Missing chunks read as zero.
func normalize(v []uint64, width int, mask uint64) []uint64 {
	out := make([]uint64, width)
	copy(out, v)
	if width > 0 {
		out[0] &= mask
	}
	return out
}

// checkMem compares a traced memory write with host memory, unless the check
// is disabled, the address is ignored, or the host cannot read it.
func (r *Record) checkMem(m *tarmac.MemRecord) {
	s := r.s
	if !s.cfg.MemWrCheck || s.cfg.ignoredAddr(m.Addr) {
		return
	}
	data, ok := r.tc.ReadMemNoEffect(m.Addr, m.Size)
	if !ok {
		return
	}
	if bytes.Equal(data, m.Data) {
		return
	}
	r.mismatch = true
	r.report(report.FindingMemory, fmt.Sprintf("mem %#x", m.Addr), leHex(data), leHex(m.Data), false)
}

// leHex renders little-endian bytes as a single hex number.
func leHex(b []byte) string {
	var sb strings.Builder
	sb.WriteString("0x")
	for i := len(b) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02x", b[i])
	}
	return sb.String()
}
