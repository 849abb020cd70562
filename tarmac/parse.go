package tarmac

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/colorfulnotion/tarmac/armreg"
	"github.com/colorfulnotion/tarmac/tarmacerrors"
)

// ParseError reports a trace line that could not be decoded.
type ParseError struct {
	Line   int
	Text   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tarmac: line %d: %s: %q", e.Line, e.Reason, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (r *Reader) malformed(text, format string, args ...interface{}) error {
	return &ParseError{
		Line:   r.line,
		Text:   text,
		Reason: fmt.Sprintf(format, args...),
		Err:    tarmacerrors.ErrMalformedTrace,
	}
}

// parseLine decodes one non-blank line. ok is false for record types the
// verifier does not consume (exceptions, memory reads, events).
func (r *Reader) parseLine(text string) (rec Record, ok bool, err error) {
	fields := strings.Fields(text)
	col := 2
	if r.opts.CPUID {
		col = 3
	}
	if len(fields) <= col {
		return rec, false, r.malformed(text, "expected at least %d columns", col+1)
	}
	ts, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return rec, false, r.malformed(text, "bad timestamp %q", fields[0])
	}
	cpu := -1
	if r.opts.CPUID {
		tok := strings.ToLower(fields[2])
		if !strings.HasPrefix(tok, "cpu") {
			return rec, false, r.malformed(text, "missing cpu id")
		}
		if cpu, err = strconv.Atoi(tok[3:]); err != nil {
			return rec, false, r.malformed(text, "bad cpu id %q", fields[2])
		}
	}

	tag := fields[col]
	args := fields[col+1:]
	if !r.opts.CPUID && strings.HasPrefix(strings.ToLower(tag), "cpu") {
		return rec, false, r.malformed(text, "unexpected cpu id column")
	}
	switch {
	case len(tag) == 2 && tag[0] == 'I' && (tag[1] == 'T' || tag[1] == 'S'):
		inst, err := r.parseInst(text, tag, args)
		if err != nil {
			return rec, false, err
		}
		inst.Time = ts
		inst.CPU = cpu
		return instRecord(inst), true, nil
	case tag == "R":
		reg, err := r.parseReg(text, args)
		if err != nil {
			return rec, false, err
		}
		return regRecord(reg), true, nil
	case strings.HasPrefix(tag, "MW"):
		mem, err := r.parseMem(text, tag, args)
		if err != nil {
			return rec, false, err
		}
		return memRecord(mem), true, nil
	}
	return rec, false, nil
}

func (r *Reader) parseInst(text, tag string, args []string) (*InstRecord, error) {
	if len(args) < 5 {
		return nil, r.malformed(text, "instruction record needs seq, address, opcode, iset and mode")
	}
	seqTok := args[0]
	if len(seqTok) < 3 || seqTok[0] != '(' || seqTok[len(seqTok)-1] != ')' {
		return nil, r.malformed(text, "bad sequence number %q", seqTok)
	}
	seq, err := strconv.ParseUint(seqTok[1:len(seqTok)-1], 10, 64)
	if err != nil {
		return nil, r.malformed(text, "bad sequence number %q", seqTok)
	}
	pc, phys, _, err := parseAddr(args[1])
	if err != nil {
		return nil, r.malformed(text, "bad instruction address %q", args[1])
	}
	opcode, err := strconv.ParseUint(args[2], 16, 32)
	if err != nil {
		return nil, r.malformed(text, "bad opcode %q", args[2])
	}
	var iset ISetState
	switch args[3] {
	case "A":
		iset = ISetARM
	case "T":
		iset = ISetThumb
	case "O":
		iset = ISetA64
	default:
		return nil, r.malformed(text, "unknown instruction set %q", args[3])
	}
	inst := &InstRecord{
		Seq:    seq,
		PC:     pc,
		Phys:   phys,
		Opcode: uint32(opcode),
		ISet:   iset,
		Mode:   args[4],
		Taken:  tag[1] == 'T',
		Line:   r.line,
	}
	if i := strings.Index(text, " : "); i >= 0 {
		inst.Disasm = strings.TrimSpace(text[i+3:])
	}
	return inst, nil
}

func (r *Reader) parseReg(text string, args []string) (*RegRecord, error) {
	if len(args) < 2 {
		return nil, r.malformed(text, "register record needs a name and a value")
	}
	name := args[0]
	kind, index, err := classifyReg(name)
	if err != nil {
		return nil, r.malformed(text, "%v", err)
	}
	chunks, err := parseHexChunks(strings.Join(args[1:], ""))
	if err != nil {
		return nil, r.malformed(text, "bad register value: %v", err)
	}
	width := r.opts.RegWidth(kind)
	switch kind {
	case RegZ, RegP:
		// data beyond the configured vector length is ignored
		if len(chunks) > width {
			chunks = chunks[:width]
		}
	default:
		for _, c := range chunks[min(width, len(chunks)):] {
			if c != 0 {
				return nil, r.malformed(text, "value wider than %s register", kind)
			}
		}
		if len(chunks) > width {
			chunks = chunks[:width]
		}
	}
	if len(name) > ReprLen {
		name = name[:ReprLen]
	}
	return &RegRecord{
		Name:    name,
		RegKind: kind,
		Index:   index,
		Values:  chunks,
		Seq:     r.seq,
		Line:    r.line,
	}, nil
}

func (r *Reader) parseMem(text, tag string, args []string) (*MemRecord, error) {
	size, err := strconv.Atoi(tag[2:])
	if err != nil || size < 1 || size > MaxMemWriteSize {
		return nil, r.malformed(text, "bad memory write size %q", tag)
	}
	if len(args) < 2 {
		return nil, r.malformed(text, "memory record needs an address and a value")
	}
	addr, phys, flags, err := parseAddr(args[0])
	if err != nil {
		return nil, r.malformed(text, "bad memory address %q", args[0])
	}
	data, err := hexToLE(strings.ReplaceAll(args[1], "_", ""), size)
	if err != nil {
		return nil, r.malformed(text, "bad memory value: %v", err)
	}
	return &MemRecord{
		Addr:  addr,
		Phys:  phys,
		Size:  size,
		Data:  data,
		Flags: flags,
		Seq:   r.seq,
		Line:  r.line,
	}, nil
}

// parseAddr decodes "virt[:phys[_S|_NS]]".
func parseAddr(tok string) (virt, phys uint64, flags MemFlags, err error) {
	v, p, hasPhys := strings.Cut(tok, ":")
	if virt, err = strconv.ParseUint(v, 16, 64); err != nil {
		return 0, 0, 0, err
	}
	if !hasPhys {
		return virt, 0, 0, nil
	}
	flags |= MemHasPhys
	if base, sec, found := strings.Cut(p, "_"); found {
		p = base
		if strings.EqualFold(sec, "NS") {
			flags |= MemNonSecure
		}
	}
	if phys, err = strconv.ParseUint(p, 16, 64); err != nil {
		return 0, 0, 0, err
	}
	return virt, phys, flags, nil
}

// classifyReg maps a trace register name to its register file and index.
func classifyReg(name string) (RegKind, int, error) {
	lower := strings.ToLower(name)
	// numbered matches prefix followed only by decimal digits; banked is
	// set for names that may carry a "_<bank>" suffix.
	numbered := func(prefix string, banked bool) (int, bool) {
		if !strings.HasPrefix(lower, prefix) {
			return 0, false
		}
		rest := lower[len(prefix):]
		if banked {
			rest, _, _ = strings.Cut(rest, "_")
		}
		if rest == "" || strings.Trim(rest, "0123456789") != "" {
			return 0, false
		}
		n, err := strconv.Atoi(rest)
		return n, err == nil
	}

	if n, ok := numbered("sp_el", false); ok {
		if n > 3 {
			return 0, 0, fmt.Errorf("bad stack pointer %q", name)
		}
		return RegX, armreg.SPEL(n), nil
	}
	if n, ok := numbered("r", true); ok {
		if n >= armreg.RegsPerBank {
			return 0, 0, fmt.Errorf("bad integer register %q", name)
		}
		bank := armreg.BankUsr
		if _, suffix, found := strings.Cut(lower, "_"); found {
			b, known := armreg.ParseBank(suffix)
			if !known {
				return 0, 0, fmt.Errorf("unknown register bank %q", name)
			}
			bank = b
		}
		return RegR, armreg.IntReg(bank, n), nil
	}
	for _, f := range []struct {
		prefix string
		kind   RegKind
		limit  int
	}{
		{"x", RegX, 31},
		{"w", RegX, 31},
		{"s", RegS, 32},
		{"d", RegD, 32},
		{"q", RegQ, 32},
		{"z", RegZ, 32},
		{"p", RegP, 16},
	} {
		if n, ok := numbered(f.prefix, false); ok {
			if n >= f.limit {
				return 0, 0, fmt.Errorf("bad register %q", name)
			}
			return f.kind, n, nil
		}
	}
	return RegMisc, -1, nil
}

// parseHexChunks splits a hex string into 64-bit chunks, least significant
// chunk first.
func parseHexChunks(s string) ([]uint64, error) {
	s = strings.ReplaceAll(s, "_", "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	chunks := make([]uint64, 0, (len(s)+15)/16)
	for end := len(s); end > 0; end -= 16 {
		start := max(end-16, 0)
		v, err := strconv.ParseUint(s[start:end], 16, 64)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, v)
	}
	return chunks, nil
}

// hexToLE decodes a hex number into size little-endian bytes.
func hexToLE(s string, size int) ([]byte, error) {
	chunks, err := parseHexChunks(s)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	for i, c := range chunks {
		for b := 0; b < 8; b++ {
			pos := i*8 + b
			v := byte(c >> (8 * b))
			if pos >= size {
				if v != 0 {
					return nil, fmt.Errorf("value wider than %d bytes", size)
				}
				continue
			}
			out[pos] = v
		}
	}
	return out, nil
}
