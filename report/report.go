// Package report collects and prints the findings of a verification run.
package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/xlab/treeprint"
)

// FindingKind names the part of the architectural state that diverged.
type FindingKind string

const (
	FindingPC       FindingKind = "pc"
	FindingOpcode   FindingKind = "opcode"
	FindingISet     FindingKind = "iset"
	FindingRegister FindingKind = "register"
	FindingMemory   FindingKind = "memory"
)

var findingOrder = []FindingKind{FindingPC, FindingOpcode, FindingISet, FindingRegister, FindingMemory}

// Inst is one side of a mismatch header.
type Inst struct {
	Tick   uint64
	Seq    uint64
	PC     uint64
	Opcode uint32
	ISet   string
	Disasm string
}

// Mismatch is a single divergence between the host and the trace.
type Mismatch struct {
	Tick     uint64      `json:"tick"`
	Seq      uint64      `json:"seq"`
	PC       string      `json:"pc"`
	Kind     FindingKind `json:"kind"`
	Field    string      `json:"field"`
	Host     string      `json:"host"`
	Trace    string      `json:"trace"`
	Deferred bool        `json:"deferred,omitempty"`
}

func (m *Mismatch) String() string {
	return fmt.Sprintf("diff> [%s] host: %s, TARMAC: %s", m.Field, m.Host, m.Trace)
}

// Hook observes every mismatch as it is reported.
type Hook func(m *Mismatch)

// Stats is a snapshot of the counters kept by a Collector.
type Stats struct {
	Instructions uint64
	Mismatched   uint64
	Findings     map[FindingKind]uint64
	First        *Mismatch
	Exit         string
}

// Collector prints mismatch reports and keeps run totals. It is safe for
// concurrent use, although the verifier drives it from a single goroutine.
type Collector struct {
	mu    sync.Mutex
	out   io.Writer
	jsonl *JSONLWriter
	hooks []Hook

	instructions uint64
	mismatched   uint64
	findings     map[FindingKind]uint64
	first        *Mismatch
	exit         string
	writeErr     error
}

// NewCollector prints reports to out; a nil out discards them.
func NewCollector(out io.Writer) *Collector {
	if out == nil {
		out = io.Discard
	}
	return &Collector{out: out, findings: make(map[FindingKind]uint64)}
}

// SetJSONL mirrors every mismatch to w. The collector does not close w.
func (c *Collector) SetJSONL(w *JSONLWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jsonl = w
}

func (c *Collector) AddHook(h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// Header prints the host and trace views of the instruction a finding
// belongs to. Callers print it once per instruction, before its first Diff.
func (c *Collector) Header(host, trace Inst) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "Mismatch between host and TARMAC trace @ %d ticks\n", host.Tick)
	fmt.Fprintf(c.out, "  %-7s tick=%-10d pc=%#010x opcode=%08x iset=%-11s %s\n", "host:", host.Tick, host.PC, host.Opcode, host.ISet, host.Disasm)
	fmt.Fprintf(c.out, "  %-7s tick=%-10d pc=%#010x opcode=%08x iset=%-11s %s (seq %d)\n", "TARMAC:", trace.Tick, trace.PC, trace.Opcode, trace.ISet, trace.Disasm, trace.Seq)
}

// Diff reports one finding.
func (c *Collector) Diff(m Mismatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, m.String())
	c.findings[m.Kind]++
	if c.first == nil {
		first := m
		c.first = &first
	}
	if c.jsonl != nil {
		if err := c.jsonl.Write(&m); err != nil && c.writeErr == nil {
			c.writeErr = err
		}
	}
	for _, h := range c.hooks {
		h(&m)
	}
}

// Note prints free-form text, such as a register state diff.
func (c *Collector) Note(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, text)
}

// EndInstruction counts a finalized instruction.
func (c *Collector) EndInstruction(mismatch bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instructions++
	if mismatch {
		c.mismatched++
	}
}

// SetExit records why the run was stopped. Only the first reason is kept.
func (c *Collector) SetExit(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exit == "" {
		c.exit = reason
	}
}

// Err returns the first error hit while mirroring mismatches to JSONL.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}

func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	findings := make(map[FindingKind]uint64, len(c.findings))
	for k, v := range c.findings {
		findings[k] = v
	}
	return Stats{
		Instructions: c.instructions,
		Mismatched:   c.mismatched,
		Findings:     findings,
		First:        c.first,
		Exit:         c.exit,
	}
}

// Summary renders the run totals as a tree.
func (c *Collector) Summary() string {
	st := c.Stats()
	tree := treeprint.New()
	tree.SetValue("verification summary")
	tree.AddNode(fmt.Sprintf("instructions: %d", st.Instructions))
	tree.AddNode(fmt.Sprintf("mismatched: %d", st.Mismatched))
	if len(st.Findings) > 0 {
		branch := tree.AddBranch("findings")
		for _, k := range findingOrder {
			if n := st.Findings[k]; n > 0 {
				branch.AddNode(fmt.Sprintf("%s: %d", k, n))
			}
		}
	}
	if st.First != nil {
		tree.AddNode(fmt.Sprintf("first: seq %d pc %s [%s]", st.First.Seq, st.First.PC, st.First.Field))
	}
	if st.Exit != "" {
		tree.AddNode("exit: " + st.Exit)
	}
	return tree.String()
}
