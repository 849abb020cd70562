package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMismatch() Mismatch {
	return Mismatch{
		Tick:  1000,
		Seq:   1,
		PC:    "0x8000",
		Kind:  FindingRegister,
		Field: "r0",
		Host:  "0x0000000000000002",
		Trace: "0x0000000000000001",
	}
}

func TestCollectorPrintsHeaderAndDiff(t *testing.T) {
	var out bytes.Buffer
	c := NewCollector(&out)

	var seen []string
	c.AddHook(func(m *Mismatch) { seen = append(seen, m.Field) })

	c.Header(
		Inst{Tick: 1000, PC: 0x8000, Opcode: 0xe3a00002, ISet: "ARM (A32)", Disasm: "mov r0, #2"},
		Inst{Tick: 1000, Seq: 1, PC: 0x8000, Opcode: 0xe3a00001, ISet: "ARM (A32)", Disasm: "MOV r0,#1"},
	)
	c.Diff(sampleMismatch())
	c.EndInstruction(true)
	c.EndInstruction(false)

	text := out.String()
	assert.Contains(t, text, "Mismatch between host and TARMAC trace @ 1000 ticks")
	assert.Contains(t, text, "opcode=e3a00002")
	assert.Contains(t, text, "(seq 1)")
	assert.Contains(t, text, "diff> [r0] host: 0x0000000000000002, TARMAC: 0x0000000000000001")
	assert.Equal(t, []string{"r0"}, seen)

	st := c.Stats()
	assert.Equal(t, uint64(2), st.Instructions)
	assert.Equal(t, uint64(1), st.Mismatched)
	assert.Equal(t, uint64(1), st.Findings[FindingRegister])
	require.NotNil(t, st.First)
	assert.Equal(t, "r0", st.First.Field)
}

func TestCollectorSummary(t *testing.T) {
	c := NewCollector(nil)
	c.Diff(sampleMismatch())
	c.EndInstruction(true)
	c.SetExit("register mismatch")
	c.SetExit("ignored")

	s := c.Summary()
	assert.Contains(t, s, "verification summary")
	assert.Contains(t, s, "instructions: 1")
	assert.Contains(t, s, "register: 1")
	assert.Contains(t, s, "exit: register mismatch")
	assert.NotContains(t, s, "ignored")
}

func TestJSONLWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mismatches.jsonl")
	w, err := CreateJSONLWriter(path)
	require.NoError(t, err)

	c := NewCollector(nil)
	c.SetJSONL(w)
	c.Diff(sampleMismatch())
	m := sampleMismatch()
	m.Kind = FindingMemory
	m.Field = "mem 0xf000"
	c.Diff(m)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(&m), ErrWriterClosed)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var got []Mismatch
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec Mismatch
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		got = append(got, rec)
	}
	require.Len(t, got, 2)
	assert.Equal(t, FindingRegister, got[0].Kind)
	assert.Equal(t, "mem 0xf000", got[1].Field)
}

func TestStateDiff(t *testing.T) {
	same := map[string]string{"r0": "0x1"}
	out, err := StateDiff(same, same, false)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = StateDiff(map[string]string{"r0": "0x2", "r1": "0x5"}, map[string]string{"r0": "0x1", "r1": "0x5"}, false)
	require.NoError(t, err)
	assert.Contains(t, out, "r0")
	assert.Contains(t, out, "0x2")
}
