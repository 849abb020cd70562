package refhost

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/tarmac/armreg"
	"github.com/colorfulnotion/tarmac/eventq"
	"github.com/colorfulnotion/tarmac/report"
	"github.com/colorfulnotion/tarmac/tarmac"
	"github.com/colorfulnotion/tarmac/verifier"
)

const refTrace = `1000 clk IT (1) 00008000 e3a00001 A svc_ns : MOV      r0,#1
1000 clk R r0 00000001
2000 clk IT (2) 00008004 e58d0000 A svc_ns : STR      r0,[sp,#0]
2000 clk MW4 0000f000 00000001
3000 clk IT (3) 00008008 ef000000 A svc_ns : SVC      #0x0
3000 clk R cpsr 600001d3
3000 clk R r14_svc 0000800c
4000 clk IT (4) 00000008 e1a00000 A svc_ns : MOV      r0,r0
`

func replay(t *testing.T, ref, cand string, cfg verifier.Config) (*Result, *verifier.Session, *bytes.Buffer) {
	t.Helper()
	q := eventq.New()
	out := new(bytes.Buffer)
	s, err := verifier.NewSession(cfg, q,
		verifier.WithReader(tarmac.NewReader(strings.NewReader(ref), cfg.ReaderOptions())),
		verifier.WithCollector(report.NewCollector(out)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rp := New(tarmac.NewReader(strings.NewReader(cand), cfg.ReaderOptions()), q, s)
	res, err := rp.Run(context.Background())
	require.NoError(t, err)
	return res, s, out
}

func TestIdenticalTracesHaveNoMismatch(t *testing.T) {
	cfg := verifier.DefaultConfig()
	cfg.MemWrCheck = true
	cfg.ExitOnDiff = true
	res, s, out := replay(t, refTrace, refTrace, cfg)

	assert.Equal(t, uint64(4), res.Instructions)
	assert.False(t, res.Exited)
	st := s.Collector().Stats()
	assert.Equal(t, uint64(4), st.Instructions)
	assert.Zero(t, st.Mismatched)
	assert.Empty(t, out.String())
	assert.Zero(t, s.Outstanding())
}

func TestDivergentCandidate(t *testing.T) {
	cand := strings.Replace(refTrace, "1000 clk R r0 00000001", "1000 clk R r0 00000002", 1)
	cand = strings.Replace(cand, "2000 clk MW4 0000f000 00000001", "2000 clk MW4 0000f000 00000002", 1)

	cfg := verifier.DefaultConfig()
	cfg.MemWrCheck = true
	res, s, out := replay(t, refTrace, cand, cfg)
	assert.Equal(t, uint64(4), res.Instructions)
	st := s.Collector().Stats()
	assert.Equal(t, uint64(2), st.Mismatched)
	assert.Contains(t, out.String(), "diff> [r0]")
	assert.Contains(t, out.String(), "diff> [mem 0xf000]")

	cfg.ExitOnDiff = true
	res, _, _ = replay(t, refTrace, cand, cfg)
	assert.True(t, res.Exited)
	assert.Equal(t, uint64(1), res.Instructions)
}

func TestReplayStopsOnCancel(t *testing.T) {
	q := eventq.New()
	cfg := verifier.DefaultConfig()
	s, err := verifier.NewSession(cfg, q,
		verifier.WithReader(tarmac.NewReader(strings.NewReader(refTrace), cfg.ReaderOptions())),
		verifier.WithCollector(report.NewCollector(nil)))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(tarmac.NewReader(strings.NewReader(refTrace), tarmac.Options{}), q, s).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Instructions)
}

func TestMachine(t *testing.T) {
	m := NewMachine()
	assert.True(t, m.ApplyRegister(&tarmac.RegRecord{Name: "cpsr", RegKind: tarmac.RegMisc, Index: -1, Values: []uint64{0x1d3}}))
	assert.False(t, m.ApplyRegister(&tarmac.RegRecord{Name: "bogus", RegKind: tarmac.RegMisc, Index: -1, Values: []uint64{1}}))
	v, ok := m.ReadRegister(tarmac.RegMisc, int(armreg.MiscCPSR))
	require.True(t, ok)
	assert.Equal(t, []uint64{0x1d3}, v)

	m.Write(0x10, []byte{1, 2})
	data, ok := m.ReadMemNoEffect(0x0f, 4)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 1, 2, 0}, data)

	assert.True(t, raisesException("SVC      #0x0"))
	assert.True(t, raisesException("hvc #1"))
	assert.False(t, raisesException("MOV r0,r0"))
	assert.False(t, raisesException(""))
}
