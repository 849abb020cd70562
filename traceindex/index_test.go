package traceindex

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/tarmac/tarmac"
	"github.com/colorfulnotion/tarmac/tarmacerrors"
)

const loopTrace = `1 clk IT (1) 00001000 e3a00001 A svc_ns : MOV r0,#1
1 clk R r0 00000001
2 clk IT (2) 00001004 e2800001 A svc_ns : ADD r0,r0,#1
2 clk R r0 00000002
3 clk IT (3) 00001008 eafffffd A svc_ns : B {pc}-4
4 clk IT (4) 00001004 e2800001 A svc_ns : ADD r0,r0,#1
4 clk R r0 00000003
`

func writeTrace(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, "trace.tarmac")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestBuildAndLookup(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeTrace(t, dir, loopTrace)
	dbPath := filepath.Join(dir, "index")

	stats, err := Build(tracePath, dbPath, tarmac.Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.Instructions)
	assert.Equal(t, 3, stats.UniquePCs)

	ix, err := Open(dbPath, tracePath)
	require.NoError(t, err)
	defer ix.Close()

	n, err := ix.PCs()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	e, err := ix.Lookup(0x1004)
	require.NoError(t, err)
	// the first occurrence wins
	assert.Equal(t, uint64(2), e.Seq)
	assert.Equal(t, int64(strings.Index(loopTrace, "2 clk IT")), e.Offset)

	_, err = ix.Lookup(0xdead)
	assert.ErrorIs(t, err, tarmacerrors.ErrIndexNotFound)

	r, err := tarmac.Open(tracePath, tarmac.Options{})
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 3, e.Line)
	require.NoError(t, r.Seek(e.Offset, e.Line-1))
	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1004), rec.Inst.PC)
	assert.Equal(t, 3, rec.Inst.Line)
	assert.Equal(t, 3, r.Line())
}

func TestOpenRejectsStaleIndex(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeTrace(t, dir, loopTrace)
	dbPath := filepath.Join(dir, "index")
	_, err := Build(tracePath, dbPath, tarmac.Options{})
	require.NoError(t, err)

	writeTrace(t, dir, loopTrace+"5 clk IT (5) 00001008 eafffffd A svc_ns : B {pc}-4\n")
	_, err = Open(dbPath, tracePath)
	assert.ErrorIs(t, err, tarmacerrors.ErrIndexStale)
}

func TestBuildRejectsCompressedTrace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.tarmac.zst")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := Build(path, filepath.Join(dir, "index"), tarmac.Options{})
	assert.Error(t, err)
}
