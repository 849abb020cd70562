// Package traceindex keeps a persistent map from instruction PC to the byte
// offset of its first occurrence in an uncompressed TARMAC trace, so a
// session can seek straight to its start PC.
package traceindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/colorfulnotion/tarmac/log"
	"github.com/colorfulnotion/tarmac/tarmac"
	"github.com/colorfulnotion/tarmac/tarmacerrors"
)

const batchSize = 4096

var (
	keyTraceSize = []byte("m/size")
	keyInsts     = []byte("m/insts")
	prefixPC     = []byte("p/")
)

func pcKey(pc uint64) []byte {
	k := make([]byte, len(prefixPC)+8)
	copy(k, prefixPC)
	binary.BigEndian.PutUint64(k[len(prefixPC):], pc)
	return k
}

// Entry locates the first instruction record with a given PC. Line is the
// 1-based line number of that record.
type Entry struct {
	Offset int64
	Seq    uint64
	Line   int
}

const entrySize = 24

func (e Entry) encode() []byte {
	v := make([]byte, entrySize)
	binary.BigEndian.PutUint64(v[:8], uint64(e.Offset))
	binary.BigEndian.PutUint64(v[8:16], e.Seq)
	binary.BigEndian.PutUint64(v[16:], uint64(e.Line))
	return v
}

func decodeEntry(v []byte) (Entry, error) {
	if len(v) != entrySize {
		return Entry{}, fmt.Errorf("corrupt index entry of %d bytes", len(v))
	}
	return Entry{
		Offset: int64(binary.BigEndian.Uint64(v[:8])),
		Seq:    binary.BigEndian.Uint64(v[8:16]),
		Line:   int(binary.BigEndian.Uint64(v[16:])),
	}, nil
}

// BuildStats describes a freshly built index.
type BuildStats struct {
	Instructions uint64
	UniquePCs    int
	TraceSize    int64
}

// Build scans the trace at tracePath and writes its index to dbPath.
func Build(tracePath, dbPath string, opts tarmac.Options) (*BuildStats, error) {
	fi, err := os.Stat(tracePath)
	if err != nil {
		return nil, err
	}
	r, err := tarmac.Open(tracePath, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	// offsets are only meaningful for seekable input
	if err := r.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("cannot index %s: %w", tracePath, err)
	}

	st, err := openStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.close()

	stats := &BuildStats{TraceSize: fi.Size()}
	seen := make(map[uint64]struct{})
	batch := new(leveldb.Batch)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Kind != tarmac.KindInstruction {
			continue
		}
		stats.Instructions++
		if _, dup := seen[rec.Inst.PC]; dup {
			continue
		}
		seen[rec.Inst.PC] = struct{}{}
		batch.Put(pcKey(rec.Inst.PC), Entry{Offset: r.Offset(), Seq: rec.Inst.Seq, Line: rec.Inst.Line}.encode())
		if batch.Len() >= batchSize {
			if err := st.write(batch); err != nil {
				return nil, err
			}
			batch.Reset()
		}
	}
	if err := st.write(batch); err != nil {
		return nil, err
	}

	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(fi.Size()))
	if err := st.put(keyTraceSize, v[:]); err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint64(v[:], stats.Instructions)
	if err := st.put(keyInsts, v[:]); err != nil {
		return nil, err
	}
	stats.UniquePCs = len(seen)
	log.Info(log.Index, "trace index built", "trace", tracePath, "instructions", stats.Instructions, "pcs", stats.UniquePCs)
	return stats, nil
}

// Index is an opened trace index.
type Index struct {
	st *store
}

// Open opens the index at dbPath and checks it was built for tracePath.
func Open(dbPath, tracePath string) (*Index, error) {
	fi, err := os.Stat(tracePath)
	if err != nil {
		return nil, err
	}
	st, err := openStore(dbPath)
	if err != nil {
		return nil, err
	}
	v, ok, err := st.get(keyTraceSize)
	if err != nil {
		st.close()
		return nil, err
	}
	if !ok || len(v) != 8 || int64(binary.BigEndian.Uint64(v)) != fi.Size() {
		st.close()
		return nil, fmt.Errorf("%s for %s: %w", dbPath, tracePath, tarmacerrors.ErrIndexStale)
	}
	return &Index{st: st}, nil
}

// Lookup returns the first instruction record with the given PC.
func (ix *Index) Lookup(pc uint64) (Entry, error) {
	v, ok, err := ix.st.get(pcKey(pc))
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("pc %#x: %w", pc, tarmacerrors.ErrIndexNotFound)
	}
	return decodeEntry(v)
}

// PCs returns the number of distinct instruction addresses indexed.
func (ix *Index) PCs() (int, error) {
	return ix.st.count(prefixPC)
}

func (ix *Index) Close() error {
	return ix.st.close()
}
