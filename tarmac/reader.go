// Package tarmac decodes TARMAC instruction traces into typed records.
package tarmac

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/colorfulnotion/tarmac/log"
	"github.com/colorfulnotion/tarmac/tarmacerrors"
)

const (
	// MaxLineLength is the longest accepted trace line, excluding the newline.
	MaxLineLength = 1024
	// MaxMemWriteSize is the widest accepted memory write, in bytes.
	MaxMemWriteSize = 64
	// DefaultMaxVectorLength is the SVE vector length limit in quadwords (2048 bits).
	DefaultMaxVectorLength = 16
)

// Options control how trace lines are decoded.
type Options struct {
	// CPUID is set when every line carries a "cpu<N>" column.
	CPUID bool
	// MaxVectorLength is the SVE vector length limit in quadwords.
	MaxVectorLength int
}

func (o Options) vectorLength() int {
	if o.MaxVectorLength <= 0 {
		return DefaultMaxVectorLength
	}
	return o.MaxVectorLength
}

// RegWidth returns the number of 64-bit chunks compared for a register kind.
func (o Options) RegWidth(kind RegKind) int {
	switch kind {
	case RegQ:
		return 2
	case RegZ:
		return o.vectorLength() * 2
	case RegP:
		// predicates hold one bit per vector byte
		return (o.vectorLength() + 3) / 4
	default:
		return 1
	}
}

// Reader reads a TARMAC trace one record at a time, with a single record of
// lookahead. It is not safe for concurrent use.
type Reader struct {
	opts Options

	br      *bufio.Reader
	file    *os.File // set when the input is an uncompressed file
	closers []io.Closer

	offset int64 // byte offset of the next unread line
	line   int
	seq    uint64 // sequence number of the last instruction decoded

	peeked     *Record
	peekErr    error
	peekOffset int64
	lastKind   Kind
	lastOffset int64

	closed bool
}

// NewReader reads a trace from src. The caller keeps ownership of src.
func NewReader(src io.Reader, opts Options) *Reader {
	return &Reader{
		opts: opts,
		br:   bufio.NewReaderSize(src, 64*1024),
	}
}

// Open opens a trace file. Files ending in .gz or .zst are decompressed on the
// fly; only plain files support Seek.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var src io.Reader = f
	closers := []io.Closer{f}
	plain := false
	switch {
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open gzip trace %s: %w", path, err)
		}
		src = gr
		closers = append([]io.Closer{gr}, closers...)
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open zstd trace %s: %w", path, err)
		}
		rc := dec.IOReadCloser()
		src = rc
		closers = append([]io.Closer{rc}, closers...)
	default:
		plain = true
	}
	r := NewReader(src, opts)
	r.closers = closers
	if plain {
		r.file = f
	}
	log.Debug(log.TraceReader, "opened trace", "path", path, "cpuid", opts.CPUID)
	return r, nil
}

// Options returns the decoding options.
func (r *Reader) Options() Options {
	return r.opts
}

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int {
	return r.line
}

// Offset returns the byte offset of the start of the most recently returned
// record.
func (r *Reader) Offset() int64 {
	return r.lastOffset
}

// LastKind returns the kind of the most recently returned record.
func (r *Reader) LastKind() Kind {
	return r.lastKind
}

// Next returns the next record, or io.EOF once the trace is exhausted.
func (r *Reader) Next() (Record, error) {
	if r.peeked != nil || r.peekErr != nil {
		rec, err := r.takePeek()
		if err == nil {
			r.lastKind = rec.Kind
			r.lastOffset = r.peekOffset
		}
		return rec, err
	}
	rec, off, err := r.read()
	if err != nil {
		return Record{}, err
	}
	r.lastKind = rec.Kind
	r.lastOffset = off
	return rec, nil
}

// Peek returns the next record without consuming it.
func (r *Reader) Peek() (Record, error) {
	if r.peeked == nil && r.peekErr == nil {
		rec, off, err := r.read()
		if err != nil {
			r.peekErr = err
		} else {
			r.peeked = &rec
			r.peekOffset = off
		}
	}
	if r.peekErr != nil {
		return Record{}, r.peekErr
	}
	return *r.peeked, nil
}

func (r *Reader) takePeek() (Record, error) {
	if err := r.peekErr; err != nil {
		// EOF stays sticky; parse errors are reported once per peek
		if !errors.Is(err, io.EOF) {
			r.peekErr = nil
		}
		return Record{}, err
	}
	rec := *r.peeked
	r.peeked = nil
	return rec, nil
}

// SkipToPC discards records until the next instruction record has the given
// PC. That record is left unconsumed. found is false at end of trace.
func (r *Reader) SkipToPC(pc uint64) (found bool, err error) {
	skipped := 0
	for {
		rec, err := r.Peek()
		if errors.Is(err, io.EOF) {
			log.Debug(log.TraceReader, "start pc not found", "pc", fmt.Sprintf("%#x", pc), "skipped", skipped)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if rec.Kind == KindInstruction && rec.Inst.PC == pc {
			log.Debug(log.TraceReader, "reached start pc", "pc", fmt.Sprintf("%#x", pc), "seq", rec.Inst.Seq, "skipped", skipped)
			return true, nil
		}
		if _, err := r.Next(); err != nil {
			return false, err
		}
		skipped++
	}
}

// Seek repositions the reader at a byte offset previously returned by
// Offset. line is the number of lines before that offset, so Line and
// parse errors keep counting from the top of the file. Only uncompressed
// trace files are seekable.
func (r *Reader) Seek(offset int64, line int) error {
	if r.closed {
		return tarmacerrors.ErrReaderClosed
	}
	if r.file == nil {
		return tarmacerrors.ErrSeekUnsupported
	}
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	r.br.Reset(r.file)
	r.offset = offset
	r.line = line
	r.peeked = nil
	r.peekErr = nil
	r.lastKind = KindNone
	return nil
}

// Close releases the trace file. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.peeked = nil
	r.peekErr = io.EOF
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// read decodes lines until one yields a record the verifier consumes.
func (r *Reader) read() (Record, int64, error) {
	if r.closed {
		return Record{}, 0, io.EOF
	}
	for {
		text, off, err := r.readLine()
		if err != nil {
			return Record{}, 0, err
		}
		rec, ok, err := r.parseLine(text)
		if err != nil {
			return Record{}, 0, err
		}
		if !ok {
			log.Trace(log.TraceReader, "ignored line", "line", r.line)
			continue
		}
		if rec.Kind == KindInstruction {
			r.seq = rec.Inst.Seq
		}
		return rec, off, nil
	}
}

// readLine returns the next non-blank line and its starting offset.
func (r *Reader) readLine() (string, int64, error) {
	for {
		start := r.offset
		raw, err := r.br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			r.line++
			return "", 0, &ParseError{Line: r.line, Text: string(raw[:64]) + "...", Reason: "line too long", Err: tarmacerrors.ErrLineTooLong}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", 0, err
		}
		if len(raw) == 0 {
			return "", 0, io.EOF
		}
		r.offset += int64(len(raw))
		r.line++
		line := bytes.TrimRight(raw, "\r\n")
		if len(line) > MaxLineLength {
			return "", 0, &ParseError{Line: r.line, Text: string(line[:64]) + "...", Reason: "line too long", Err: tarmacerrors.ErrLineTooLong}
		}
		if len(bytes.TrimSpace(line)) == 0 {
			if errors.Is(err, io.EOF) {
				return "", 0, io.EOF
			}
			continue
		}
		return string(line), start, nil
	}
}
