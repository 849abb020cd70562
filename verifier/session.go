// Package verifier checks the instructions retired by a simulator against a
// reference TARMAC trace.
package verifier

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/colorfulnotion/tarmac/armreg"
	"github.com/colorfulnotion/tarmac/log"
	"github.com/colorfulnotion/tarmac/report"
	"github.com/colorfulnotion/tarmac/tarmac"
	"github.com/colorfulnotion/tarmac/tarmacerrors"
	"github.com/colorfulnotion/tarmac/traceindex"
)

// State is the verification state of a session.
type State int

const (
	NotStarted State = iota
	Started
	Closed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Started:
		return "started"
	default:
		return "closed"
	}
}

// Option customizes a Session.
type Option func(*Session)

// WithReader verifies against r instead of opening Config.TracePath. The
// session takes ownership of r.
func WithReader(r *tarmac.Reader) Option {
	return func(s *Session) { s.reader = r }
}

// WithCollector sends reports to c instead of stdout.
func WithCollector(c *report.Collector) Option {
	return func(s *Session) { s.collector = c }
}

// Session owns a trace reader and decides, for every retired instruction,
// whether and how it is verified. It is driven from the host's single event
// loop and is not safe for concurrent use.
type Session struct {
	cfg       Config
	host      Host
	reader    *tarmac.Reader
	opts      tarmac.Options
	collector *report.Collector
	miscRegs  armreg.MiscRegMap

	state      State
	startFound bool
	exited     bool
	err        error

	macroopInProgress bool
	pending           tarmac.PendingRegisterList
	outstanding       int
	warnedRegs        map[string]bool
}

// NewSession validates cfg and positions the trace at cfg.StartPC. A
// conflicting configuration is rejected before the trace is opened.
func NewSession(cfg Config, host Host, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:        cfg,
		host:       host,
		opts:       cfg.ReaderOptions(),
		miscRegs:   armreg.MiscRegs(),
		warnedRegs: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.collector == nil {
		s.collector = report.NewCollector(os.Stdout)
	}
	if s.reader == nil {
		if cfg.TracePath == "" {
			return nil, tarmacerrors.ErrMissingTracePath
		}
		r, err := tarmac.Open(cfg.TracePath, s.opts)
		if err != nil {
			return nil, err
		}
		s.reader = r
	} else {
		s.opts = s.reader.Options()
	}

	if cfg.StartPC == 0 {
		s.state = Started
		s.startFound = true
		log.Info(log.Session, "verification started", "trace", cfg.TracePath)
		return s, nil
	}
	found, err := s.skipToStart()
	if err != nil {
		s.reader.Close()
		return nil, err
	}
	if !found {
		// the host can never reach a start PC the trace lacks
		log.Warn(log.Session, "start pc not in trace, verification disabled", "pc", fmt.Sprintf("%#x", cfg.StartPC))
		s.reader.Close()
		return s, nil
	}
	s.startFound = true
	return s, nil
}

func (s *Session) skipToStart() (bool, error) {
	pc := s.cfg.StartPC
	if s.cfg.IndexPath != "" && s.cfg.TracePath != "" {
		found, err := s.seekWithIndex(pc)
		if err == nil {
			return found, nil
		}
		log.Warn(log.Index, "trace index unusable, scanning", "index", s.cfg.IndexPath, "err", err)
	}
	return s.reader.SkipToPC(pc)
}

func (s *Session) seekWithIndex(pc uint64) (bool, error) {
	ix, err := traceindex.Open(s.cfg.IndexPath, s.cfg.TracePath)
	if err != nil {
		return false, err
	}
	defer ix.Close()
	e, err := ix.Lookup(pc)
	if errors.Is(err, tarmacerrors.ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.reader.Seek(e.Offset, e.Line-1); err != nil {
		return false, err
	}
	log.Debug(log.Index, "seeked to start pc", "pc", fmt.Sprintf("%#x", pc), "seq", e.Seq, "offset", e.Offset, "line", e.Line)
	return s.reader.SkipToPC(pc)
}

// State returns the current verification state.
func (s *Session) State() State {
	return s.state
}

// Outstanding returns the number of deferred checks not yet run.
func (s *Session) Outstanding() int {
	return s.outstanding
}

// Exited reports whether the session stopped the simulation.
func (s *Session) Exited() bool {
	return s.exited
}

// Err returns the error that closed the session, if any.
func (s *Session) Err() error {
	return s.err
}

// Collector returns the report collector findings are sent to.
func (s *Session) Collector() *report.Collector {
	return s.collector
}

// Summary renders the run totals kept by the collector.
func (s *Session) Summary() string {
	return s.collector.Summary()
}

// InstRecord returns the verification record for a retired instruction, or
// nil when verification is not active.
func (s *Session) InstRecord(tc ThreadContext, inst RetiredInst) *Record {
	if s.exited || s.state == Closed {
		return nil
	}
	if s.state == NotStarted {
		if !s.startFound || inst.PC != s.cfg.StartPC {
			return nil
		}
		s.state = Started
		log.Info(log.Session, "verification started", "pc", fmt.Sprintf("%#x", inst.PC), "tick", s.host.Now())
	}
	return &Record{
		s:    s,
		tc:   tc,
		inst: inst,
		when: s.host.Now(),
	}
}

// Close releases the trace. Deferred checks already scheduled still run.
func (s *Session) Close() error {
	if s.state == Closed {
		return nil
	}
	s.state = Closed
	return s.reader.Close()
}

// endOfTrace closes the session once the reference data runs out. It is not
// an error for the host to keep running.
func (s *Session) endOfTrace() {
	log.Info(log.Session, "end of trace, verification stopped", "line", s.reader.Line(), "tick", s.host.Now())
	s.Close()
}

// fail closes the session on a trace error.
func (s *Session) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	log.Error(log.Session, "verification aborted", "err", err)
	s.Close()
	return err
}

func (s *Session) exit(reason string) {
	if s.exited {
		return
	}
	s.exited = true
	s.collector.SetExit(reason)
	log.Warn(log.Session, "stopping simulation", "reason", reason, "tick", s.host.Now())
	s.host.ExitSimLoop(reason)
}

// nextInstruction consumes records up to and including the next instruction
// record. Register and memory records found first have no instruction to
// belong to and are dropped.
func (s *Session) nextInstruction() (*tarmac.InstRecord, error) {
	for {
		rec, err := s.reader.Next()
		if err != nil {
			return nil, err
		}
		if rec.Kind == tarmac.KindInstruction {
			return rec.Inst, nil
		}
		log.Debug(log.Comparator, "dropping record without instruction", "record", rec.String())
	}
}

// discardGroup drops the next instruction record and everything under it.
func (s *Session) discardGroup() error {
	inst, err := s.nextInstruction()
	if err != nil {
		return err
	}
	for {
		rec, err := s.reader.Peek()
		if errors.Is(err, io.EOF) || (err == nil && rec.Kind == tarmac.KindInstruction) {
			break
		}
		if err != nil {
			return err
		}
		s.reader.Next()
	}
	log.Warn(log.Comparator, "macro-op abandoned, skipped its trace group", "seq", inst.Seq, "pc", fmt.Sprintf("%#x", inst.PC))
	return nil
}

// warnSkippedReg warns once per register name that it cannot be checked.
func (s *Session) warnSkippedReg(name, why string) {
	if s.warnedRegs[name] {
		return
	}
	s.warnedRegs[name] = true
	log.Warn(log.Comparator, "register not checked", "name", name, "reason", why)
}
