package verifier

import (
	"fmt"

	"github.com/colorfulnotion/tarmac/log"
)

// scheduleDeferred posts a one-shot check of regs for DeferredCheckDelay
// ticks from now. The closure holds only the register set, the record and
// the session; it cannot be cancelled, and becomes a no-op once the session
// has stopped the simulation.
func (s *Session) scheduleDeferred(r *Record, regs []regCheck) {
	when := s.host.Now() + s.cfg.DeferredCheckDelay
	s.outstanding++
	log.Trace(log.Comparator, "deferred check scheduled", "seq", r.trace.Seq, "regs", len(regs), "at", when)
	s.host.Schedule(when, func() {
		s.outstanding--
		if s.exited {
			log.Debug(log.Comparator, "deferred check dropped after exit", "seq", r.trace.Seq, "pc", fmt.Sprintf("%#x", r.trace.PC))
			return
		}
		for _, c := range regs {
			r.compareReg(c, true)
		}
		r.finalize()
	})
}
