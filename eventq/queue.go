// Package eventq is a deterministic single-threaded discrete-event queue.
package eventq

import (
	"fmt"

	"github.com/emirpasic/gods/queues/priorityqueue"
)

// Tick is a point in simulated time.
type Tick = uint64

type event struct {
	when Tick
	seq  uint64
	fn   func()
}

// byTimeThenSeq orders events by time, then by scheduling order.
func byTimeThenSeq(a, b interface{}) int {
	ea, eb := a.(*event), b.(*event)
	switch {
	case ea.when < eb.when:
		return -1
	case ea.when > eb.when:
		return 1
	case ea.seq < eb.seq:
		return -1
	case ea.seq > eb.seq:
		return 1
	}
	return 0
}

// Queue runs scheduled callbacks in non-decreasing time order. Callbacks
// scheduled for the same tick run in the order they were scheduled.
type Queue struct {
	now     Tick
	nextSeq uint64
	pq      *priorityqueue.Queue

	exited     bool
	exitReason string
	exitTick   Tick
}

func New() *Queue {
	return &Queue{pq: priorityqueue.NewWith(byTimeThenSeq)}
}

// Now returns the current simulated time.
func (q *Queue) Now() Tick {
	return q.now
}

// Schedule posts fn to run at when. Scheduling in the past panics.
func (q *Queue) Schedule(when Tick, fn func()) {
	if when < q.now {
		panic(fmt.Sprintf("eventq: schedule at %d before now %d", when, q.now))
	}
	q.pq.Enqueue(&event{when: when, seq: q.nextSeq, fn: fn})
	q.nextSeq++
}

// Pending returns the number of events not yet run.
func (q *Queue) Pending() int {
	return q.pq.Size()
}

// Step runs the earliest event, advancing time to it. It returns false when
// the queue is empty or the simulation has exited.
func (q *Queue) Step() bool {
	if q.exited {
		return false
	}
	v, ok := q.pq.Dequeue()
	if !ok {
		return false
	}
	ev := v.(*event)
	q.now = ev.when
	ev.fn()
	return true
}

// RunUntil runs every event due at or before t, then sets the time to t.
func (q *Queue) RunUntil(t Tick) {
	for !q.exited {
		v, ok := q.pq.Peek()
		if !ok || v.(*event).when > t {
			break
		}
		q.Step()
	}
	if !q.exited && t > q.now {
		q.now = t
	}
}

// Drain runs events until the queue is empty or the simulation exits.
func (q *Queue) Drain() {
	for q.Step() {
	}
}

// ExitSimLoop stops the queue. Events still pending never run.
func (q *Queue) ExitSimLoop(reason string) {
	if q.exited {
		return
	}
	q.exited = true
	q.exitReason = reason
	q.exitTick = q.now
}

// Exited reports whether ExitSimLoop has been called.
func (q *Queue) Exited() bool {
	return q.exited
}

// ExitReason returns the reason passed to ExitSimLoop.
func (q *Queue) ExitReason() string {
	return q.exitReason
}

// ExitTick returns the time at which the simulation exited.
func (q *Queue) ExitTick() Tick {
	return q.exitTick
}
