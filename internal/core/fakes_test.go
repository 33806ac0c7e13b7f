package core

import (
	"errors"
	"io"
	"time"

	"github.com/mikla-tf/janus-remap/internal/clock"
)

var errWriteFailed = errors.New("sink: write failed")

// scriptedSource replays a fixed timeline of events against a Fake
// clock: each Next call advances the clock to either the next
// scripted event (if it falls within the requested timeout) or to
// now+timeout (a plain readiness timeout), exactly mirroring how a
// real poll-with-deadline would behave against a recorded capture.
type scriptedSource struct {
	clk    *clock.Fake
	events []scheduledEvent
	idx    int
}

type scheduledEvent struct {
	at time.Duration
	ev Event
}

func (s *scriptedSource) Next(timeout time.Duration) (Event, bool, error) {
	if s.idx >= len(s.events) {
		return Event{}, false, io.EOF
	}
	next := s.events[s.idx]
	now := s.clk.Elapsed()
	wait := next.at - now

	if timeout >= 0 && timeout < wait {
		s.clk.Advance(timeout)
		return Event{}, false, nil
	}

	s.clk.Advance(wait)
	s.idx++
	return next.ev, true, nil
}

// recordingSink captures every emitted (code, value) edge in order.
type recordingSink struct {
	edges []Event
}

func (r *recordingSink) Emit(code uint16, value int32) error {
	r.edges = append(r.edges, Event{Code: code, Value: value})
	return nil
}

// failingSink errors on the Nth emit (1-indexed), used to exercise
// the "write failure is fatal" path.
type failingSink struct {
	failAt int
	n      int
	edges  []Event
}

func (f *failingSink) Emit(code uint16, value int32) error {
	f.n++
	if f.n == f.failAt {
		return errWriteFailed
	}
	f.edges = append(f.edges, Event{Code: code, Value: value})
	return nil
}
