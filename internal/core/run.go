package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Run drains src until EOF, a fatal Sink error, or ctx cancellation.
// Each pass computes the soonest armed deferred-down, waits on input
// with that as a timeout, drains every timer that has now expired,
// and only then hands a freshly arrived event to handleEvent. The
// ordering is load-bearing — a modifier down emitted by an expired
// timer must reach the sink before the edge for a key that happened
// to arrive right on its heels.
func (e *Engine) Run(ctx context.Context, src EventSource) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev, ok, err := src.Next(e.nextTimeout())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := e.fireExpiredTimers(); err != nil {
			return err
		}

		if !ok {
			// Plain readiness timeout; nothing read. Any timer due at
			// this instant was already fired above.
			continue
		}

		if err := e.handleEvent(ev); err != nil {
			return err
		}
	}
}

// nextTimeout returns the duration until the soonest armed
// delayed-down deadline, or a negative duration when no timer is
// armed (wait for input indefinitely).
func (e *Engine) nextTimeout() time.Duration {
	armed := false
	earliest := e.clock.Now()
	for i := range e.rows {
		row := &e.rows[i]
		if !row.DelayedDownPending {
			continue
		}
		if !armed || row.SendDownAt.Before(earliest) {
			earliest = row.SendDownAt
			armed = true
		}
	}
	if !armed {
		return -1
	}
	d := earliest.Sub(e.clock.Now())
	if d < 0 {
		d = 0
	}
	return d
}

// fireExpiredTimers emits secondary=1 for every row whose deferred
// down has reached its deadline.
func (e *Engine) fireExpiredTimers() error {
	now := e.clock.Now()
	for i := range e.rows {
		row := &e.rows[i]
		if !row.DelayedDownPending || now.Before(row.SendDownAt) {
			continue
		}
		if row.LastSecondaryValueSent != 1 {
			if err := e.sink.Emit(row.Secondary, 1); err != nil {
				return err
			}
			row.LastSecondaryValueSent = 1
		}
		row.DelayedDownPending = false
	}
	return nil
}
