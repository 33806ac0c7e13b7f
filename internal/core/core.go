// Package core implements the event-transform state machine: the
// single-threaded loop that turns a stream of physical key edges into
// a stream of synthetic ones, giving selected keys a tap/hold dual
// role.
package core

import (
	"fmt"
	"time"

	"github.com/mikla-tf/janus-remap/internal/clock"
)

// State is the physically observed state of a row's source key.
type State int

const (
	Up State = iota
	Down
	Held
)

func (s State) String() string {
	switch s {
	case Up:
		return "up"
	case Down:
		return "down"
	case Held:
		return "held"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ModKey is one row of the mod map: a physical key, its tap/hold
// function codes, and its timing/suppression bookkeeping.
type ModKey struct {
	Key       uint16
	Primary   uint16 // 0 means "emit Key itself"
	Secondary uint16 // 0 means "no secondary — primary-only remap"

	State                  State
	LastTimeDown           clock.Instant
	DelayedDownPending     bool
	SendDownAt             clock.Instant
	LastSecondaryValueSent int32 // 0 or 1
}

// IsJanus reports whether this row has a secondary (hold) function.
func (m *ModKey) IsJanus() bool { return m.Secondary != 0 }

func (m *ModKey) activeJanus() bool {
	return m.IsJanus() && (m.State == Down || m.State == Held)
}

func (m *ModKey) primaryCode() uint16 {
	if m.Primary != 0 {
		return m.Primary
	}
	return m.Key
}

// Event is one raw key edge: value 0=up, 1=down, 2=held-repeat.
type Event struct {
	Code  uint16
	Value int32
}

// EventSource yields Events. Next blocks up to timeout (a negative
// timeout blocks indefinitely) for the next EV_KEY event; ok=false
// with err=nil means the wait elapsed with nothing ready. Returning
// io.EOF signals clean exhaustion of the source.
type EventSource interface {
	Next(timeout time.Duration) (ev Event, ok bool, err error)
}

// Sink is the write-only output side: one synthetic key edge,
// implicitly paired with a sync marker by the implementation. Any
// write failure is fatal.
type Sink interface {
	Emit(code uint16, value int32) error
}

// Engine owns the mod-map table and the process-wide chord flag as
// explicit struct fields rather than package-level mutable state.
type Engine struct {
	rows              []ModKey
	maxDelay          time.Duration
	lastInputWasChord bool
	clock             clock.Clock
	sink              Sink
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the production clock.System, used by tests to
// drive the deferred-down timer deterministically.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New builds an Engine from a validated mod-map table. rows must not
// contain duplicate Key values; New enforces that defensively, but
// the full configuration-error checking lives in
// internal/config.Validate, which runs before New is called.
func New(rows []ModKey, maxDelay time.Duration, sink Sink, opts ...Option) (*Engine, error) {
	if sink == nil {
		return nil, fmt.Errorf("core: sink must not be nil")
	}
	seen := make(map[uint16]bool, len(rows))
	for _, r := range rows {
		if seen[r.Key] {
			return nil, fmt.Errorf("core: duplicate key %d in mod map", r.Key)
		}
		seen[r.Key] = true
	}
	e := &Engine{
		rows:     append([]ModKey(nil), rows...),
		maxDelay: maxDelay,
		clock:    clock.System{},
		sink:     sink,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Rows returns a snapshot of the current mod-map state, for
// diagnostics and tests. Mutating the returned slice has no effect on
// the engine.
func (e *Engine) Rows() []ModKey {
	return append([]ModKey(nil), e.rows...)
}

func (e *Engine) rowByKey(code uint16) (*ModKey, bool) {
	for i := range e.rows {
		if e.rows[i].Key == code {
			return &e.rows[i], true
		}
	}
	return nil, false
}

func (e *Engine) janusRowByKey(code uint16) (*ModKey, bool) {
	row, ok := e.rowByKey(code)
	if !ok || !row.IsJanus() {
		return nil, false
	}
	return row, true
}

// anyJanusActive returns the index of some janus row currently Down
// or Held, or -1.
func (e *Engine) anyJanusActive() int {
	for i := range e.rows {
		if e.rows[i].activeJanus() {
			return i
		}
	}
	return -1
}

// forceSecondaryEdges clears DelayedDownPending on every active janus
// row and, where the last emitted value differs, emits that row's
// secondary function with value. This is the single de-duplication
// point for secondary edges.
func (e *Engine) forceSecondaryEdges(value int32) error {
	for i := range e.rows {
		row := &e.rows[i]
		if !row.activeJanus() {
			continue
		}
		row.DelayedDownPending = false
		if row.LastSecondaryValueSent != value {
			if err := e.sink.Emit(row.Secondary, value); err != nil {
				return err
			}
			row.LastSecondaryValueSent = value
		}
	}
	return nil
}

// emitPrimary emits code's primary function if code names a mod-map
// row, otherwise passes code through unchanged.
func (e *Engine) emitPrimary(code uint16, value int32) error {
	if row, ok := e.rowByKey(code); ok {
		return e.sink.Emit(row.primaryCode(), value)
	}
	return e.sink.Emit(code, value)
}

func (e *Engine) emitPrimaryPulse(code uint16) error {
	if err := e.emitPrimary(code, 1); err != nil {
		return err
	}
	return e.emitPrimary(code, 0)
}

// releaseSecondary closes a single row's secondary edge if it is
// currently asserted, without touching any other row.
func (e *Engine) releaseSecondary(row *ModKey) error {
	if row.LastSecondaryValueSent != 0 {
		if err := e.sink.Emit(row.Secondary, 0); err != nil {
			return err
		}
		row.LastSecondaryValueSent = 0
	}
	return nil
}

// handleEvent classifies and applies one incoming key edge: rows with
// a secondary function go through the tap/hold/chord state machine,
// everything else is a plain passthrough or primary-only remap.
func (e *Engine) handleEvent(ev Event) error {
	if row, ok := e.janusRowByKey(ev.Code); ok {
		return e.handleJanus(row, ev.Value)
	}
	return e.handleNonJanus(ev.Code, ev.Value)
}

// handleJanus runs the tap/hold/chord state machine for one dual-role
// row's down, held-repeat, or up edge.
func (e *Engine) handleJanus(row *ModKey, value int32) error {
	switch value {
	case 1: // down
		row.State = Down
		row.LastTimeDown = e.clock.Now()
		e.lastInputWasChord = false
		row.SendDownAt = row.LastTimeDown.Add(e.maxDelay)
		row.DelayedDownPending = true
		return nil

	case 2: // held-repeat
		row.State = Held
		e.lastInputWasChord = false
		return nil

	default: // up
		row.DelayedDownPending = false
		row.State = Up
		now := e.clock.Now()
		elapsed := now.Sub(row.LastTimeDown)
		tap := elapsed < e.maxDelay

		if tap {
			if e.lastInputWasChord {
				return e.releaseSecondary(row)
			}
			if e.anyJanusActive() >= 0 {
				e.lastInputWasChord = true
				if err := e.forceSecondaryEdges(1); err != nil {
					return err
				}
			} else {
				if err := e.forceSecondaryEdges(0); err != nil {
					return err
				}
			}
			return e.emitPrimaryPulse(row.Key)
		}

		// hold: the secondary has been (or will be) asserted; close it.
		return e.releaseSecondary(row)
	}
}

// handleNonJanus covers both passthrough keys absent from the mod map
// and primary-only remap rows, which are identical except for which
// code emitPrimary resolves to.
func (e *Engine) handleNonJanus(code uint16, value int32) error {
	switch value {
	case 1, 2: // down or held
		if e.anyJanusActive() >= 0 {
			e.lastInputWasChord = true
			if err := e.forceSecondaryEdges(1); err != nil {
				return err
			}
		} else {
			e.lastInputWasChord = false
		}
		return e.emitPrimary(code, value)

	default: // up
		return e.emitPrimary(code, 0)
	}
}
