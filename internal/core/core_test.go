package core

import (
	"context"
	"testing"
	"time"

	"github.com/mikla-tf/janus-remap/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Linux keycodes used throughout — kept local to the test so the
// package under test stays code-agnostic (it never interprets the
// meaning of a code, only its role in the mod map).
const (
	keyCapsLock  = 58
	keyEsc       = 1
	keyLeftAlt   = 56
	keyEnter     = 28
	keyRightAlt  = 100
	keyA         = 30
)

func capsLockEscAlt() []ModKey {
	return []ModKey{
		{Key: keyCapsLock, Primary: keyEsc, Secondary: keyLeftAlt},
	}
}

func twoJanusRows() []ModKey {
	return []ModKey{
		{Key: keyCapsLock, Primary: keyEsc, Secondary: keyLeftAlt},
		{Key: keyEnter, Primary: keyEnter, Secondary: keyRightAlt},
	}
}

func runScenario(t *testing.T, rows []ModKey, maxDelay time.Duration, events []scheduledEvent) []Event {
	t.Helper()
	clk := clock.NewFake()
	sink := &recordingSink{}
	src := &scriptedSource{clk: clk, events: events}
	e, err := New(rows, maxDelay, sink, WithClock(clk))
	require.NoError(t, err)
	err = e.Run(context.Background(), src)
	require.NoError(t, err)
	return sink.edges
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Scenario 1: short tap.
func TestScenario_ShortTap(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(50), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyEsc, Value: 1},
		{Code: keyEsc, Value: 0},
	}, edges)
}

// Scenario 2: long hold.
func TestScenario_LongHold(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(500), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyLeftAlt, Value: 1},
		{Code: keyLeftAlt, Value: 0},
	}, edges)
}

// Scenario 3: chord with a plain key.
func TestScenario_Chord(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(100), ev: Event{Code: keyA, Value: 1}},
		{at: ms(120), ev: Event{Code: keyA, Value: 0}},
		{at: ms(150), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyLeftAlt, Value: 1},
		{Code: keyA, Value: 1},
		{Code: keyA, Value: 0},
		{Code: keyLeftAlt, Value: 0},
	}, edges)
}

// Scenario 4: two janus keys chorded — tap-of-second-janus during a
// chord emits its primary pulse while the first janus's secondary
// stays held.
func TestScenario_TwoJanusChorded(t *testing.T) {
	edges := runScenario(t, twoJanusRows(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(50), ev: Event{Code: keyEnter, Value: 1}},
		{at: ms(60), ev: Event{Code: keyEnter, Value: 0}},
		{at: ms(80), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyLeftAlt, Value: 1},
		{Code: keyEnter, Value: 1},
		{Code: keyEnter, Value: 0},
		{Code: keyLeftAlt, Value: 0},
	}, edges)
}

// Scenario 5: deferred-down fires with no co-press, then release.
func TestScenario_DeferredDownNoCoPress(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(350), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyLeftAlt, Value: 1},
		{Code: keyLeftAlt, Value: 0},
	}, edges)
}

// Scenario 6: rapid re-tap.
func TestScenario_RapidRetap(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(40), ev: Event{Code: keyCapsLock, Value: 0}},
		{at: ms(80), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(120), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyEsc, Value: 1},
		{Code: keyEsc, Value: 0},
		{Code: keyEsc, Value: 1},
		{Code: keyEsc, Value: 0},
	}, edges)
}

// Boundary: elapsed == max_delay classifies as hold, not tap.
func TestScenario_ElapsedEqualsMaxDelayIsHold(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(300), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	// At t=300 the deferred timer has already fired (it fires when
	// now >= sendDownAt, and sendDownAt == 300 here), so the release
	// closes the already-asserted secondary rather than emitting a
	// primary pulse.
	assert.Equal(t, []Event{
		{Code: keyLeftAlt, Value: 1},
		{Code: keyLeftAlt, Value: 0},
	}, edges)
}

// Held-repeat arriving before the deferred-down deadline does not
// itself fire the deferred down — only the timer loop does.
func TestHeldRepeatDoesNotFireTimerEarly(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(100), ev: Event{Code: keyCapsLock, Value: 2}},
		{at: ms(150), ev: Event{Code: keyCapsLock, Value: 2}},
		{at: ms(500), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	// The two held-repeats at 100ms/150ms emit nothing; the secondary
	// down only appears once, fired by the 300ms timer.
	assert.Equal(t, []Event{
		{Code: keyLeftAlt, Value: 1},
		{Code: keyLeftAlt, Value: 0},
	}, edges)
}

// Empty input produces no output.
func TestEmptyInputProducesNoOutput(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), nil)
	assert.Empty(t, edges)
}

// max_delay = 0 causes every janus down to emit its secondary on the
// very next loop iteration.
func TestZeroMaxDelayFiresImmediately(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), 0, []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(10), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyLeftAlt, Value: 1},
		{Code: keyLeftAlt, Value: 0},
	}, edges)
}

// max_delay = "infinite" (here, a duration far longer than any
// scripted event) never emits a secondary edge from taps alone.
func TestEffectivelyInfiniteMaxDelayNeverFiresFromTapsAlone(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), time.Hour, []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(40), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyEsc, Value: 1},
		{Code: keyEsc, Value: 0},
	}, edges)
}

// For every janus row, secondary edges alternate 1,0,1,0,... starting
// with 1 — no edge ever repeats the immediately prior value.
func TestInvariant_SecondaryEdgesAlternate(t *testing.T) {
	edges := runScenario(t, twoJanusRows(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(50), ev: Event{Code: keyEnter, Value: 1}},
		{at: ms(60), ev: Event{Code: keyEnter, Value: 0}},
		{at: ms(80), ev: Event{Code: keyCapsLock, Value: 0}},
		{at: ms(100), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(600), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	perRow := map[uint16][]int32{}
	for _, e := range edges {
		if e.Code == keyLeftAlt || e.Code == keyRightAlt {
			perRow[e.Code] = append(perRow[e.Code], e.Value)
		}
	}
	for code, values := range perRow {
		for i, v := range values {
			want := int32(1)
			if i%2 == 1 {
				want = 0
			}
			assert.Equalf(t, want, v, "row %d edge %d out of alternation: %v", code, i, values)
		}
	}
}

// Every emitted primary pulse is contiguous — a 1 immediately
// followed by a 0 for the same code with nothing of that code between.
func TestInvariant_PrimaryPulsesAreContiguous(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(40), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	require.Len(t, edges, 2)
	assert.Equal(t, Event{Code: keyEsc, Value: 1}, edges[0])
	assert.Equal(t, Event{Code: keyEsc, Value: 0}, edges[1])
}

// A fatal sink write error aborts Run immediately with that error.
func TestFatalSinkErrorAbortsRun(t *testing.T) {
	clk := clock.NewFake()
	sink := &failingSink{failAt: 1}
	src := &scriptedSource{clk: clk, events: []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(500), ev: Event{Code: keyCapsLock, Value: 0}},
	}}
	e, err := New(capsLockEscAlt(), ms(300), sink, WithClock(clk))
	require.NoError(t, err)
	err = e.Run(context.Background(), src)
	assert.ErrorIs(t, err, errWriteFailed)
}

func TestNewRejectsDuplicateKeys(t *testing.T) {
	rows := []ModKey{
		{Key: keyCapsLock, Secondary: keyLeftAlt},
		{Key: keyCapsLock, Secondary: keyRightAlt},
	}
	_, err := New(rows, ms(300), &recordingSink{})
	assert.Error(t, err)
}

func TestNewRejectsNilSink(t *testing.T) {
	_, err := New(capsLockEscAlt(), ms(300), nil)
	assert.Error(t, err)
}

func TestNonJanusPrimaryOnlyRemap(t *testing.T) {
	rows := []ModKey{{Key: keyCapsLock, Primary: keyEsc}}
	edges := runScenario(t, rows, ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(10), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyEsc, Value: 1},
		{Code: keyEsc, Value: 0},
	}, edges)
}

func TestPassthroughKeyDuringChordForcesSecondaryDown(t *testing.T) {
	edges := runScenario(t, capsLockEscAlt(), ms(300), []scheduledEvent{
		{at: ms(0), ev: Event{Code: keyCapsLock, Value: 1}},
		{at: ms(50), ev: Event{Code: keyA, Value: 1}},
		{at: ms(50), ev: Event{Code: keyA, Value: 0}},
		{at: ms(200), ev: Event{Code: keyCapsLock, Value: 0}},
	})
	assert.Equal(t, []Event{
		{Code: keyLeftAlt, Value: 1},
		{Code: keyA, Value: 1},
		{Code: keyA, Value: 0},
		{Code: keyLeftAlt, Value: 0},
	}, edges)
}
