// Package ticker implements the offset and wraparound logic behind an
// infinitely repeating horizontal strip of items (a marquee).
//
// The strip is one repetition of the item sequence drawn at least twice side
// by side. The ticker owns a single horizontal offset, advances it on each
// animation frame, and folds it back into (-loopWidth, 0] so the host can
// render the strip at that offset without ever showing a seam or blank space.
//
// A Ticker is not safe for concurrent use. It is owned by the UI loop that
// drives it; autoplay ticks and drag handlers are mutually exclusive through
// the dragging flag.
package ticker

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

// ErrInvalidInput is returned by Initialize for an empty item sequence.
var ErrInvalidInput = errors.New("ticker: invalid input")

// MeasureFunc reports the width of one repetition of the item sequence.
// It may return 0 while layout has not settled.
type MeasureFunc func() float64

// Phase is the externally visible state of a ticker.
type Phase int

const (
	PhaseIdle      Phase = iota // not initialized, or initialized with no items
	PhaseMeasuring              // items present, loop width unknown (0)
	PhaseRunning                // autoplay
	PhaseDragging               // user drag in progress
	PhasePaused                 // pointer hover or explicit pause
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMeasuring:
		return "measuring"
	case PhaseRunning:
		return "running"
	case PhaseDragging:
		return "dragging"
	case PhasePaused:
		return "paused"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is a snapshot of the ticker's mutable state.
type State struct {
	Offset     float64
	IsPaused   bool
	IsDragging bool
}

// Ticker holds the scroll offset of one marquee.
type Ticker struct {
	state    State
	items    []model.DisplayItem
	velocity float64 // pixels (or cells) per second
	measure  MeasureFunc
	ready    bool
}

// New creates a ticker that scrolls at velocity units per second.
// A nil measure is treated as an unmeasured layout.
func New(velocity float64, measure MeasureFunc) *Ticker {
	if math.IsNaN(velocity) || math.IsInf(velocity, 0) {
		velocity = 0
	}
	return &Ticker{
		velocity: velocity,
		measure:  measure,
	}
}

// Initialize sets the item sequence and resets the offset to 0.
// An empty sequence leaves the ticker idle: it returns ErrInvalidInput and
// every later Tick, drag or wheel call is a no-op.
func (t *Ticker) Initialize(items []model.DisplayItem) error {
	t.state.Offset = 0
	if len(items) == 0 {
		t.items = nil
		t.ready = false
		return fmt.Errorf("%w: empty item sequence", ErrInvalidInput)
	}
	t.items = append([]model.DisplayItem(nil), items...)
	t.ready = true
	return nil
}

// SetItems swaps the item sequence without resetting the offset, then
// re-wraps against the new loop width. An empty sequence behaves like
// Initialize with no items.
func (t *Ticker) SetItems(items []model.DisplayItem) error {
	if len(items) == 0 {
		return t.Initialize(nil)
	}
	t.items = append([]model.DisplayItem(nil), items...)
	t.ready = true
	t.state.Offset = Wrap(t.state.Offset, t.loopWidth())
	return nil
}

// Items returns the current item sequence.
func (t *Ticker) Items() []model.DisplayItem { return t.items }

// SetMeasure replaces the loop width source.
func (t *Ticker) SetMeasure(measure MeasureFunc) { t.measure = measure }

// SetVelocity changes the autoplay speed.
func (t *Ticker) SetVelocity(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	t.velocity = v
}

// Velocity returns the autoplay speed.
func (t *Ticker) Velocity() float64 { return t.velocity }

// Tick advances the offset by one animation frame.
func (t *Ticker) Tick(dt time.Duration) {
	if !t.ready || t.state.IsPaused || t.state.IsDragging {
		return
	}
	t.apply(-t.velocity * dt.Seconds())
}

// OnDragDelta moves the strip by dx (positive = user drags right).
func (t *Ticker) OnDragDelta(dx float64) {
	if !t.ready {
		return
	}
	t.apply(dx)
}

// OnWheelDelta maps a vertical wheel delta onto the horizontal offset.
func (t *Ticker) OnWheelDelta(dy float64) {
	if !t.ready {
		return
	}
	t.apply(-dy)
}

// Pause stops autoplay.
func (t *Ticker) Pause() { t.state.IsPaused = true }

// Resume restarts autoplay.
func (t *Ticker) Resume() { t.state.IsPaused = false }

// SetDragging marks a drag gesture as active or finished.
func (t *Ticker) SetDragging(active bool) { t.state.IsDragging = active }

// Offset returns the current offset.
func (t *Ticker) Offset() float64 { return t.state.Offset }

// State returns a copy of the mutable state.
func (t *Ticker) State() State { return t.state }

// LoopWidth reads the current loop width.
func (t *Ticker) LoopWidth() float64 { return t.loopWidth() }

// Phase derives the current phase from state and layout.
func (t *Ticker) Phase() Phase {
	switch {
	case !t.ready:
		return PhaseIdle
	case t.loopWidth() <= 0:
		return PhaseMeasuring
	case t.state.IsDragging:
		return PhaseDragging
	case t.state.IsPaused:
		return PhasePaused
	default:
		return PhaseRunning
	}
}

func (t *Ticker) apply(delta float64) {
	if delta == 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
		return
	}
	t.state.Offset = Wrap(t.state.Offset+delta, t.loopWidth())
}

func (t *Ticker) loopWidth() float64 {
	if t.measure == nil {
		return 0
	}
	w := t.measure()
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0
	}
	return w
}

// Wrap folds offset into (-loopWidth, 0] in one step, for any magnitude.
// With loopWidth <= 0 (or non-finite) there is nothing to wrap against and
// offset is returned unchanged.
func Wrap(offset, loopWidth float64) float64 {
	if loopWidth <= 0 || math.IsNaN(loopWidth) || math.IsInf(loopWidth, 0) {
		return offset
	}
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return 0
	}
	if offset > -loopWidth && offset <= 0 {
		return offset
	}
	r := math.Mod(offset, loopWidth) // sign of offset, |r| < loopWidth
	if r > 0 {
		r -= loopWidth
	}
	if r <= -loopWidth || r == 0 {
		return 0 // normalize -0
	}
	return r
}
