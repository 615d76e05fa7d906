// Package board holds the live timeline of each resource: the last
// computed layout, the interval set it was computed from, and the hover
// and selection state on top of it.
package board

import (
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "apptline/internal/log"
	"apptline/internal/model"
	"apptline/internal/timeline"
)

var ErrUnknownResource = errors.New("unknown resource")

// Recorder receives layout statistics. *metrics.Exporter implements it.
type Recorder interface {
	ObserveLayout(resource string, l timeline.Layout, took time.Duration, fresh bool)
	RefreshFailed(resource string)
	UpdateApplied(resource, kind string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLayout(string, timeline.Layout, time.Duration, bool) {}
func (nopRecorder) RefreshFailed(string)                                      {}
func (nopRecorder) UpdateApplied(string, string)                              {}

// Snapshot is a consistent view of a board at one version.
type Snapshot struct {
	Resource    string                    `json:"resource"`
	Name        string                    `json:"name"`
	Version     uint64                    `json:"version"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	Layout      timeline.Layout           `json:"layout"`
	Interaction timeline.InteractionState `json:"interaction"`
}

// Board is the timeline of a single resource. All methods are safe for
// concurrent use. Each change builds a complete new layout and swaps it in
// under the lock, so readers never see a partial state.
type Board struct {
	id   string
	name string

	spanHours int
	opts      timeline.Options
	recorder  Recorder
	now       func() time.Time

	// wmu serializes read-compute-swap cycles so concurrent updates are
	// not lost; mu guards the fields below it.
	wmu sync.Mutex

	mu          sync.RWMutex
	intervals   []timeline.Interval
	warnings    []timeline.Warning
	layout      timeline.Layout
	interaction timeline.InteractionState
	version     uint64
	updatedAt   time.Time

	lmu       sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int
}

// Option configures a Board.
type Option func(*Board)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(b *Board) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithClock overrides the clock used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates an empty board. spanHours is validated on the first
// recompute, where ErrInvalidSpan is returned to the caller.
func New(id, name string, spanHours int, opts timeline.Options, options ...Option) *Board {
	if name == "" {
		name = id
	}
	b := &Board{
		id:        id,
		name:      name,
		spanHours: spanHours,
		opts:      opts,
		recorder:  nopRecorder{},
		now:       time.Now,
		listeners: make(map[int]func(Snapshot)),
	}
	for _, o := range options {
		o(b)
	}
	return b
}

func (b *Board) ID() string     { return b.id }
func (b *Board) Name() string   { return b.name }
func (b *Board) SpanHours() int { return b.spanHours }

// Location is the zone the board lays appointments out in.
func (b *Board) Location() *time.Location {
	if b.opts.Location == nil {
		return time.Local
	}
	return b.opts.Location
}

// Load replaces the board's appointments wholesale and recomputes.
func (b *Board) Load(raw []model.RawAppointment, anchor time.Time) (Snapshot, error) {
	b.wmu.Lock()
	defer b.wmu.Unlock()

	start := time.Now()
	layout, intervals, err := timeline.ComputeLayout(raw, anchor, b.spanHours, b.opts)
	if err != nil {
		return Snapshot{}, fmt.Errorf("board %s: %w", b.id, err)
	}
	b.recorder.ObserveLayout(b.id, layout, time.Since(start), true)

	for _, w := range layout.Warnings {
		appLog.Debug("appointment dropped", "resource", b.id, "id", w.ID, "reason", w.Reason, "detail", w.Err)
	}

	return b.swap(func() {
		b.intervals = intervals
		b.warnings = layout.Warnings
		b.layout = layout
	}), nil
}

// Apply merges one live update into the interval set and recomputes at
// anchor. A message that cannot be normalized is rejected with an error
// and leaves the board untouched; an update or removal for an unknown ID is
// a silent no-op.
func (b *Board) Apply(msg model.UpdateMessage, anchor time.Time) (Snapshot, error) {
	ev, err := timeline.EventFromMessage(msg, b.Location())
	if err != nil {
		return Snapshot{}, err
	}

	b.wmu.Lock()
	defer b.wmu.Unlock()

	b.mu.RLock()
	current := b.intervals
	warnings := b.warnings
	b.mu.RUnlock()

	next := timeline.ApplyUpdate(current, ev)

	start := time.Now()
	layout, err := timeline.Recompute(next, anchor, b.spanHours, b.opts)
	if err != nil {
		return Snapshot{}, fmt.Errorf("board %s: %w", b.id, err)
	}
	layout.Warnings = warnings
	b.recorder.ObserveLayout(b.id, layout, time.Since(start), false)
	b.recorder.UpdateApplied(b.id, string(ev.Kind))

	return b.swap(func() {
		b.intervals = next
		b.layout = layout
	}), nil
}

// Reanchor recomputes the current interval set at a new anchor, moving the
// window forward as time passes. It reports whether the window changed;
// listeners are notified only then.
func (b *Board) Reanchor(anchor time.Time) (Snapshot, bool, error) {
	w, err := timeline.ComputeWindow(anchor, b.spanHours, b.Location())
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("board %s: %w", b.id, err)
	}

	b.wmu.Lock()
	defer b.wmu.Unlock()

	b.mu.RLock()
	same := b.version > 0 && b.layout.Window.Start.Equal(w.Start)
	current := b.intervals
	warnings := b.warnings
	b.mu.RUnlock()
	if same {
		return b.Snapshot(), false, nil
	}

	start := time.Now()
	layout, err := timeline.Recompute(current, anchor, b.spanHours, b.opts)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("board %s: %w", b.id, err)
	}
	layout.Warnings = warnings
	b.recorder.ObserveLayout(b.id, layout, time.Since(start), false)

	return b.swap(func() {
		b.layout = layout
	}), true, nil
}

// Hover, Unhover, Select and ClearSelection drive the interaction state.

func (b *Board) Hover(id string) Snapshot {
	return b.interact(func(s timeline.InteractionState) timeline.InteractionState { return s.Hover(id) })
}

func (b *Board) Unhover(id string) Snapshot {
	return b.interact(func(s timeline.InteractionState) timeline.InteractionState { return s.Unhover(id) })
}

func (b *Board) Select(id string) Snapshot {
	return b.interact(func(s timeline.InteractionState) timeline.InteractionState { return s.Select(id) })
}

func (b *Board) ClearSelection() Snapshot {
	return b.interact(func(s timeline.InteractionState) timeline.InteractionState { return s.ClearSelection() })
}

// interact applies fn to the interaction state. Hovering or selecting an ID
// that is not on the current layout is ignored.
func (b *Board) interact(fn func(timeline.InteractionState) timeline.InteractionState) Snapshot {
	b.mu.Lock()
	next := fn(b.interaction)
	if next == b.interaction || next.Reconcile(b.layout) != next {
		snap := b.snapshotLocked()
		b.mu.Unlock()
		return snap
	}
	b.interaction = next
	b.version++
	b.updatedAt = b.now()
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.notify(snap)
	return snap
}

// Snapshot returns the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// Intervals returns a copy of the full interval set, including intervals
// outside the current window.
func (b *Board) Intervals() []timeline.Interval {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]timeline.Interval(nil), b.intervals...)
}

// OnChange registers fn to receive every new snapshot. The returned func
// removes it.
func (b *Board) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	b.lmu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.lmu.Lock()
			delete(b.listeners, id)
			b.lmu.Unlock()
		})
	}
}

// swap applies mutate under the write lock, reconciles the interaction
// state against the new layout, bumps the version and notifies listeners.
func (b *Board) swap(mutate func()) Snapshot {
	b.mu.Lock()
	mutate()
	b.interaction = b.interaction.Reconcile(b.layout)
	b.version++
	b.updatedAt = b.now()
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.notify(snap)
	return snap
}

func (b *Board) snapshotLocked() Snapshot {
	return Snapshot{
		Resource:    b.id,
		Name:        b.name,
		Version:     b.version,
		UpdatedAt:   b.updatedAt,
		Layout:      b.layout,
		Interaction: b.interaction,
	}
}

func (b *Board) notify(s Snapshot) {
	b.lmu.Lock()
	fns := make([]func(Snapshot), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.lmu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
