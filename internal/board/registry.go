package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "apptline/internal/log"
	"apptline/internal/model"
)

// maxParallelRefresh bounds concurrent feed downloads in RefreshAll.
const maxParallelRefresh = 4

// Source supplies the raw appointments of a resource for the window
// anchored at anchor.
type Source interface {
	FetchAppointments(ctx context.Context, resourceID string, anchor time.Time, spanHours int) ([]model.RawAppointment, error)
}

// Registry holds the boards of all configured resources.
type Registry struct {
	source   Source
	now      func() time.Time
	recorder Recorder

	mu     sync.RWMutex
	boards map[string]*Board
	order  []string
}

// NewRegistry creates a Registry fetching from source. A nil now means
// time.Now; a nil recorder records nothing.
func NewRegistry(source Source, now func() time.Time, recorder Recorder) *Registry {
	if now == nil {
		now = time.Now
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Registry{
		source:   source,
		now:      now,
		recorder: recorder,
		boards:   make(map[string]*Board),
	}
}

// Add registers b, replacing any board with the same ID.
func (r *Registry) Add(b *Board) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.boards[b.ID()]; !ok {
		r.order = append(r.order, b.ID())
	}
	r.boards[b.ID()] = b
}

// Get returns the board for id or ErrUnknownResource.
func (r *Registry) Get(id string) (*Board, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.boards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, id)
	}
	return b, nil
}

// Boards returns all boards in registration order.
func (r *Registry) Boards() []*Board {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Board, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.boards[id])
	}
	return out
}

// Now returns the registry clock's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Refresh refetches one resource and reloads its board. On failure the
// board keeps its previous layout.
func (r *Registry) Refresh(ctx context.Context, id string) (Snapshot, error) {
	b, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}

	anchor := r.now()
	raw, err := r.source.FetchAppointments(ctx, id, anchor, b.SpanHours())
	if err != nil {
		r.recorder.RefreshFailed(id)
		return Snapshot{}, fmt.Errorf("refresh %s: %w", id, err)
	}

	snap, err := b.Load(raw, anchor)
	if err != nil {
		return Snapshot{}, err
	}
	appLog.Info("board refreshed",
		"resource", id,
		"appointments", len(raw),
		"rows", snap.Layout.RowCount,
		"boxes", snap.Layout.Positioned(),
		"warnings", len(snap.Layout.Warnings),
	)
	return snap, nil
}

// RefreshAll refreshes every board concurrently. One failing resource does
// not stop the others; all failures are joined into the returned error.
func (r *Registry) RefreshAll(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRefresh)
	for _, b := range r.Boards() {
		id := b.ID()
		g.Go(func() error {
			if _, err := r.Refresh(gctx, id); err != nil {
				appLog.Error("board refresh failed", err, "resource", id)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// ReanchorAll moves every board's window to the current time.
func (r *Registry) ReanchorAll() error {
	anchor := r.now()
	var errs []error
	for _, b := range r.Boards() {
		moved := false
		var err error
		if _, moved, err = b.Reanchor(anchor); err != nil {
			errs = append(errs, err)
			continue
		}
		if moved {
			appLog.Debug("board re-anchored", "resource", b.ID(), "anchor", anchor)
		}
	}
	return errors.Join(errs...)
}

// Apply routes a live update to the resource's board, anchored at now.
func (r *Registry) Apply(id string, msg model.UpdateMessage) (Snapshot, error) {
	b, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return b.Apply(msg, r.now())
}
